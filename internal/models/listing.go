package models

import "time"

// Listing is a seller's product advertisement. Timestamps are epoch milliseconds
// as assigned by the document store.
type Listing struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Price           float64       `json:"price"`
	CategoryID      string        `json:"categoryId"`
	SubcategoryID   string        `json:"subcategoryId"`
	Images          []string      `json:"images"`
	UserID          string        `json:"userId"`
	Status          ListingStatus `json:"status"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	Contact         string        `json:"contact,omitempty"`
	CreatedAt       int64         `json:"createdAt"`
	UpdatedAt       int64         `json:"updatedAt"`
}

// ListingInput carries the caller-supplied fields of a new listing.
type ListingInput struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	CategoryID    string   `json:"categoryId"`
	SubcategoryID string   `json:"subcategoryId"`
	Images        []string `json:"images"`
	UserID        string   `json:"userId"`
	Contact       string   `json:"contact,omitempty"`
}

// ListingPatch is a partial update. Nil fields are left untouched.
type ListingPatch struct {
	Title           *string        `json:"title,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Price           *float64       `json:"price,omitempty"`
	CategoryID      *string        `json:"categoryId,omitempty"`
	SubcategoryID   *string        `json:"subcategoryId,omitempty"`
	Images          *[]string      `json:"images,omitempty"`
	Contact         *string        `json:"contact,omitempty"`
	UserID          *string        `json:"userId,omitempty"`
	Status          *ListingStatus `json:"status,omitempty"`
	RejectionReason *string        `json:"rejectionReason,omitempty"`
}

// Apply copies the set fields of p onto l.
func (p ListingPatch) Apply(l *Listing) {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Price != nil {
		l.Price = *p.Price
	}
	if p.CategoryID != nil {
		l.CategoryID = *p.CategoryID
	}
	if p.SubcategoryID != nil {
		l.SubcategoryID = *p.SubcategoryID
	}
	if p.Images != nil {
		l.Images = append([]string(nil), (*p.Images)...)
	}
	if p.Contact != nil {
		l.Contact = *p.Contact
	}
	if p.UserID != nil {
		l.UserID = *p.UserID
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.RejectionReason != nil {
		l.RejectionReason = *p.RejectionReason
	}
}

// ListingQuery scopes a listing read. Empty fields do not filter.
type ListingQuery struct {
	Status  ListingStatus
	OwnerID string
}

// Millis normalizes a store timestamp to epoch milliseconds.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
