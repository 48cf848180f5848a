package models

// ListingStatus is the moderation state of a listing.
type ListingStatus string

const (
	StatusPending  ListingStatus = "pending"
	StatusActive   ListingStatus = "active"
	StatusRejected ListingStatus = "rejected"
)

// Valid reports whether s is one of the known moderation states.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected:
		return true
	}
	return false
}

// StatusAfterEdit returns the status a listing takes after an edit.
// Owner edits always re-queue the listing for moderation; admins may set the
// status directly and otherwise keep the current one.
func StatusAfterEdit(current ListingStatus, isAdmin bool, requested *ListingStatus) ListingStatus {
	if !isAdmin {
		return StatusPending
	}
	if requested != nil && requested.Valid() {
		return *requested
	}
	return current
}
