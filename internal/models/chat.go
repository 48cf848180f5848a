package models

import "sort"

// Message is a single chat message about a listing between two participants.
type Message struct {
	ID         string `json:"id"`
	ListingID  string `json:"adId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Read       bool   `json:"read"`
}

// HasParticipant reports whether userID sent or received m.
func (m Message) HasParticipant(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Between reports whether m was exchanged between a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// MessageInput is what a participant supplies when sending.
type MessageInput struct {
	ListingID  string `json:"adId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// MessageQuery scopes a message read. Empty fields do not filter.
type MessageQuery struct {
	ListingID   string
	SenderID    string
	ReceiverID  string
	Participant string
	Unread      bool
}

// ChatView is the derived state of one conversation as seen by a viewer.
type ChatView struct {
	ListingID   string    `json:"adId"`
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
}

// NewChatView sorts msgs by timestamp ascending, keeps those visible to viewer
// (and exchanged with other, when set) and derives the last message and unread count.
func NewChatView(listingID, viewer, other string, msgs []Message) ChatView {
	sorted := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if other != "" {
			if !m.Between(viewer, other) {
				continue
			}
		} else if !m.HasParticipant(viewer) {
			continue
		}
		sorted = append(sorted, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	view := ChatView{ListingID: listingID, Messages: sorted}
	for _, m := range sorted {
		if m.ReceiverID == viewer && !m.Read {
			view.UnreadCount++
		}
	}
	if n := len(sorted); n > 0 {
		last := sorted[n-1]
		view.LastMessage = &last
	}
	return view
}

// ChatSummary is one row of a user's "my chats" overview.
type ChatSummary struct {
	ListingID     string   `json:"adId"`
	CounterpartID string   `json:"counterpartId,omitempty"`
	LastMessage   *Message `json:"lastMessage,omitempty"`
	UnreadCount   int      `json:"unreadCount"`
}

// Summary condenses a view for the overview list.
func (v ChatView) Summary(viewer string) ChatSummary {
	s := ChatSummary{ListingID: v.ListingID, LastMessage: v.LastMessage, UnreadCount: v.UnreadCount}
	if v.LastMessage != nil {
		if v.LastMessage.SenderID == viewer {
			s.CounterpartID = v.LastMessage.ReceiverID
		} else {
			s.CounterpartID = v.LastMessage.SenderID
		}
	}
	return s
}

// DashboardCounts is the admin dashboard's aggregate view.
type DashboardCounts struct {
	Total          int64 `json:"total"`
	Pending        int64 `json:"pending"`
	Active         int64 `json:"active"`
	Rejected       int64 `json:"rejected"`
	Messages       int64 `json:"messages"`
	UnreadMessages int64 `json:"unreadMessages"`
}

// ModerationEvent is one entry of the moderation audit trail.
type ModerationEvent struct {
	ID        int64  `json:"id"`
	ListingID string `json:"adId"`
	Action    string `json:"action"`
	Admin     string `json:"admin"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
)
