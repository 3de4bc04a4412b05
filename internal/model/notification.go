package model

import "time"

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusArchived  Status = "archived"
	StatusExpired   Status = "expired"
)

// rank orders statuses along the lifecycle. Transitions may only move to
// a strictly higher rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDelivered, StatusExpired:
		return 1
	case StatusRead:
		return 2
	case StatusArchived:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether moving from s to next moves the
// lifecycle forward.
func (s Status) CanTransitionTo(next Status) bool {
	return next.rank() > s.rank()
}

// IsUnread reports whether a notification in this status counts toward
// the unread counter.
func (s Status) IsUnread() bool {
	return s.rank() < StatusRead.rank()
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusRead, StatusArchived, StatusExpired:
		return true
	}
	return false
}

// Priority is the urgency attached to a notification by the server.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Type is the event category a notification was raised for.
type Type string

const (
	TypeLeadAssigned       Type = "lead_assigned"
	TypeLeadStatusChanged  Type = "lead_status_changed"
	TypeFollowUpDue        Type = "follow_up_due"
	TypeBookingCreated     Type = "booking_created"
	TypeBookingUpdated     Type = "booking_updated"
	TypeBookingCancelled   Type = "booking_cancelled"
	TypeRoleChanged        Type = "role_changed"
	TypeSystemAnnouncement Type = "system_announcement"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AllStatuses, AllTypes and AllPriorities list the known values in display order.
var (
	AllStatuses = []Status{
		StatusPending, StatusDelivered, StatusRead, StatusArchived, StatusExpired,
	}
	AllTypes = []Type{
		TypeLeadAssigned, TypeLeadStatusChanged, TypeFollowUpDue,
		TypeBookingCreated, TypeBookingUpdated, TypeBookingCancelled,
		TypeRoleChanged, TypeSystemAnnouncement,
	}
	AllPriorities = []Priority{
		PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent,
	}
)

// Sender is a snapshot of the user that caused the notification.
type Sender struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Lifecycle tracks the read/archive state of a notification.
type Lifecycle struct {
	Status         Status     `json:"status"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	ReadFromDevice string     `json:"readFromDevice,omitempty"`
	ActionTaken    bool       `json:"actionTaken,omitempty"`
	ActionTakenAt  *time.Time `json:"actionTakenAt,omitempty"`
	ActionType     string     `json:"actionType,omitempty"`
}

// Metadata carries server-assigned attributes. Domain foreign keys
// (lead, booking, role ids) are kept in Refs.
type Metadata struct {
	Priority     Priority          `json:"priority"`
	ActionURL    string            `json:"actionUrl,omitempty"`
	IsActionable bool              `json:"isActionable,omitempty"`
	Refs         map[string]string `json:"refs,omitempty"`
}

// Channels holds the delivery channel flags.
type Channels struct {
	InApp bool `json:"inApp"`
	Email bool `json:"email"`
}

// Notification is a single addressed event record surfaced to a user.
// Only Lifecycle is ever changed on the client.
type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Sender    *Sender   `json:"sender,omitempty"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Lifecycle Lifecycle `json:"lifecycle"`
	Metadata  Metadata  `json:"metadata"`
	Channels  Channels  `json:"channels"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of n.
func (n Notification) Clone() Notification {
	c := n
	if n.Sender != nil {
		s := *n.Sender
		c.Sender = &s
	}
	if n.Lifecycle.ReadAt != nil {
		t := *n.Lifecycle.ReadAt
		c.Lifecycle.ReadAt = &t
	}
	if n.Lifecycle.ActionTakenAt != nil {
		t := *n.Lifecycle.ActionTakenAt
		c.Lifecycle.ActionTakenAt = &t
	}
	if n.Metadata.Refs != nil {
		c.Metadata.Refs = make(map[string]string, len(n.Metadata.Refs))
		for k, v := range n.Metadata.Refs {
			c.Metadata.Refs[k] = v
		}
	}
	return c
}

// TypeCount is one entry of the per-type breakdown in Stats.
type TypeCount struct {
	Type  Type `json:"_id"`
	Count int  `json:"count"`
}

// Stats are aggregate figures computed by the server.
type Stats struct {
	UnreadCount   int         `json:"unreadCount"`
	TotalCount    int         `json:"totalCount"`
	RecentCount   int         `json:"recentCount"`
	TypeBreakdown []TypeCount `json:"typeBreakdown"`
}

// Page is one page of a filtered notification listing.
type Page struct {
	Items      []Notification
	Page       int
	TotalPages int
	Total      int
}

// Filters constrains a listing. Empty fields mean no constraint.
type Filters struct {
	Status   Status   `json:"status,omitempty"`
	Type     Type     `json:"type,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

// IsZero reports whether no constraint is set.
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// BulkAction names a batch state transition understood by the server.
type BulkAction string

const (
	BulkRead    BulkAction = "read"
	BulkArchive BulkAction = "archive"
	BulkDelete  BulkAction = "delete"
)

// User is the identity the session resolved.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
