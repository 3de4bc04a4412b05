package gateway

import (
	"encoding/json"

	"github.com/nhle/crm-notify/internal/model"
)

// envelope is the common response wrapper of every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Pagination is the pagination block of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ListData is the data block of GET /notifications.
type ListData struct {
	Notifications []model.Notification `json:"notifications"`
	Pagination    Pagination           `json:"pagination"`
}

// UnreadCountData is the data block of GET /notifications/unread-count.
type UnreadCountData struct {
	UnreadCount int `json:"unreadCount"`
}

// BulkRequest is the body of POST /notifications/bulk.
type BulkRequest struct {
	NotificationIDs []string          `json:"notificationIds"`
	Action          model.BulkAction  `json:"action"`
	Context         map[string]string `json:"context,omitempty"`
}

// MarkAllReadRequest is the body of POST /notifications/mark-all-read.
type MarkAllReadRequest struct {
	Filters model.Filters `json:"filters"`
}
