package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Success: false, Message: msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func positiveInt(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func parseFilters(q map[string][]string) (model.Filters, string) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	f := model.Filters{
		Status:   model.Status(get("status")),
		Type:     model.Type(get("type")),
		Priority: model.Priority(get("priority")),
	}
	return f, validateFilters(f)
}

func validateFilters(f model.Filters) string {
	if f.Status != "" && !f.Status.Valid() {
		return "unknown status " + string(f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return "unknown type " + string(f.Type)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return "unknown priority " + string(f.Priority)
	}
	return ""
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := positiveInt(q.Get("page"), 1)
	if !ok {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, ok := positiveInt(q.Get("limit"), defaultLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	filters, invalid := parseFilters(q)
	if invalid != "" {
		writeError(w, http.StatusBadRequest, invalid)
		return
	}

	items, total, err := s.store.ListNotifications(r.Context(), store.ListFilter{
		Recipient: recipientFrom(r.Context()),
		Status:    filters.Status,
		Type:      filters.Type,
		Priority:  filters.Priority,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		s.internalError(w, "list", err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}

	writeData(w, gateway.ListData{
		Notifications: items,
		Pagination: gateway.Pagination{
			Page:  page,
			Pages: (total + limit - 1) / limit,
			Limit: limit,
			Total: total,
		},
	})
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.UnreadCount(r.Context(), recipientFrom(r.Context()))
	if err != nil {
		s.internalError(w, "unread_count", err)
		return
	}
	writeData(w, gateway.UnreadCountData{UnreadCount: n})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context(), recipientFrom(r.Context()), s.now().Add(-recentWindow))
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	writeData(w, st)
}

func (s *Server) bulkAction(w http.ResponseWriter, r *http.Request) {
	var req gateway.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NotificationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "notificationIds must not be empty")
		return
	}

	ctx := r.Context()
	recipient := recipientFrom(ctx)
	device := req.Context["device"]

	var (
		n   int
		err error
	)
	switch req.Action {
	case model.BulkRead:
		n, err = s.store.Transition(ctx, recipient, req.NotificationIDs, model.StatusRead, device)
	case model.BulkArchive:
		n, err = s.store.Transition(ctx, recipient, req.NotificationIDs, model.StatusArchived, device)
	case model.BulkDelete:
		n, err = s.store.DeleteNotifications(ctx, recipient, req.NotificationIDs)
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+string(req.Action))
		return
	}
	if err != nil {
		s.internalError(w, "bulk_"+string(req.Action), err)
		return
	}

	s.log.Info("bulk action",
		zap.String("recipient", recipient),
		zap.String("action", string(req.Action)),
		zap.Int("count", n),
	)
	writeJSON(w, http.StatusOK, response{Success: true, Data: map[string]int{"modified": n}})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	var req gateway.MarkAllReadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if invalid := validateFilters(req.Filters); invalid != "" {
		writeError(w, http.StatusBadRequest, invalid)
		return
	}

	n, err := s.store.MarkAllRead(r.Context(), recipientFrom(r.Context()), req.Filters, "")
	if err != nil {
		s.internalError(w, "mark_all_read", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: map[string]int{"modified": n}})
}
