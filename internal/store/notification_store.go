package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/crm-notify/internal/model"
)

// notificationRow is the flat column layout of the notifications table.
type notificationRow struct {
	ID             string       `db:"id"`
	Recipient      string       `db:"recipient"`
	Sender         string       `db:"sender"`
	Type           string       `db:"type"`
	Title          string       `db:"title"`
	Message        string       `db:"message"`
	Status         string       `db:"status"`
	ReadAt         sql.NullTime `db:"read_at"`
	ReadFromDevice string       `db:"read_from_device"`
	ActionTaken    int          `db:"action_taken"`
	ActionTakenAt  sql.NullTime `db:"action_taken_at"`
	ActionType     string       `db:"action_type"`
	Priority       string       `db:"priority"`
	ActionURL      string       `db:"action_url"`
	IsActionable   int          `db:"is_actionable"`
	Refs           string       `db:"refs"`
	InApp          int          `db:"in_app"`
	Email          int          `db:"email"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

func (r notificationRow) toModel() (model.Notification, error) {
	n := model.Notification{
		ID:        r.ID,
		Recipient: r.Recipient,
		Type:      model.Type(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Lifecycle: model.Lifecycle{
			Status:         model.Status(r.Status),
			ReadFromDevice: r.ReadFromDevice,
			ActionTaken:    r.ActionTaken != 0,
			ActionType:     r.ActionType,
		},
		Metadata: model.Metadata{
			Priority:     model.Priority(r.Priority),
			ActionURL:    r.ActionURL,
			IsActionable: r.IsActionable != 0,
		},
		Channels: model.Channels{
			InApp: r.InApp != 0,
			Email: r.Email != 0,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ReadAt.Valid {
		t := r.ReadAt.Time
		n.Lifecycle.ReadAt = &t
	}
	if r.ActionTakenAt.Valid {
		t := r.ActionTakenAt.Time
		n.Lifecycle.ActionTakenAt = &t
	}
	if r.Sender != "" {
		var s model.Sender
		if err := json.Unmarshal([]byte(r.Sender), &s); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling sender of %s: %w", r.ID, err)
		}
		n.Sender = &s
	}
	if r.Refs != "" && r.Refs != "{}" {
		if err := json.Unmarshal([]byte(r.Refs), &n.Metadata.Refs); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling refs of %s: %w", r.ID, err)
		}
	}
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// InsertNotifications inserts or replaces a batch of notifications. Empty
// ids get a UUID, a missing status becomes delivered and missing
// timestamps become now.
func (s *SQLiteStore) InsertNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, recipient, sender, type, title, message,
			status, read_at, read_from_device,
			action_taken, action_taken_at, action_type,
			priority, action_url, is_actionable, refs,
			in_app, email, created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if strings.TrimSpace(n.Recipient) == "" {
			return fmt.Errorf("notification %s has no recipient", n.ID)
		}
		if n.Lifecycle.Status == "" {
			n.Lifecycle.Status = model.StatusDelivered
		}
		if !n.Lifecycle.Status.Valid() {
			return fmt.Errorf("notification %s has unknown status %q", n.ID, n.Lifecycle.Status)
		}
		if n.Metadata.Priority == "" {
			n.Metadata.Priority = model.PriorityMedium
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = n.CreatedAt
		}

		var sender string
		if n.Sender != nil {
			b, err := json.Marshal(n.Sender)
			if err != nil {
				return fmt.Errorf("marshaling sender for %s: %w", n.ID, err)
			}
			sender = string(b)
		}
		refs := "{}"
		if len(n.Metadata.Refs) > 0 {
			b, err := json.Marshal(n.Metadata.Refs)
			if err != nil {
				return fmt.Errorf("marshaling refs for %s: %w", n.ID, err)
			}
			refs = string(b)
		}

		_, err = stmt.ExecContext(ctx,
			n.ID, n.Recipient, sender, string(n.Type), n.Title, n.Message,
			string(n.Lifecycle.Status), nullTime(n.Lifecycle.ReadAt), n.Lifecycle.ReadFromDevice,
			boolToInt(n.Lifecycle.ActionTaken), nullTime(n.Lifecycle.ActionTakenAt), n.Lifecycle.ActionType,
			string(n.Metadata.Priority), n.Metadata.ActionURL, boolToInt(n.Metadata.IsActionable), refs,
			boolToInt(n.Channels.InApp), boolToInt(n.Channels.Email), n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// ListNotifications returns one page of the recipient's notifications,
// newest first, and the total number matching f. Without a status
// constraint archived notifications are left out.
func (s *SQLiteStore) ListNotifications(
	ctx context.Context,
	f ListFilter,
) ([]model.Notification, int, error) {
	conditions := []string{"recipient = ?"}
	args := []interface{}{f.Recipient}

	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	} else {
		conditions = append(conditions, "status != ?")
		args = append(args, string(model.StatusArchived))
	}
	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(f.Priority))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting notifications: %w", err)
	}

	query := "SELECT * FROM notifications" + where + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, nil
}

// unreadStatuses lists the statuses that count toward the unread counter.
func unreadStatuses() []string {
	var out []string
	for _, st := range model.AllStatuses {
		if st.IsUnread() {
			out = append(out, string(st))
		}
	}
	return out
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (s *SQLiteStore) UnreadCount(ctx context.Context, recipient string) (int, error) {
	query, args, err := sqlx.In(
		"SELECT COUNT(*) FROM notifications WHERE recipient = ? AND status IN (?)",
		recipient, unreadStatuses(),
	)
	if err != nil {
		return 0, fmt.Errorf("building unread query: %w", err)
	}

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// Stats computes the recipient's aggregate figures. Recent means created
// at or after since.
func (s *SQLiteStore) Stats(ctx context.Context, recipient string, since time.Time) (*model.Stats, error) {
	unread, err := s.UnreadCount(ctx, recipient)
	if err != nil {
		return nil, err
	}

	stats := &model.Stats{UnreadCount: unread}
	err = s.db.GetContext(ctx, &stats.TotalCount,
		"SELECT COUNT(*) FROM notifications WHERE recipient = ?", recipient)
	if err != nil {
		return nil, fmt.Errorf("counting notifications: %w", err)
	}

	err = s.db.GetContext(ctx, &stats.RecentCount,
		"SELECT COUNT(*) FROM notifications WHERE recipient = ? AND created_at >= ?",
		recipient, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("counting recent notifications: %w", err)
	}

	var breakdown []struct {
		Type  string `db:"type"`
		Count int    `db:"count"`
	}
	err = s.db.SelectContext(ctx, &breakdown, `
		SELECT type, COUNT(*) AS count FROM notifications
		WHERE recipient = ?
		GROUP BY type
		ORDER BY count DESC, type`, recipient)
	if err != nil {
		return nil, fmt.Errorf("querying type breakdown: %w", err)
	}

	stats.TypeBreakdown = make([]model.TypeCount, len(breakdown))
	for i, b := range breakdown {
		stats.TypeBreakdown[i] = model.TypeCount{Type: model.Type(b.Type), Count: b.Count}
	}
	return stats, nil
}

// Transition moves matching notifications forward to status. Moving to
// read records when and from which device.
func (s *SQLiteStore) Transition(
	ctx context.Context,
	recipient string,
	ids []string,
	status model.Status,
	device string,
) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var from []string
	for _, st := range model.AllStatuses {
		if st.CanTransitionTo(status) {
			from = append(from, string(st))
		}
	}
	if len(from) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	set := "status = ?, updated_at = ?"
	args := []interface{}{string(status), now}
	if status == model.StatusRead {
		set += ", read_at = COALESCE(read_at, ?), read_from_device = ?"
		args = append(args, now, device)
	}
	args = append(args, recipient, ids, from)

	query, args, err := sqlx.In(
		"UPDATE notifications SET "+set+" WHERE recipient = ? AND id IN (?) AND status IN (?)",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("building transition query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("moving notifications to %s: %w", status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}

// MarkAllRead marks every unread notification of the recipient that
// matches f as read.
func (s *SQLiteStore) MarkAllRead(
	ctx context.Context,
	recipient string,
	f model.Filters,
	device string,
) (int, error) {
	now := time.Now().UTC()
	conditions := []string{"recipient = ?", "status IN (?)"}
	args := []interface{}{string(model.StatusRead), now, now, device, recipient, unreadStatuses()}

	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(f.Priority))
	}

	query, args, err := sqlx.In(`
		UPDATE notifications
		SET status = ?, updated_at = ?, read_at = COALESCE(read_at, ?), read_from_device = ?
		WHERE `+strings.Join(conditions, " AND "),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("building mark-all query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}

// DeleteNotifications removes the recipient's notifications in ids.
func (s *SQLiteStore) DeleteNotifications(ctx context.Context, recipient string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		"DELETE FROM notifications WHERE recipient = ? AND id IN (?)",
		recipient, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("building delete query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}
