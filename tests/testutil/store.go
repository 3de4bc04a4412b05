package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nhle/crm-notify/internal/devserver"
	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Backend is a development backend running on an httptest server.
type Backend struct {
	Store  *store.SQLiteStore
	Server *httptest.Server
}

// NewBackend starts a development backend seeded with ns and stops it when
// the test completes.
func NewBackend(t *testing.T, ns ...model.Notification) *Backend {
	t.Helper()

	st := NewTestStore(t)
	if err := st.InsertNotifications(context.Background(), ns); err != nil {
		t.Fatalf("seeding test store: %v", err)
	}

	srv := httptest.NewServer(devserver.New(st, devserver.Options{}).Handler())
	t.Cleanup(srv.Close)

	return &Backend{Store: st, Server: srv}
}

// Gateway returns a gateway talking to the backend as recipient.
func (b *Backend) Gateway(recipient string) *gateway.Gateway {
	return b.GatewayWithToken(func() string { return recipient })
}

// GatewayWithToken returns a gateway that reads its bearer token, and so
// its recipient, from token on every request.
func (b *Backend) GatewayWithToken(token func() string) *gateway.Gateway {
	return gateway.New(gateway.NewClient(b.Server.URL, token, gateway.ClientOptions{
		Timeout: 5 * time.Second,
	}))
}

// Notification builds a delivered, in-app notification for recipient,
// created minutes after a fixed base time.
func Notification(id, recipient string, minutes int) model.Notification {
	return model.Notification{
		ID:        id,
		Recipient: recipient,
		Type:      model.TypeLeadAssigned,
		Title:     "Lead " + id,
		Lifecycle: model.Lifecycle{Status: model.StatusDelivered},
		Metadata:  model.Metadata{Priority: model.PriorityMedium},
		Channels:  model.Channels{InApp: true},
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute),
	}
}
