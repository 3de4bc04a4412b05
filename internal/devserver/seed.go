package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/store"
)

// LoadSeed reads a JSON array of notifications from path.
func LoadSeed(path string) ([]model.Notification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var ns []model.Notification
	if err := json.Unmarshal(data, &ns); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return ns, nil
}

// Seed loads path into st and returns how many records were written.
func Seed(ctx context.Context, st store.Store, path string) (int, error) {
	ns, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	if err := st.InsertNotifications(ctx, ns); err != nil {
		return 0, fmt.Errorf("seeding notifications: %w", err)
	}
	return len(ns), nil
}
