// Package session resolves the identity the notification engine acts as.
// Until both a user and an API token are known the session reports
// authentication as pending and the scheduler issues no requests.
package session

import (
	"errors"
	"fmt"
	gosync "sync"

	"github.com/nhle/crm-notify/internal/credential"
	"github.com/nhle/crm-notify/internal/model"
)

// Provider exposes the resolved identity.
type Provider interface {
	CurrentUser() *model.User
	IsAuthenticationPending() bool
}

// Session is a mutable Provider. The zero value is pending.
type Session struct {
	mu    gosync.RWMutex
	user  *model.User
	token string
}

// New returns a pending session.
func New() *Session {
	return &Session{}
}

// CurrentUser returns a copy of the resolved user, or nil.
func (s *Session) CurrentUser() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticationPending reports whether the user or the token is unknown.
func (s *Session) IsAuthenticationPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user == nil || s.token == ""
}

// Token returns the bearer token. It is safe to pass as a gateway.TokenFunc.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetUser records the user the session acts as.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}

// SetToken records the bearer token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear forgets user and token, returning the session to pending.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
}

// TokenLookup fetches a stored token by keyring key.
type TokenLookup func(key string) (string, error)

// Resolve builds a session from cfg. The token comes from the
// configuration (CRMNOTIFY_API_TOKEN) when set, otherwise from lookup,
// which defaults to the system keyring. A missing token leaves the
// session pending rather than failing. When no user id is configured the
// token doubles as the recipient id.
func Resolve(cfg *model.AppConfig, lookup TokenLookup) (*Session, error) {
	if lookup == nil {
		lookup = credential.Get
	}

	s := New()

	token := cfg.API.Token
	if token == "" {
		stored, err := lookup(credential.APITokenKey)
		switch {
		case err == nil:
			token = stored
		case errors.Is(err, credential.ErrNotFound):
		default:
			return s, fmt.Errorf("resolving API token: %w", err)
		}
	}
	if token == "" {
		return s, nil
	}
	s.SetToken(token)

	id := cfg.API.UserID
	if id == "" {
		id = token
	}
	s.SetUser(&model.User{ID: id})
	return s, nil
}
