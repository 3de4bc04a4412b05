// Package credential keeps the API token in the operating system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const service = "crm-notify"

// APITokenKey is the keyring entry holding the notification API bearer token.
const APITokenKey = "api-token"

// ErrNotFound is returned by Get when the key has no stored value.
var ErrNotFound = keyring.ErrKeyNotFound

// open is swapped for an in-memory keyring in tests.
var open = func() (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/" + service + "/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
}

func withRing(op, key string, fn func(keyring.Keyring) error) error {
	ring, err := open()
	if err != nil {
		return fmt.Errorf("opening keyring: %w", err)
	}
	if err := fn(ring); err != nil {
		return fmt.Errorf("%s credential %q: %w", op, key, err)
	}
	return nil
}

// Get returns the value stored under key.
func Get(key string) (string, error) {
	var value string
	err := withRing("getting", key, func(ring keyring.Keyring) error {
		item, err := ring.Get(key)
		value = string(item.Data)
		return err
	})
	return value, err
}

// Set stores value under key, replacing any previous value.
func Set(key, value string) error {
	return withRing("setting", key, func(ring keyring.Keyring) error {
		return ring.Set(keyring.Item{
			Key:   key,
			Data:  []byte(value),
			Label: "CRM notifications API token",
		})
	})
}

// Delete removes key. A key that was never stored is not an error.
func Delete(key string) error {
	return withRing("deleting", key, func(ring keyring.Keyring) error {
		if err := ring.Remove(key); !errors.Is(err, keyring.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}
