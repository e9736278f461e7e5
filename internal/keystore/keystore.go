// Package keystore persists the small set of local keys that live outside
// the entity cache: the session identity and the reminder markers.
package keystore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been set or was deleted.
var ErrNotFound = errors.New("key not found")

// Well-known keys.
const (
	KeySessionUserID   = "session_user_id"
	KeySessionPhone    = "session_phone"
	KeySessionName     = "session_name"
	KeySessionToken    = "session_token"
	KeyMorningReminder = "last_morning_reminder"
	KeyEveningReminder = "last_evening_reminder"
)

// SessionKeys are removed together when a session ends.
var SessionKeys = []string{KeySessionUserID, KeySessionPhone, KeySessionName, KeySessionToken}

// KeyStore is a durable string key-value store.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
