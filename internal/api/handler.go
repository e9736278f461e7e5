// Package api is the local HTTP surface a UI shell reads the state from.
package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"ummah-sync/internal/prayer"
	"ummah-sync/internal/reconciler"
)

// State is the part of the reconciler the API exposes.
type State interface {
	Snapshot() *reconciler.Snapshot
	Next() prayer.NextEvent
	MarkAllNotificationsRead(ctx context.Context) error
	DismissNotification(ctx context.Context, id string) (bool, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	state   State
	zone    *time.Location
	db      *gorm.DB
	webpush *webpush.Options
	now     func() time.Time
}

// NewHandler creates a new API handler. Ad-hoc schedules are computed in
// zone; nil means the local zone.
func NewHandler(state State, zone *time.Location, db *gorm.DB, webpushOptions *webpush.Options) *Handler {
	if zone == nil {
		zone = time.Local
	}
	return &Handler{
		state:   state,
		zone:    zone,
		db:      db,
		webpush: webpushOptions,
		now:     time.Now,
	}
}
