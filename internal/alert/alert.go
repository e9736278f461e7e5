// Package alert decides, tick by tick, which time-driven notifications are
// due and suppresses ones already delivered today.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"ummah-sync/internal/keystore"
	"ummah-sync/internal/model"
	"ummah-sync/internal/prayer"
)

// Trigger bands, in whole minutes remaining, both ends inclusive. The bands
// are two minutes wide so a tick interval coarser than a minute cannot step
// over them.
const (
	ApproachMin = 14
	ApproachMax = 15
	DueMin      = 0
	DueMax      = 1
)

// Identifier prefixes.
const (
	KindApproaching = "approaching"
	KindDue         = "prayer"
)

// Window is a range of hours of the day, [Start, End).
type Window struct {
	Start int
	End   int
}

// Contains reports whether hour falls inside w.
func (w Window) Contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

// MarkerStore persists the last day each devotional reminder fired.
// keystore.KeyStore satisfies it.
type MarkerStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Seen reports whether a notification with the given id is already listed.
type Seen func(id string) bool

type reminder struct {
	key     string
	window  Window
	id      string
	title   string
	message string
}

// Deduplicator emits prayer alerts and devotional reminders at most once
// per day each.
type Deduplicator struct {
	markers   MarkerStore
	reminders []reminder
}

// New creates a Deduplicator with the given morning and evening windows.
func New(markers MarkerStore, morning, evening Window) *Deduplicator {
	return &Deduplicator{
		markers: markers,
		reminders: []reminder{
			{
				key:     keystore.KeyMorningReminder,
				window:  morning,
				id:      "morning_adhkar",
				title:   "Morning remembrance",
				message: "Start your day with the morning adhkar.",
			},
			{
				key:     keystore.KeyEveningReminder,
				window:  evening,
				id:      "evening_adhkar",
				title:   "Evening remembrance",
				message: "Take a moment for the evening adhkar.",
			},
		},
	}
}

// ID builds the dedup identifier of a prayer alert: <kind>_<prayer>_<day>.
func ID(kind string, p prayer.Name, day int) string {
	return fmt.Sprintf("%s_%s_%d", kind, p, day)
}

// Tick evaluates one timer tick. It returns the notifications to add, in
// the order they should be prepended. The error, if any, reports marker
// persistence problems; the returned notifications are valid regardless.
func (d *Deduplicator) Tick(ctx context.Context, now time.Time, next prayer.NextEvent, seen Seen) ([]model.Notification, error) {
	var out []model.Notification
	day := now.Day()

	switch rem := next.Remaining; {
	case rem >= ApproachMin && rem <= ApproachMax:
		id := ID(KindApproaching, next.Prayer, day)
		if !seen(id) {
			out = append(out, model.Notification{
				ID:        id,
				Title:     fmt.Sprintf("%s is approaching", next.Prayer),
				Message:   fmt.Sprintf("%s prayer begins in %d minutes, at %s.", next.Prayer, rem, next.Time),
				Category:  model.CategoryAlert,
				CreatedAt: now,
			})
		}
	case rem >= DueMin && rem <= DueMax:
		id := ID(KindDue, next.Prayer, day)
		if !seen(id) {
			out = append(out, model.Notification{
				ID:        id,
				Title:     fmt.Sprintf("Time for %s", next.Prayer),
				Message:   fmt.Sprintf("It is time for %s prayer (%s).", next.Prayer, next.Time),
				Category:  model.CategoryAlert,
				CreatedAt: now,
			})
		}
	}

	var errs []error
	today := now.Format("2006-01-02")
	for _, r := range d.reminders {
		if !r.window.Contains(now.Hour()) {
			continue
		}
		last, err := d.markers.Get(ctx, r.key)
		if err != nil && !errors.Is(err, keystore.ErrNotFound) {
			// An unreadable marker must not swallow the reminder.
			log.Warn().Err(err).Str("marker", r.key).Msg("failed to read reminder marker")
			errs = append(errs, err)
		}
		if last == today {
			continue
		}
		if err := d.markers.Set(ctx, r.key, today); err != nil {
			log.Warn().Err(err).Str("marker", r.key).Msg("failed to persist reminder marker")
			errs = append(errs, err)
		}
		out = append(out, model.Notification{
			ID:        fmt.Sprintf("%s_%d", r.id, day),
			Title:     r.title,
			Message:   r.message,
			Category:  model.CategoryInfo,
			CreatedAt: now,
		})
	}

	return out, errors.Join(errs...)
}
