package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog/log"

	"ummah-sync/internal/model"
	"ummah-sync/internal/prayer"
	"ummah-sync/internal/push"
)

var errStaleHandle = errors.New("session changed while connecting")

// connectPush opens the push channel for the current session and registers
// the user on it. A handle that arrives after the session changed is
// closed again.
func (r *Reconciler) connectPush(ctx context.Context) {
	if r.opts.Push == nil || r.opts.Endpoint == "" {
		return
	}

	var gen uint64
	var userID string
	if err := r.do(ctx, func(st *state) error {
		if st.session == nil {
			return ErrNoSession
		}
		gen, userID = st.gen, st.session.UserID
		return nil
	}); err != nil {
		return
	}

	handle, err := r.opts.Push.Connect(ctx, r.opts.Endpoint)
	if err != nil {
		log.Error().Err(err).Str("endpoint", r.opts.Endpoint).Msg("push channel unavailable")
		return
	}
	handle.On(push.EventNotification, func(payload []byte) {
		r.post(func(st *state) { r.deliver(st, gen, payload) })
	})
	if err := handle.Emit(push.EventRegisterUser, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to register user on push channel")
	}

	var old push.Handle
	err = r.do(ctx, func(st *state) error {
		if st.gen != gen {
			return errStaleHandle
		}
		old, st.push = st.push, handle
		return nil
	})
	if old != nil {
		old.Disconnect()
	}
	if err != nil {
		handle.Disconnect()
		if errors.Is(err, errStaleHandle) {
			log.Debug().Str("user_id", userID).Msg("discarding push handle of an ended session")
		}
	}
}

// deliver turns a push event into a notification. Push events are not
// deduplicated.
func (r *Reconciler) deliver(st *state, gen uint64, payload []byte) {
	if gen != st.gen || st.session == nil {
		return
	}
	var ev push.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable push event")
		return
	}
	now := r.now()
	id := ev.ID
	if id == "" {
		st.pushSeq++
		id = fmt.Sprintf("push_%d_%d", now.UnixMilli(), st.pushSeq)
	}
	r.addNotification(st, model.Notification{
		ID:        id,
		Title:     ev.Title,
		Message:   ev.Message,
		Category:  model.ParseCategory(ev.Type),
		CreatedAt: now,
	})
	log.Debug().Str("id", id).Msg("push notification delivered")
}

// CheckAlerts is one tick of the alert timer. Alerts belong to a session;
// without one it returns ErrNoSession.
func (r *Reconciler) CheckAlerts(ctx context.Context) error {
	now := r.now()
	var next prayer.NextEvent
	var seen map[string]struct{}
	var gen uint64
	if err := r.do(ctx, func(st *state) error {
		if st.session == nil {
			return ErrNoSession
		}
		gen = st.gen
		r.refreshSchedule(st, now)
		next = prayer.Next(st.schedule, now)
		seen = maps.Clone(st.notified)
		return nil
	}); err != nil {
		return err
	}

	fired, tickErr := r.dedup.Tick(ctx, now, next, func(id string) bool {
		_, ok := seen[id]
		return ok
	})

	err := r.do(ctx, func(st *state) error {
		if st.gen != gen {
			return errSessionChanged
		}
		for _, n := range fired {
			if _, ok := st.notified[n.ID]; ok {
				continue
			}
			r.addNotification(st, n)
			log.Info().Str("id", n.ID).Msg("alert fired")
		}
		st.alertErr = ""
		if tickErr != nil {
			st.alertErr = "Reminders may repeat: reminder history could not be saved."
		}
		return nil
	})
	return errors.Join(tickErr, err)
}

// Next returns the upcoming prayer as of now.
func (r *Reconciler) Next() prayer.NextEvent {
	return prayer.Next(r.Snapshot().Schedule, r.now())
}

// MarkAllNotificationsRead sets the read flag on every notification.
func (r *Reconciler) MarkAllNotificationsRead(ctx context.Context) error {
	return r.do(ctx, func(st *state) error {
		out := make([]model.Notification, len(st.notifications))
		for i, n := range st.notifications {
			n.Read = true
			out[i] = n
		}
		st.notifications = out
		return nil
	})
}

// DismissNotification removes one notification. It reports whether it was
// listed.
func (r *Reconciler) DismissNotification(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.do(ctx, func(st *state) error {
		for i, n := range st.notifications {
			if n.ID == id {
				st.notifications = removeAt(st.notifications, i)
				delete(st.notified, id)
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}
