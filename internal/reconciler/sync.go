package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"ummah-sync/internal/model"
	"ummah-sync/internal/store"
)

// errSessionChanged reports work dropped because the session it was started
// for has ended or been replaced.
var errSessionChanged = fmt.Errorf("session changed: %w", ErrNoSession)

// refreshPolicy tunes refreshKind. keepOnEmpty treats an empty result as
// "no update available".
type refreshPolicy struct {
	keepOnEmpty bool
}

var (
	fullRefresh = refreshPolicy{}
	periodic    = refreshPolicy{keepOnEmpty: true}
)

// generation returns the current session generation. With needSession it
// fails with ErrNoSession when nobody is signed in.
func (r *Reconciler) generation(ctx context.Context, needSession bool) (uint64, error) {
	var gen uint64
	err := r.do(ctx, func(st *state) error {
		if needSession && st.session == nil {
			return ErrNoSession
		}
		gen = st.gen
		return nil
	})
	return gen, err
}

// refreshKind fetches one collection and, on success, replaces it in the
// state and in the cache. The result is dropped if the session generation
// moved past gen while the fetch was in flight.
func refreshKind[T model.Record[T]](ctx context.Context, r *Reconciler, c collection[T], p refreshPolicy, gen uint64) error {
	items, err := c.list(r.opts.Remote, ctx)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(c.kind)).Msg("fetch failed; keeping previous snapshot")
		return fmt.Errorf("fetch %s: %w", c.kind, err)
	}
	if len(items) == 0 && p.keepOnEmpty {
		log.Debug().Str("kind", string(c.kind)).Msg("empty fetch; keeping previous snapshot")
		return nil
	}
	if items == nil {
		items = []T{}
	}

	if err := r.do(ctx, func(st *state) error {
		if st.gen != gen {
			return errSessionChanged
		}
		c.set(st, items)
		return nil
	}); err != nil {
		if errors.Is(err, errSessionChanged) {
			log.Debug().Str("kind", string(c.kind)).Msg("session changed during fetch; result dropped")
		}
		return fmt.Errorf("refresh %s: %w", c.kind, err)
	}

	if err := store.SaveAll(ctx, r.opts.Store, c.kind, items); err != nil {
		log.Warn().Err(err).Str("kind", string(c.kind)).Msg("failed to write collection through to cache")
	}
	log.Debug().Str("kind", string(c.kind)).Int("items", len(items)).Msg("collection replaced")
	return nil
}

// Refresh fetches every entity kind in parallel. Each kind is assigned on
// its own; one failing kind does not hold back the others. Successful
// results replace the collection even when empty.
func (r *Reconciler) Refresh(ctx context.Context) error {
	gen, err := r.generation(ctx, false)
	if err != nil {
		return err
	}
	return r.refresh(ctx, gen)
}

func (r *Reconciler) refresh(ctx context.Context, gen uint64) error {
	errs := make([]error, 4)
	var g errgroup.Group
	g.Go(func() error { errs[0] = refreshKind(ctx, r, users, fullRefresh, gen); return nil })
	g.Go(func() error { errs[1] = refreshKind(ctx, r, mosques, fullRefresh, gen); return nil })
	g.Go(func() error { errs[2] = refreshKind(ctx, r, lessons, fullRefresh, gen); return nil })
	g.Go(func() error { errs[3] = refreshKind(ctx, r, posts, fullRefresh, gen); return nil })
	_ = g.Wait()
	return errors.Join(errs...)
}

// SyncRemote is one remote reconciliation round: posts, lessons and mosques
// are fetched in parallel and each replaces its collection only when the
// fetch succeeded with at least one record.
func (r *Reconciler) SyncRemote(ctx context.Context) error {
	gen, err := r.generation(ctx, true)
	if err != nil {
		return err
	}

	errs := make([]error, 3)
	var g errgroup.Group
	g.Go(func() error { errs[0] = refreshKind(ctx, r, posts, periodic, gen); return nil })
	g.Go(func() error { errs[1] = refreshKind(ctx, r, lessons, periodic, gen); return nil })
	g.Go(func() error { errs[2] = refreshKind(ctx, r, mosques, periodic, gen); return nil })
	_ = g.Wait()
	return errors.Join(errs...)
}

// startTimers starts the remote sync and alert timers of the current
// session, unless they already run. Owner goroutine only.
func (r *Reconciler) startTimers(st *state) {
	if st.session == nil || st.stopTimers != nil {
		return
	}
	ctx, cancel := context.WithCancel(st.ctx)
	st.stopTimers = cancel
	r.every(ctx, r.opts.SyncInterval, "remote-sync", r.SyncRemote)
	r.every(ctx, r.opts.AlertInterval, "alert-check", r.CheckAlerts)
	log.Debug().Dur("sync", r.opts.SyncInterval).Dur("alerts", r.opts.AlertInterval).Msg("session timers started")
}

func (r *Reconciler) stopTimers(st *state) {
	if st.stopTimers != nil {
		st.stopTimers()
		st.stopTimers = nil
	}
}

// loadCached seeds the state with whatever the cache holds.
func (r *Reconciler) loadCached(ctx context.Context) {
	load := func(kind model.Kind, apply func(st *state) error) {
		if err := r.do(ctx, apply); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to apply cached collection")
		}
	}

	if v, err := store.LoadAll[model.User](ctx, r.opts.Store, model.KindUsers); err == nil {
		load(model.KindUsers, func(st *state) error { st.users = v; return nil })
	} else {
		log.Warn().Err(err).Str("kind", string(model.KindUsers)).Msg("failed to read cache")
	}
	if v, err := store.LoadAll[model.Mosque](ctx, r.opts.Store, model.KindMosques); err == nil {
		load(model.KindMosques, func(st *state) error { st.mosques = v; return nil })
	} else {
		log.Warn().Err(err).Str("kind", string(model.KindMosques)).Msg("failed to read cache")
	}
	if v, err := store.LoadAll[model.Lesson](ctx, r.opts.Store, model.KindLessons); err == nil {
		load(model.KindLessons, func(st *state) error { st.lessons = v; return nil })
	} else {
		log.Warn().Err(err).Str("kind", string(model.KindLessons)).Msg("failed to read cache")
	}
	if v, err := store.LoadAll[model.Post](ctx, r.opts.Store, model.KindPosts); err == nil {
		load(model.KindPosts, func(st *state) error { st.posts = v; return nil })
	} else {
		log.Warn().Err(err).Str("kind", string(model.KindPosts)).Msg("failed to read cache")
	}
}

// bootstrap brings the state up: cache, stored session, device position,
// full refresh, then the push channel and, with a session, both timers.
func (r *Reconciler) bootstrap(ctx context.Context) {
	cacheOK := true
	if err := r.opts.Store.Init(ctx); err != nil {
		log.Error().Err(err).Msg("local cache unavailable; continuing without cached data")
		cacheOK = false
	}
	if cacheOK {
		r.loadCached(ctx)
		if err := r.RestoreSession(ctx); err != nil {
			log.Warn().Err(err).Msg("session restore incomplete")
		}
	}

	r.locateDevice(ctx)

	if err := r.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial refresh incomplete")
	}

	if err := r.do(ctx, func(st *state) error {
		st.cacheReady = true
		return nil
	}); err != nil {
		return
	}
	log.Info().Msg("cache ready")

	r.connectPush(ctx)

	if err := r.do(ctx, func(st *state) error {
		r.startTimers(st)
		return nil
	}); err != nil {
		return
	}
	if err := r.CheckAlerts(ctx); err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, ErrNoSession) {
		log.Warn().Err(err).Msg("initial alert check failed")
	}
}

func (r *Reconciler) locateDevice(ctx context.Context) {
	if r.opts.Locator == nil {
		return
	}
	pos, err := r.opts.Locator.CurrentPosition(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("device position unavailable; using default coordinate")
		return
	}
	_ = r.do(ctx, func(st *state) error {
		st.device = &pos
		return nil
	})
}
