// Package reconciler owns the application state and merges the local
// cache, the remote service and the push channel into it.
//
// All mutation happens on the goroutine running Run. Public operations
// post closures to its inbox and wait for them; network calls are made by
// the calling goroutine between two such closures, so a slow request never
// holds up timers, push events or other operations. Readers get an
// immutable Snapshot that is republished after every closure.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"ummah-sync/internal/alert"
	"ummah-sync/internal/geo"
	"ummah-sync/internal/keystore"
	"ummah-sync/internal/model"
	"ummah-sync/internal/prayer"
	"ummah-sync/internal/push"
	"ummah-sync/internal/remote"
	"ummah-sync/internal/store"
)

var (
	// ErrNoSession is returned by operations that need a signed-in user.
	// The operation has no effect.
	ErrNoSession = errors.New("no active session")
	// ErrStopped is returned once Run has returned.
	ErrStopped = errors.New("reconciler stopped")
)

const inboxSize = 64

// Remote is the subset of the remote service the reconciler drives.
// *remote.Client satisfies it.
type Remote interface {
	SetToken(token string)
	Login(ctx context.Context, req remote.LoginRequest) (remote.AuthResponse, error)
	Register(ctx context.Context, req remote.RegisterRequest) (remote.AuthResponse, error)

	GetUsers(ctx context.Context) ([]model.User, error)
	GetMosques(ctx context.Context) ([]model.Mosque, error)
	GetLessons(ctx context.Context) ([]model.Lesson, error)
	GetPosts(ctx context.Context) ([]model.Post, error)

	UpdateUser(ctx context.Context, u model.User) (model.User, error)
	CreatePost(ctx context.Context, p model.Post) (model.Post, error)
	UpdatePost(ctx context.Context, p model.Post) (model.Post, error)
	DeletePost(ctx context.Context, id string) error
	CreateLesson(ctx context.Context, l model.Lesson) (model.Lesson, error)
	UpdateLesson(ctx context.Context, l model.Lesson) (model.Lesson, error)
	DeleteLesson(ctx context.Context, id string) error
	CreateMosque(ctx context.Context, m model.Mosque) (model.Mosque, error)
	UpdateMosque(ctx context.Context, m model.Mosque) (model.Mosque, error)
	DeleteMosque(ctx context.Context, id string) error
}

// Notifier is told about every notification added to the list. Dispatch
// must not block.
type Notifier interface {
	Dispatch(n model.Notification)
}

// Options wires a Reconciler to its collaborators. Store, Keys and Remote
// are required.
type Options struct {
	Store    store.Store
	Keys     keystore.KeyStore
	Remote   Remote
	Push     push.Channel // nil disables the push channel
	Endpoint string
	Locator  geo.Locator
	Notifier Notifier

	SyncInterval  time.Duration
	AlertInterval time.Duration
	Morning       alert.Window
	Evening       alert.Window

	DefaultCoordinate model.Coordinate
	Zone              *time.Location
	Clock             func() time.Time
}

// Reconciler is the single owner of the application state.
type Reconciler struct {
	opts  Options
	dedup *alert.Deduplicator

	inbox   chan func(*state)
	snap    atomic.Pointer[Snapshot]
	running atomic.Bool
	ready   chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup
}

// New creates a Reconciler. Nothing happens until Run is called.
func New(opts Options) *Reconciler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Zone == nil {
		opts.Zone = time.Local
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 30 * time.Second
	}
	if opts.AlertInterval <= 0 {
		opts.AlertInterval = 30 * time.Second
	}
	if opts.DefaultCoordinate == (model.Coordinate{}) {
		opts.DefaultCoordinate = prayer.DefaultCoordinate
	}

	r := &Reconciler{
		opts:    opts,
		dedup:   alert.New(opts.Keys, opts.Morning, opts.Evening),
		inbox:   make(chan func(*state), inboxSize),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
	}
	r.publish(newState())
	return r
}

// Run bootstraps the state and processes operations until ctx is done.
// On return the push channel is disconnected and every timer stopped.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("reconciler already running")
	}
	log.Info().Msg("starting state reconciler")

	st := newState()
	st.ctx = ctx
	r.publish(st)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.ready)
		r.bootstrap(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			r.teardown(st)
			close(r.stopped)
			r.wg.Wait()
			log.Info().Msg("state reconciler stopped")
			return nil
		case fn := <-r.inbox:
			fn(st)
			r.publish(st)
		}
	}
}

// Ready is closed once bootstrap has finished, successfully or not.
func (r *Reconciler) Ready() <-chan struct{} {
	return r.ready
}

// Snapshot returns the current read-only view of the state.
func (r *Reconciler) Snapshot() *Snapshot {
	return r.snap.Load()
}

// do runs fn on the owner goroutine and waits for its result. fn must not
// block or call do.
func (r *Reconciler) do(ctx context.Context, fn func(*state) error) error {
	done := make(chan error, 1)
	task := func(st *state) { done <- fn(st) }

	select {
	case r.inbox <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-r.stopped:
		return ErrStopped
	}
}

// post queues fn without waiting for it.
func (r *Reconciler) post(fn func(*state)) {
	select {
	case r.inbox <- fn:
	case <-r.stopped:
	}
}

func (r *Reconciler) now() time.Time {
	return r.opts.Clock().In(r.opts.Zone)
}

func (r *Reconciler) publish(st *state) {
	now := r.now()
	r.refreshSchedule(st, now)
	r.snap.Store(r.snapshotOf(st, now))
}

// teardown stops everything the state started. It runs on the owner
// goroutine after the inbox is closed for business.
func (r *Reconciler) teardown(st *state) {
	r.stopTimers(st)
	st.gen++
	if st.push != nil {
		st.push.Disconnect()
		st.push = nil
	}
}

// every calls tick each d until ctx is done. Ticks never overlap.
func (r *Reconciler) every(ctx context.Context, d time.Duration, name string, tick func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Debug().Str("timer", name).Msg("timer stopped")
				return
			case <-timer.C:
				if err := tick(ctx); err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrStopped) && ctx.Err() == nil {
					log.Warn().Err(err).Str("timer", name).Msg("tick failed")
				}
				timer.Reset(d)
			}
		}
	}()
}
