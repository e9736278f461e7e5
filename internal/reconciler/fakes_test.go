package reconciler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ummah-sync/internal/alert"
	"ummah-sync/internal/keystore"
	"ummah-sync/internal/model"
	"ummah-sync/internal/push"
	"ummah-sync/internal/remote"
	"ummah-sync/internal/store"
)

var cairoWinter = time.FixedZone("EET", 2*60*60)

// at returns 2024-01-15 hh:mm:ss in Cairo, the day of the recorded schedule
// (Fajr 05:21, Dhuhr 12:04, Asr 14:57, Maghrib 17:17, Isha 18:39).
func at(hh, mm, ss int) time.Time {
	return time.Date(2024, time.January, 15, hh, mm, ss, 0, cairoWinter)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeRemote struct {
	mu       sync.Mutex
	token    string
	users    []model.User
	mosques  []model.Mosque
	lessons  []model.Lesson
	posts    []model.Post
	listErr  map[model.Kind]error
	writeErr error
	authErr  error
	auth     remote.AuthResponse
	gate     chan struct{}
	seq      int

	listGate    map[model.Kind]chan struct{}
	listStarted map[model.Kind]chan struct{}
}

// holdList makes fetches of kind wait until release is called. started
// receives once for every fetch that reached the gate.
func (f *fakeRemote) holdList(kind model.Kind) (started <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 8)
	f.set(func(f *fakeRemote) {
		if f.listGate == nil {
			f.listGate = map[model.Kind]chan struct{}{}
			f.listStarted = map[model.Kind]chan struct{}{}
		}
		f.listGate[kind] = gate
		f.listStarted[kind] = ch
	})
	var once sync.Once
	return ch, func() { once.Do(func() { close(gate) }) }
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeRemote) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func fetch[T any](f *fakeRemote, kind model.Kind, items *[]T) ([]T, error) {
	f.mu.Lock()
	gate, started := f.listGate[kind], f.listStarted[kind]
	f.mu.Unlock()
	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[kind]; err != nil {
		return nil, err
	}
	return slices.Clone(*items), nil
}

func (f *fakeRemote) GetUsers(context.Context) ([]model.User, error) {
	return fetch(f, model.KindUsers, &f.users)
}

func (f *fakeRemote) GetMosques(context.Context) ([]model.Mosque, error) {
	return fetch(f, model.KindMosques, &f.mosques)
}

func (f *fakeRemote) GetLessons(context.Context) ([]model.Lesson, error) {
	return fetch(f, model.KindLessons, &f.lessons)
}

func (f *fakeRemote) GetPosts(context.Context) ([]model.Post, error) {
	return fetch(f, model.KindPosts, &f.posts)
}

func (f *fakeRemote) Login(context.Context, remote.LoginRequest) (remote.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth, f.authErr
}

func (f *fakeRemote) Register(context.Context, remote.RegisterRequest) (remote.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth, f.authErr
}

// write blocks on the gate, if any, and returns the configured write error.
func (f *fakeRemote) write() error {
	f.mu.Lock()
	gate, err := f.gate, f.writeErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeRemote) nextID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s%d", prefix, 100+f.seq)
}

func (f *fakeRemote) UpdateUser(_ context.Context, u model.User) (model.User, error) {
	return u, f.write()
}

func (f *fakeRemote) CreatePost(_ context.Context, p model.Post) (model.Post, error) {
	if err := f.write(); err != nil {
		return model.Post{}, err
	}
	p.ID = f.nextID("p")
	return p, nil
}

func (f *fakeRemote) UpdatePost(_ context.Context, p model.Post) (model.Post, error) {
	return p, f.write()
}

func (f *fakeRemote) DeletePost(context.Context, string) error { return f.write() }

func (f *fakeRemote) CreateLesson(_ context.Context, l model.Lesson) (model.Lesson, error) {
	if err := f.write(); err != nil {
		return model.Lesson{}, err
	}
	l.ID = f.nextID("l")
	return l, nil
}

func (f *fakeRemote) UpdateLesson(_ context.Context, l model.Lesson) (model.Lesson, error) {
	return l, f.write()
}

func (f *fakeRemote) DeleteLesson(context.Context, string) error { return f.write() }

func (f *fakeRemote) CreateMosque(_ context.Context, m model.Mosque) (model.Mosque, error) {
	if err := f.write(); err != nil {
		return model.Mosque{}, err
	}
	m.ID = f.nextID("m")
	return m, nil
}

func (f *fakeRemote) UpdateMosque(_ context.Context, m model.Mosque) (model.Mosque, error) {
	return m, f.write()
}

func (f *fakeRemote) DeleteMosque(context.Context, string) error { return f.write() }

type fakeHandle struct {
	mu           sync.Mutex
	handlers     map[string]func([]byte)
	emitted      map[string][]any
	disconnected atomic.Bool
}

func (h *fakeHandle) Emit(event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emitted[event] = append(h.emitted[event], payload)
	return nil
}

func (h *fakeHandle) On(event string, fn func([]byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = fn
}

func (h *fakeHandle) Disconnect() { h.disconnected.Store(true) }

func (h *fakeHandle) fire(event string, payload string) {
	h.mu.Lock()
	fn := h.handlers[event]
	h.mu.Unlock()
	fn([]byte(payload))
}

func (h *fakeHandle) registered() []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.emitted[push.EventRegisterUser])
}

type fakeChannel struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (c *fakeChannel) Connect(context.Context, string) (push.Handle, error) {
	h := &fakeHandle{handlers: map[string]func([]byte){}, emitted: map[string][]any{}}
	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()
	return h, nil
}

func (c *fakeChannel) last() *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) == 0 {
		return nil
	}
	return c.handles[len(c.handles)-1]
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *fakeNotifier) Dispatch(item model.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, item)
	n.mu.Unlock()
}

func (n *fakeNotifier) ids() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, item := range n.sent {
		out = append(out, item.ID)
	}
	return out
}

// flakyStore fails Get with getErr while it is set.
type flakyStore struct {
	store.Store
	getErr error
}

func (s *flakyStore) Get(ctx context.Context, kind model.Kind, id string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, kind, id)
}

func newCache(t *testing.T) store.Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gormDB)
	require.NoError(t, s.Init(context.Background()))
	return s
}

type harness struct {
	r        *Reconciler
	cache    store.Store
	keys     *keystore.Memory
	remote   *fakeRemote
	push     *fakeChannel
	clock    *fakeClock
	notifier *fakeNotifier
	stop     func()
}

func newHarness(t *testing.T) *harness {
	return &harness{
		cache:    newCache(t),
		keys:     keystore.NewMemory(),
		remote:   &fakeRemote{},
		push:     &fakeChannel{},
		clock:    &fakeClock{now: at(11, 0, 0)},
		notifier: &fakeNotifier{},
	}
}

// signedIn seeds a stored session for user u1 that bootstrap will restore.
func (h *harness) signedIn(t *testing.T) {
	ctx := context.Background()
	u := model.User{ID: "u1", Name: "Amina", Phone: "+201000000001"}
	require.NoError(t, store.Save(ctx, h.cache, model.KindSessionUser, u))
	require.NoError(t, store.Save(ctx, h.cache, model.KindUsers, u))
	require.NoError(t, h.keys.Set(ctx, keystore.KeySessionUserID, u.ID))
	require.NoError(t, h.keys.Set(ctx, keystore.KeySessionPhone, u.Phone))
	require.NoError(t, h.keys.Set(ctx, keystore.KeySessionName, u.Name))
	require.NoError(t, h.keys.Set(ctx, keystore.KeySessionToken, "stored-token"))
	h.remote.users = []model.User{u}
}

// start runs the reconciler and waits for bootstrap to finish.
func (h *harness) start(t *testing.T) *Reconciler {
	h.r = New(Options{
		Store:         h.cache,
		Keys:          h.keys,
		Remote:        h.remote,
		Push:          h.push,
		Endpoint:      "tcp://push.test:1883",
		Notifier:      h.notifier,
		SyncInterval:  time.Hour,
		AlertInterval: time.Hour,
		Morning:       alert.Window{Start: 5, End: 10},
		Evening:       alert.Window{Start: 16, End: 20},
		Zone:          cairoWinter,
		Clock:         h.clock.Now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.r.Run(ctx) }()

	var once sync.Once
	h.stop = func() {
		once.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Error("reconciler did not stop")
			}
		})
	}
	t.Cleanup(h.stop)

	select {
	case <-h.r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap did not finish")
	}
	return h.r
}

// timersRunning reports whether the session timers are started.
func timersRunning(t *testing.T, r *Reconciler) bool {
	t.Helper()
	var running bool
	require.NoError(t, r.do(context.Background(), func(st *state) error {
		running = st.stopTimers != nil
		return nil
	}))
	return running
}

// wait returns the next value of ch or fails the test after a few seconds.
func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
