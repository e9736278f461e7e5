package reconciler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"ummah-sync/internal/model"
	"ummah-sync/internal/prayer"
	"ummah-sync/internal/push"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
)

// Snapshot is an immutable view of the state. Its slices must not be
// modified.
type Snapshot struct {
	Status        Status               `json:"status"`
	Session       *model.Session       `json:"session,omitempty"`
	Users         []model.User         `json:"users"`
	Mosques       []model.Mosque       `json:"mosques"`
	Lessons       []model.Lesson       `json:"lessons"`
	Posts         []model.Post         `json:"posts"`
	Notifications []model.Notification `json:"notifications"`
	Schedule      prayer.Schedule      `json:"schedule"`
	Next          prayer.NextEvent     `json:"next"`
	CacheReady    bool                 `json:"cacheReady"`
	AlertError    string               `json:"alertError,omitempty"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// Unread counts the notifications not yet marked read.
func (s *Snapshot) Unread() int {
	n := 0
	for _, item := range s.Notifications {
		if !item.Read {
			n++
		}
	}
	return n
}

// state is owned by the Run goroutine. Slices are replaced, never written
// in place, so published snapshots can share them.
type state struct {
	ctx     context.Context
	status  Status
	session *model.Session

	users   []model.User
	mosques []model.Mosque
	lessons []model.Lesson
	posts   []model.Post

	notifications []model.Notification
	notified      map[string]struct{}
	pushSeq       uint64

	device      *model.Coordinate
	schedule    prayer.Schedule
	scheduleKey string
	cacheReady  bool
	alertErr    string

	// gen counts session changes. Work started under an older generation
	// is dropped when it completes.
	gen        uint64
	push       push.Handle
	stopTimers context.CancelFunc
}

func newState() *state {
	return &state{
		ctx:      context.Background(),
		status:   StatusUnauthenticated,
		notified: make(map[string]struct{}),
	}
}

func (r *Reconciler) snapshotOf(st *state, now time.Time) *Snapshot {
	snap := &Snapshot{
		Status:        st.status,
		Users:         st.users,
		Mosques:       st.mosques,
		Lessons:       st.lessons,
		Posts:         st.posts,
		Notifications: st.notifications,
		Schedule:      st.schedule,
		CacheReady:    st.cacheReady,
		AlertError:    st.alertErr,
		UpdatedAt:     now,
	}
	if st.session != nil {
		s := *st.session
		snap.Session = &s
	}
	if st.scheduleKey != "" {
		snap.Next = prayer.Next(st.schedule, now)
	}
	return snap
}

// coordinate picks the session location, then the device position, then
// the configured default.
func (r *Reconciler) coordinate(st *state) model.Coordinate {
	switch {
	case st.session != nil && st.session.Location != nil:
		return *st.session.Location
	case st.device != nil:
		return *st.device
	}
	return r.opts.DefaultCoordinate
}

// refreshSchedule recomputes the schedule when the day or the coordinate
// has changed since the last computation.
func (r *Reconciler) refreshSchedule(st *state, now time.Time) {
	c := r.coordinate(st)
	key := fmt.Sprintf("%s|%.6f|%.6f", now.Format(time.DateOnly), c.Lat, c.Lng)
	if key == st.scheduleKey {
		return
	}
	st.schedule = prayer.ForLocation(now, &c)
	st.scheduleKey = key
}

// addNotification prepends n and offers it to the notifier.
func (r *Reconciler) addNotification(st *state, n model.Notification) {
	st.notifications = prepend(st.notifications, n)
	st.notified[n.ID] = struct{}{}
	if r.opts.Notifier != nil {
		r.opts.Notifier.Dispatch(n)
	}
}

func (st *state) clearSession() {
	st.session = nil
	st.status = StatusUnauthenticated
	st.users = nil
	st.mosques = nil
	st.lessons = nil
	st.posts = nil
	st.notifications = nil
	st.notified = make(map[string]struct{})
}

func prepend[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}

func replaceAt[T any](items []T, i int, item T) []T {
	out := slices.Clone(items)
	out[i] = item
	return out
}

func removeAt[T any](items []T, i int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

func insertAt[T any](items []T, i int, item T) []T {
	if i > len(items) {
		i = len(items)
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:i]...)
	out = append(out, item)
	return append(out, items[i:]...)
}

func indexOf[T model.Record[T]](items []T, id string) int {
	return slices.IndexFunc(items, func(item T) bool { return item.EntityID() == id })
}
