package reconciler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ummah-sync/internal/model"
	"ummah-sync/internal/store"
)

func TestEntities_RequireSession(t *testing.T) {
	h := newHarness(t)
	h.remote.posts = []model.Post{{ID: "p1"}}
	r := h.start(t)
	ctx := context.Background()

	_, err := r.CreatePost(ctx, model.Post{Content: "salam"})
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = r.UpdatePost(ctx, model.Post{ID: "p1", Content: "edited"})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, r.DeletePost(ctx, "p1"), ErrNoSession)
	_, err = r.UpdatePreferences(ctx, model.Preferences{FontScale: 1.2})
	assert.ErrorIs(t, err, ErrNoSession)

	require.Len(t, r.Snapshot().Posts, 1)
	assert.Empty(t, r.Snapshot().Posts[0].Content)
}

func TestCreatePost_OptimisticThenCommitted(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	h.remote.posts = []model.Post{{ID: "p1"}}
	gate := make(chan struct{})
	r := h.start(t)
	h.remote.set(func(f *fakeRemote) { f.gate = gate })
	ctx := context.Background()

	type result struct {
		post model.Post
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := r.CreatePost(ctx, model.Post{AuthorID: "u1", Content: "Jumuah at 1pm"})
		done <- result{p, err}
	}()

	require.Eventually(t, func() bool { return len(r.Snapshot().Posts) == 2 }, time.Second, 5*time.Millisecond)
	pending := r.Snapshot().Posts[0]
	assert.True(t, strings.HasPrefix(pending.ID, TempIDPrefix))
	assert.Equal(t, "Jumuah at 1pm", pending.Content)

	close(gate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "p101", res.post.ID)

	posts := r.Snapshot().Posts
	require.Len(t, posts, 2)
	assert.Equal(t, "p101", posts[0].ID)
	assert.Equal(t, "p1", posts[1].ID)

	cached, err := store.Load[model.Post](ctx, h.cache, model.KindPosts, "p101")
	require.NoError(t, err)
	assert.Equal(t, "Jumuah at 1pm", cached.Content)
}

func TestCreateLesson_FailureRemovesOptimisticRecord(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	h.remote.lessons = []model.Lesson{{ID: "l1"}}
	r := h.start(t)
	h.remote.set(func(f *fakeRemote) { f.writeErr = errTransport })

	_, err := r.CreateLesson(context.Background(), model.Lesson{Title: "Seerah"})
	assert.ErrorIs(t, err, errTransport)

	lessons := r.Snapshot().Lessons
	require.Len(t, lessons, 1)
	assert.Equal(t, "l1", lessons[0].ID)
}

func TestUpdateMosque_FailureRestoresPrevious(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	h.remote.mosques = []model.Mosque{{ID: "m1", Name: "Al-Hussein"}, {ID: "m2", Name: "Ibn Tulun"}}
	r := h.start(t)
	ctx := context.Background()

	updated, err := r.UpdateMosque(ctx, model.Mosque{ID: "m2", Name: "Ahmad Ibn Tulun"})
	require.NoError(t, err)
	assert.Equal(t, "Ahmad Ibn Tulun", updated.Name)
	assert.Equal(t, "Ahmad Ibn Tulun", r.Snapshot().Mosques[1].Name)

	h.remote.set(func(f *fakeRemote) { f.writeErr = errTransport })
	_, err = r.UpdateMosque(ctx, model.Mosque{ID: "m2", Name: "broken"})
	assert.ErrorIs(t, err, errTransport)
	assert.Equal(t, "Ahmad Ibn Tulun", r.Snapshot().Mosques[1].Name)

	_, err = r.UpdateMosque(ctx, model.Mosque{Name: "no id"})
	assert.ErrorIs(t, err, errMissingID)
}

func TestDeletePost_FailureReinsertsAtPosition(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	h.remote.posts = []model.Post{{ID: "p3"}, {ID: "p2"}, {ID: "p1"}}
	r := h.start(t)
	ctx := context.Background()

	h.remote.set(func(f *fakeRemote) { f.writeErr = errTransport })
	assert.ErrorIs(t, r.DeletePost(ctx, "p2"), errTransport)

	ids := func() []string {
		var out []string
		for _, p := range r.Snapshot().Posts {
			out = append(out, p.ID)
		}
		return out
	}
	assert.Equal(t, []string{"p3", "p2", "p1"}, ids())

	h.remote.set(func(f *fakeRemote) { f.writeErr = nil })
	require.NoError(t, r.DeletePost(ctx, "p2"))
	assert.Equal(t, []string{"p3", "p1"}, ids())

	_, err := h.cache.Get(ctx, model.KindPosts, "p2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdatePreferences(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	r := h.start(t)
	ctx := context.Background()

	session, err := r.UpdatePreferences(ctx, model.Preferences{FontScale: 1.25, AudioCues: true})
	require.NoError(t, err)
	assert.Equal(t, 1.25, session.Preferences.FontScale)
	assert.Equal(t, 1.25, r.Snapshot().Session.Preferences.FontScale)
	assert.Equal(t, 1.25, r.Snapshot().Users[0].Preferences.FontScale)

	h.remote.set(func(f *fakeRemote) { f.writeErr = errTransport })
	_, err = r.UpdatePreferences(ctx, model.Preferences{FontScale: 2})
	assert.ErrorIs(t, err, errTransport)
	assert.Equal(t, 1.25, r.Snapshot().Session.Preferences.FontScale)
}

func TestUpdateLocation_FallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	r := h.start(t)

	session, err := r.UpdateLocation(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session.Location)
	assert.Equal(t, 30.0444, session.Location.Lat)
	assert.Equal(t, 31.2357, session.Location.Lng)
}

func TestCreatePost_LogoutDuringCallDropsResult(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	gate := make(chan struct{})
	r := h.start(t)
	h.remote.set(func(f *fakeRemote) { f.gate = gate })
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := r.CreatePost(ctx, model.Post{AuthorID: "u1", Content: "Eid prayer at 7am"})
		done <- err
	}()

	require.Eventually(t, func() bool { return len(r.Snapshot().Posts) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Logout(ctx))
	close(gate)

	assert.ErrorIs(t, wait(t, done, "create"), ErrNoSession)
	assert.Empty(t, r.Snapshot().Posts)
	cached, err := store.LoadAll[model.Post](ctx, h.cache, model.KindPosts)
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestUpdatePost_LogoutDuringCallDropsResult(t *testing.T) {
	h := newHarness(t)
	h.signedIn(t)
	h.remote.posts = []model.Post{{ID: "p1", Content: "draft"}}
	gate := make(chan struct{})
	r := h.start(t)
	h.remote.set(func(f *fakeRemote) { f.gate = gate })
	ctx := context.Background()
	require.NoError(t, h.cache.Delete(ctx, model.KindPosts, "p1"))

	done := make(chan error, 1)
	go func() {
		_, err := r.UpdatePost(ctx, model.Post{ID: "p1", Content: "final"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		posts := r.Snapshot().Posts
		return len(posts) == 1 && posts[0].Content == "final"
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Logout(ctx))
	close(gate)

	assert.ErrorIs(t, wait(t, done, "update"), ErrNoSession)
	assert.Empty(t, r.Snapshot().Posts)
	_, err := h.cache.Get(ctx, model.KindPosts, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
