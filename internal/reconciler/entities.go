package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ummah-sync/internal/model"
	"ummah-sync/internal/store"
)

// TempIDPrefix marks records created optimistically and not yet confirmed
// by the remote service.
const TempIDPrefix = "tmp-"

var errMissingID = errors.New("entity id is required")

// requireSession is the common precondition of every entity mutation.
func requireSession(st *state) error {
	if st.session == nil {
		return ErrNoSession
	}
	return nil
}

// createEntity inserts rec at the front under a temporary id, then swaps in
// the server's version or removes it again.
func createEntity[T model.Record[T]](ctx context.Context, r *Reconciler, c collection[T], rec T) (T, error) {
	var zero T
	tempID := TempIDPrefix + uuid.NewString()

	var gen uint64
	err := r.do(ctx, func(st *state) error {
		if err := requireSession(st); err != nil {
			return err
		}
		gen = st.gen
		c.set(st, prepend(c.get(st), rec.WithEntityID(tempID)))
		return nil
	})
	if err != nil {
		return zero, err
	}

	created, callErr := c.create(r.opts.Remote, ctx, rec)
	commitErr := r.do(context.WithoutCancel(ctx), func(st *state) error {
		if st.gen != gen {
			return errSessionChanged
		}
		items := c.get(st)
		i := indexOf(items, tempID)
		switch {
		case callErr != nil && i >= 0:
			c.set(st, removeAt(items, i))
		case callErr != nil:
		case indexOf(items, created.EntityID()) >= 0:
			// a refresh already delivered it
			if i >= 0 {
				c.set(st, removeAt(items, i))
			}
		case i >= 0:
			c.set(st, replaceAt(items, i, created))
		default:
			c.set(st, prepend(items, created))
		}
		return nil
	})
	if callErr != nil {
		log.Error().Err(callErr).Str("kind", string(c.kind)).Msg("create failed; optimistic record removed")
		return zero, fmt.Errorf("create %s: %w", c.kind, callErr)
	}
	if commitErr != nil {
		log.Info().Str("kind", string(c.kind)).Str("id", created.EntityID()).Msg("session ended during create; result not applied")
		return zero, fmt.Errorf("create %s: %w", c.kind, commitErr)
	}

	if err := store.Save(ctx, r.opts.Store, c.kind, created); err != nil {
		log.Warn().Err(err).Str("kind", string(c.kind)).Str("id", created.EntityID()).Msg("failed to cache created record")
	}
	return created, nil
}

// updateEntity replaces the record in place and restores the previous
// version if the remote call fails.
func updateEntity[T model.Record[T]](ctx context.Context, r *Reconciler, c collection[T], rec T) (T, error) {
	var zero T
	id := rec.EntityID()
	if id == "" {
		return zero, errMissingID
	}

	var prev T
	var found bool
	var gen uint64
	err := r.do(ctx, func(st *state) error {
		if err := requireSession(st); err != nil {
			return err
		}
		gen = st.gen
		items := c.get(st)
		if i := indexOf(items, id); i >= 0 {
			prev, found = items[i], true
			c.set(st, replaceAt(items, i, rec))
		}
		return nil
	})
	if err != nil {
		return zero, err
	}

	updated, callErr := c.update(r.opts.Remote, ctx, rec)
	commitErr := r.do(context.WithoutCancel(ctx), func(st *state) error {
		if st.gen != gen {
			return errSessionChanged
		}
		items := c.get(st)
		i := indexOf(items, id)
		if i < 0 {
			return nil
		}
		switch {
		case callErr == nil:
			c.set(st, replaceAt(items, i, updated))
		case found:
			c.set(st, replaceAt(items, i, prev))
		}
		return nil
	})
	if callErr != nil {
		log.Error().Err(callErr).Str("kind", string(c.kind)).Str("id", id).Msg("update failed; previous version restored")
		return zero, fmt.Errorf("update %s/%s: %w", c.kind, id, callErr)
	}
	if commitErr != nil {
		log.Info().Str("kind", string(c.kind)).Str("id", id).Msg("session ended during update; result not applied")
		return zero, fmt.Errorf("update %s/%s: %w", c.kind, id, commitErr)
	}

	if err := store.Save(ctx, r.opts.Store, c.kind, updated); err != nil {
		log.Warn().Err(err).Str("kind", string(c.kind)).Str("id", id).Msg("failed to cache updated record")
	}
	return updated, nil
}

// deleteEntity removes the record and puts it back at its old position if
// the remote call fails.
func deleteEntity[T model.Record[T]](ctx context.Context, r *Reconciler, c collection[T], id string) error {
	if id == "" {
		return errMissingID
	}

	var prev T
	pos := -1
	var gen uint64
	err := r.do(ctx, func(st *state) error {
		if err := requireSession(st); err != nil {
			return err
		}
		gen = st.gen
		items := c.get(st)
		if i := indexOf(items, id); i >= 0 {
			prev, pos = items[i], i
			c.set(st, removeAt(items, i))
		}
		return nil
	})
	if err != nil {
		return err
	}

	callErr := c.delete(r.opts.Remote, ctx, id)
	if callErr != nil {
		_ = r.do(context.WithoutCancel(ctx), func(st *state) error {
			items := c.get(st)
			if st.gen == gen && pos >= 0 && indexOf(items, id) < 0 {
				c.set(st, insertAt(items, pos, prev))
			}
			return nil
		})
		log.Error().Err(callErr).Str("kind", string(c.kind)).Str("id", id).Msg("delete failed; record restored")
		return fmt.Errorf("delete %s/%s: %w", c.kind, id, callErr)
	}

	if err := r.opts.Store.Delete(ctx, c.kind, id); err != nil {
		log.Warn().Err(err).Str("kind", string(c.kind)).Str("id", id).Msg("failed to drop cached record")
	}
	return nil
}

// CreatePost publishes a post to the feed.
func (r *Reconciler) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	return createEntity(ctx, r, posts, p)
}

func (r *Reconciler) UpdatePost(ctx context.Context, p model.Post) (model.Post, error) {
	return updateEntity(ctx, r, posts, p)
}

func (r *Reconciler) DeletePost(ctx context.Context, id string) error {
	return deleteEntity(ctx, r, posts, id)
}

func (r *Reconciler) CreateLesson(ctx context.Context, l model.Lesson) (model.Lesson, error) {
	return createEntity(ctx, r, lessons, l)
}

func (r *Reconciler) UpdateLesson(ctx context.Context, l model.Lesson) (model.Lesson, error) {
	return updateEntity(ctx, r, lessons, l)
}

func (r *Reconciler) DeleteLesson(ctx context.Context, id string) error {
	return deleteEntity(ctx, r, lessons, id)
}

func (r *Reconciler) CreateMosque(ctx context.Context, m model.Mosque) (model.Mosque, error) {
	return createEntity(ctx, r, mosques, m)
}

func (r *Reconciler) UpdateMosque(ctx context.Context, m model.Mosque) (model.Mosque, error) {
	return updateEntity(ctx, r, mosques, m)
}

func (r *Reconciler) DeleteMosque(ctx context.Context, id string) error {
	return deleteEntity(ctx, r, mosques, id)
}
