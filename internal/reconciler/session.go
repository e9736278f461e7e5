package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"ummah-sync/internal/keystore"
	"ummah-sync/internal/model"
	"ummah-sync/internal/push"
	"ummah-sync/internal/remote"
	"ummah-sync/internal/store"
)

// Login signs in with phone and password. The session becomes
// authenticated once the remote login succeeded and the full refresh has
// run; a failed refresh is logged and does not block the login.
func (r *Reconciler) Login(ctx context.Context, phone, password string) (model.Session, error) {
	return r.authenticate(ctx, "login", func(ctx context.Context) (remote.AuthResponse, error) {
		return r.opts.Remote.Login(ctx, remote.LoginRequest{Phone: phone, Password: password})
	})
}

// Register creates an account and signs in with it.
func (r *Reconciler) Register(ctx context.Context, req remote.RegisterRequest) (model.Session, error) {
	return r.authenticate(ctx, "register", func(ctx context.Context) (remote.AuthResponse, error) {
		return r.opts.Remote.Register(ctx, req)
	})
}

func (r *Reconciler) authenticate(ctx context.Context, op string, call func(context.Context) (remote.AuthResponse, error)) (model.Session, error) {
	var prev Status
	if err := r.do(ctx, func(st *state) error {
		if st.status == StatusAuthenticating {
			return fmt.Errorf("%s: authentication already in progress", op)
		}
		prev = st.status
		st.status = StatusAuthenticating
		return nil
	}); err != nil {
		return model.Session{}, err
	}

	resp, err := call(ctx)
	if err != nil {
		_ = r.do(context.WithoutCancel(ctx), func(st *state) error {
			st.status = prev
			if st.session == nil {
				st.status = StatusUnauthenticated
			}
			return nil
		})
		log.Error().Err(err).Str("op", op).Msg("authentication failed")
		return model.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	session := model.SessionFromUser(resp.User, resp.Token)
	r.opts.Remote.SetToken(resp.Token)
	var gen uint64
	if err := r.do(ctx, func(st *state) error {
		st.session = &session
		st.gen++
		gen = st.gen
		return nil
	}); err != nil {
		return model.Session{}, err
	}
	r.persistSession(ctx, session)
	if r.signedOutSince(ctx, gen) {
		r.forget(ctx, session.UserID)
		return model.Session{}, fmt.Errorf("%s: %w", op, errSessionChanged)
	}

	r.connectPush(ctx)
	if err := r.refresh(ctx, gen); err != nil {
		log.Error().Err(err).Str("op", op).Msg("refresh after sign-in failed; entities may be stale")
	}

	if err := r.do(ctx, func(st *state) error {
		if st.gen != gen {
			return errSessionChanged
		}
		st.status = StatusAuthenticated
		r.startTimers(st)
		return nil
	}); err != nil {
		return model.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	log.Info().Str("user_id", session.UserID).Str("op", op).Msg("signed in")

	if err := r.CheckAlerts(ctx); err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrStopped) {
		log.Warn().Err(err).Msg("alert check after sign-in failed")
	}
	return session, nil
}

// signedOutSince reports whether the session of generation gen ended and
// nobody signed in after it.
func (r *Reconciler) signedOutSince(ctx context.Context, gen uint64) bool {
	var out bool
	_ = r.do(context.WithoutCancel(ctx), func(st *state) error {
		out = st.gen != gen && st.session == nil
		return nil
	})
	return out
}

// persistSession writes the identity keys and the user record. Failures
// are logged; the in-memory session stands regardless.
func (r *Reconciler) persistSession(ctx context.Context, s model.Session) {
	keys := map[string]string{
		keystore.KeySessionUserID: s.UserID,
		keystore.KeySessionPhone:  s.Phone,
		keystore.KeySessionName:   s.Name,
		keystore.KeySessionToken:  s.Token,
	}
	for k, v := range keys {
		if err := r.opts.Keys.Set(ctx, k, v); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("failed to persist session key")
		}
	}
	if err := store.Save(ctx, r.opts.Store, model.KindSessionUser, s.User()); err != nil {
		log.Warn().Err(err).Str("user_id", s.UserID).Msg("failed to cache session user")
	}
}

// Logout ends the session: the push channel is closed, the session timers
// stopped, the state cleared and the persisted identity removed.
func (r *Reconciler) Logout(ctx context.Context) error {
	var userID string
	var handle push.Handle
	if err := r.do(ctx, func(st *state) error {
		if st.session == nil {
			return ErrNoSession
		}
		userID = st.session.UserID
		st.gen++
		if st.push != nil {
			handle = st.push
			st.push = nil
		}
		r.stopTimers(st)
		st.clearSession()
		return nil
	}); err != nil {
		return err
	}
	if handle != nil {
		handle.Disconnect()
	}
	r.opts.Remote.SetToken("")
	r.forget(ctx, userID)
	log.Info().Str("user_id", userID).Msg("signed out")
	return nil
}

// forget removes the persisted identity of userID.
func (r *Reconciler) forget(ctx context.Context, userID string) {
	if err := r.opts.Store.Delete(ctx, model.KindSessionUser, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to drop cached user")
	}
	if err := r.opts.Keys.Delete(ctx, keystore.SessionKeys...); err != nil {
		log.Warn().Err(err).Msg("failed to clear session keys")
	}
}

// RestoreSession rebuilds the session from the persisted identity. A user
// record that is explicitly missing from the cache invalidates the stored
// identity; any other lookup failure leaves it in place.
func (r *Reconciler) RestoreSession(ctx context.Context) error {
	userID, err := r.opts.Keys.Get(ctx, keystore.KeySessionUserID)
	if errors.Is(err, keystore.ErrNotFound) || (err == nil && userID == "") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read stored session: %w", err)
	}
	token := r.key(ctx, keystore.KeySessionToken)

	u, err := store.Load[model.User](ctx, r.opts.Store, model.KindSessionUser, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn().Str("user_id", userID).Msg("stored user no longer exists; signing out")
		if err := r.opts.Keys.Delete(ctx, keystore.SessionKeys...); err != nil {
			log.Warn().Err(err).Msg("failed to clear session keys")
		}
		r.opts.Remote.SetToken("")
		return r.do(ctx, func(st *state) error {
			if st.session != nil && st.session.UserID == userID {
				st.gen++
				st.clearSession()
			}
			return nil
		})

	case err != nil:
		log.Warn().Err(err).Str("user_id", userID).Msg("cache lookup failed; keeping stored session")
		session := model.Session{
			UserID: userID,
			Phone:  r.key(ctx, keystore.KeySessionPhone),
			Name:   r.key(ctx, keystore.KeySessionName),
			Token:  token,
		}
		return r.restore(ctx, session)
	}

	return r.restore(ctx, model.SessionFromUser(u, token))
}

// restore installs s unless a session already exists.
func (r *Reconciler) restore(ctx context.Context, s model.Session) error {
	return r.do(ctx, func(st *state) error {
		if st.session != nil {
			return nil
		}
		if s.Token != "" {
			r.opts.Remote.SetToken(s.Token)
		}
		st.session = &s
		st.status = StatusAuthenticated
		st.gen++
		log.Info().Str("user_id", s.UserID).Msg("session restored")
		return nil
	})
}

func (r *Reconciler) key(ctx context.Context, k string) string {
	v, err := r.opts.Keys.Get(ctx, k)
	if err != nil && !errors.Is(err, keystore.ErrNotFound) {
		log.Debug().Err(err).Str("key", k).Msg("failed to read key")
	}
	return v
}

// UpdatePreferences changes the session user's preferences, optimistically.
func (r *Reconciler) UpdatePreferences(ctx context.Context, p model.Preferences) (model.Session, error) {
	return r.updateSessionUser(ctx, func(s *model.Session) { s.Preferences = p })
}

// UpdateLocation asks the device for its position and stores it on the
// session user. When the position is unavailable the default coordinate
// is used.
func (r *Reconciler) UpdateLocation(ctx context.Context) (model.Session, error) {
	pos := r.opts.DefaultCoordinate
	if r.opts.Locator != nil {
		if p, err := r.opts.Locator.CurrentPosition(ctx); err == nil {
			pos = p
		} else {
			log.Info().Err(err).Msg("device position unavailable; using default coordinate")
		}
	}
	return r.updateSessionUser(ctx, func(s *model.Session) { s.Location = &pos })
}

func (r *Reconciler) updateSessionUser(ctx context.Context, change func(*model.Session)) (model.Session, error) {
	var prev, next model.Session
	var gen uint64
	if err := r.do(ctx, func(st *state) error {
		if st.session == nil {
			return ErrNoSession
		}
		gen = st.gen
		prev = *st.session
		next = prev
		change(&next)
		st.session = &next
		return nil
	}); err != nil {
		return model.Session{}, err
	}

	updated, err := r.opts.Remote.UpdateUser(ctx, next.User())
	if err != nil {
		_ = r.do(context.WithoutCancel(ctx), func(st *state) error {
			if st.gen == gen && st.session != nil {
				restored := prev
				st.session = &restored
			}
			return nil
		})
		log.Error().Err(err).Str("user_id", prev.UserID).Msg("profile update failed; previous settings restored")
		return model.Session{}, fmt.Errorf("update user: %w", err)
	}

	if updated.ID == "" {
		updated = next.User()
	}
	session := model.SessionFromUser(updated, next.Token)
	if err := r.do(ctx, func(st *state) error {
		if st.gen != gen || st.session == nil {
			return errSessionChanged
		}
		st.session = &session
		if i := indexOf(st.users, session.UserID); i >= 0 {
			st.users = replaceAt(st.users, i, updated)
		}
		return nil
	}); err != nil {
		return model.Session{}, fmt.Errorf("update user: %w", err)
	}
	if err := store.Save(ctx, r.opts.Store, model.KindSessionUser, updated); err != nil {
		log.Warn().Err(err).Str("user_id", updated.ID).Msg("failed to cache session user")
	}
	if err := store.Save(ctx, r.opts.Store, model.KindUsers, updated); err != nil {
		log.Warn().Err(err).Str("user_id", updated.ID).Msg("failed to cache user")
	}
	return session, nil
}
