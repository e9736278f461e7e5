package remote

import (
	"context"
	"net/http"

	"ummah-sync/internal/model"
)

// AuthResponse models the body returned by the login and register endpoints.
type AuthResponse struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out)
	return out, err
}

func (c *Client) GetUsers(ctx context.Context) ([]model.User, error) {
	return list[model.User](ctx, c, model.KindUsers)
}

func (c *Client) GetMosques(ctx context.Context) ([]model.Mosque, error) {
	return list[model.Mosque](ctx, c, model.KindMosques)
}

func (c *Client) GetLessons(ctx context.Context) ([]model.Lesson, error) {
	return list[model.Lesson](ctx, c, model.KindLessons)
}

func (c *Client) GetPosts(ctx context.Context) ([]model.Post, error) {
	return list[model.Post](ctx, c, model.KindPosts)
}

func (c *Client) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	return update(ctx, c, model.KindUsers, u.ID, u)
}

func (c *Client) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	return create(ctx, c, model.KindPosts, p)
}

func (c *Client) UpdatePost(ctx context.Context, p model.Post) (model.Post, error) {
	return update(ctx, c, model.KindPosts, p.ID, p)
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return remove(ctx, c, model.KindPosts, id)
}

func (c *Client) CreateLesson(ctx context.Context, l model.Lesson) (model.Lesson, error) {
	return create(ctx, c, model.KindLessons, l)
}

func (c *Client) UpdateLesson(ctx context.Context, l model.Lesson) (model.Lesson, error) {
	return update(ctx, c, model.KindLessons, l.ID, l)
}

func (c *Client) DeleteLesson(ctx context.Context, id string) error {
	return remove(ctx, c, model.KindLessons, id)
}

func (c *Client) CreateMosque(ctx context.Context, m model.Mosque) (model.Mosque, error) {
	return create(ctx, c, model.KindMosques, m)
}

func (c *Client) UpdateMosque(ctx context.Context, m model.Mosque) (model.Mosque, error) {
	return update(ctx, c, model.KindMosques, m.ID, m)
}

func (c *Client) DeleteMosque(ctx context.Context, id string) error {
	return remove(ctx, c, model.KindMosques, id)
}
