package reconciler

import (
	"context"

	"ummah-sync/internal/model"
)

// collection binds one entity kind to its slot in the state and to the
// remote endpoints serving it.
type collection[T model.Record[T]] struct {
	kind   model.Kind
	get    func(*state) []T
	set    func(*state, []T)
	list   func(Remote, context.Context) ([]T, error)
	create func(Remote, context.Context, T) (T, error)
	update func(Remote, context.Context, T) (T, error)
	delete func(Remote, context.Context, string) error
}

var users = collection[model.User]{
	kind:   model.KindUsers,
	get:    func(st *state) []model.User { return st.users },
	set:    func(st *state, v []model.User) { st.users = v },
	list:   Remote.GetUsers,
	update: Remote.UpdateUser,
}

var mosques = collection[model.Mosque]{
	kind:   model.KindMosques,
	get:    func(st *state) []model.Mosque { return st.mosques },
	set:    func(st *state, v []model.Mosque) { st.mosques = v },
	list:   Remote.GetMosques,
	create: Remote.CreateMosque,
	update: Remote.UpdateMosque,
	delete: Remote.DeleteMosque,
}

var lessons = collection[model.Lesson]{
	kind:   model.KindLessons,
	get:    func(st *state) []model.Lesson { return st.lessons },
	set:    func(st *state, v []model.Lesson) { st.lessons = v },
	list:   Remote.GetLessons,
	create: Remote.CreateLesson,
	update: Remote.UpdateLesson,
	delete: Remote.DeleteLesson,
}

var posts = collection[model.Post]{
	kind:   model.KindPosts,
	get:    func(st *state) []model.Post { return st.posts },
	set:    func(st *state, v []model.Post) { st.posts = v },
	list:   Remote.GetPosts,
	create: Remote.CreatePost,
	update: Remote.UpdatePost,
	delete: Remote.DeletePost,
}
