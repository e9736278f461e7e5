package model

import "time"

// Kind names one entity collection held in the snapshot and the local cache.
type Kind string

const (
	KindUsers   Kind = "users"
	KindMosques Kind = "mosques"
	KindLessons Kind = "lessons"
	KindPosts   Kind = "posts"
)

// KindSessionUser holds the signed-in user's own record in the local cache,
// apart from the users collection so a users refresh never replaces it.
// It is not an entity collection.
const KindSessionUser Kind = "session_user"

// Kinds lists every entity kind in the order they are refreshed.
var Kinds = []Kind{KindUsers, KindMosques, KindLessons, KindPosts}

// ParseKind maps a collection name onto a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Record is implemented by every entity type. WithEntityID returns a copy
// carrying a different identifier.
type Record[T any] interface {
	EntityID() string
	WithEntityID(id string) T
}

// User is a member of the community.
type User struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Role        string      `json:"role,omitempty"`
	Location    *Coordinate `json:"location,omitempty"`
	Preferences Preferences `json:"preferences"`
}

func (u User) EntityID() string { return u.ID }

func (u User) WithEntityID(id string) User {
	u.ID = id
	return u
}

// Mosque is a place of prayer listed in the directory.
type Mosque struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Address  string      `json:"address,omitempty"`
	Imam     string      `json:"imam,omitempty"`
	Location *Coordinate `json:"location,omitempty"`
}

func (m Mosque) EntityID() string { return m.ID }

func (m Mosque) WithEntityID(id string) Mosque {
	m.ID = id
	return m
}

// Lesson is a scheduled class or talk, usually held at a mosque.
type Lesson struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Teacher     string    `json:"teacher,omitempty"`
	MosqueID    string    `json:"mosqueId,omitempty"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
}

func (l Lesson) EntityID() string { return l.ID }

func (l Lesson) WithEntityID(id string) Lesson {
	l.ID = id
	return l
}

// Post is an item of the community feed. Server order is recency.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p Post) EntityID() string { return p.ID }

func (p Post) WithEntityID(id string) Post {
	p.ID = id
	return p
}
