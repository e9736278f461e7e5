package model

import "time"

// Category classifies a notification for presentation.
type Category string

const (
	CategoryInfo    Category = "info"
	CategoryAlert   Category = "alert"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// ParseCategory returns the category named by s, or CategoryInfo when s
// is not a known category.
func ParseCategory(s string) Category {
	switch c := Category(s); c {
	case CategoryInfo, CategoryAlert, CategorySuccess, CategoryError:
		return c
	}
	return CategoryInfo
}

// Notification is an entry of the in-app notification list.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  Category  `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
