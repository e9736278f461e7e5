package model

import "time"

// CacheRecord is one persisted entity of the local cache. Payload is the
// JSON encoding of the entity; Position keeps server order within a kind.
type CacheRecord struct {
	Kind      string    `gorm:"primaryKey;size:32"`
	EntityID  string    `gorm:"primaryKey;size:128"`
	Position  int       `gorm:"not null;default:0"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
