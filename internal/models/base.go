package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActorKey is the gorm setting holding the id of the user performing a write.
// Set it with WithActor; the Base hooks read it to stamp CreatedBy/UpdatedBy.
const ActorKey = "crudgate:actor"

// WithActor returns a session of db that stamps writes with userID.
func WithActor(db *gorm.DB, userID string) *gorm.DB {
	return db.Set(ActorKey, userID)
}

// Actor returns the acting user id set with WithActor.
func Actor(tx *gorm.DB) (string, bool) {
	v, ok := tx.Get(ActorKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// Base is embedded by application models that are guarded by the gate.
// CreatedBy is the owner used for ownership checks and is never changed by
// an update.
type Base struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedBy string    `gorm:"size:36;index;not null" json:"created_by"`
	UpdatedBy string    `gorm:"size:36" json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID implements gate.Identifiable.
func (b Base) RecordID() string { return b.ID }

// OwnerID returns the creator of the record.
func (b Base) OwnerID() string { return b.CreatedBy }

// BeforeCreate assigns a uuid and the acting user as owner.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if actor, ok := Actor(tx); ok && b.CreatedBy == "" {
		b.CreatedBy = actor
	}
	return nil
}

// BeforeUpdate stamps UpdatedBy with the acting user.
func (b *Base) BeforeUpdate(tx *gorm.DB) error {
	if actor, ok := Actor(tx); ok {
		tx.Statement.SetColumn("UpdatedBy", actor)
	}
	return nil
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
