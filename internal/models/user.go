package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/gate"
)

// User represents an account known to the gate.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Username  string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName string    `gorm:"size:100" json:"first_name,omitempty"`
	LastName  string    `gorm:"size:100" json:"last_name,omitempty"`
	Language  string    `gorm:"size:10" json:"language,omitempty"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	IsAdmin   bool      `gorm:"not null" json:"is_admin"`
	// GroupIDs lists every group the user belongs to; the primary group
	// used for grant lookups lives on Profile.
	GroupIDs datatypes.JSONSlice[string] `json:"group_ids"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	newID(&u.ID)
	return nil
}

// Gate converts the row for identity resolution.
func (u User) Gate() gate.User {
	return gate.User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		GroupIDs: append([]string(nil), u.GroupIDs...),
		IsActive: u.IsActive,
		IsAdmin:  u.IsAdmin,
	}
}

// Session is a stored login. A session is valid until Expire, inclusive.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `gorm:"size:36;index;not null" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;size:255;not null" json:"-"`
	LoginName string    `gorm:"size:255;not null" json:"login_name"`
	Expire    time.Time `gorm:"not null" json:"expire"`
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (s Session) Gate() gate.Session {
	return gate.Session{UserID: s.UserID, Token: s.Token, LoginName: s.LoginName, Expire: s.Expire}
}
