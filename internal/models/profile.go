package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/gate"
)

// Group is a named set of users sharing the same grants.
type Group struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	IsSystem    bool      `gorm:"not null" json:"is_system"`
}

func (g *Group) BeforeCreate(*gorm.DB) error {
	newID(&g.ID)
	return nil
}

// Profile links a user to the group whose grants apply to them.
// A user has at most one profile.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `gorm:"size:36;uniqueIndex;not null" json:"user_id"`
	GroupID   string    `gorm:"size:36;index;not null" json:"group_id"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
}

func (p *Profile) BeforeCreate(*gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (p Profile) Gate() gate.Profile {
	return gate.Profile{UserID: p.UserID, GroupID: p.GroupID, IsActive: p.IsActive}
}

// Service registers a guarded resource (a table or collection) by name.
type Service struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Category    string    `gorm:"size:50;not null" json:"category"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
}

func (s *Service) BeforeCreate(*gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (s Service) Gate() gate.Resource {
	return gate.Resource{ID: s.ID, Name: s.Name, Category: s.Category}
}

// Service categories stored on RoleService rows.
const (
	CategoryCollection = "collection"
	CategoryTable      = "table"
	CategoryRecord     = "record"
	CategoryDocument   = "document"
)

// RoleService grants a group CRUD flags on a service (collection scope) or
// on a single record (record scope). ServiceID holds the target id.
type RoleService struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	GroupID         string    `gorm:"size:36;not null;index:idx_role_service_group" json:"group_id"`
	ServiceID       string    `gorm:"size:36;not null;index:idx_role_service_group" json:"service_id"`
	ServiceCategory string    `gorm:"size:50;not null" json:"service_category"`
	CanRead         bool      `gorm:"not null" json:"can_read"`
	CanCreate       bool      `gorm:"not null" json:"can_create"`
	CanUpdate       bool      `gorm:"not null" json:"can_update"`
	CanDelete       bool      `gorm:"not null" json:"can_delete"`
	IsActive        bool      `gorm:"not null" json:"is_active"`
}

func (r *RoleService) BeforeCreate(*gorm.DB) error {
	newID(&r.ID)
	return nil
}

// Scope maps ServiceCategory to a grant scope. Unknown categories yield a
// zero scope, which never matches anything.
func (r RoleService) Scope() gate.GrantScope {
	switch strings.ToLower(r.ServiceCategory) {
	case CategoryCollection, CategoryTable:
		return gate.CollectionScope(r.ServiceID)
	case CategoryRecord, CategoryDocument:
		return gate.RecordScope(r.ServiceID)
	default:
		return gate.GrantScope{Target: r.ServiceID}
	}
}

func (r RoleService) Gate() gate.RoleGrant {
	return gate.RoleGrant{
		GroupID:   r.GroupID,
		Scope:     r.Scope(),
		CanRead:   r.CanRead,
		CanCreate: r.CanCreate,
		CanUpdate: r.CanUpdate,
		CanDelete: r.CanDelete,
	}
}
