// Package store implements the gate directories and record stores on gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/gate"
	"github.com/diewo77/go-crudgate/internal/models"
)

// Directory serves sessions, users, profiles, services and role grants
// from the database. A missing row is reported as (nil, nil).
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a database-backed directory.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

var (
	_ gate.SessionGateway    = (*Directory)(nil)
	_ gate.UserDirectory     = (*Directory)(nil)
	_ gate.ResourceDirectory = (*Directory)(nil)
	_ gate.GrantDirectory    = (*Directory)(nil)
)

// Directories returns the directory in every gate role.
func (d *Directory) Directories() gate.Directories {
	return gate.Directories{Sessions: d, Users: d, Resources: d, Grants: d}
}

func (d *Directory) FindSession(ctx context.Context, userID, token, loginName string) (*gate.Session, error) {
	var s models.Session
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND token = ? AND login_name = ?", userID, token, loginName).
		First(&s).Error
	if err != nil {
		return nil, notFoundIsNil("session", err)
	}
	out := s.Gate()
	return &out, nil
}

func (d *Directory) FindActiveUser(ctx context.Context, userID string) (*gate.User, error) {
	var u models.User
	err := d.db.WithContext(ctx).Where("id = ? AND is_active = ?", userID, true).First(&u).Error
	if err != nil {
		return nil, notFoundIsNil("user", err)
	}
	out := u.Gate()
	return &out, nil
}

func (d *Directory) FindActiveProfile(ctx context.Context, userID string) (*gate.Profile, error) {
	var p models.Profile
	err := d.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).First(&p).Error
	if err != nil {
		return nil, notFoundIsNil("profile", err)
	}
	out := p.Gate()
	return &out, nil
}

func (d *Directory) FindResourceByName(ctx context.Context, name string) (*gate.Resource, error) {
	var s models.Service
	err := d.db.WithContext(ctx).Where("name = ? AND is_active = ?", name, true).First(&s).Error
	if err != nil {
		return nil, notFoundIsNil("service", err)
	}
	out := s.Gate()
	return &out, nil
}

func (d *Directory) FindActiveGrants(ctx context.Context, groupID string, keys []string) ([]gate.RoleGrant, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var rows []models.RoleService
	err := d.db.WithContext(ctx).
		Where("group_id = ? AND service_id IN ? AND is_active = ?", groupID, keys, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: find grants: %w", err)
	}
	grants := make([]gate.RoleGrant, 0, len(rows))
	for _, r := range rows {
		grants = append(grants, r.Gate())
	}
	return grants, nil
}

// ActiveServices lists the names of every active service.
func (d *Directory) ActiveServices(ctx context.Context) ([]string, error) {
	var names []string
	err := d.db.WithContext(ctx).Model(&models.Service{}).
		Where("is_active = ?", true).Order("name").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	return names, nil
}

func notFoundIsNil(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return fmt.Errorf("store: find %s: %w", what, err)
}
