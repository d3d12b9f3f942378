package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/internal/models"
)

type seedGrant struct {
	Group   string
	Service string
	Read    bool
	Create  bool
	Update  bool
	Delete  bool
}

var (
	defaultGroups = []models.Group{
		{Name: "admin", Description: "Full access to every service", IsSystem: true},
		{Name: "editor", Description: "Read and write invoices", IsSystem: true},
		{Name: "viewer", Description: "Read-only access", IsSystem: true},
	}
	defaultServices = []models.Service{
		{Name: "invoices", Category: models.CategoryTable, Description: "Sample guarded table", IsActive: true},
		{Name: "audit_logs", Category: models.CategoryTable, Description: "Audit trail", IsActive: true},
	}
	defaultGrants = []seedGrant{
		{"admin", "invoices", true, true, true, true},
		{"admin", "audit_logs", true, false, false, false},
		{"editor", "invoices", true, true, true, false},
		{"viewer", "invoices", true, false, false, false},
	}
)

// Seed creates the default groups, services and collection grants.
// It is idempotent.
func Seed(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups := make(map[string]string, len(defaultGroups))
		for _, g := range defaultGroups {
			var row models.Group
			if err := tx.Where(models.Group{Name: g.Name}).Attrs(g).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed group %s: %w", g.Name, err)
			}
			groups[g.Name] = row.ID
		}

		services := make(map[string]string, len(defaultServices))
		for _, s := range defaultServices {
			var row models.Service
			if err := tx.Where(models.Service{Name: s.Name}).Attrs(s).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed service %s: %w", s.Name, err)
			}
			services[s.Name] = row.ID
		}

		for _, g := range defaultGrants {
			key := models.RoleService{GroupID: groups[g.Group], ServiceID: services[g.Service], ServiceCategory: models.CategoryTable}
			attrs := models.RoleService{CanRead: g.Read, CanCreate: g.Create, CanUpdate: g.Update, CanDelete: g.Delete, IsActive: true}
			var row models.RoleService
			if err := tx.Where(key).Attrs(attrs).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed grant %s/%s: %w", g.Group, g.Service, err)
			}
		}
		return nil
	})
}

// Account describes a user created by SeedAccount.
type Account struct {
	Username string
	Email    string
	Group    string
	Admin    bool
	TTL      time.Duration
}

// SeedAccount creates (or reuses) an active user in the named group and
// opens a new session for it. Seed must have run first.
func SeedAccount(ctx context.Context, db *gorm.DB, a Account) (*models.Session, error) {
	var sess models.Session
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("name = ?", a.Group).First(&group).Error; err != nil {
			return fmt.Errorf("seed account: group %q: %w", a.Group, err)
		}

		var user models.User
		attrs := models.User{Email: a.Email, IsActive: true, IsAdmin: a.Admin, GroupIDs: []string{group.ID}}
		if err := tx.Where(models.User{Username: a.Username}).Attrs(attrs).FirstOrCreate(&user).Error; err != nil {
			return fmt.Errorf("seed account: user: %w", err)
		}

		var profile models.Profile
		if err := tx.Where(models.Profile{UserID: user.ID}).
			Attrs(models.Profile{GroupID: group.ID, IsActive: true}).
			FirstOrCreate(&profile).Error; err != nil {
			return fmt.Errorf("seed account: profile: %w", err)
		}

		sess = models.Session{
			UserID:    user.ID,
			Token:     uuid.NewString(),
			LoginName: a.Username,
			Expire:    time.Now().Add(a.TTL),
		}
		if err := tx.Create(&sess).Error; err != nil {
			return fmt.Errorf("seed account: session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
