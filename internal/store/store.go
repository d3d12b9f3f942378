package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/diewo77/go-crudgate/internal/models"
)

// ErrUnknownField is returned when a filter or change set names a column the
// model does not have, or one that may not be written.
var ErrUnknownField = errors.New("unknown field")

// Record is a guarded row: it has an id and an owner.
// Embedding models.Base satisfies it.
type Record interface {
	RecordID() string
	OwnerID() string
}

// Query selects records by column equality. A nil Filter matches everything.
type Query struct {
	Filter map[string]any
	Skip   int
	Limit  int
}

// Store runs the record operations for one model on gorm.
// Results are ordered by creation time.
type Store[T Record] struct {
	db     *gorm.DB
	schema *schema.Schema
}

// New creates a store for T.
func New[T Record](db *gorm.DB) (*Store[T], error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("store: parse model: %w", err)
	}
	return &Store[T]{db: db, schema: stmt.Schema}, nil
}

// Table is the table name of T.
func (s *Store[T]) Table() string { return s.schema.Table }

// FindByIDs returns the records with the given ids; missing ids are skipped.
func (s *Store[T]) FindByIDs(ctx context.Context, ids []string) ([]T, error) {
	var out []T
	if len(ids) == 0 {
		return out, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: find %s by ids: %w", s.Table(), err)
	}
	return out, nil
}

// Find returns the records matching q.
func (s *Store[T]) Find(ctx context.Context, q Query) ([]T, error) {
	filter, err := s.columns(q.Filter, false)
	if err != nil {
		return nil, err
	}
	tx := s.db.WithContext(ctx).Model(new(T))
	if len(filter) > 0 {
		tx = tx.Where(filter)
	}
	if q.Skip > 0 {
		tx = tx.Offset(q.Skip)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []T
	if err := tx.Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: find %s: %w", s.Table(), err)
	}
	return out, nil
}

// Create inserts records in one transaction, owned by actor.
// The returned slice carries the assigned ids; records is not modified.
func (s *Store[T]) Create(ctx context.Context, actor string, records []T) ([]T, error) {
	out := slices.Clone(records)
	if len(out) == 0 {
		return out, nil
	}
	err := models.WithActor(s.db.WithContext(ctx), actor).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: create %s: %w", s.Table(), err)
	}
	return out, nil
}

// Update overwrites every field of the given records in one transaction.
// The id, owner and creation time of a record never change.
func (s *Store[T]) Update(ctx context.Context, actor string, records []T) ([]T, error) {
	if len(records) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(records))
	err := models.WithActor(s.db.WithContext(ctx), actor).Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			rec := r
			res := tx.Model(&rec).Select("*").Omit("id", "created_by", "created_at").Updates(&rec)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("record %s: %w", rec.RecordID(), gorm.ErrRecordNotFound)
			}
			ids = append(ids, rec.RecordID())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: update %s: %w", s.Table(), err)
	}
	return s.FindByIDs(ctx, ids)
}

// UpdateWhere applies changes to the records with the given ids.
func (s *Store[T]) UpdateWhere(ctx context.Context, actor string, ids []string, changes map[string]any) (int64, error) {
	cols, err := s.columns(changes, true)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 || len(cols) == 0 {
		return 0, nil
	}
	res := models.WithActor(s.db.WithContext(ctx), actor).Model(new(T)).Where("id IN ?", ids).Updates(cols)
	if res.Error != nil {
		return 0, fmt.Errorf("store: update %s: %w", s.Table(), res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByIDs removes the records with the given ids.
func (s *Store[T]) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("store: delete %s: %w", s.Table(), res.Error)
	}
	return res.RowsAffected, nil
}

// CountOwned implements gate.OwnershipCounter.
func (s *Store[T]) CountOwned(ctx context.Context, recordIDs []string, ownerID string) (int64, error) {
	return countOwned(s.db.WithContext(ctx).Model(new(T)), recordIDs, ownerID)
}

// columns maps field or column names in m to column names. Writable
// restricts the result to columns an update may touch.
func (s *Store[T]) columns(m map[string]any, writable bool) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		f := s.schema.LookUpField(k)
		if f == nil || f.DBName == "" {
			return nil, fmt.Errorf("store: %s.%s: %w", s.Table(), k, ErrUnknownField)
		}
		if writable && (f.PrimaryKey || f.DBName == "created_by" || f.DBName == "created_at") {
			return nil, fmt.Errorf("store: %s.%s is read-only: %w", s.Table(), k, ErrUnknownField)
		}
		out[f.DBName] = m[k]
	}
	return out, nil
}

// TableOwners counts ownership on a table by name, for callers that have
// no model type. The table must have id and created_by columns.
type TableOwners struct {
	db    *gorm.DB
	table string
}

// NewTableOwners creates an ownership counter for table.
func NewTableOwners(db *gorm.DB, table string) *TableOwners {
	return &TableOwners{db: db, table: table}
}

func (o *TableOwners) CountOwned(ctx context.Context, recordIDs []string, ownerID string) (int64, error) {
	return countOwned(o.db.WithContext(ctx).Table(o.table), recordIDs, ownerID)
}

func countOwned(tx *gorm.DB, recordIDs []string, ownerID string) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	var n int64
	if err := tx.Where("id IN ? AND created_by = ?", recordIDs, ownerID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count owned: %w", err)
	}
	return n, nil
}
