// Package audit writes the audit trail of record operations to the database.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/internal/models"
)

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Entry is one audit event. Records and NewRecords are stored as JSON; a
// nil value is stored as JSON null.
type Entry struct {
	Table      string
	Type       models.LogType
	By         string
	Records    any
	NewRecords any
}

// Log is a Recorder backed by the audit_logs table.
type Log struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates an audit log on db.
func New(db *gorm.DB) *Log {
	return &Log{db: db, now: time.Now}
}

func (l *Log) Record(ctx context.Context, e Entry) error {
	records, err := encode(e.Records)
	if err != nil {
		return err
	}
	newRecords, err := encode(e.NewRecords)
	if err != nil {
		return err
	}
	row := models.AuditLog{
		Table:      e.Table,
		Records:    records,
		NewRecords: newRecords,
		LogType:    e.Type,
		LogBy:      e.By,
		LogAt:      l.now(),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("audit: %s %s: %w", e.Type, e.Table, err)
	}
	return nil
}

// CreateLog records the created rows.
func CreateLog(ctx context.Context, r Recorder, table, by string, records any) error {
	return r.Record(ctx, Entry{Table: table, Type: models.LogCreate, By: by, Records: records})
}

// UpdateLog records the rows before and after an update.
func UpdateLog(ctx context.Context, r Recorder, table, by string, old, updated any) error {
	return r.Record(ctx, Entry{Table: table, Type: models.LogUpdate, By: by, Records: old, NewRecords: updated})
}

// ReadLog records the parameters of a read, not its result.
func ReadLog(ctx context.Context, r Recorder, table, by string, params any) error {
	return r.Record(ctx, Entry{Table: table, Type: models.LogRead, By: by, Records: params})
}

func DeleteLog(ctx context.Context, r Recorder, table, by string, records any) error {
	return r.Record(ctx, Entry{Table: table, Type: models.LogDelete, By: by, Records: records})
}

// LoginLog records a session opened for loginName on the users table.
func LoginLog(ctx context.Context, r Recorder, by, loginName string) error {
	return r.Record(ctx, Entry{Table: "users", Type: models.LogLogin, By: by, Records: map[string]string{"loginName": loginName}})
}

// List returns the latest entries of table, newest first.
func (l *Log) List(ctx context.Context, table string, limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	tx := l.db.WithContext(ctx).Where("table_name = ?", table).Order("log_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("audit: list %s: %w", table, err)
	}
	return out, nil
}

func encode(v any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit: encode: %w", err)
	}
	return datatypes.JSON(b), nil
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
