package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogType classifies an audit entry.
type LogType string

const (
	LogCreate LogType = "create"
	LogUpdate LogType = "update"
	LogRead   LogType = "read"
	LogDelete LogType = "remove"
	LogLogin  LogType = "login"
)

// AuditLog records who did what to which table.
// Records holds the affected rows (or the read parameters); NewRecords holds
// the updated rows for LogUpdate entries.
type AuditLog struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Table      string         `gorm:"column:table_name;size:100;index;not null" json:"table"`
	Records    datatypes.JSON `json:"records"`
	NewRecords datatypes.JSON `json:"new_records,omitempty"`
	LogType    LogType        `gorm:"size:20;index;not null" json:"log_type"`
	LogBy      string         `gorm:"size:36;index" json:"log_by"`
	LogAt      time.Time      `gorm:"not null" json:"log_at"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	newID(&a.ID)
	if a.LogAt.IsZero() {
		a.LogAt = time.Now()
	}
	return nil
}
