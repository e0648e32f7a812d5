package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LogLevelInfo  = "info"
	LogLevelError = "error"
)

// LogEntry is a batch or job scoped log line kept alongside the history.
type LogEntry struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID     uuid.UUID         `gorm:"type:uuid;index;not null" json:"batch_id"`
	JobResultID *uuid.UUID        `gorm:"type:uuid;index" json:"job_result_id,omitempty"`
	JobName     string            `gorm:"type:text;not null;default:''" json:"job_name,omitempty"`
	Level       string            `gorm:"type:text;not null" json:"level"`
	Message     string            `gorm:"not null" json:"message"`
	Fields      datatypes.JSONMap `gorm:"type:json" json:"fields,omitempty"`
	Timestamp   time.Time         `gorm:"not null;index" json:"timestamp"`
}
