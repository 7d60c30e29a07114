package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Generation records one report generation request and its outcome
type Generation struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	UUID        string         `json:"uuid" gorm:"size:36;uniqueIndex;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
	Report      string         `json:"report" gorm:"size:255;not null;index"`
	Spec        string         `json:"spec" gorm:"size:2000"`
	Format      string         `json:"format" gorm:"size:16;not null"`
	Status      string         `json:"status" gorm:"size:50;not null;default:'pending'"`
	ErrorKind   string         `json:"error_kind,omitempty" gorm:"size:50"`
	Message     string         `json:"message,omitempty" gorm:"type:text"`
	Parameters  JSON           `json:"parameters,omitempty" gorm:"type:jsonb"`
	DurationMs  int64          `json:"duration_ms"`
	Size        int64          `json:"size"`
	ArchiveKey  string         `json:"archive_key,omitempty" gorm:"size:512"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// JSON is a custom type for handling JSONB data
type JSON map[string]interface{}

// Value implements the driver.Valuer interface for JSON
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSON
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}

	return json.Unmarshal(bytes, j)
}

// ParametersJSON converts report parameters for storage
func ParametersJSON(params map[string]string) JSON {
	if len(params) == 0 {
		return nil
	}
	out := make(JSON, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// TableName specifies the table name for the Generation model
func (Generation) TableName() string {
	return "generations"
}

// BeforeCreate assigns the public identifier
func (g *Generation) BeforeCreate(tx *gorm.DB) error {
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = StatusPending
	}
	return nil
}

// IsCompleted returns true if the document was produced
func (g *Generation) IsCompleted() bool {
	return g.Status == StatusCompleted
}

// IsFailed returns true if the generation failed
func (g *Generation) IsFailed() bool {
	return g.Status == StatusFailed
}

// IsArchived returns true if the document can be downloaded again
func (g *Generation) IsArchived() bool {
	return g.IsCompleted() && g.ArchiveKey != ""
}

// MarkCompleted records a successful generation
func (g *Generation) MarkCompleted(size int64, duration time.Duration) {
	now := time.Now()
	g.Status = StatusCompleted
	g.Size = size
	g.DurationMs = duration.Milliseconds()
	g.CompletedAt = &now
}

// MarkFailed records a failed generation
func (g *Generation) MarkFailed(kind, message string, duration time.Duration) {
	now := time.Now()
	g.Status = StatusFailed
	g.ErrorKind = kind
	g.Message = message
	g.DurationMs = duration.Milliseconds()
	g.CompletedAt = &now
}
