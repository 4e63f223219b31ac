package audit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent represents a single audit log entry: one row per admin
// mutation and per session classification outcome.
type AuditEvent struct {
	ID          uuid.UUID       `json:"id"`       // DB Primary Key
	EventID     uuid.UUID       `json:"event_id"` // Idempotency Key
	ActorUserID int64           `json:"actor_user_id,omitempty"`
	Action      string          `json:"action"`
	TargetType  string          `json:"target_type,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	Result      string          `json:"result"` // success/failure
	Detail      string          `json:"detail,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FailoverEvent wrapper for JSONL spooling
type FailoverEvent struct {
	EventID   string     `json:"event_id"`
	Payload   AuditEvent `json:"payload"`
	Timestamp time.Time  `json:"timestamp"`
}

// AuditFilter for querying
type AuditFilter struct {
	ActorUserID *int64
	DateFrom    *time.Time
	DateTo      *time.Time
	Result      string
	Limit       int
	Cursor      string // ID-based cursor
}

// Service is the audit trail's persistence layer.
type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}
