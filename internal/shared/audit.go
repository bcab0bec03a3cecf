package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
)

// AuditLog is one entry of the audit trail.
type AuditLog struct {
	ActorID  int64          `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

var errIncompleteAudit = errors.New("audit log requires action/entity/entity_id")

func (log AuditLog) validate() error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errIncompleteAudit
	}
	return nil
}

// AuditLogger appends entries to the audit_logs table.
type AuditLogger struct {
	q db.Querier
}

// NewAuditLogger writes through q, usually the pool.
func NewAuditLogger(q db.Querier) *AuditLogger {
	return &AuditLogger{q: q}
}

// Record persists log. A zero At lets the database stamp the row.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.q == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	occurred := sq.Expr("NOW()")
	if !log.At.IsZero() {
		occurred = sq.Expr("?", log.At)
	}
	query, args, err := sq.Insert("audit_logs").
		Columns("actor_id", "action", "entity", "entity_id", "meta", "occurred_at").
		Values(log.ActorID, log.Action, log.Entity, log.EntityID, meta, occurred).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("audit: build insert: %w", err)
	}
	if _, err := l.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("audit: insert %s %s/%s: %w", log.Action, log.Entity, log.EntityID, err)
	}
	return nil
}

// MemoryAudit keeps entries in process. The in-memory store uses it.
type MemoryAudit struct {
	mu      sync.Mutex
	entries []AuditLog
	now     func() time.Time
}

// NewMemoryAudit returns an empty MemoryAudit.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{now: func() time.Time { return time.Now().UTC() }}
}

// Record validates and stores log.
func (m *MemoryAudit) Record(_ context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.At.IsZero() {
		log.At = m.now()
	}
	m.entries = append(m.entries, log)
	return nil
}

// Entries returns a copy of the recorded entries, oldest first.
func (m *MemoryAudit) Entries() []AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditLog(nil), m.entries...)
}

// NopAudit validates and discards entries.
type NopAudit struct{}

// Record validates log and drops it.
func (NopAudit) Record(_ context.Context, log AuditLog) error {
	return log.validate()
}
