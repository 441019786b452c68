package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/solkant/solkant/internal/platform/db"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	BusinessID int64
	ActorID    int64
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	At         time.Time
}

// AuditEntry is a row read back from audit_logs.
type AuditEntry struct {
	ID         int64
	ActorID    int64
	ActorEmail string
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	OccurredAt time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	conn db.DBTX
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(conn db.DBTX) *AuditLogger {
	return &AuditLogger{conn: conn}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.conn == nil {
		return errors.New("audit logger not initialised")
	}
	if log.BusinessID <= 0 {
		return errors.New("audit log requires business_id")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.conn.Exec(ctx, `INSERT INTO audit_logs (business_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, COALESCE($7::timestamptz, NOW()))`,
		log.BusinessID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// ListForEntity returns the trail of one entity, newest first.
func (l *AuditLogger) ListForEntity(ctx context.Context, businessID int64, entity, entityID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.conn.Query(ctx, `SELECT a.id, COALESCE(a.actor_id, 0), COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta, a.occurred_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE a.business_id = $1 AND a.entity = $2 AND a.entity_id = $3
ORDER BY a.occurred_at DESC, a.id DESC
LIMIT $4`, businessID, entity, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry AuditEntry
			meta  []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorEmail, &entry.Action, &entry.Entity, &entry.EntityID, &meta, &entry.OccurredAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &entry.Meta)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
