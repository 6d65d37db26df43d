package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Audit severities.
const (
	SeverityInfo = "info"
	SeverityWarn = "warn"
)

// SeverityFor returns the severity recorded for an audit category. Refusals
// are warnings; everything else is informational.
func SeverityFor(category string) string {
	if category == "refusal" {
		return SeverityWarn
	}
	return SeverityInfo
}

// AuditRepo stores refusals and operator actions.
type AuditRepo struct{}

// Record inserts rec. An empty ID gets a fresh uuid and an empty severity is
// derived from the category. The stored record is returned.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) (domain.AuditRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Severity == "" {
		rec.Severity = SeverityFor(rec.Category)
	}
	if rec.RequestJSON == "" {
		rec.RequestJSON = "{}"
	}
	if rec.DecisionJSON == "" {
		rec.DecisionJSON = "{}"
	}

	_, err := db.ExecContext(ctx, `INSERT INTO audit_records
	(id, session_id, category, actor, action, request_json, decision_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Category, rec.Actor, rec.Action,
		rec.RequestJSON, rec.DecisionJSON, rec.Severity, rec.CreatedAt)
	if err != nil {
		return rec, fmt.Errorf("record audit %s/%s: %w", rec.Category, rec.Action, err)
	}
	return rec, nil
}

// ListBySession returns the session's audit trail in insertion order. A
// non-empty severity keeps only records of that severity.
func (r *AuditRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID, severity string) ([]domain.AuditRecord, error) {
	q := `SELECT id, session_id, category, actor, action, request_json, decision_json, severity, created_at
FROM audit_records WHERE session_id = ?`
	args := []any{sessionID}
	if severity != "" {
		q += ` AND severity = ?`
		args = append(args, severity)
	}
	q += ` ORDER BY rowid`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var trail []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Category, &a.Actor, &a.Action,
			&a.RequestJSON, &a.DecisionJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		trail = append(trail, a)
	}
	return trail, rows.Err()
}
