package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/arenahall/lobbyd/internal/domain"
)

// EventQuery narrows a session event listing. Zero fields do not filter.
type EventQuery struct {
	SinceSeq int64
	Type     string
	Limit    int
}

// EventRepo stores the ordered session event log.
type EventRepo struct{}

// AppendTx inserts ev inside tx. Reusing a sequence number of the same
// session is an ErrDuplicateEvent.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev domain.SessionEvent) error {
	if ev.PayloadJSON == "" {
		ev.PayloadJSON = "{}"
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO session_events
	(session_id, seq_no, phase, event_type, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.SeqNo, string(ev.Phase), ev.EventType, ev.PayloadJSON, ev.CreatedAt)
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE") {
		return domain.WrapEngineError(domain.ErrDuplicateEvent.Code, fmt.Sprintf("event seq %d", ev.SeqNo), err)
	}
	return fmt.Errorf("append %s event: %w", ev.EventType, err)
}

// ListBySession returns the session's events matching q in sequence order.
func (r *EventRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID string, q EventQuery) ([]domain.SessionEvent, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, session_id, seq_no, phase, event_type, payload_json, created_at
FROM session_events WHERE session_id = ? AND seq_no > ?`)
	args := []any{sessionID, q.SinceSeq}
	if q.Type != "" {
		sb.WriteString(` AND event_type = ?`)
		args = append(args, q.Type)
	}
	sb.WriteString(` ORDER BY seq_no`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.SessionEvent
	for rows.Next() {
		var e domain.SessionEvent
		var phase string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SeqNo, &phase, &e.EventType, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Phase = domain.Phase(phase)
		events = append(events, e)
	}
	return events, rows.Err()
}
