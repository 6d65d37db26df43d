package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arenahall/lobbyd/internal/domain"
)

// SessionRepo handles persistence for SessionRecord rows.
type SessionRepo struct{}

// CreateTx inserts a new session within an existing transaction.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec domain.SessionRecord) error {
	const q = `INSERT INTO sessions (session_id, current_phase, round, last_event_seq, started_at_unix, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.SessionID,
		string(rec.CurrentPhase),
		rec.Round,
		rec.LastEventSeq,
		rec.StartedAtUnix,
		rec.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// NextSeqTx bumps last_event_seq and returns the new value.
func (r *SessionRepo) NextSeqTx(ctx context.Context, tx *sql.Tx, sessionID string, updatedAt int64) (int64, error) {
	const q = `UPDATE sessions SET last_event_seq = last_event_seq + 1, updated_at_unix = ?
WHERE session_id = ?
RETURNING last_event_seq`
	var seq int64
	if err := tx.QueryRowContext(ctx, q, updatedAt, sessionID).Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.NewEngineError(domain.ErrStoreQuery.Code, fmt.Sprintf("session %q not found", sessionID))
		}
		return 0, fmt.Errorf("next event seq: %w", err)
	}
	return seq, nil
}

// UpdatePhaseTx records the current phase and round.
func (r *SessionRepo) UpdatePhaseTx(ctx context.Context, tx *sql.Tx, sessionID string, phase domain.Phase, round int, updatedAt int64) error {
	const q = `UPDATE sessions SET current_phase = ?, round = ?, updated_at_unix = ? WHERE session_id = ?`
	res, err := tx.ExecContext(ctx, q, string(phase), round, updatedAt, sessionID)
	if err != nil {
		return fmt.Errorf("update session phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewEngineError(domain.ErrStoreWrite.Code, fmt.Sprintf("session %q not found", sessionID))
	}
	return nil
}

// GetByID retrieves a session by its ID. Returns nil if it does not exist.
func (r *SessionRepo) GetByID(ctx context.Context, db *sql.DB, sessionID string) (*domain.SessionRecord, error) {
	const q = `SELECT session_id, current_phase, round, last_event_seq, started_at_unix, updated_at_unix
FROM sessions WHERE session_id = ?`

	var rec domain.SessionRecord
	var phase string
	err := db.QueryRowContext(ctx, q, sessionID).Scan(
		&rec.SessionID, &phase, &rec.Round, &rec.LastEventSeq, &rec.StartedAtUnix, &rec.UpdatedAtUnix,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	rec.CurrentPhase = domain.Phase(phase)
	return &rec, nil
}
