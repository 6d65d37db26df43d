package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Checksum returns the hex sha256 digest of a snapshot body.
func Checksum(snapshotJSON string) string {
	sum := sha256.Sum256([]byte(snapshotJSON))
	return hex.EncodeToString(sum[:])
}

// SnapshotRepo stores the membership snapshot taken on each phase change.
type SnapshotRepo struct{}

// SaveTx stamps snap with the checksum of its body and inserts it inside tx.
// The stored snapshot is returned.
func (r *SnapshotRepo) SaveTx(ctx context.Context, tx *sql.Tx, snap domain.PhaseSnapshot) (domain.PhaseSnapshot, error) {
	if snap.SnapshotJSON == "" {
		snap.SnapshotJSON = "{}"
	}
	snap.Checksum = Checksum(snap.SnapshotJSON)

	res, err := tx.ExecContext(ctx, `INSERT INTO phase_snapshots
	(session_id, phase, round, snapshot_json, checksum, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		snap.SessionID, string(snap.Phase), snap.Round, snap.SnapshotJSON, snap.Checksum, snap.CreatedAt)
	if err != nil {
		return snap, fmt.Errorf("save %s snapshot: %w", snap.Phase, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return snap, nil
}

// GetLatest returns the newest snapshot taken on entering phase, or nil when
// there is none. A body that no longer matches its checksum is an
// ErrStoreQuery.
func (r *SnapshotRepo) GetLatest(ctx context.Context, db *sql.DB, sessionID string, phase domain.Phase) (*domain.PhaseSnapshot, error) {
	row := db.QueryRowContext(ctx, `SELECT id, session_id, phase, round, snapshot_json, checksum, created_at
FROM phase_snapshots
WHERE session_id = ? AND phase = ?
ORDER BY id DESC LIMIT 1`, sessionID, string(phase))

	var s domain.PhaseSnapshot
	var p string
	if err := row.Scan(&s.ID, &s.SessionID, &p, &s.Round, &s.SnapshotJSON, &s.Checksum, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest %s snapshot: %w", phase, err)
	}
	s.Phase = domain.Phase(p)
	if Checksum(s.SnapshotJSON) != s.Checksum {
		return nil, domain.NewEngineError(domain.ErrStoreQuery.Code,
			fmt.Sprintf("snapshot %d of %s fails its checksum", s.ID, phase))
	}
	return &s, nil
}
