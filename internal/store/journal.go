package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Journal is the append-only record of one session. It is never read back to
// restore state.
type Journal struct {
	db        *sql.DB
	sessionID string
	now       func() time.Time

	mu       sync.Mutex // serializes sequence allocation
	sessions SessionRepo
	events   EventRepo
	snaps    SnapshotRepo
	audits   AuditRepo
}

// OpenJournal creates a fresh session row and returns its journal.
func OpenJournal(ctx context.Context, db *sql.DB) (*Journal, error) {
	j := &Journal{
		db:        db,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	now := j.now().Unix()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "begin", err)
	}
	defer tx.Rollback()

	rec := domain.SessionRecord{
		SessionID:     j.sessionID,
		CurrentPhase:  domain.PhaseLoading,
		StartedAtUnix: now,
		UpdatedAtUnix: now,
	}
	if err := j.sessions.CreateTx(ctx, tx, rec); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "open session", err)
	}
	if err := j.appendTx(ctx, tx, domain.PhaseLoading, domain.EventSessionOpened, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "commit", err)
	}
	return j, nil
}

// SessionID returns the id of the journaled session.
func (j *Journal) SessionID() string {
	return j.sessionID
}

// Append writes one event with the next sequence number.
func (j *Journal) Append(ctx context.Context, phase domain.Phase, eventType string, payload any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "begin", err)
	}
	defer tx.Rollback()

	if err := j.appendTx(ctx, tx, phase, eventType, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "commit", err)
	}
	return nil
}

// RecordPhase writes a phase_changed event, a membership snapshot and the
// session's new phase in one transaction.
func (j *Journal) RecordPhase(ctx context.Context, from, to domain.Phase, round int, snapshot any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	snapJSON, err := marshal(snapshot)
	if err != nil {
		return err
	}
	now := j.now().Unix()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "begin", err)
	}
	defer tx.Rollback()

	payload := map[string]any{"from": from, "to": to, "round": round}
	if err := j.appendTx(ctx, tx, to, domain.EventPhaseChanged, payload); err != nil {
		return err
	}
	if _, err := j.snaps.SaveTx(ctx, tx, domain.PhaseSnapshot{
		SessionID:    j.sessionID,
		Phase:        to,
		Round:        round,
		SnapshotJSON: snapJSON,
		CreatedAt:    now,
	}); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "snapshot", err)
	}
	if err := j.sessions.UpdatePhaseTx(ctx, tx, j.sessionID, to, round, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "commit", err)
	}
	return nil
}

// Audit records a refused or notable request. Refusals are stored as
// warnings.
func (j *Journal) Audit(ctx context.Context, category, actor, action string, request, decision any) error {
	reqJSON, err := marshal(request)
	if err != nil {
		return err
	}
	decJSON, err := marshal(decision)
	if err != nil {
		return err
	}
	rec := domain.AuditRecord{
		SessionID:    j.sessionID,
		Category:     category,
		Actor:        actor,
		Action:       action,
		RequestJSON:  reqJSON,
		DecisionJSON: decJSON,
		CreatedAt:    j.now().Unix(),
	}
	if _, err := j.audits.Record(ctx, j.db, rec); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "audit", err)
	}
	return nil
}

// Events returns the journal events matching q.
func (j *Journal) Events(ctx context.Context, q EventQuery) ([]domain.SessionEvent, error) {
	events, err := j.events.ListBySession(ctx, j.db, j.sessionID, q)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "events", err)
	}
	return events, nil
}

// AuditTrail returns the audit records of the session. A non-empty severity
// keeps only records of that severity.
func (j *Journal) AuditTrail(ctx context.Context, severity string) ([]domain.AuditRecord, error) {
	recs, err := j.audits.ListBySession(ctx, j.db, j.sessionID, severity)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "audit trail", err)
	}
	return recs, nil
}

// Session returns the session row.
func (j *Journal) Session(ctx context.Context) (*domain.SessionRecord, error) {
	return j.sessions.GetByID(ctx, j.db, j.sessionID)
}

// LatestSnapshot returns the most recent snapshot taken on entering phase.
func (j *Journal) LatestSnapshot(ctx context.Context, phase domain.Phase) (*domain.PhaseSnapshot, error) {
	return j.snaps.GetLatest(ctx, j.db, j.sessionID, phase)
}

func (j *Journal) appendTx(ctx context.Context, tx *sql.Tx, phase domain.Phase, eventType string, payload any) error {
	payloadJSON, err := marshal(payload)
	if err != nil {
		return err
	}
	now := j.now().Unix()
	seq, err := j.sessions.NextSeqTx(ctx, tx, j.sessionID, now)
	if err != nil {
		return err
	}
	return j.events.AppendTx(ctx, tx, domain.SessionEvent{
		SessionID:   j.sessionID,
		SeqNo:       seq,
		Phase:       phase,
		EventType:   eventType,
		PayloadJSON: payloadJSON,
		CreatedAt:   now,
	})
}

func marshal(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode journal payload: %w", err)
	}
	return string(b), nil
}
