package lobby

import (
	"github.com/arenahall/lobbyd/internal/domain"
	"github.com/arenahall/lobbyd/internal/session"
)

// outbox collects side effects produced under the machine lock.
type outbox struct {
	notices []notice
	records []record
	phases  []phaseRecord
	audits  []auditEntry
	effects []domain.Effect
}

type notice struct {
	to   domain.ParticipantID // empty for a broadcast
	text string
}

type record struct {
	phase     domain.Phase
	eventType string
	payload   any
}

type phaseRecord struct {
	from, to domain.Phase
	round    int
	snap     session.Snapshot
}

type auditEntry struct {
	category string
	actor    domain.ParticipantID
	action   string
	request  any
	decision any
}

func (o *outbox) broadcast(text string) {
	o.notices = append(o.notices, notice{text: text})
}

func (o *outbox) tell(to domain.ParticipantID, text string) {
	o.notices = append(o.notices, notice{to: to, text: text})
}

func (o *outbox) record(phase domain.Phase, eventType string, payload any) {
	o.records = append(o.records, record{phase: phase, eventType: eventType, payload: payload})
}

func (o *outbox) audit(category string, actor domain.ParticipantID, action string, request, decision any) {
	o.audits = append(o.audits, auditEntry{category: category, actor: actor, action: action, request: request, decision: decision})
}

func (o *outbox) empty() bool {
	return len(o.notices)+len(o.records)+len(o.phases)+len(o.audits)+len(o.effects) == 0
}
