// Package lobby turns join, leave, login and ability events into phase
// changes, countdowns and notices for the single running session.
package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arenahall/lobbyd/internal/ability"
	"github.com/arenahall/lobbyd/internal/countdown"
	"github.com/arenahall/lobbyd/internal/domain"
	"github.com/arenahall/lobbyd/internal/sched"
	"github.com/arenahall/lobbyd/internal/session"
)

const tracerName = "github.com/arenahall/lobbyd/internal/lobby"

// Notifier delivers texts to connected participants.
type Notifier interface {
	Broadcast(ctx context.Context, text string)
	Tell(ctx context.Context, id domain.ParticipantID, text string)
}

// Journal records what happened to the session.
type Journal interface {
	Append(ctx context.Context, phase domain.Phase, eventType string, payload any) error
	RecordPhase(ctx context.Context, from, to domain.Phase, round int, snapshot any) error
	Audit(ctx context.Context, category, actor, action string, request, decision any) error
}

// EffectSink applies ability effects to the world.
type EffectSink interface {
	Apply(ctx context.Context, eff domain.Effect) error
}

// Config holds the resolved coordinator settings.
type Config struct {
	MinimumParticipants int
	Countdown           countdown.ChainSpec
	StartingDelay       time.Duration
	RearmOnJoin         bool
	Messages            Messages
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		MinimumParticipants: 1,
		Countdown:           countdown.DefaultChainSpec(),
		StartingDelay:       3 * time.Second,
		Messages:            DefaultMessages(),
	}
}

// Role is how a joiner was admitted.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleObserver    Role = "observer"
)

// JoinOutcome reports the effect of OnJoin.
type JoinOutcome struct {
	Phase        domain.Phase `json:"phase"`
	Role         Role         `json:"role"`
	Added        bool         `json:"added"`
	Participants int          `json:"participants"`
	ChainStarted bool         `json:"chain_started"`
}

// LeaveOutcome reports the effect of OnLeave.
type LeaveOutcome struct {
	Phase        domain.Phase `json:"phase"`
	Removed      bool         `json:"removed"`
	Participants int          `json:"participants"`
	ChainAborted bool         `json:"chain_aborted"`
}

// Status is a consistent view of the coordinator.
type Status struct {
	session.Snapshot
	ChainActive bool  `json:"chain_active"`
	Round       int   `json:"round"`
	Tick        int64 `json:"tick"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithJournal records events, phase snapshots and refusals.
func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

// WithEffectSink forwards successful ability effects.
func WithEffectSink(s EffectSink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// Coordinator is the single entry point for session events. Every decision
// that reads and changes (phase, membership, chain) runs inside one
// Machine.Atomically call; notices and journal writes go out after the lock
// is released. Work running on the scheduler timeline hands its output to a
// delivery goroutine so a slow listener or journal never stalls the ticks.
type Coordinator struct {
	cfg       Config
	msgs      Messages
	machine   *session.Machine
	sched     *sched.Scheduler
	abilities *ability.Registry
	notifier  Notifier
	journal   Journal
	sink      EffectSink
	log       *slog.Logger
	tracer    trace.Tracer
	post      *dispatcher

	// guarded by the machine lock
	chain  *countdown.Chain
	follow *sched.Handle
	round  int
}

// New wires a coordinator. cfg.Countdown is validated here; arming a chain
// later never fails on it.
func New(cfg Config, m *session.Machine, s *sched.Scheduler, reg *ability.Registry, n Notifier, opts ...Option) (*Coordinator, error) {
	if cfg.MinimumParticipants < 0 {
		return nil, domain.NewEngineError(domain.ErrConfigInvalid.Code, "minimum participants must be >= 0")
	}
	if err := cfg.Countdown.Validate(); err != nil {
		return nil, err
	}
	if n == nil {
		n = nopNotifier{}
	}
	if reg == nil {
		reg = ability.Defaults(nil)
	}
	c := &Coordinator{
		cfg:       cfg,
		msgs:      cfg.Messages.withDefaults(),
		machine:   m,
		sched:     s,
		abilities: reg,
		notifier:  n,
		log:       slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.post = newDispatcher(c.flush)
	return c, nil
}

// Close delivers notices still queued by timeline work and stops the
// delivery goroutine. Later timeline output is delivered inline.
func (c *Coordinator) Close() {
	c.post.close()
}

// OnLoginAttempt refuses logins while the session is loading.
func (c *Coordinator) OnLoginAttempt(ctx context.Context, id domain.ParticipantID) domain.LoginDecision {
	ctx, span := c.startSpan(ctx, "lobby.OnLoginAttempt", id)
	defer span.End()

	phase := c.machine.Phase()
	if phase != domain.PhaseLoading {
		return domain.LoginDecision{Allow: true}
	}

	dec := domain.LoginDecision{Allow: false, Reason: c.msgs.LoginLoading}
	span.SetAttributes(attribute.Bool("login.allowed", false))
	c.log.Info("login refused", "participant", id, "phase", phase)
	var out outbox
	out.audit("refusal", id, "login", nil, dec)
	c.flush(ctx, &out)
	return dec
}

// OnJoin admits id according to the current phase.
func (c *Coordinator) OnJoin(ctx context.Context, id domain.ParticipantID) (JoinOutcome, error) {
	ctx, span := c.startSpan(ctx, "lobby.OnJoin", id)
	defer span.End()
	if id == "" {
		return JoinOutcome{}, domain.ErrInvalidParticipant
	}

	var out outbox
	var res JoinOutcome
	err := c.machine.Atomically(func(tx *session.Tx) error {
		phase := tx.Phase()
		switch phase {
		case domain.PhaseStarting, domain.PhasePlaying:
			if tx.IsParticipant(id) {
				res.Role = RoleParticipant
				break
			}
			res.Role = RoleObserver
			res.Added = tx.AddObserver(id)
			out.tell(id, c.msgs.InProgress)
			if res.Added {
				out.record(phase, domain.EventObserving, idPayload(id))
			}
		default:
			res.Role = RoleParticipant
			res.Added = tx.AddParticipant(id)
			if res.Added {
				if phase == domain.PhaseRecruiting || phase == domain.PhasePreparing {
					out.broadcast(c.msgs.joined(id))
				}
				out.record(phase, domain.EventJoined, idPayload(id))
			}
			started, err := c.maybeStart(tx, &out)
			if err != nil {
				return err
			}
			res.ChainStarted = started
		}
		res.Phase = tx.Phase()
		res.Participants = tx.ParticipantCount()
		return nil
	})
	c.flush(ctx, &out)
	if err != nil {
		c.fail(span, err)
		return res, err
	}
	span.SetAttributes(attribute.String("join.role", string(res.Role)), attribute.Bool("chain.started", res.ChainStarted))
	return res, nil
}

// OnLeave removes id and aborts a pending start that no longer has enough
// participants.
func (c *Coordinator) OnLeave(ctx context.Context, id domain.ParticipantID) (LeaveOutcome, error) {
	ctx, span := c.startSpan(ctx, "lobby.OnLeave", id)
	defer span.End()
	if id == "" {
		return LeaveOutcome{}, domain.ErrInvalidParticipant
	}

	var out outbox
	var res LeaveOutcome
	_ = c.machine.Atomically(func(tx *session.Tx) error {
		phase := tx.Phase()
		wasParticipant := tx.RemoveParticipant(id)
		wasObserver := tx.RemoveObserver(id)
		res.Removed = wasParticipant || wasObserver
		if res.Removed {
			out.broadcast(c.msgs.quit(id))
			out.record(phase, domain.EventLeft, idPayload(id))
		}

		count := tx.ParticipantCount()
		if c.chain != nil && count <= c.cfg.MinimumParticipants &&
			(phase == domain.PhasePreparing || phase == domain.PhaseRecruiting) {
			// Abort fails once the terminal task has fired; onChainComplete
			// then re-checks the count before starting.
			if c.chain.Abort() {
				c.chain = nil
				res.ChainAborted = true
				out.record(phase, domain.EventChainAborted, map[string]int{"participants": count})
				c.log.Info("countdown aborted", "participants", count, "minimum", c.cfg.MinimumParticipants)
			}
		}
		res.Phase = tx.Phase()
		res.Participants = count
		return nil
	})
	c.flush(ctx, &out)
	span.SetAttributes(attribute.Bool("chain.aborted", res.ChainAborted))
	return res, nil
}

// OnAbilityInvoke lets an interactive participant use capability while the
// session is playing.
func (c *Coordinator) OnAbilityInvoke(ctx context.Context, actor domain.ParticipantID, capability domain.CapabilityID, facing domain.Vector) (domain.Effect, error) {
	ctx, span := c.startSpan(ctx, "lobby.OnAbilityInvoke", actor)
	defer span.End()
	span.SetAttributes(attribute.String("capability", string(capability)))

	var out outbox
	var eff domain.Effect
	err := c.machine.Atomically(func(tx *session.Tx) error {
		phase := tx.Phase()
		if phase != domain.PhasePlaying || !tx.IsParticipant(actor) {
			return domain.NewEngineError(
				domain.ErrAbilityNotAllowed.Code,
				fmt.Sprintf("%s cannot use %s during %s", actor, capability, phase),
			)
		}
		e, err := c.abilities.Invoke(ability.Context{Actor: actor, Facing: facing, Now: time.Now()}, capability)
		if err != nil {
			return err
		}
		eff = e
		out.effects = append(out.effects, e)
		out.record(phase, domain.EventAbilityUsed, e)
		return nil
	})
	if err != nil {
		out.audit("refusal", actor, "ability:"+string(capability), nil, map[string]string{"error": err.Error()})
		c.log.Debug("ability refused", "participant", actor, "capability", capability, "err", err)
		c.fail(span, err)
	}
	c.flush(ctx, &out)
	return eff, err
}

// Ready opens recruiting once the session has loaded.
func (c *Coordinator) Ready(ctx context.Context) error {
	return c.operate(ctx, "ready", func(tx *session.Tx, out *outbox) error {
		if err := c.transition(tx, out, domain.PhaseRecruiting); err != nil {
			return err
		}
		_, err := c.maybeStart(tx, out)
		return err
	})
}

// End finishes the running game.
func (c *Coordinator) End(ctx context.Context) error {
	return c.operate(ctx, "end", func(tx *session.Tx, out *outbox) error {
		if err := c.transition(tx, out, domain.PhaseEnding); err != nil {
			return err
		}
		c.follow.Cancel()
		c.follow = nil
		return nil
	})
}

// Reset starts the next round: observers become participants, cooldowns are
// forgotten and a countdown starts if enough participants are present.
func (c *Coordinator) Reset(ctx context.Context) error {
	return c.operate(ctx, "reset", func(tx *session.Tx, out *outbox) error {
		c.round++
		if err := c.transition(tx, out, domain.PhaseRecruiting); err != nil {
			c.round--
			return err
		}
		c.chain.Abort()
		c.chain = nil
		c.follow.Cancel()
		c.follow = nil
		for _, id := range tx.Observers() {
			tx.AddParticipant(id)
		}
		c.abilities.Ledger().Reset()
		_, err := c.maybeStart(tx, out)
		return err
	})
}

// Apply runs a named operator action.
func (c *Coordinator) Apply(ctx context.Context, action string) error {
	switch action {
	case "ready":
		return c.Ready(ctx)
	case "end":
		return c.End(ctx)
	case "reset":
		return c.Reset(ctx)
	default:
		return domain.NewEngineError(domain.ErrUnknownAction.Code, fmt.Sprintf("unknown action %q", action))
	}
}

// Status returns a consistent view of phase, membership and chain.
func (c *Coordinator) Status() Status {
	var st Status
	_ = c.machine.Atomically(func(tx *session.Tx) error {
		st = Status{
			Snapshot:    tx.Snapshot(),
			ChainActive: c.chain != nil,
			Round:       c.round,
			Tick:        c.sched.Now(),
		}
		return nil
	})
	return st
}

// Abilities returns the capability registry.
func (c *Coordinator) Abilities() *ability.Registry {
	return c.abilities
}

func (c *Coordinator) operate(ctx context.Context, action string, fn func(*session.Tx, *outbox) error) error {
	ctx, span := c.tracer.Start(ctx, "lobby."+action)
	defer span.End()

	var out outbox
	err := c.machine.Atomically(func(tx *session.Tx) error {
		return fn(tx, &out)
	})
	decision := map[string]string{"result": "ok"}
	if err != nil {
		decision["result"] = err.Error()
		c.fail(span, err)
	}
	out.audit("operator", "", action, nil, decision)
	c.flush(ctx, &out)
	return err
}

// maybeStart arms the start chain when no chain is alive and the count is
// above the minimum. From recruiting it also moves the session to
// preparing; from preparing it only re-arms when configured to.
func (c *Coordinator) maybeStart(tx *session.Tx, out *outbox) (bool, error) {
	if c.chain != nil || tx.ParticipantCount() <= c.cfg.MinimumParticipants {
		return false, nil
	}
	switch tx.Phase() {
	case domain.PhaseRecruiting:
		if err := c.transition(tx, out, domain.PhasePreparing); err != nil {
			return false, err
		}
	case domain.PhasePreparing:
		if !c.cfg.RearmOnJoin {
			return false, nil
		}
	default:
		return false, nil
	}

	ch, err := countdown.Begin(c.sched, c.cfg.Countdown, c.msgs.Countdown, c.announce, c.onChainComplete)
	if err != nil {
		return false, err
	}
	c.chain = ch
	count := tx.ParticipantCount()
	out.record(tx.Phase(), domain.EventChainStarted, map[string]int{"participants": count, "total_sec": c.cfg.Countdown.Total})
	c.log.Info("countdown started", "participants", count, "total_sec", c.cfg.Countdown.Total)
	return true, nil
}

func (c *Coordinator) transition(tx *session.Tx, out *outbox, to domain.Phase) error {
	from := tx.Phase()
	if err := tx.TransitionTo(to); err != nil {
		return err
	}
	out.phases = append(out.phases, phaseRecord{from: from, to: to, round: c.round, snap: tx.Snapshot()})
	return nil
}

func (c *Coordinator) announce(text string) {
	var out outbox
	out.broadcast(text)
	c.post.push(context.Background(), &out)
}

// onChainComplete runs on the scheduler timeline when a chain's terminal
// task fires. A chain that is no longer the active one is ignored, and a
// chain whose participants dropped to the minimum is dropped without
// starting.
func (c *Coordinator) onChainComplete(ch *countdown.Chain) {
	ctx, span := c.tracer.Start(context.Background(), "lobby.startGame")
	defer span.End()

	var out outbox
	err := c.machine.Atomically(func(tx *session.Tx) error {
		if c.chain != ch {
			return nil
		}
		c.chain = nil
		if count := tx.ParticipantCount(); count <= c.cfg.MinimumParticipants {
			out.record(tx.Phase(), domain.EventChainAborted, map[string]int{"participants": count})
			c.log.Info("countdown dropped at start", "participants", count, "minimum", c.cfg.MinimumParticipants)
			return nil
		}
		if err := c.transition(tx, &out, domain.PhaseStarting); err != nil {
			return err
		}
		out.broadcast(c.msgs.Started)
		c.follow = c.sched.After(c.sched.Ticks(c.cfg.StartingDelay), c.enterPlaying)
		return nil
	})
	c.post.push(ctx, &out)
	if err != nil {
		c.log.Error("start game failed", "err", err)
		c.fail(span, err)
	}
}

func (c *Coordinator) enterPlaying() error {
	var out outbox
	err := c.machine.Atomically(func(tx *session.Tx) error {
		c.follow = nil
		if tx.Phase() != domain.PhaseStarting {
			return nil
		}
		return c.transition(tx, &out, domain.PhasePlaying)
	})
	c.post.push(context.Background(), &out)
	return err
}

func (c *Coordinator) startSpan(ctx context.Context, name string, id domain.ParticipantID) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("participant", string(id))))
}

func (c *Coordinator) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// flush delivers what a critical section produced. Journal failures are
// logged and never returned to the caller.
func (c *Coordinator) flush(ctx context.Context, out *outbox) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range out.notices {
		if n.to == "" {
			c.notifier.Broadcast(ctx, n.text)
		} else {
			c.notifier.Tell(ctx, n.to, n.text)
		}
	}
	for _, e := range out.effects {
		if c.sink == nil {
			break
		}
		if err := c.sink.Apply(ctx, e); err != nil {
			c.log.Error("apply effect failed", "capability", e.Capability, "participant", e.Actor, "err", err)
		}
	}
	if c.journal == nil {
		return
	}
	for _, p := range out.phases {
		if err := c.journal.RecordPhase(ctx, p.from, p.to, p.round, p.snap); err != nil {
			c.log.Error("journal phase failed", "to", p.to, "err", err)
		}
	}
	for _, r := range out.records {
		if err := c.journal.Append(ctx, r.phase, r.eventType, r.payload); err != nil {
			c.log.Error("journal append failed", "event", r.eventType, "err", err)
		}
	}
	for _, a := range out.audits {
		if err := c.journal.Audit(ctx, a.category, string(a.actor), a.action, a.request, a.decision); err != nil {
			c.log.Error("journal audit failed", "action", a.action, "err", err)
		}
	}
}

func idPayload(id domain.ParticipantID) map[string]string {
	return map[string]string{"participant": string(id)}
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(context.Context, string) {}

func (nopNotifier) Tell(context.Context, domain.ParticipantID, string) {}
