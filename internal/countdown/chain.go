package countdown

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
	"github.com/arenahall/lobbyd/internal/sched"
)

// ChainSpec describes the start countdown in seconds. The far countdown
// announces Total, Total-FarStep, ... while above NearFrom; the near
// countdown announces NearFrom, NearFrom-NearStep, ... down to 1; the
// terminal task fires Total seconds after Begin.
type ChainSpec struct {
	Total    int `json:"total_sec" yaml:"total_sec"`
	FarStep  int `json:"far_step_sec" yaml:"far_step_sec"`
	NearStep int `json:"near_step_sec" yaml:"near_step_sec"`
	NearFrom int `json:"near_from_sec" yaml:"near_from_sec"`
}

// DefaultChainSpec returns the 20/15/10/5 then 4/3/2/1 cadence.
func DefaultChainSpec() ChainSpec {
	return ChainSpec{Total: 20, FarStep: 5, NearStep: 1, NearFrom: 4}
}

// Validate checks that every value is positive and NearFrom < Total.
func (cs ChainSpec) Validate() error {
	var problems []string
	if cs.Total <= 0 {
		problems = append(problems, "total must be positive")
	}
	if cs.FarStep <= 0 {
		problems = append(problems, "far step must be positive")
	}
	if cs.NearStep <= 0 {
		problems = append(problems, "near step must be positive")
	}
	if cs.NearFrom <= 0 {
		problems = append(problems, "near_from must be positive")
	}
	if cs.Total > 0 && cs.NearFrom >= cs.Total {
		problems = append(problems, "near_from must be below total")
	}
	if len(problems) > 0 {
		return domain.NewEngineError(domain.ErrInvalidCountdown.Code, strings.Join(problems, "; "))
	}
	return nil
}

const (
	chainActive int32 = iota
	chainAborted
	chainCompleted
)

// Chain is the abort bundle: the far countdown, the near countdown and the
// terminal start task. They are only ever cancelled together.
type Chain struct {
	far      *Countdown
	near     *Countdown
	terminal *sched.Handle
	state    atomic.Int32
}

// Begin arms a chain on s. announce receives every countdown message.
// onComplete runs on the scheduler timeline when the terminal task fires
// on a chain that has not been aborted; the chain is already marked
// completed by then.
func Begin(s *sched.Scheduler, spec ChainSpec, message string, announce Announcer, onComplete func(*Chain)) (*Chain, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if onComplete == nil {
		onComplete = func(*Chain) {}
	}

	c := &Chain{
		far:  New(s, spec.Total, spec.FarStep, spec.NearFrom, message, announce),
		near: New(s, spec.NearFrom, spec.NearStep, 0, message, announce),
	}
	c.far.Start(0)
	c.near.Start(s.Ticks(time.Duration(spec.Total-spec.NearFrom) * time.Second))
	c.terminal = s.After(s.Ticks(time.Duration(spec.Total)*time.Second), func() error {
		if !c.state.CompareAndSwap(chainActive, chainCompleted) {
			return nil
		}
		c.far.Override()
		c.near.Override()
		onComplete(c)
		return nil
	})
	return c, nil
}

// Abort cancels all three tasks. It reports whether the chain was still
// active; aborting an aborted or completed chain is a no-op.
func (c *Chain) Abort() bool {
	if c == nil {
		return false
	}
	if !c.state.CompareAndSwap(chainActive, chainAborted) {
		return false
	}
	c.far.Override()
	c.near.Override()
	c.terminal.Cancel()
	return true
}

// Active reports whether the chain is neither aborted nor completed.
func (c *Chain) Active() bool {
	return c != nil && c.state.Load() == chainActive
}

// Completed reports whether the terminal task ran.
func (c *Chain) Completed() bool {
	return c != nil && c.state.Load() == chainCompleted
}

// String is used in logs.
func (c *Chain) String() string {
	if c == nil {
		return "chain(nil)"
	}
	switch c.state.Load() {
	case chainActive:
		return fmt.Sprintf("chain(active, terminal=%s)", c.terminal.ID())
	case chainAborted:
		return "chain(aborted)"
	default:
		return "chain(completed)"
	}
}
