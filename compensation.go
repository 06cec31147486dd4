package saga

import "fmt"

// Compensation is the reserve -> act -> settle protocol. A resource is
// reserved before an irreversible step; success settles the reservation,
// failure cancels it. Each field names the signal type that triggers an
// edge, or the message the edge issues.
//
//	Rejected  -> Failure (terminal)
//	SettleOn  -> Settle
//	Settled   -> Success (terminal)
//	ActFailed -> Cancel
//	Canceled  -> Failure (terminal)
type Compensation[S any] struct {
	// Rejected is the rejection of the reservation itself.
	Rejected string

	// SettleOn is the last forward event before settlement.
	SettleOn string
	Settle   func(state *S, sig Message) Message

	// Settled confirms the settlement.
	Settled string

	// ActFailed is the rejection of the irreversible step.
	ActFailed string
	Cancel    func(state *S, sig Message) Message

	// Canceled confirms the reservation was released.
	Canceled string

	Success func(state *S, sig Message) Message
	Failure func(state *S, sig Message) Message
}

// Reactions returns the reaction table for the protocol's edges.
func (c Compensation[S]) Reactions() (map[string]Reaction[S], error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	emit := func(build func(*S, Message) Message) Reaction[S] {
		return func(state *S, sig Message) (Outcome, error) {
			return Emit(build(state, sig)), nil
		}
	}

	return map[string]Reaction[S]{
		c.Rejected: func(state *S, sig Message) (Outcome, error) {
			return Fail(c.Failure(state, sig)), nil
		},
		c.SettleOn: emit(c.Settle),
		c.Settled: func(state *S, sig Message) (Outcome, error) {
			return Complete(c.Success(state, sig)), nil
		},
		c.ActFailed: emit(c.Cancel),
		c.Canceled: func(state *S, sig Message) (Outcome, error) {
			return Fail(c.Failure(state, sig)), nil
		},
	}, nil
}

// After returns the step table of the settlement edges: a settlement or a
// cancellation is only accepted right after the event that requested it.
func (c Compensation[S]) After() map[string][]string {
	return map[string][]string{
		c.Settled:  {c.SettleOn},
		c.Canceled: {c.ActFailed},
	}
}

func (c Compensation[S]) validate() error {
	signals := []string{c.Rejected, c.SettleOn, c.Settled, c.ActFailed, c.Canceled}
	seen := make(map[string]bool, len(signals))
	for _, s := range signals {
		if s == "" {
			return fmt.Errorf("compensation: every edge needs a signal type")
		}
		if seen[s] {
			return fmt.Errorf("compensation: signal %s used for two edges", s)
		}
		seen[s] = true
	}
	if c.Settle == nil || c.Cancel == nil || c.Success == nil || c.Failure == nil {
		return fmt.Errorf("compensation: settle, cancel, success and failure builders are required")
	}
	return nil
}
