package txn

import (
	"context"
)

// SagaStep is one step of a saga: a forward action and its compensation,
// each returning (success, error), the same shape as a Participant's
// Prepare call.
type SagaStep struct {
	Name        string
	Action      func(ctx context.Context) (bool, error)
	Compensate  func(ctx context.Context) (bool, error)
}

// Saga is an ordered sequence of steps, executed forward until the first
// failure, then compensated in reverse over the successfully-executed
// prefix.
type Saga struct {
	steps []SagaStep
}

// NewSaga returns an empty saga builder.
func NewSaga() *Saga { return &Saga{} }

// AddStep appends a step to the saga's forward sequence.
func (s *Saga) AddStep(step SagaStep) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// StepOutcome records what happened for one saga step: whether its action
// ran and succeeded, and whether its compensation ran and succeeded.
type StepOutcome struct {
	Name              string
	ActionRan         bool
	ActionOK          bool
	ActionErr         error
	CompensationRan   bool
	CompensationOK    bool
	CompensationErr   error
}

// Run executes the saga's steps forward in order. On the first failing
// step (an error, or a reported false), it stops the forward sweep and runs
// compensations for every already-successful step in reverse index order.
// A compensation failure is logged by the caller via the returned outcome
// but never aborts the sweep — Run always attempts every pending
// compensation.
func (s *Saga) Run(ctx context.Context) []StepOutcome {
	outcomes := make([]StepOutcome, len(s.steps))
	for i := range outcomes {
		outcomes[i].Name = s.steps[i].Name
	}

	lastSuccessful := -1
	for i, step := range s.steps {
		ok, err := step.Action(ctx)
		outcomes[i].ActionRan = true
		outcomes[i].ActionOK = ok
		outcomes[i].ActionErr = err

		if err != nil || !ok {
			break
		}
		lastSuccessful = i
	}

	for i := lastSuccessful; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		ok, err := step.Compensate(ctx)
		outcomes[i].CompensationRan = true
		outcomes[i].CompensationOK = ok
		outcomes[i].CompensationErr = err
		// A compensation failure never stops the sweep: continue to i-1.
	}

	return outcomes
}
