// Package txn implements the distributed transaction coordinator: a
// two-phase-commit state machine over an arbitrary set of participants, plus
// a compensation-based saga variant for long-lived workflows that can't hold
// a 2PC barrier open. Grounded on icingadb/runtime_updates.go's posture of
// driving concurrent per-item work through an errgroup barrier and on
// com.Cond's "mutex-guarded table, async dispatch" shape already used by
// the connection pool (C3).
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/async"
	"github.com/kcenon/dbcore/logging"
)

// State is one point on the transaction's strictly-forward state machine.
type State int

const (
	Active State = iota
	Preparing
	Prepared
	Committing
	Committed
	Aborting
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Preparing:
		return "preparing"
	case Prepared:
		return "prepared"
	case Committing:
		return "committing"
	case Committed:
		return "committed"
	case Aborting:
		return "aborting"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool { return s == Committed || s == Aborted }

// Participant is one enlistee in a distributed transaction: whatever backend
// handle prepare/commit/rollback are issued against. The coordinator has no
// opinion on what Prepare/Commit/Rollback actually do — callers close over a
// driver.Driver (or any resource) in these three functions.
type Participant struct {
	Name     func() string
	Prepare  func(ctx context.Context) (bool, error)
	Commit   func(ctx context.Context) error
	Rollback func(ctx context.Context) error
}

func (p Participant) name() string {
	if p.Name != nil {
		return p.Name()
	}
	return "participant"
}

// ErrParticipantDisagreement is surfaced when at least one participant voted
// no during the prepare phase.
var ErrParticipantDisagreement = errors.New("txn: participant voted no")

// ErrTransactionTimeout is surfaced when the prepare phase exceeds the
// coordinator's transaction_timeout. A commit phase that runs out of time is
// handled like any other commit failure after a unanimous vote: the
// transaction still ends committed and is marked inconsistent.
var ErrTransactionTimeout = errors.New("txn: phase deadline exceeded")

// Transaction is one distributed transaction's mutable record.
type Transaction struct {
	ID           string
	Participants []Participant

	mu           sync.Mutex
	state        State
	startTime    time.Time
	lastActivity time.Time
	inconsistent bool
}

// State returns the transaction's current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Inconsistent reports whether a participant's commit failed after a
// unanimous prepare vote. RecoverTransactions scans only non-terminal
// transactions, so it does not revisit a committed transaction marked this way.
func (t *Transaction) Inconsistent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inconsistent
}

func (t *Transaction) transition(to State) {
	t.mu.Lock()
	t.state = to
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// Coordinator owns the active transaction table and drives 2PC/saga
// execution through an async.Executor so that per-participant calls run
// concurrently within each barrier phase.
type Coordinator struct {
	executor           *async.Executor
	logger             *logging.Logger
	transactionTimeout time.Duration

	mu           sync.Mutex
	transactions map[string]*Transaction
}

// NewCoordinator returns a Coordinator dispatching participant calls through
// executor, bounding each 2PC phase by transactionTimeout.
func NewCoordinator(executor *async.Executor, logger *logging.Logger, transactionTimeout time.Duration) *Coordinator {
	return &Coordinator{
		executor:           executor,
		logger:             logger,
		transactionTimeout: transactionTimeout,
		transactions:       make(map[string]*Transaction),
	}
}

// Begin registers a new transaction in the active state and returns its
// handle.
func (c *Coordinator) Begin(participants []Participant) *Transaction {
	now := time.Now()
	t := &Transaction{
		ID:           uuid.NewString(),
		Participants: participants,
		state:        Active,
		startTime:    now,
		lastActivity: now,
	}

	c.mu.Lock()
	c.transactions[t.ID] = t
	c.mu.Unlock()

	return t
}

// Get returns a previously begun transaction by ID.
func (c *Coordinator) Get(id string) (*Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transactions[id]
	return t, ok
}

// Commit runs the full two-phase commit protocol for t: a prepare barrier
// over every participant, then (only if every vote was yes) a commit
// barrier, or (otherwise) a rollback barrier. Each phase is bounded by the
// coordinator's transaction_timeout.
func (c *Coordinator) Commit(ctx context.Context, t *Transaction) error {
	t.transition(Preparing)

	phaseCtx, cancel := context.WithTimeout(ctx, c.transactionTimeout)
	defer cancel()

	votes, err := c.prepareAll(phaseCtx, t)
	if err != nil {
		t.transition(Aborting)
		c.rollbackAll(ctx, t, votes)
		t.transition(Aborted)
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTransactionTimeout
		}
		return err
	}

	allYes := true
	for _, vote := range votes {
		if !vote {
			allYes = false
			break
		}
	}

	if !allYes {
		t.transition(Aborting)
		c.rollbackAll(ctx, t, votes)
		t.transition(Aborted)
		return ErrParticipantDisagreement
	}

	t.transition(Prepared)
	t.transition(Committing)

	commitCtx, commitCancel := context.WithTimeout(ctx, c.transactionTimeout)
	defer commitCancel()

	if !c.commitAll(commitCtx, t) {
		t.mu.Lock()
		t.inconsistent = true
		t.mu.Unlock()
		c.logger.Warnw("commit phase had participant failures after positive votes; marked inconsistent", "transaction", t.ID)
	}

	// Commit failures after a unanimous prepare vote still drive the
	// transaction to committed; the failure is recorded only in the
	// inconsistent flag (see Transaction.Inconsistent).
	t.transition(Committed)
	return nil
}

// prepareAll issues Prepare to every participant concurrently and returns
// each participant's vote in submission order. A participant error counts
// as a no vote.
func (c *Coordinator) prepareAll(ctx context.Context, t *Transaction) ([]bool, error) {
	futures := make([]*async.Future, len(t.Participants))
	for i, p := range t.Participants {
		p := p
		future, err := c.executor.Submit(ctx, func(ctx context.Context) (interface{}, error) {
			ok, err := p.Prepare(ctx)
			return ok, err
		})
		if err != nil {
			return nil, err
		}
		futures[i] = future
	}

	votes := make([]bool, len(futures))
	for i, future := range futures {
		value, err := future.Get(ctx)
		if err != nil {
			// ctx.Err() (deadline/cancel) aborts the whole phase; a
			// participant-level Prepare error just counts as a no vote.
			if ctx.Err() != nil {
				return votes[:i], ctx.Err()
			}
			votes[i] = false
			continue
		}
		ok, _ := value.(bool)
		votes[i] = ok
	}
	return votes, nil
}

// commitAll issues Commit to every participant concurrently, returning
// whether every commit succeeded.
func (c *Coordinator) commitAll(ctx context.Context, t *Transaction) bool {
	futures := make([]*async.Future, len(t.Participants))
	for i, p := range t.Participants {
		p := p
		future, err := c.executor.Submit(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, p.Commit(ctx)
		})
		if err != nil {
			c.logger.Errorw("commit submission rejected", "transaction", t.ID, "participant", p.name(), "error", err)
			return false
		}
		futures[i] = future
	}

	allOK := true
	for i, future := range futures {
		if _, err := future.Get(ctx); err != nil {
			c.logger.Errorw("participant commit failed", "transaction", t.ID, "participant", t.Participants[i].name(), "error", err)
			allOK = false
		}
	}
	return allOK
}

// rollbackAll issues Rollback to every participant that voted yes or whose
// vote is unknown (votes may be shorter than Participants if prepare itself
// timed out before every vote was collected).
func (c *Coordinator) rollbackAll(ctx context.Context, t *Transaction, votes []bool) {
	ctx, cancel := context.WithTimeout(ctx, c.transactionTimeout)
	defer cancel()

	futures := make([]*async.Future, 0, len(t.Participants))
	targets := make([]Participant, 0, len(t.Participants))

	for i, p := range t.Participants {
		voted := i < len(votes)
		if voted && !votes[i] {
			continue
		}
		future, err := c.executor.Submit(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, p.Rollback(ctx)
		})
		if err != nil {
			c.logger.Errorw("rollback submission rejected", "transaction", t.ID, "participant", p.name(), "error", err)
			continue
		}
		futures = append(futures, future)
		targets = append(targets, p)
	}

	for i, future := range futures {
		if _, err := future.Get(ctx); err != nil {
			c.logger.Errorw("participant rollback failed", "transaction", t.ID, "participant", targets[i].name(), "error", err)
		}
	}
}

// RecoverTransactions scans non-terminal transactions whose last activity
// predates threshold and either re-issues commit (if already prepared) or
// rollback (otherwise). Driver-level commit/rollback are assumed idempotent.
func (c *Coordinator) RecoverTransactions(ctx context.Context, olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)

	c.mu.Lock()
	var stale []*Transaction
	for _, t := range c.transactions {
		t.mu.Lock()
		if !t.state.terminal() && t.lastActivity.Before(cutoff) {
			stale = append(stale, t)
		}
		t.mu.Unlock()
	}
	c.mu.Unlock()

	for _, t := range stale {
		state := t.State()
		if state == Prepared || state == Committing {
			c.commitAll(ctx, t)
			t.transition(Committed)
		} else {
			votes := make([]bool, len(t.Participants))
			for i := range votes {
				votes[i] = true
			}
			c.rollbackAll(ctx, t, votes)
			t.transition(Aborted)
		}
	}
}
