package services

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Operation names a guarded once-per-battle operation
type Operation string

const (
	OperationGenerate Operation = "generate"
	OperationSettle   Operation = "settle"
)

const (
	latchNotStarted int32 = iota
	latchInProgress
	latchDone
)

// OperationLatch is a three-state latch gating an operation to at most one
// execution per battle. Arbitration is a compare-and-set, so concurrent
// callers racing to acquire collapse to exactly one winner; a plain
// read-then-write would double-execute under load.
type OperationLatch struct {
	state atomic.Int32
}

// TryAcquire attempts to move the latch from not-started to in-progress.
// A false return means another caller is handling the operation, or it has
// already completed; that is not an error.
func (l *OperationLatch) TryAcquire() bool {
	return l.state.CompareAndSwap(latchNotStarted, latchInProgress)
}

// MarkDone records that the guarded work succeeded. Only the holder that
// acquired the latch may call it.
func (l *OperationLatch) MarkDone() bool {
	return l.state.CompareAndSwap(latchInProgress, latchDone)
}

// Release resets a failed attempt back to not-started so a future caller can
// retry. The latch is never left stuck in-progress.
func (l *OperationLatch) Release() {
	l.state.CompareAndSwap(latchInProgress, latchNotStarted)
}

// IsDone checks whether the guarded work already completed
func (l *OperationLatch) IsDone() bool {
	return l.state.Load() == latchDone
}

// InProgress checks whether some caller currently holds the latch
func (l *OperationLatch) InProgress() bool {
	return l.state.Load() == latchInProgress
}

type latchKey struct {
	battleID uuid.UUID
	op       Operation
}

// LatchRegistry scopes latches per battle instance so many battles can run
// concurrently without cross-talk. Entries are dropped once a battle reaches
// its terminal state.
type LatchRegistry struct {
	mu      sync.Mutex
	latches map[latchKey]*OperationLatch
}

// NewLatchRegistry creates an empty latch registry
func NewLatchRegistry() *LatchRegistry {
	return &LatchRegistry{latches: make(map[latchKey]*OperationLatch)}
}

// For returns the latch for a battle and operation, creating it on first use
func (r *LatchRegistry) For(battleID uuid.UUID, op Operation) *OperationLatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := latchKey{battleID: battleID, op: op}
	latch, ok := r.latches[key]
	if !ok {
		latch = &OperationLatch{}
		r.latches[key] = latch
	}
	return latch
}

// Forget drops all latches for a finished battle
func (r *LatchRegistry) Forget(battleID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range []Operation{OperationGenerate, OperationSettle} {
		delete(r.latches, latchKey{battleID: battleID, op: op})
	}
}
