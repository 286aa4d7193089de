package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOperationLatch_SingleAcquire(t *testing.T) {
	latch := &OperationLatch{}

	assert.True(t, latch.TryAcquire())
	assert.False(t, latch.TryAcquire(), "second acquire while in progress should fail")
	assert.True(t, latch.InProgress())

	assert.True(t, latch.MarkDone())
	assert.True(t, latch.IsDone())
	assert.False(t, latch.TryAcquire(), "acquire after completion should fail")
}

func TestOperationLatch_ReleaseAllowsRetry(t *testing.T) {
	latch := &OperationLatch{}

	assert.True(t, latch.TryAcquire())
	latch.Release()
	assert.False(t, latch.IsDone())
	assert.True(t, latch.TryAcquire(), "release should reopen the latch")
}

func TestOperationLatch_ReleaseAfterDoneIsNoOp(t *testing.T) {
	latch := &OperationLatch{}

	assert.True(t, latch.TryAcquire())
	assert.True(t, latch.MarkDone())
	latch.Release()
	assert.True(t, latch.IsDone(), "release must never undo completion")
	assert.False(t, latch.TryAcquire())
}

func TestOperationLatch_ConcurrentSingleWinner(t *testing.T) {
	latch := &OperationLatch{}
	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if latch.TryAcquire() {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one goroutine should win the latch")
}

func TestLatchRegistry_ScopesPerBattleAndOperation(t *testing.T) {
	registry := NewLatchRegistry()
	battleA := uuid.New()
	battleB := uuid.New()

	genA := registry.For(battleA, OperationGenerate)
	assert.Same(t, genA, registry.For(battleA, OperationGenerate), "same key should return the same latch")
	assert.NotSame(t, genA, registry.For(battleA, OperationSettle))
	assert.NotSame(t, genA, registry.For(battleB, OperationGenerate))

	assert.True(t, genA.TryAcquire())
	assert.True(t, registry.For(battleB, OperationGenerate).TryAcquire(),
		"latches for different battles must not interfere")
}

func TestLatchRegistry_ForgetDropsBattle(t *testing.T) {
	registry := NewLatchRegistry()
	battleID := uuid.New()

	latch := registry.For(battleID, OperationSettle)
	assert.True(t, latch.TryAcquire())
	assert.True(t, latch.MarkDone())

	registry.Forget(battleID)

	fresh := registry.For(battleID, OperationSettle)
	assert.NotSame(t, latch, fresh)
	assert.False(t, fresh.IsDone())
}
