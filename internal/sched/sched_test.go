package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockAndWake(t *testing.T) {
	s := NewParker()
	task := s.NewTask()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Wake(task, CauseReady)
	}()

	cause, err := s.Block(context.Background(), task, 0)
	require.NoError(t, err)
	assert.Equal(t, CauseReady, cause)
}

func TestBlockTimeout(t *testing.T) {
	s := NewParker()
	task := s.NewTask()

	start := time.Now()
	_, err := s.Block(context.Background(), task, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBlockContextCancel(t *testing.T) {
	s := NewParker()
	task := s.NewTask()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := s.Block(ctx, task, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWakeExactlyOnce(t *testing.T) {
	s := NewParker()
	task := s.NewTask()

	const attempts = 8
	var woke int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Wake(task, CauseReady) {
				mu.Lock()
				woke++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, woke)

	cause, err := s.Block(context.Background(), task, 0)
	require.NoError(t, err)
	assert.Equal(t, CauseReady, cause)
}

func TestConsumeAfterLostRace(t *testing.T) {
	s := NewParker()
	task := s.NewTask()

	// Simulate a waiter that timed out while a wake was in flight:
	// the pending cause must still be retrievable.
	require.True(t, s.Wake(task, CauseClosed))
	assert.Equal(t, CauseClosed, task.Consume())
}
