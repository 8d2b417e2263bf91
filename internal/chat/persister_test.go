package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aidwise/aidwise/internal/storage"
)

type countingConvStore struct {
	fakeConvStore
	failures int // AppendTurn fails this many times before succeeding
	attempts int
}

func (s *countingConvStore) AppendTurn(turn storage.Turn) error {
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("database is locked")
	}
	return s.fakeConvStore.AppendTurn(turn)
}

func TestPersisterProcessesQueuedTurn(t *testing.T) {
	conv := &fakeConvStore{}
	p := NewPersister(conv, nil, 4)
	p.sleep = func(time.Duration) {}

	p.QueueTurn(storage.Turn{ConversationID: "c1", UserID: "alice"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Run drains the queue before returning.
	p.Run(ctx)

	if conv.turnCount() != 1 {
		t.Fatalf("turns persisted = %d, want 1", conv.turnCount())
	}
}

func TestPersisterRetriesTransientFailures(t *testing.T) {
	conv := &countingConvStore{failures: 2}
	p := NewPersister(conv, nil, 4)
	p.sleep = func(time.Duration) {}

	p.process(persistTask{turn: &storage.Turn{UserID: "alice"}})

	if conv.attempts != 3 {
		t.Errorf("attempts = %d, want 3", conv.attempts)
	}
	if conv.turnCount() != 1 {
		t.Error("turn dropped despite eventual success")
	}
}

func TestPersisterDropsAfterMaxAttempts(t *testing.T) {
	conv := &countingConvStore{failures: 10}
	p := NewPersister(conv, nil, 4)
	p.sleep = func(time.Duration) {}

	p.process(persistTask{turn: &storage.Turn{UserID: "alice"}})

	if conv.attempts != persistMaxAttempts {
		t.Errorf("attempts = %d, want %d", conv.attempts, persistMaxAttempts)
	}
	if conv.turnCount() != 0 {
		t.Error("failed turn recorded")
	}
}

func TestPersisterQueueFullDropsSilently(t *testing.T) {
	conv := &fakeConvStore{}
	p := NewPersister(conv, nil, 1)

	// Second enqueue overflows the size-1 queue; it must not block.
	done := make(chan struct{})
	go func() {
		p.QueueTurn(storage.Turn{UserID: "a"})
		p.QueueTurn(storage.Turn{UserID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("QueueTurn blocked on a full queue")
	}
}

func TestPersisterNilStoresDropTasks(t *testing.T) {
	p := NewPersister(nil, nil, 1)

	// Neither call may enqueue (or panic); the queue stays empty.
	p.QueueTurn(storage.Turn{UserID: "a"})
	p.QueueProgress("a")

	if len(p.tasks) != 0 {
		t.Errorf("tasks queued for nil stores: %d", len(p.tasks))
	}
}

func TestPersisterProgressBump(t *testing.T) {
	progress := &fakeProgressStore{}
	p := NewPersister(nil, progress, 4)

	p.QueueProgress("alice")
	p.QueueProgress("alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	progress.mu.Lock()
	defer progress.mu.Unlock()
	if len(progress.bumps) != 2 {
		t.Errorf("bumps = %v, want 2 for alice", progress.bumps)
	}
}
