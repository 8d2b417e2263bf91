package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/aidwise/aidwise/internal/storage"
)

const (
	persistQueueSize   = 64
	persistMaxAttempts = 3
	persistRetryDelay  = 200 * time.Millisecond
)

// persistTask is one queued unit of deferred storage work.
type persistTask struct {
	turn           *storage.Turn
	progressUserID string
}

// Persister writes turns and progress bumps in the background. Writes are
// queued, never awaited by the turn, and retried a bounded number of times;
// a write that still fails is logged and dropped. The user-visible turn
// must never fail on persistence.
type Persister struct {
	conversations ConversationStore
	progress      ProgressStore
	tasks         chan persistTask
	sleep         func(time.Duration)
}

// NewPersister creates a Persister. queueSize <= 0 uses the default.
// Either store may be nil; tasks targeting a nil store are dropped.
func NewPersister(conversations ConversationStore, progress ProgressStore, queueSize int) *Persister {
	if queueSize <= 0 {
		queueSize = persistQueueSize
	}
	return &Persister{
		conversations: conversations,
		progress:      progress,
		tasks:         make(chan persistTask, queueSize),
		sleep:         time.Sleep,
	}
}

// QueueTurn enqueues a turn for persistence without blocking. When the
// queue is full the turn is dropped and the drop is logged.
func (p *Persister) QueueTurn(turn storage.Turn) {
	if p.conversations == nil {
		return
	}
	select {
	case p.tasks <- persistTask{turn: &turn}:
	default:
		slog.Warn("persistence queue full, dropping turn", "user_id", turn.UserID)
	}
}

// QueueProgress enqueues an interaction-count bump without blocking.
func (p *Persister) QueueProgress(userID string) {
	if p.progress == nil {
		return
	}
	select {
	case p.tasks <- persistTask{progressUserID: userID}:
	default:
		slog.Warn("persistence queue full, dropping progress bump", "user_id", userID)
	}
}

// Run processes queued tasks until ctx is cancelled, then drains whatever
// is already queued so accepted work is not lost on shutdown.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case t := <-p.tasks:
			p.process(t)
		}
	}
}

func (p *Persister) drain() {
	for {
		select {
		case t := <-p.tasks:
			p.process(t)
		default:
			return
		}
	}
}

func (p *Persister) process(t persistTask) {
	var err error
	for attempt := 1; attempt <= persistMaxAttempts; attempt++ {
		err = p.apply(t)
		if err == nil {
			return
		}
		if attempt < persistMaxAttempts {
			p.sleep(persistRetryDelay * time.Duration(attempt))
		}
	}
	if t.turn != nil {
		slog.Error("failed to persist turn", "user_id", t.turn.UserID, "error", err)
	} else {
		slog.Error("failed to persist progress", "user_id", t.progressUserID, "error", err)
	}
}

func (p *Persister) apply(t persistTask) error {
	if t.turn != nil {
		return p.conversations.AppendTurn(*t.turn)
	}
	return p.progress.IncrementInteractions(t.progressUserID)
}
