package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aidwise/aidwise/internal/knowledge"
	"github.com/aidwise/aidwise/internal/storage"
)

// JobTypeIndexDoc is the queue entry that requests embedding of a form doc.
const JobTypeIndexDoc = "index_doc"

// IndexPayload is the JSON payload of an index_doc job.
type IndexPayload struct {
	DocID string `json:"doc_id"`
}

// JobStore abstracts the job queue and doc lookups.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetFormDoc(id string) (storage.FormDoc, error)
	UpdateFormDocStatus(id, status string) error
}

// BatchEmbedder generates embeddings for a batch of texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into the vector store.
type VectorInserter interface {
	Insert(records []knowledge.Record) error
}

// Worker processes index_doc jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder BatchEmbedder
	vectors  VectorInserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder BatchEmbedder, vectors VectorInserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.store.ClaimNextJob([]string{JobTypeIndexDoc})
		if err != nil {
			w.logger.Error("claiming job", "error", err)
			w.wait(ctx)
			continue
		}
		if job == nil {
			w.wait(ctx)
			continue
		}

		if err := w.processJob(ctx, job); err != nil {
			w.logger.Warn("job failed", "job_id", job.ID, "error", err)
			if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
				w.logger.Error("recording job failure", "job_id", job.ID, "error", failErr)
			}
			continue
		}

		if err := w.store.CompleteJob(job.ID); err != nil {
			w.logger.Error("completing job", "job_id", job.ID, "error", err)
		}
	}
}

func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.poll):
	}
}

// processJob embeds every chunk of the referenced doc and inserts the
// resulting vectors.
func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload IndexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	doc, err := w.store.GetFormDoc(payload.DocID)
	if err != nil {
		return fmt.Errorf("loading doc %s: %w", payload.DocID, err)
	}

	chunks := Chunk(doc.Content)
	if len(chunks) == 0 {
		return fmt.Errorf("doc %s produced no chunks", doc.ID)
	}

	vectors, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]knowledge.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = knowledge.Record{
			ID:        uuid.NewString(),
			DocID:     doc.ID,
			Title:     doc.Title,
			TextChunk: chunk,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting %d vectors: %w", len(records), err)
	}

	if err := w.store.UpdateFormDocStatus(doc.ID, "indexed"); err != nil {
		return fmt.Errorf("marking doc indexed: %w", err)
	}

	w.logger.Info("indexed form doc", "doc_id", doc.ID, "chunks", len(chunks))
	return nil
}
