// Package chat sequences one user turn through the resilient pipeline:
// validation, redaction, cache lookup, knowledge lookup, generation with
// retry, output redaction, caching, and best-effort persistence.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aidwise/aidwise/internal/cache"
	"github.com/aidwise/aidwise/internal/composer"
	"github.com/aidwise/aidwise/internal/fault"
	"github.com/aidwise/aidwise/internal/generation"
	"github.com/aidwise/aidwise/internal/knowledge"
	"github.com/aidwise/aidwise/internal/privacy"
	"github.com/aidwise/aidwise/internal/retry"
	"github.com/aidwise/aidwise/internal/storage"
)

// MaxMessageLength is the input ceiling enforced before any network call.
const MaxMessageLength = 2000

// Generator is the mandatory text-generation collaborator.
type Generator interface {
	Chat(ctx context.Context, messages []generation.Message) (*generation.ChatResult, error)
}

// Searcher is the best-effort knowledge lookup collaborator.
type Searcher interface {
	Search(ctx context.Context, query string) (*knowledge.SearchResult, error)
}

// ConversationStore persists turns and serves history.
type ConversationStore interface {
	AppendTurn(turn storage.Turn) error
	RecentMessages(userID string, limit int) ([]storage.Message, error)
}

// ProgressStore tracks per-user interaction counts.
type ProgressStore interface {
	IncrementInteractions(userID string) error
}

// Message is one chat bubble as the caller sees it.
type Message struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	Sender          string         `json:"sender"`
	Timestamp       time.Time      `json:"timestamp"`
	Sources         []string       `json:"sources,omitempty"`
	PrivacyWarnings []string       `json:"privacy_warnings,omitempty"`
	ErrorType       fault.Kind     `json:"error_type,omitempty"`
	Severity        fault.Severity `json:"severity,omitempty"`
}

// Reply is the result of one SendMessage call.
type Reply struct {
	Message         Message  `json:"message"`
	Sources         []string `json:"sources,omitempty"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	PrivacyWarnings []string `json:"privacy_warnings,omitempty"`
	Cached          bool     `json:"cached"`
	Attempts        int      `json:"attempts"`
}

// History is the result of one GetHistory call.
type History struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// Validation is the synchronous pre-check result for a candidate message.
type Validation struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

// cachedAnswer is what a successful turn leaves in the response cache.
// Sources are captured at cache-write time and replayed on later hits,
// even if the knowledge base has changed since.
type cachedAnswer struct {
	Content string
	Sources []string
}

// ApproxSize reports the payload footprint for cache accounting.
func (a cachedAnswer) ApproxSize() int64 {
	size := int64(len(a.Content))
	for _, s := range a.Sources {
		size += int64(len(s))
	}
	return size
}

// Orchestrator exposes the sendMessage/getHistory contract to callers.
// Construct with New; all collaborators are injected.
type Orchestrator struct {
	cache         *cache.Cache
	generator     Generator
	searcher      Searcher
	composer      *composer.Composer
	conversations ConversationStore
	persister     *Persister
	retryOpts     retry.Options
	now           func() time.Time
}

// Options configures an Orchestrator.
type Options struct {
	Cache         *cache.Cache
	Generator     Generator
	Searcher      Searcher // optional; nil disables knowledge lookup
	Composer      *composer.Composer
	Conversations ConversationStore // optional; nil disables persistence/history
	Progress      ProgressStore     // optional
	Retry         retry.Options
}

// New creates an Orchestrator. The persister worker is created but not
// started; call Run to start background persistence.
func New(opts Options) *Orchestrator {
	if opts.Cache == nil {
		opts.Cache = cache.New(0)
	}
	if opts.Composer == nil {
		opts.Composer = composer.New(0)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultOptions()
	}
	return &Orchestrator{
		cache:         opts.Cache,
		generator:     opts.Generator,
		searcher:      opts.Searcher,
		composer:      opts.Composer,
		conversations: opts.Conversations,
		persister:     NewPersister(opts.Conversations, opts.Progress, 0),
		retryOpts:     opts.Retry,
		now:           time.Now,
	}
}

// Run starts background workers (the persistence queue and the cache sweep)
// until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	go o.cache.Run(ctx)
	o.persister.Run(ctx)
}

// ValidateMessage is the synchronous pre-check usable before SendMessage.
func (o *Orchestrator) ValidateMessage(content string) Validation {
	if strings.TrimSpace(content) == "" {
		return Validation{Error: "Message cannot be empty."}
	}
	if len(content) > MaxMessageLength {
		return Validation{Error: fmt.Sprintf("Message is too long (limit %d characters).", MaxMessageLength)}
	}
	return Validation{IsValid: true}
}

// SendMessage runs one user turn. It returns an error only for terminally
// unrecoverable conditions (validation, authentication); transient failures
// that exhaust their retries resolve into a synthetic assistant reply
// carrying the classified kind, so callers always have a renderable bubble.
func (o *Orchestrator) SendMessage(ctx context.Context, content, userID, conversationID string) (*Reply, error) {
	fctx := fault.Context{
		Action:         "send_message",
		UserID:         userID,
		ConversationID: conversationID,
	}

	if v := o.ValidateMessage(content); !v.IsValid {
		return nil, fault.New(fault.KindValidation, fctx, v.Error)
	}

	// Redact before anything touches the cache, the backend, or a log line.
	det := privacy.Detect(content)
	warnings := privacy.Warnings(det.Types)
	if det.HasPII {
		slog.Info("redacted PII from user message", "types", det.Types, "user_id", userID)
	}

	if conversationID == "" && userID != "" {
		conversationID = uuid.NewString()
	}

	key := cache.Key(det.Sanitized, userID)
	if hit, ok := o.cache.Get(key); ok {
		answer := hit.(cachedAnswer)
		slog.Debug("cache hit", "user_id", userID)
		return &Reply{
			Message:         o.assistantMessage(answer.Content, answer.Sources, warnings),
			Sources:         answer.Sources,
			ConversationID:  conversationID,
			PrivacyWarnings: warnings,
			Cached:          true,
		}, nil
	}

	// Knowledge lookup is best-effort: failure degrades to generation
	// without extra context, never aborts the turn.
	var docs []knowledge.Document
	var sources []string
	if o.searcher != nil {
		if result, err := o.searcher.Search(ctx, det.Sanitized); err != nil {
			slog.Warn("knowledge lookup failed, continuing without context", "error", err)
		} else if result != nil {
			docs = result.Documents
			sources = result.Sources
		}
	}

	messages := o.composer.Compose(det.Sanitized, docs)
	outcome := retry.Do(ctx, func(ctx context.Context) (*generation.ChatResult, error) {
		return o.generator.Chat(ctx, messages)
	}, fctx, o.retryOpts)

	if !outcome.OK {
		return o.failedReply(outcome, conversationID, warnings)
	}

	answer := outcome.Value.Content

	// PII in the model's output is redacted too before it can be cached,
	// stored, or returned.
	if outDet := privacy.Detect(answer); outDet.HasPII {
		answer = outDet.Sanitized
		warnings = append(warnings, privacy.Warnings(outDet.Types)...)
	}

	// Never cache a response derived from a question containing personal
	// data; the redacted key could collide across users' distinct inputs.
	if !det.HasPII {
		o.cache.Set(key, cachedAnswer{Content: answer, Sources: sources}, cache.TTLFor(det.Sanitized))
	}

	assistantMsg := o.assistantMessage(answer, sources, warnings)

	if userID != "" {
		o.queuePersist(userID, conversationID, det.Sanitized, assistantMsg)
	}

	return &Reply{
		Message:         assistantMsg,
		Sources:         sources,
		ConversationID:  conversationID,
		PrivacyWarnings: warnings,
		Attempts:        outcome.Attempts,
	}, nil
}

// GetHistory returns up to limit of the user's most recent messages, newest
// first, plus whether more exist.
func (o *Orchestrator) GetHistory(ctx context.Context, userID string, limit int) (*History, error) {
	fctx := fault.Context{Action: "get_history", UserID: userID}
	if userID == "" {
		return nil, fault.New(fault.KindValidation, fctx, "user id is required for history")
	}
	if o.conversations == nil {
		return &History{Messages: []Message{}}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// Fetch one extra row to learn whether more remain.
	stored, err := o.conversations.RecentMessages(userID, limit+1)
	if err != nil {
		return nil, fault.Classify(err, fctx)
	}

	hasMore := len(stored) > limit
	if hasMore {
		stored = stored[:limit]
	}

	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, fromStored(m))
	}
	return &History{Messages: messages, HasMore: hasMore}, nil
}

// CacheStats exposes the response cache counters.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}

// failedReply converts an exhausted transient failure into a synthetic
// assistant reply; terminal kinds propagate as errors.
func (o *Orchestrator) failedReply(outcome retry.Outcome[*generation.ChatResult], conversationID string, warnings []string) (*Reply, error) {
	err := outcome.Err
	if err.Kind == fault.KindValidation || err.Kind == fault.KindAuthentication {
		return nil, err
	}

	slog.Error("generation failed after retries",
		"kind", string(err.Kind),
		"attempts", outcome.Attempts,
		"error", err.TechMessage,
	)

	msg := Message{
		ID:              uuid.NewString(),
		Content:         err.UserMessage,
		Sender:          storage.SenderAssistant,
		Timestamp:       o.now().UTC(),
		PrivacyWarnings: warnings,
		ErrorType:       err.Kind,
		Severity:        err.Severity,
	}
	return &Reply{
		Message:         msg,
		ConversationID:  conversationID,
		PrivacyWarnings: warnings,
		Attempts:        outcome.Attempts,
	}, nil
}

func (o *Orchestrator) assistantMessage(content string, sources, warnings []string) Message {
	return Message{
		ID:              uuid.NewString(),
		Content:         content,
		Sender:          storage.SenderAssistant,
		Timestamp:       o.now().UTC(),
		Sources:         sources,
		PrivacyWarnings: warnings,
	}
}

// queuePersist hands the turn and the progress bump to the background
// persister. Neither is awaited; failures are logged, never surfaced.
func (o *Orchestrator) queuePersist(userID, conversationID, sanitizedInput string, assistantMsg Message) {
	now := o.now().UTC()
	turn := storage.Turn{
		ConversationID: conversationID,
		UserID:         userID,
		UserMessage: storage.Message{
			ID:        uuid.NewString(),
			UserID:    userID,
			Sender:    storage.SenderUser,
			Content:   sanitizedInput,
			CreatedAt: now,
		},
		AssistantMessage: storage.Message{
			ID:              assistantMsg.ID,
			UserID:          userID,
			Sender:          storage.SenderAssistant,
			Content:         assistantMsg.Content,
			Sources:         mustJSON(assistantMsg.Sources),
			PrivacyWarnings: mustJSON(assistantMsg.PrivacyWarnings),
			CreatedAt:       now,
		},
	}
	o.persister.QueueTurn(turn)
	o.persister.QueueProgress(userID)
}

func fromStored(m storage.Message) Message {
	return Message{
		ID:              m.ID,
		Content:         m.Content,
		Sender:          m.Sender,
		Timestamp:       m.CreatedAt,
		Sources:         fromJSONList(m.Sources),
		PrivacyWarnings: fromJSONList(m.PrivacyWarnings),
		ErrorType:       fault.Kind(m.ErrorType),
	}
}

func mustJSON(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func fromJSONList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil
	}
	return list
}
