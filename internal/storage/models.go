package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Sender values for stored messages.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one stored chat message. User messages are sanitized before
// they reach storage; raw PII never lands in the database.
type Message struct {
	ID              string
	ConversationID  string
	UserID          string
	Sender          string
	Content         string
	Sources         string // JSON array stored as text
	PrivacyWarnings string // JSON array stored as text
	ErrorType       string // classified kind for synthetic error replies
	CreatedAt       time.Time
}

// Turn is one user question plus the corresponding assistant answer,
// persisted atomically.
type Turn struct {
	ConversationID   string
	UserID           string
	UserMessage      Message
	AssistantMessage Message
}

// Progress tracks per-user interaction counters for the application
// checklist surface.
type Progress struct {
	UserID           string
	InteractionCount int
	UpdatedAt        time.Time
}

// FormDoc is a knowledge-base document about the financial-aid form.
type FormDoc struct {
	ID        string
	Title     string
	Content   string
	Source    string
	Status    string // "pending", "indexed", "failed"
	CreatedAt time.Time
}

// Job is one entry in the deferred-work queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
