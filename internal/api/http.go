// Package api exposes the assistant over HTTP (chi) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aidwise/aidwise/internal/cache"
	"github.com/aidwise/aidwise/internal/chat"
	"github.com/aidwise/aidwise/internal/fault"
	"github.com/aidwise/aidwise/internal/ingest"
	"github.com/aidwise/aidwise/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Assistant is the orchestrator surface the HTTP layer consumes.
type Assistant interface {
	SendMessage(ctx context.Context, content, userID, conversationID string) (*chat.Reply, error)
	GetHistory(ctx context.Context, userID string, limit int) (*chat.History, error)
	ValidateMessage(content string) chat.Validation
	CacheStats() cache.Stats
}

// DocStore is the storage surface for document ingestion endpoints.
type DocStore interface {
	SaveFormDoc(doc storage.FormDoc) error
	EnqueueJob(job storage.Job) error
	ListFormDocs(limit int) ([]storage.FormDoc, error)
}

// NewHandler returns the HTTP API. All routes except /health require the
// bearer token when token is non-empty.
func NewHandler(assistant Assistant, docs DocStore, token string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(BearerAuth(token))
		}
		r.Post("/v1/messages", handleSendMessage(assistant))
		r.Post("/v1/messages/validate", handleValidate(assistant))
		r.Get("/v1/history", handleHistory(assistant))
		r.Get("/v1/cache/stats", handleCacheStats(assistant))
		r.Post("/v1/documents", handleAddDocument(docs))
		r.Get("/v1/documents", handleListDocuments(docs))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type sendMessageRequest struct {
	Content        string `json:"content"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func handleSendMessage(assistant Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		reply, err := assistant.SendMessage(r.Context(), req.Content, req.UserID, req.ConversationID)
		if err != nil {
			writeFault(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reply)
	}
}

func handleValidate(assistant Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, assistant.ValidateMessage(req.Content))
	}
}

func handleHistory(assistant Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit: %q", s)
				return
			}
			limit = n
		}

		history, err := assistant.GetHistory(r.Context(), userID, limit)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func handleCacheStats(assistant Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, assistant.CacheStats())
	}
}

type addDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

func handleAddDocument(docs DocStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req addDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		if req.Title == "" {
			req.Title = "Untitled document"
		}

		doc := storage.FormDoc{
			ID:        uuid.NewString(),
			Title:     req.Title,
			Content:   req.Content,
			Source:    req.Source,
			Status:    "pending",
			CreatedAt: time.Now().UTC(),
		}
		if err := docs.SaveFormDoc(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving document: %v", err)
			return
		}

		payload, _ := json.Marshal(ingest.IndexPayload{DocID: doc.ID})
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        ingest.JobTypeIndexDoc,
			PayloadJSON: string(payload),
		}
		if err := docs.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing index job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"id": doc.ID, "status": doc.Status})
	}
}

func handleListDocuments(docs DocStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := docs.ListFormDocs(100)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}
		type docInfo struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"created_at"`
		}
		out := make([]docInfo, 0, len(list))
		for _, d := range list {
			out = append(out, docInfo{ID: d.ID, Title: d.Title, Status: d.Status, CreatedAt: d.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

// writeFault renders a classified error as the JSON error envelope, mapping
// kinds to HTTP statuses.
func writeFault(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return
	}

	status := http.StatusBadGateway
	switch fe.Kind {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindAuthentication:
		status = http.StatusUnauthorized
	case fault.KindRateLimit:
		status = http.StatusTooManyRequests
	case fault.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	slog.Debug("request failed", "kind", string(fe.Kind), "error", fe.TechMessage)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":     string(fe.Kind),
			"severity": string(fe.Severity),
			"message":  fe.UserMessage,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, errType, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":    errType,
			"message": fmt.Sprintf(format, args...),
		},
	})
}
