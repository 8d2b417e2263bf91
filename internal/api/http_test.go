package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aidwise/aidwise/internal/cache"
	"github.com/aidwise/aidwise/internal/chat"
	"github.com/aidwise/aidwise/internal/fault"
	"github.com/aidwise/aidwise/internal/ingest"
	"github.com/aidwise/aidwise/internal/storage"
)

type fakeAssistant struct {
	reply      *chat.Reply
	sendErr    error
	history    *chat.History
	historyErr error

	gotContent string
	gotUserID  string
	gotConvID  string
}

func (f *fakeAssistant) SendMessage(ctx context.Context, content, userID, conversationID string) (*chat.Reply, error) {
	f.gotContent = content
	f.gotUserID = userID
	f.gotConvID = conversationID
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.reply, nil
}

func (f *fakeAssistant) GetHistory(ctx context.Context, userID string, limit int) (*chat.History, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeAssistant) ValidateMessage(content string) chat.Validation {
	if strings.TrimSpace(content) == "" {
		return chat.Validation{Error: "Message cannot be empty."}
	}
	return chat.Validation{IsValid: true}
}

func (f *fakeAssistant) CacheStats() cache.Stats {
	return cache.Stats{Entries: 2, Hits: 5, Misses: 3, HitRate: 0.625}
}

type fakeDocStore struct {
	docs []storage.FormDoc
	jobs []storage.Job
}

func (f *fakeDocStore) SaveFormDoc(doc storage.FormDoc) error {
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeDocStore) EnqueueJob(job storage.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeDocStore) ListFormDocs(limit int) ([]storage.FormDoc, error) {
	return f.docs, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshalling body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthOpenWithoutAuth(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "secret")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "secret")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"correct", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/cache/stats", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthDisabledWithEmptyToken(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "")

	req := httptest.NewRequest("GET", "/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	assistant := &fakeAssistant{reply: &chat.Reply{
		Message:        chat.Message{ID: "m1", Content: "June 30", Sender: "assistant"},
		Sources:        []string{"Deadlines"},
		ConversationID: "conv-1",
		Attempts:       1,
	}}
	handler := NewHandler(assistant, &fakeDocStore{}, "")

	rec := postJSON(t, handler, "/v1/messages", map[string]string{
		"content": "when is it due", "user_id": "alice", "conversation_id": "conv-1",
	}, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if assistant.gotContent != "when is it due" || assistant.gotUserID != "alice" || assistant.gotConvID != "conv-1" {
		t.Errorf("request not forwarded: %q %q %q", assistant.gotContent, assistant.gotUserID, assistant.gotConvID)
	}

	var reply chat.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.Message.Content != "June 30" || reply.ConversationID != "conv-1" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestSendMessageBadJSON(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "")

	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFaultStatusMapping(t *testing.T) {
	tests := []struct {
		kind fault.Kind
		want int
	}{
		{fault.KindValidation, http.StatusBadRequest},
		{fault.KindAuthentication, http.StatusUnauthorized},
		{fault.KindRateLimit, http.StatusTooManyRequests},
		{fault.KindTimeout, http.StatusGatewayTimeout},
		{fault.KindServiceUnavailable, http.StatusBadGateway},
		{fault.KindNetwork, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assistant := &fakeAssistant{sendErr: fault.New(tt.kind, fault.Context{}, "boom")}
			handler := NewHandler(assistant, &fakeDocStore{}, "")

			rec := postJSON(t, handler, "/v1/messages", map[string]string{"content": "q"}, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}

			var envelope struct {
				Error struct {
					Type     string `json:"type"`
					Severity string `json:"severity"`
					Message  string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("decoding envelope: %v", err)
			}
			if envelope.Error.Type != string(tt.kind) {
				t.Errorf("error type = %q, want %q", envelope.Error.Type, tt.kind)
			}
			if envelope.Error.Message == "" {
				t.Error("user message missing from envelope")
			}
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "")

	rec := postJSON(t, handler, "/v1/messages/validate", map[string]string{"content": "   "}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var v chat.Validation
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if v.IsValid || v.Error == "" {
		t.Errorf("validation = %+v", v)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	assistant := &fakeAssistant{history: &chat.History{
		Messages: []chat.Message{{ID: "m1", Content: "hi", Sender: "user"}},
	}}
	handler := NewHandler(assistant, &fakeDocStore{}, "")

	req := httptest.NewRequest("GET", "/v1/history?user_id=alice&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var h chat.History
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(h.Messages) != 1 {
		t.Errorf("messages = %+v", h.Messages)
	}
}

func TestHistoryBadLimit(t *testing.T) {
	handler := NewHandler(&fakeAssistant{history: &chat.History{}}, &fakeDocStore{}, "")

	req := httptest.NewRequest("GET", "/v1/history?user_id=alice&limit=abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "")

	req := httptest.NewRequest("GET", "/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var stats cache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if stats.Hits != 5 || stats.Misses != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAddDocumentEndpoint(t *testing.T) {
	docs := &fakeDocStore{}
	handler := NewHandler(&fakeAssistant{}, docs, "")

	rec := postJSON(t, handler, "/v1/documents", map[string]string{
		"title": "Deadlines", "content": "The federal deadline is June 30.",
	}, "")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(docs.docs) != 1 {
		t.Fatalf("docs saved = %d", len(docs.docs))
	}
	if docs.docs[0].Status != "pending" {
		t.Errorf("doc status = %q", docs.docs[0].Status)
	}
	if len(docs.jobs) != 1 || docs.jobs[0].Type != ingest.JobTypeIndexDoc {
		t.Fatalf("jobs = %+v", docs.jobs)
	}

	var payload ingest.IndexPayload
	if err := json.Unmarshal([]byte(docs.jobs[0].PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.DocID != docs.docs[0].ID {
		t.Errorf("job references %q, doc is %q", payload.DocID, docs.docs[0].ID)
	}
}

func TestAddDocumentRequiresContent(t *testing.T) {
	handler := NewHandler(&fakeAssistant{}, &fakeDocStore{}, "")

	rec := postJSON(t, handler, "/v1/documents", map[string]string{"title": "Empty"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListDocumentsEndpoint(t *testing.T) {
	docs := &fakeDocStore{docs: []storage.FormDoc{{ID: "d1", Title: "A", Status: "indexed"}}}
	handler := NewHandler(&fakeAssistant{}, docs, "")

	req := httptest.NewRequest("GET", "/v1/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var result struct {
		Documents []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(result.Documents) != 1 || result.Documents[0].Status != "indexed" {
		t.Errorf("documents = %+v", result.Documents)
	}
}
