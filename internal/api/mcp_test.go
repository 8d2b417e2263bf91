package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aidwise/aidwise/internal/chat"
)

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return tc.Text
}

func TestMCPAsk(t *testing.T) {
	assistant := &fakeAssistant{reply: &chat.Reply{
		Message: chat.Message{ID: "m1", Content: "June 30", Sender: "assistant"},
		Sources: []string{"Deadlines"},
	}}
	handler := mcpAsk(MCPDeps{Assistant: assistant})

	result, err := handler(context.Background(), makeCallToolRequest("ask_form_question", map[string]any{
		"question": "when is the deadline",
		"user_id":  "alice",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", textContent(t, result))
	}

	var reply chat.Reply
	if err := json.Unmarshal([]byte(textContent(t, result)), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.Message.Content != "June 30" {
		t.Errorf("reply = %+v", reply)
	}
	if assistant.gotUserID != "alice" {
		t.Errorf("user_id = %q", assistant.gotUserID)
	}
}

func TestMCPAskRequiresQuestion(t *testing.T) {
	handler := mcpAsk(MCPDeps{Assistant: &fakeAssistant{}})

	result, err := handler(context.Background(), makeCallToolRequest("ask_form_question", map[string]any{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing question")
	}
}

func TestMCPHistory(t *testing.T) {
	assistant := &fakeAssistant{history: &chat.History{
		Messages: []chat.Message{{ID: "m1", Content: "hi", Sender: "user"}},
	}}
	handler := mcpHistory(MCPDeps{Assistant: assistant})

	result, err := handler(context.Background(), makeCallToolRequest("get_history", map[string]any{
		"user_id": "alice",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", textContent(t, result))
	}

	var history chat.History
	if err := json.Unmarshal([]byte(textContent(t, result)), &history); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(history.Messages) != 1 {
		t.Errorf("history = %+v", history)
	}
}

func TestMCPAddDoc(t *testing.T) {
	docs := &fakeDocStore{}
	handler := mcpAddDoc(MCPDeps{Docs: docs})

	result, err := handler(context.Background(), makeCallToolRequest("add_form_doc", map[string]any{
		"title":   "Deadlines",
		"content": "The federal deadline is June 30.",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", textContent(t, result))
	}
	if !strings.Contains(textContent(t, result), "Stored form doc") {
		t.Errorf("result text = %q", textContent(t, result))
	}
	if len(docs.docs) != 1 || len(docs.jobs) != 1 {
		t.Errorf("saved %d docs, %d jobs", len(docs.docs), len(docs.jobs))
	}
	if docs.docs[0].Source != "mcp" {
		t.Errorf("source = %q", docs.docs[0].Source)
	}
}

func TestMCPAddDocRequiresContent(t *testing.T) {
	handler := mcpAddDoc(MCPDeps{Docs: &fakeDocStore{}})

	result, err := handler(context.Background(), makeCallToolRequest("add_form_doc", map[string]any{
		"title": "Empty",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing content")
	}
}
