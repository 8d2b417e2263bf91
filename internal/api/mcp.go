package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aidwise/aidwise/internal/ingest"
	"github.com/aidwise/aidwise/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant Assistant
	Docs      DocStore
}

// NewMCPServer creates an MCP server exposing the assistant as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"aidwise",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("aidwise — assistant for questions about the financial-aid application form."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_form_question",
			mcp.WithDescription("Ask a question about the financial-aid application form and get a grounded answer with citations."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Optional user scope for caching and history")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Return a user's recent chat messages, newest first."),
			mcp.WithString("user_id", mcp.Description("User whose history to fetch"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of messages (default 20)")),
		),
		mcpHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("add_form_doc",
			mcp.WithDescription("Store a piece of form documentation in the knowledge base and queue it for indexing."),
			mcp.WithString("title", mcp.Description("Title for the document")),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
		),
		mcpAddDoc(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		userID := req.GetString("user_id", "")

		reply, err := deps.Assistant.SendMessage(ctx, question, userID, "")
		if err != nil {
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		history, err := deps.Assistant.GetHistory(ctx, userID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("history failed: %v", err)), nil
		}

		b, err := json.Marshal(history)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddDoc(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "Untitled document")

		doc := storage.FormDoc{
			ID:        uuid.New().String(),
			Title:     title,
			Content:   content,
			Source:    "mcp",
			Status:    "pending",
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Docs.SaveFormDoc(doc); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		payload, err := json.Marshal(ingest.IndexPayload{DocID: doc.ID})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal index payload: %v", err)), nil
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeIndexDoc,
			PayloadJSON: string(payload),
		}
		if err := deps.Docs.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("saved doc but failed to queue indexing: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored form doc %s", doc.ID)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
