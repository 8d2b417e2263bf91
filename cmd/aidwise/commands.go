package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidwise/aidwise/internal/config"
	"github.com/aidwise/aidwise/internal/ingest"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the financial-aid form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		userID, _ := cmd.Flags().GetString("user")
		conversationID, _ := cmd.Flags().GetString("conversation")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"content": question}
		if userID != "" {
			req["user_id"] = userID
		}
		if conversationID != "" {
			req["conversation_id"] = conversationID
		}

		resp, err := client.post(cmd.Context(), "/v1/messages", req)
		if err != nil {
			return err
		}

		var reply struct {
			Message struct {
				Content   string `json:"content"`
				ErrorType string `json:"error_type"`
			} `json:"message"`
			Sources         []string `json:"sources"`
			ConversationID  string   `json:"conversation_id"`
			PrivacyWarnings []string `json:"privacy_warnings"`
			Cached          bool     `json:"cached"`
			Attempts        int      `json:"attempts"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		for _, w := range reply.PrivacyWarnings {
			printWarning("%s", w)
		}
		if reply.Message.ErrorType != "" {
			printError("answer degraded (%s)", reply.Message.ErrorType)
		}
		fmt.Println(reply.Message.Content)
		if len(reply.Sources) > 0 {
			fmt.Printf("\n%s\n", colorize(ansiBold, "Sources:"))
			for _, s := range reply.Sources {
				fmt.Printf("  - %s\n", s)
			}
		}
		if reply.Cached {
			printStep("served from cache")
		}
		if reply.ConversationID != "" {
			printStatus("Conversation", "%s", reply.ConversationID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("user", "", "user ID for scoped caching and history")
	askCmd.Flags().String("conversation", "", "conversation ID to continue")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent chat messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/history?user_id=%s&limit=%d", userID, limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var history struct {
			Messages []struct {
				Content   string    `json:"content"`
				Sender    string    `json:"sender"`
				Timestamp time.Time `json:"timestamp"`
			} `json:"messages"`
			HasMore bool `json:"has_more"`
		}
		if err := decodeJSON(resp, &history); err != nil {
			return err
		}

		if len(history.Messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for _, m := range history.Messages {
			label := m.Sender
			if !m.Timestamp.IsZero() {
				label = fmt.Sprintf("%s %s", m.Sender, m.Timestamp.Local().Format("2006-01-02 15:04"))
			}
			fmt.Printf("\n%s\n", colorize(ansiBold, label))
			fmt.Printf("  %s\n", m.Content)
		}
		if history.HasMore {
			printStep("more messages available; raise --limit to see them")
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("user", "", "user whose history to show")
	historyCmd.Flags().Int("limit", 20, "maximum number of messages")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add form documentation to the knowledge base",
	Long: `Add form documentation to the knowledge base.

Examples:
  aidwise ingest --text "Question 32 asks for adjusted gross income" --title "AGI note"
  aidwise ingest --file ./fafsa-guide.pdf
  aidwise ingest --file ./deadlines.html --title "State deadlines"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		req := map[string]any{"source": "cli"}
		switch {
		case text != "":
			req["content"] = text
		case file != "":
			extractedTitle, content, err := ingest.ExtractFile(file)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", file, err)
			}
			req["content"] = content
			if title == "" {
				title = extractedTitle
			}
		}
		if title != "" {
			req["title"] = title
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/documents", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s for indexing", result["id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (.pdf, .html, or plain text)")
	ingestCmd.Flags().String("title", "", "title for the document")
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List knowledge base documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/documents")
		if err != nil {
			return err
		}

		var result struct {
			Documents []struct {
				ID        string    `json:"id"`
				Title     string    `json:"title"`
				Status    string    `json:"status"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range result.Documents {
			fmt.Printf("%s  %s  [%s]\n", d.ID, colorize(ansiBold, d.Title), d.Status)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage aidwise configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			// Load still returns defaults plus file values when only
			// the API key is missing.
			printWarning("%v", err)
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		keys := config.ShowAll(cfg)
		if asJSON {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k.Key] = k.Value
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		for _, k := range keys {
			printStatus(k.Key, "%s", k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configShowCmd.Flags().Bool("json", false, "output as JSON")
}
