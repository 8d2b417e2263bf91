// Package ingest turns form documentation (PDF, HTML, plain text) into
// embedded passages in the knowledge base, driven by the job queue.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ExtractFile reads a local file and returns its title and plain-text
// content. PDF and HTML files are converted; anything else is treated as
// plain text.
func ExtractFile(path string) (title, text string, err error) {
	base := filepath.Base(path)
	title = strings.TrimSuffix(base, filepath.Ext(base))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path)
	case ".html", ".htm":
		text, err = extractHTMLFile(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return "", "", fmt.Errorf("extracting %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("no text content in %s", path)
	}
	return title, text, nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("buffering pdf text: %w", err)
	}
	return buf.String(), nil
}

func extractHTMLFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	var sb strings.Builder
	collectText(doc, &sb)
	return sb.String(), nil
}

// collectText walks the HTML tree collecting visible text, skipping script
// and style subtrees.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		trimmed := strings.TrimSpace(n.Data)
		if trimmed != "" {
			sb.WriteString(trimmed)
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// chunkSize bounds one embedded passage. Small enough to stay specific,
// large enough to carry a full form instruction.
const chunkSize = 1200

// Chunk splits text into passages on paragraph boundaries, merging short
// paragraphs and splitting oversized ones.
func Chunk(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for len(p) > chunkSize {
			flush()
			chunks = append(chunks, p[:chunkSize])
			p = p[chunkSize:]
		}
		if current.Len() > 0 && current.Len()+len(p) > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}
