package batch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/davehedengren/conference-talk-grace-works-classifier/classifier"
	"github.com/davehedengren/conference-talk-grace-works-classifier/extract"
	"github.com/davehedengren/conference-talk-grace-works-classifier/talks"
)

// Request is one line of an OpenAI Batch API input file.
type Request struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// RequestBody mirrors the chat completions payload the live classifier
// sends, so batch and live runs produce comparable results.
type RequestBody struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat ResponseFormat `json:"response_format"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// GenerateInputFile renders one batch request per readable talk file and
// writes them as JSONL to outputPath. Files that fail filename parsing or
// content extraction are skipped with a warning; request numbering still
// advances for skipped files so custom IDs stay aligned with the input
// order. Returns the number of requests written.
func GenerateInputFile(files []talks.File, model, outputPath string) (int, error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create batch input file: %w", err)
	}

	enc := json.NewEncoder(out)
	written := 0
	for i, f := range files {
		req, ok := buildRequest(i+1, f, model)
		if !ok {
			continue
		}
		if err := enc.Encode(req); err != nil {
			out.Close()
			return written, fmt.Errorf("write batch request: %w", err)
		}
		written++
	}

	if err := out.Close(); err != nil {
		return written, fmt.Errorf("close batch input file: %w", err)
	}
	return written, nil
}

func buildRequest(n int, f talks.File, model string) (Request, bool) {
	meta := talks.ParseFilename(f.Name)
	if meta.Year == "" {
		slog.Warn("skipping file with unparseable name", "file", f.Name)
		return Request{}, false
	}

	content, err := extract.Talk(f.Path)
	if err != nil {
		slog.Warn("skipping unreadable file", "file", f.Name, "error", err)
		return Request{}, false
	}
	if content.Text == "" {
		slog.Warn("skipping file with empty content", "file", f.Name)
		return Request{}, false
	}

	speaker := content.Speaker
	if speaker == "" {
		speaker = meta.Speaker
	}
	if speaker == "" {
		speaker = "Unknown Speaker"
	}

	prompt, err := classifier.BuildPrompt(classifier.PromptData{
		Title:      meta.Identifier,
		Speaker:    speaker,
		Conference: meta.SessionID,
		Date:       meta.SessionID,
	}, content.Text)
	if err != nil {
		slog.Warn("skipping file whose prompt failed to render", "file", f.Name, "error", err)
		return Request{}, false
	}

	return Request{
		CustomID: fmt.Sprintf("request_%d_%s", n, f.Name),
		Method:   "POST",
		URL:      "/v1/chat/completions",
		Body: RequestBody{
			Model: model,
			Messages: []Message{
				{Role: "system", Content: classifier.SystemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature:    0.3,
			ResponseFormat: ResponseFormat{Type: "json_object"},
		},
	}, true
}
