package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davehedengren/conference-talk-grace-works-classifier/classifier"
	"github.com/davehedengren/conference-talk-grace-works-classifier/talks"
)

const graceTalkHTML = `<!DOCTYPE html>
<html>
<body>
<p class="author-name">By President Dieter F. Uchtdorf</p>
<div class="body-block">
<p>Salvation cannot be bought with the currency of obedience; it is purchased by the blood of the Son of God.</p>
</div>
</body>
</html>`

const worksTalkHTML = `<!DOCTYPE html>
<html>
<body>
<div class="body-block">
<p>Faith without works is dead, and true discipleship is shown in daily obedience.</p>
</div>
</body>
</html>`

func writeTalkFile(t *testing.T, dir, name, html string) talks.File {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatalf("write talk file: %v", err)
	}
	return talks.File{Path: path, Name: name}
}

func readRequests(t *testing.T, path string) []Request {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read batch input: %v", err)
	}
	var reqs []Request
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			t.Fatalf("decode request line %q: %v", line, err)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func TestGenerateInputFile(t *testing.T) {
	dir := t.TempDir()
	files := []talks.File{
		writeTalkFile(t, dir, "2015-04-the-gift-of-grace_dieter-f-uchtdorf.html", graceTalkHTML),
		writeTalkFile(t, dir, "notes.html", worksTalkHTML),
		writeTalkFile(t, dir, "2020-10-faith-to-act_jane-doe.html", worksTalkHTML),
	}

	outputPath := filepath.Join(dir, "batch_input.jsonl")
	written, err := GenerateInputFile(files, "gpt-4o", outputPath)
	if err != nil {
		t.Fatalf("GenerateInputFile returned error: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2", written)
	}

	reqs := readRequests(t, outputPath)
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}

	first := reqs[0]
	if first.CustomID != "request_1_2015-04-the-gift-of-grace_dieter-f-uchtdorf.html" {
		t.Errorf("CustomID = %q", first.CustomID)
	}
	if first.Method != "POST" || first.URL != "/v1/chat/completions" {
		t.Errorf("Method/URL = %q %q", first.Method, first.URL)
	}
	if first.Body.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", first.Body.Model)
	}
	if first.Body.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", first.Body.Temperature)
	}
	if first.Body.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat.Type = %q, want json_object", first.Body.ResponseFormat.Type)
	}
	if len(first.Body.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(first.Body.Messages))
	}
	if first.Body.Messages[0].Role != "system" || first.Body.Messages[0].Content != classifier.SystemPrompt {
		t.Errorf("system message = %+v", first.Body.Messages[0])
	}
	user := first.Body.Messages[1]
	if user.Role != "user" {
		t.Errorf("user role = %q, want user", user.Role)
	}
	for _, want := range []string{
		"Talk: the-gift-of-grace",
		"Speaker: Dieter F. Uchtdorf",
		"Conference: 2015-04",
		"currency of obedience",
	} {
		if !strings.Contains(user.Content, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}

	// The unparseable middle file is skipped but still consumes a request
	// number, so custom IDs keep matching input positions.
	second := reqs[1]
	if second.CustomID != "request_3_2020-10-faith-to-act_jane-doe.html" {
		t.Errorf("CustomID = %q, want a request_3 id", second.CustomID)
	}
	if !strings.Contains(second.Body.Messages[1].Content, "Speaker: jane-doe") {
		t.Errorf("prompt should fall back to the filename speaker, got %q", second.Body.Messages[1].Content)
	}
}

func TestGenerateInputFileSkipsEmptyContent(t *testing.T) {
	dir := t.TempDir()
	files := []talks.File{
		writeTalkFile(t, dir, "2019-04-silent-page.html", `<html><body></body></html>`),
	}

	outputPath := filepath.Join(dir, "batch_input.jsonl")
	written, err := GenerateInputFile(files, "gpt-4o", outputPath)
	if err != nil {
		t.Fatalf("GenerateInputFile returned error: %v", err)
	}
	if written != 0 {
		t.Errorf("written = %d, want 0", written)
	}
	if reqs := readRequests(t, outputPath); len(reqs) != 0 {
		t.Errorf("got %d requests, want 0", len(reqs))
	}
}

func TestGenerateInputFileSkipsMissingFile(t *testing.T) {
	dir := t.TempDir()
	files := []talks.File{
		{Path: filepath.Join(dir, "2018-10-gone.html"), Name: "2018-10-gone.html"},
	}

	outputPath := filepath.Join(dir, "batch_input.jsonl")
	written, err := GenerateInputFile(files, "gpt-4o", outputPath)
	if err != nil {
		t.Fatalf("GenerateInputFile returned error: %v", err)
	}
	if written != 0 {
		t.Errorf("written = %d, want 0", written)
	}
}

func TestGenerateInputFileBadOutputPath(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "no-such-dir", "batch_input.jsonl")
	_, err := GenerateInputFile(nil, "gpt-4o", outputPath)
	if err == nil {
		t.Fatal("expected error for unwritable output path")
	}
	if !strings.Contains(err.Error(), "create batch input file") {
		t.Errorf("error = %v, want create batch input file wrap", err)
	}
}
