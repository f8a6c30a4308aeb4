package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

// SystemPrompt pins the JSON output contract for every provider. Batch
// request generation reuses it so live and batch runs are comparable.
const SystemPrompt = "You are an expert at analyzing religious talks and determining their theological emphasis. You will output a JSON object with the fields 'score', 'explanation', and 'key_phrases'."

// The explanation strings below are written into the result table and
// matched by the resume ledger to decide what gets retried. Their
// wording is part of the on-disk contract.
const (
	parseErrorExplanation = "Error parsing LLM response"
	callErrorPrefix       = "Error in classification: "
	errorKeyPhrase        = "Error in classification"
)

// Provider produces a raw model response for a rendered prompt.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Result is the outcome of classifying one talk. Failures are encoded
// in-band as a zero score plus a sentinel explanation, never an error.
type Result struct {
	Score       int
	Explanation string
	KeyPhrases  []string
	Model       string
}

// PromptData carries the talk fields rendered into the prompt.
type PromptData struct {
	Title      string
	Speaker    string
	Conference string
	Date       string
}

// Classifier turns talk text into scored Results via a Provider.
type Classifier struct {
	provider Provider
}

// New creates a Classifier backed by the given provider.
func New(provider Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Model reports the provider's model identifier.
func (c *Classifier) Model() string {
	return c.provider.Model()
}

// Classify renders the prompt for one talk and calls the model. It never
// returns an error: transport failures and malformed responses come back
// as sentinel Results, which the result table records as retryable rows.
func (c *Classifier) Classify(ctx context.Context, content string, data PromptData) Result {
	model := c.provider.Model()

	prompt, err := BuildPrompt(data, content)
	if err != nil {
		return callErrorResult(model, err)
	}

	raw, err := c.provider.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return callErrorResult(model, err)
	}

	return parseResponse(raw, model)
}

var promptTemplate = template.Must(template.New("classify").Parse(`Analyze the following conference talk and determine where it falls on the spectrum between salvation by grace and salvation by works.

Talk: {{.Title}}
Speaker: {{.Speaker}}
Conference: {{.Conference}}
Date: {{.Date}}

Score the talk on an integer scale from -3 to +3:
-3: heavily emphasizes grace; salvation comes through the atonement of Christ alone
-2: emphasizes grace, with works in a supporting role
-1: leans toward grace
0: balanced treatment of grace and works
+1: leans toward works
+2: emphasizes works, with grace in a supporting role
+3: heavily emphasizes works; salvation must be earned through obedience and effort

Respond with a JSON object containing exactly these fields:
- "score": the integer score
- "explanation": two or three sentences justifying the score
- "key_phrases": a list of short quotes from the talk that support the score

Talk text:
{{.Content}}`))

type promptInput struct {
	PromptData
	Content string
}

// BuildPrompt renders the classification prompt for one talk.
func BuildPrompt(data PromptData, content string) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, promptInput{PromptData: data, Content: content}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

type rawClassification struct {
	Score       json.RawMessage `json:"score"`
	Explanation *string         `json:"explanation"`
	KeyPhrases  json.RawMessage `json:"key_phrases"`
}

// parseResponse enforces the output contract: a JSON object with an
// integer score in [-3, 3], an explanation and key phrases. Anything
// else becomes the parse-error sentinel.
func parseResponse(raw, model string) Result {
	text := stripMarkdownCodeBlock(raw)

	var rc rawClassification
	if err := json.Unmarshal([]byte(text), &rc); err != nil {
		return parseErrorResult(model)
	}
	if len(rc.Score) == 0 || rc.Explanation == nil || len(rc.KeyPhrases) == 0 {
		return parseErrorResult(model)
	}

	score, err := strconv.Atoi(string(rc.Score))
	if err != nil || score < -3 || score > 3 {
		return parseErrorResult(model)
	}

	phrases, ok := normalizeKeyPhrases(rc.KeyPhrases)
	if !ok {
		return parseErrorResult(model)
	}

	return Result{
		Score:       score,
		Explanation: *rc.Explanation,
		KeyPhrases:  phrases,
		Model:       model,
	}
}

// normalizeKeyPhrases accepts either a single string or a sequence and
// always yields a slice. Non-string sequence elements are formatted.
func normalizeKeyPhrases(raw json.RawMessage) ([]string, bool) {
	if string(raw) == "null" {
		return nil, false
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, true
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	phrases := make([]string, 0, len(list))
	for _, v := range list {
		switch x := v.(type) {
		case string:
			phrases = append(phrases, x)
		default:
			phrases = append(phrases, fmt.Sprint(x))
		}
	}
	return phrases, true
}

func parseErrorResult(model string) Result {
	return Result{
		Score:       0,
		Explanation: parseErrorExplanation,
		KeyPhrases:  []string{errorKeyPhrase},
		Model:       model,
	}
}

func callErrorResult(model string, err error) Result {
	return Result{
		Score:       0,
		Explanation: callErrorPrefix + err.Error(),
		KeyPhrases:  []string{errorKeyPhrase},
		Model:       model,
	}
}

var codeBlockRegex = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.+?)\\s*```\\s*$")

func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if matches := codeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return s
}
