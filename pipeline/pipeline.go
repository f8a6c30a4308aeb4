package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davehedengren/conference-talk-grace-works-classifier/classifier"
	"github.com/davehedengren/conference-talk-grace-works-classifier/extract"
	"github.com/davehedengren/conference-talk-grace-works-classifier/results"
	"github.com/davehedengren/conference-talk-grace-works-classifier/talks"
)

const previewLength = 100

// DefaultRateLimit is the minimum spacing between successive model calls.
const DefaultRateLimit = 100 * time.Millisecond

// Extractor pulls body text and the speaker name from a talk file.
type Extractor interface {
	Extract(path string) (extract.Content, error)
}

// Classifier scores talk content on the grace-works scale.
type Classifier interface {
	Classify(ctx context.Context, content string, data classifier.PromptData) classifier.Result
	Model() string
}

// Summary describes one classification run.
type Summary struct {
	RunID       string
	OutputPath  string
	CarriedOver int
	Processed   int
	Succeeded   int
	Failed      int
	CacheHits   int
	Duration    time.Duration
}

// Runner orchestrates a classification run: resume ledger, talk discovery,
// work-list selection, per-talk classification and incremental writes.
type Runner struct {
	extractor  Extractor
	classifier Classifier
	talksDir   string
	outputPath string
	resumeFrom string
	selection  talks.Selection
	batchSize  int
	rateLimit  time.Duration
	progress   bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithTalksDir sets the directory scanned for talk files.
func WithTalksDir(dir string) Option {
	return func(r *Runner) {
		r.talksDir = dir
	}
}

// WithOutputPath sets the result table path.
func WithOutputPath(path string) Option {
	return func(r *Runner) {
		r.outputPath = path
	}
}

// WithResumeFrom sets a previous result table to resume from.
func WithResumeFrom(path string) Option {
	return func(r *Runner) {
		r.resumeFrom = path
	}
}

// WithSelection restricts which talks the run processes.
func WithSelection(sel talks.Selection) Option {
	return func(r *Runner) {
		r.selection = sel
	}
}

// WithBatchSize sets how many rows buffer before a flush.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		r.batchSize = n
	}
}

// WithRateLimit sets the minimum spacing between model calls. Zero
// disables rate limiting.
func WithRateLimit(d time.Duration) Option {
	return func(r *Runner) {
		r.rateLimit = d
	}
}

// WithProgress toggles per-talk progress logging.
func WithProgress(enabled bool) Option {
	return func(r *Runner) {
		r.progress = enabled
	}
}

// NewRunner creates a classification runner.
func NewRunner(extractor Extractor, clf Classifier, opts ...Option) *Runner {
	r := &Runner{
		extractor:  extractor,
		classifier: clf,
		batchSize:  results.DefaultBatchSize,
		rateLimit:  DefaultRateLimit,
		progress:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the classification workflow. The cache and rate gate live
// for exactly one run. Partial summaries are returned alongside the error
// when a run is interrupted or a write fails.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.talksDir == "" {
		return nil, fmt.Errorf("talks dir not set")
	}
	if r.outputPath == "" {
		return nil, fmt.Errorf("output path not set")
	}

	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), OutputPath: r.outputPath}
	log := slog.With("run_id", summary.RunID)

	log.Info("starting classification run",
		"talks_dir", r.talksDir, "output", r.outputPath, "model", r.classifier.Model())

	// Step 1: Load the resume ledger
	ledger := results.Ledger{Processed: make(map[string]bool)}
	if r.resumeFrom != "" {
		var err error
		ledger, err = results.LoadLedger(r.resumeFrom)
		if err != nil {
			return nil, err
		}
		log.Info("resuming from previous results",
			"file", r.resumeFrom, "completed", len(ledger.Processed))
	}

	// Step 2: Discover talks and resolve the work list
	all, err := talks.Discover(r.talksDir)
	if err != nil {
		return nil, err
	}
	work, err := talks.SelectWork(r.selection, all, ledger.Processed)
	if err != nil {
		return nil, err
	}
	log.Info("work list resolved", "discovered", len(all), "selected", len(work))

	// Step 3: Seed the output with the carried-forward rows so the new
	// table is self-contained before any fresh work lands in it.
	if r.resumeFrom != "" {
		if err := results.WriteSnapshot(r.outputPath, ledger.CarryForward); err != nil {
			return nil, err
		}
		summary.CarriedOver = len(ledger.CarryForward)
	}

	if len(work) == 0 {
		log.Warn("no talks to process")
		summary.Duration = time.Since(start)
		return summary, nil
	}

	// Step 4: Classify each talk, writing in batches
	cache := classifier.NewCache()
	gate := classifier.NewRateGate(r.rateLimit)
	writer := results.NewWriter(r.outputPath, r.batchSize)

	if r.rateLimit > 0 {
		log.Info("rate limiting enabled", "interval", r.rateLimit,
			"estimated", (time.Duration(len(work)) * r.rateLimit).Round(time.Second))
	}

	for i, f := range work {
		if ctx.Err() != nil {
			log.Warn("run interrupted", "remaining", len(work)-i)
			if err := writer.Close(); err != nil {
				return summary, err
			}
			summary.Duration = time.Since(start)
			return summary, ctx.Err()
		}

		if r.progress {
			log.Info("processing talk", "index", i+1, "total", len(work), "file", f.Name)
		}

		meta := talks.ParseFilename(f.Name)
		if meta.Year == "" {
			log.Warn("skipping file with unparseable name", "file", f.Name)
			continue
		}

		row, hit, err := r.processTalk(ctx, f, meta, cache, gate)
		if err != nil {
			log.Warn("run interrupted", "remaining", len(work)-i)
			if closeErr := writer.Close(); closeErr != nil {
				return summary, closeErr
			}
			summary.Duration = time.Since(start)
			return summary, err
		}
		if hit {
			summary.CacheHits++
		}

		if err := writer.Add(row); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		summary.Processed++
		if row.IsError() {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	if err := writer.Close(); err != nil {
		summary.Duration = time.Since(start)
		return summary, err
	}

	summary.Duration = time.Since(start)
	log.Info("classification run complete",
		"processed", summary.Processed, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "cache_hits", summary.CacheHits,
		"cached_entries", cache.Size(), "duration", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// processTalk turns one talk file into a result row. Extraction failures
// come back as a degraded row, never an error; the only error returned is
// context cancellation while waiting on the rate gate.
func (r *Runner) processTalk(
	ctx context.Context,
	f talks.File,
	meta talks.Metadata,
	cache *classifier.Cache,
	gate *classifier.RateGate,
) (results.Row, bool, error) {
	content, err := r.extractor.Extract(f.Path)
	if err != nil {
		slog.Warn("content extraction failed", "file", f.Name, "error", err)
		return degradedRow(f.Name, meta, r.classifier.Model()), false, nil
	}
	if content.Text == "" {
		slog.Warn("empty content extracted", "file", f.Name)
		return degradedRow(f.Name, meta, r.classifier.Model()), false, nil
	}

	speaker := content.Speaker
	if speaker == "" {
		speaker = meta.Speaker
	}
	if speaker == "" {
		speaker = "Unknown Speaker"
	}

	fingerprint := classifier.Fingerprint(content.Text)
	result, hit := cache.Get(fingerprint)
	if !hit {
		if err := gate.Wait(ctx); err != nil {
			return results.Row{}, false, err
		}
		result = r.classifier.Classify(ctx, content.Text, classifier.PromptData{
			Title:      meta.Identifier,
			Speaker:    speaker,
			Conference: meta.SessionID,
			Date:       meta.SessionID,
		})
		cache.Set(fingerprint, result)
	}

	return results.Row{
		Filename:    f.Name,
		Year:        meta.Year,
		Month:       meta.Month,
		SessionID:   meta.SessionID,
		TalkID:      meta.Identifier,
		Speaker:     speaker,
		Preview:     preview(content.Text),
		Score:       result.Score,
		Explanation: result.Explanation,
		KeyPhrases:  strings.Join(result.KeyPhrases, ", "),
		Model:       result.Model,
	}, hit, nil
}

// degradedRow records a talk whose content could not be read. The row is
// an error row, so a resumed run will try the talk again.
func degradedRow(filename string, meta talks.Metadata, model string) results.Row {
	speaker := meta.Speaker
	if speaker == "" {
		speaker = "Unknown Speaker"
	}
	return results.Row{
		Filename:    filename,
		Year:        meta.Year,
		Month:       meta.Month,
		SessionID:   meta.SessionID,
		TalkID:      meta.Identifier,
		Speaker:     speaker,
		Preview:     "Error: Could not read content",
		Score:       0,
		Explanation: "File content extraction failed",
		KeyPhrases:  "",
		Model:       model,
	}
}

// preview is the first 100 characters of the content with newlines
// flattened to spaces, always suffixed with "...".
func preview(content string) string {
	runes := []rune(content)
	if len(runes) > previewLength {
		runes = runes[:previewLength]
	}
	return strings.ReplaceAll(string(runes), "\n", " ") + "..."
}
