package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/davehedengren/conference-talk-grace-works-classifier/analysis"
	"github.com/davehedengren/conference-talk-grace-works-classifier/batch"
	"github.com/davehedengren/conference-talk-grace-works-classifier/classifier"
	"github.com/davehedengren/conference-talk-grace-works-classifier/config"
	"github.com/davehedengren/conference-talk-grace-works-classifier/dedup"
	"github.com/davehedengren/conference-talk-grace-works-classifier/extract"
	"github.com/davehedengren/conference-talk-grace-works-classifier/notify"
	"github.com/davehedengren/conference-talk-grace-works-classifier/pipeline"
	"github.com/davehedengren/conference-talk-grace-works-classifier/results"
	"github.com/davehedengren/conference-talk-grace-works-classifier/scheduler"
	"github.com/davehedengren/conference-talk-grace-works-classifier/talks"
)

const usage = `Usage: classifier [command] [flags]

Commands:
  classify   Classify conference talks (default when the first arg is a flag)
  dedup      Standardize near-duplicate speaker names in a result table
  analyze    Aggregate a result table into session and speaker averages
  label      Join speaker names extracted from talk HTML onto a result table
  prune      Remove talk files duplicated by a _lang=eng variant
  batch      Manage OpenAI Batch API jobs (upload|create|status|list|download)

Run "classifier <command> -h" for the flags of one command.`

func main() {
	args := os.Args[1:]
	cmd := "classify"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "classify":
		runClassify(args)
	case "dedup":
		runDedup(args)
	case "analyze":
		runAnalyze(args)
	case "label":
		runLabel(args)
	case "prune":
		runPrune(args)
	case "batch":
		runBatch(args)
	case "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
}

// logFlags registers the logging flags every command shares.
func logFlags(fs *flag.FlagSet) (level *string, jsonOut *bool) {
	level = fs.String("log-level", "info", "log level (debug|info|warn|error)")
	jsonOut = fs.Bool("log-json", false, "log as JSON instead of text")
	return level, jsonOut
}

func setupLogging(level string, jsonOut bool) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if jsonOut {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig loads .env and the YAML config, exiting on validation
// failure. Configuration errors are the only fatal errors in the system.
func loadConfig(path string) *config.Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	return cfg
}

func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	numTalks := fs.Int("num-talks", 0, "classify at most this many unprocessed talks (0 = all)")
	file := fs.String("file", "", "classify exactly one talk file")
	batchInput := fs.String("generate-batch-input", "", "write a Batch API request file here instead of classifying")
	resumeFrom := fs.String("resume-from-csv", "", "result table from a previous run to resume")
	model := fs.String("model", "", "override the configured model")
	rateLimit := fs.Duration("rate-limit", pipeline.DefaultRateLimit, "minimum delay between model calls")
	noProgress := fs.Bool("no-progress", false, "suppress per-talk progress logs")
	output := fs.String("output", "", "result table path (default: timestamped file in the output dir)")
	configPath := fs.String("config", "", "config file path")
	level, jsonOut := logFlags(fs)
	fs.Parse(args)

	setupLogging(*level, *jsonOut)
	cfg := loadConfig(*configPath)
	if *model != "" {
		cfg.OpenAIModel = *model
		cfg.AnthropicModel = *model
	}

	sel := talks.Selection{SingleFile: *file, Limit: *numTalks}

	if *batchInput != "" {
		generateBatchInput(cfg, sel, *batchInput)
		return
	}

	clf := classifier.New(newProvider(cfg))

	var notifier *notify.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		sender, err := notify.NewTelegramSender(cfg.TelegramToken)
		if err != nil {
			slog.Error("failed to initialize telegram sender", "error", err)
			os.Exit(1)
		}
		notifier = notify.NewNotifier(sender, cfg.TelegramChatID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	doRun := func(ctx context.Context) error {
		outputPath := *output
		if outputPath == "" {
			outputPath = filepath.Join(cfg.OutputDir,
				"conference_talk_scores_"+time.Now().Format("20060102_150405")+".csv")
		}

		runner := pipeline.NewRunner(
			talkExtractor{},
			clf,
			pipeline.WithTalksDir(cfg.TalksDir),
			pipeline.WithOutputPath(outputPath),
			pipeline.WithResumeFrom(*resumeFrom),
			pipeline.WithSelection(sel),
			pipeline.WithBatchSize(cfg.BatchSize),
			pipeline.WithRateLimit(*rateLimit),
			pipeline.WithProgress(!*noProgress),
		)

		summary, err := runner.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			slog.Error("classification run failed", "error", err)
			if notifier != nil {
				if nErr := notifier.RunFailed(context.Background(), err); nErr != nil {
					slog.Warn("failed to send failure notice", "error", nErr)
				}
			}
			return err
		}

		logSessionAverages(outputPath)
		if notifier != nil {
			if err := notifier.RunComplete(context.Background(), summary); err != nil {
				slog.Warn("failed to send run summary", "error", err)
			}
		}
		return nil
	}

	if cfg.Schedule != "" {
		sched, err := scheduler.NewScheduler(cfg.Timezone)
		if err != nil {
			slog.Error("failed to initialize scheduler", "timezone", cfg.Timezone, "error", err)
			os.Exit(1)
		}
		if err := sched.Run(ctx, cfg.Schedule, func(ctx context.Context) { _ = doRun(ctx) }); err != nil {
			slog.Error("failed to schedule classification runs", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := doRun(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

// generateBatchInput resolves the requested talk selection and writes a
// Batch API request file instead of classifying anything. The resume
// ledger is not consulted: batch requests cover the whole selection.
func generateBatchInput(cfg *config.Config, sel talks.Selection, outputPath string) {
	all, err := talks.Discover(cfg.TalksDir)
	if err != nil {
		slog.Error("failed to discover talks", "dir", cfg.TalksDir, "error", err)
		os.Exit(1)
	}
	files, err := talks.SelectWork(sel, all, nil)
	if err != nil {
		slog.Error("failed to resolve talk selection", "error", err)
		os.Exit(1)
	}

	n, err := batch.GenerateInputFile(files, cfg.Model(), outputPath)
	if err != nil {
		slog.Error("failed to write batch input file", "path", outputPath, "error", err)
		os.Exit(1)
	}
	slog.Info("batch input file written", "path", outputPath, "requests", n)
}

func newProvider(cfg *config.Config) classifier.Provider {
	if cfg.Provider == "anthropic" {
		return classifier.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}
	return classifier.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
}

// logSessionAverages reads the run's result table back and logs the
// per-session averages, so a long run ends with a quick summary.
func logSessionAverages(path string) {
	rows, err := results.ReadTable(path)
	if err != nil {
		slog.Warn("could not read result table for analysis", "path", path, "error", err)
		return
	}

	report := analysis.Build(rows)
	for _, s := range report.Sessions {
		slog.Info("session average",
			"session", s.SessionID, "mean", fmt.Sprintf("%.2f", s.Mean), "talks", s.Count)
	}
	slog.Info("overall average",
		"talks", report.Talks, "mean", fmt.Sprintf("%.2f", report.OverallMean))
}

func runDedup(args []string) {
	fs := flag.NewFlagSet("dedup", flag.ExitOnError)
	input := fs.String("input", "", "result table to standardize (required)")
	output := fs.String("output", "", "where to write the standardized table (default: overwrite input)")
	column := fs.String("column", dedup.DefaultColumn, "column to standardize")
	threshold := fs.Int("threshold", 0, "similarity threshold 0-100 (default 90, or 75 with -report)")
	report := fs.Bool("report", false, "list similar-name pairs without rewriting anything")
	level, jsonOut := logFlags(fs)
	fs.Parse(args)
	setupLogging(*level, *jsonOut)

	if *input == "" {
		slog.Error("dedup requires -input")
		os.Exit(2)
	}

	th := *threshold
	if th <= 0 {
		if *report {
			th = dedup.ReportThreshold
		} else {
			th = dedup.DefaultThreshold
		}
	}

	if *report {
		pairs, err := dedup.FindSimilarInFile(*input, *column, th)
		if err != nil {
			slog.Error("similar-name report failed", "error", err)
			os.Exit(1)
		}
		if len(pairs) == 0 {
			fmt.Printf("No pairs at or above threshold %d.\n", th)
			return
		}
		for _, p := range pairs {
			fmt.Printf("%3d  %q  %q\n", p.Score, p.Name1, p.Name2)
		}
		return
	}

	out := *output
	if out == "" {
		out = *input
	}
	stats, err := dedup.StandardizeFile(*input, out, *column, th)
	if err != nil {
		slog.Error("standardization failed", "error", err)
		os.Exit(1)
	}
	slog.Info("speaker names standardized",
		"rows", stats.Rows, "changed", stats.RowsChanged,
		"unique_before", stats.UniqueBefore, "unique_after", stats.UniqueAfter,
		"output", out)
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	input := fs.String("input", "", "result table to aggregate (required)")
	xlsx := fs.String("xlsx", "", "also export the report as a spreadsheet at this path")
	level, jsonOut := logFlags(fs)
	fs.Parse(args)
	setupLogging(*level, *jsonOut)

	if *input == "" {
		slog.Error("analyze requires -input")
		os.Exit(2)
	}

	rows, err := results.ReadTable(*input)
	if err != nil {
		slog.Error("failed to read result table", "path", *input, "error", err)
		os.Exit(1)
	}

	report := analysis.Build(rows)

	fmt.Printf("Talks: %d  Overall mean: %.2f\n\n", report.Talks, report.OverallMean)
	fmt.Println("Session averages:")
	for _, s := range report.Sessions {
		fmt.Printf("  %s  %+.2f  (%d talks)\n", s.SessionID, s.Mean, s.Count)
	}
	fmt.Println("\nScore distribution:")
	for _, sc := range report.Distribution {
		fmt.Printf("  %+d  %d\n", sc.Score, sc.Count)
	}
	fmt.Println("\nTop speakers:")
	for _, s := range report.Speakers {
		fmt.Printf("  %+.2f  %s  (%d talks)\n", s.Mean, s.Speaker, s.Count)
	}

	if *xlsx != "" {
		if err := analysis.WriteXLSX(report, *xlsx); err != nil {
			slog.Error("failed to export report", "path", *xlsx, "error", err)
			os.Exit(1)
		}
		slog.Info("report exported", "path", *xlsx)
	}
}

func runLabel(args []string) {
	fs := flag.NewFlagSet("label", flag.ExitOnError)
	talksDir := fs.String("talks-dir", "conference_talks", "directory of talk HTML files")
	input := fs.String("input", "", "table to join speaker names onto (required)")
	output := fs.String("output", "", "where to write the labeled table (required)")
	level, jsonOut := logFlags(fs)
	fs.Parse(args)
	setupLogging(*level, *jsonOut)

	if *input == "" || *output == "" {
		slog.Error("label requires -input and -output")
		os.Exit(2)
	}

	stats, err := extract.LabelSpeakers(*talksDir, *input, *output)
	if err != nil {
		slog.Error("speaker labeling failed", "error", err)
		os.Exit(1)
	}
	slog.Info("speaker names joined",
		"rows", stats.Rows, "labeled", stats.Labeled, "output", *output)
}

func runPrune(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	talksDir := fs.String("talks-dir", "conference_talks", "directory of talk HTML files")
	level, jsonOut := logFlags(fs)
	fs.Parse(args)
	setupLogging(*level, *jsonOut)

	removed, err := talks.Prune(*talksDir)
	if err != nil {
		slog.Error("prune failed", "error", err)
		os.Exit(1)
	}
	for _, name := range removed {
		slog.Info("removed duplicate talk", "file", name)
	}
	slog.Info("prune complete", "removed", len(removed))
}

func runBatch(args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "usage: classifier batch <upload|create|status|list|download> [flags]")
		os.Exit(2)
	}
	sub := args[0]
	args = args[1:]

	fs := flag.NewFlagSet("batch "+sub, flag.ExitOnError)
	file := fs.String("file", "", "JSONL input file (upload)")
	fileID := fs.String("file-id", "", "uploaded file id (create)")
	batchID := fs.String("batch-id", "", "batch job id (status, download)")
	description := fs.String("description", "", "job description (create)")
	limit := fs.Int("limit", 10, "how many jobs to list")
	output := fs.String("output", "batch_results.jsonl", "where to store downloaded results")
	configPath := fs.String("config", "", "config file path")
	level, jsonOut := logFlags(fs)
	fs.Parse(args)

	setupLogging(*level, *jsonOut)
	cfg := loadConfig(*configPath)
	if cfg.OpenAIAPIKey == "" {
		slog.Error("batch commands require an OpenAI API key")
		os.Exit(1)
	}

	mgr := batch.NewManager(cfg.OpenAIAPIKey)
	ctx := context.Background()

	switch sub {
	case "upload":
		if *file == "" {
			slog.Error("batch upload requires -file")
			os.Exit(2)
		}
		uploaded, err := mgr.Upload(ctx, *file)
		if err != nil {
			slog.Error("upload failed", "error", err)
			os.Exit(1)
		}
		slog.Info("input file uploaded", "file_id", uploaded.ID, "bytes", uploaded.Bytes)
	case "create":
		if *fileID == "" {
			slog.Error("batch create requires -file-id")
			os.Exit(2)
		}
		job, err := mgr.Create(ctx, *fileID, *description)
		if err != nil {
			slog.Error("create failed", "error", err)
			os.Exit(1)
		}
		slog.Info("batch job created", "batch_id", job.ID, "status", job.Status)
	case "status":
		if *batchID == "" {
			slog.Error("batch status requires -batch-id")
			os.Exit(2)
		}
		job, err := mgr.Status(ctx, *batchID)
		if err != nil {
			slog.Error("status failed", "error", err)
			os.Exit(1)
		}
		slog.Info("batch status",
			"batch_id", job.ID, "status", job.Status,
			"completed", job.RequestCounts.Completed,
			"failed", job.RequestCounts.Failed,
			"total", job.RequestCounts.Total)
	case "list":
		jobs, err := mgr.List(ctx, *limit)
		if err != nil {
			slog.Error("list failed", "error", err)
			os.Exit(1)
		}
		for _, job := range jobs {
			fmt.Printf("%s  %s  created %s\n", job.ID, job.Status,
				time.Unix(job.CreatedAt, 0).Format(time.RFC3339))
		}
	case "download":
		if *batchID == "" {
			slog.Error("batch download requires -batch-id")
			os.Exit(2)
		}
		if err := mgr.DownloadResults(ctx, *batchID, *output); err != nil {
			slog.Error("download failed", "error", err)
			os.Exit(1)
		}
		slog.Info("batch results downloaded", "path", *output)
	default:
		fmt.Fprintf(os.Stderr, "unknown batch subcommand %q\n", sub)
		os.Exit(2)
	}
}

// talkExtractor adapts the extract package to the pipeline's interface.
type talkExtractor struct{}

func (talkExtractor) Extract(path string) (extract.Content, error) {
	return extract.Talk(path)
}
