package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// DefaultDescription labels batch jobs created without a description.
const DefaultDescription = "Batch API Job"

// Manager drives OpenAI Batch API jobs: uploading input files, creating
// jobs and collecting their output.
type Manager struct {
	client openai.Client
}

// NewManager returns a Manager authenticated with the given API key.
// Extra request options are appended (for testing).
func NewManager(apiKey string, opts ...option.RequestOption) *Manager {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Manager{client: openai.NewClient(clientOpts...)}
}

// Upload sends a JSONL input file to the Files API with the batch purpose.
func (m *Manager) Upload(ctx context.Context, path string) (*openai.FileObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch input: %w", err)
	}
	defer f.Close()

	file, err := m.client.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("upload batch input: %w", err)
	}
	return file, nil
}

// Create starts a batch job over a previously uploaded input file.
func (m *Manager) Create(ctx context.Context, fileID, description string) (*openai.Batch, error) {
	if description == "" {
		description = DefaultDescription
	}

	job, err := m.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      fileID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
		Metadata:         shared.Metadata{"description": description},
	})
	if err != nil {
		return nil, fmt.Errorf("create batch job: %w", err)
	}
	return job, nil
}

// Status fetches the current state of a batch job.
func (m *Manager) Status(ctx context.Context, batchID string) (*openai.Batch, error) {
	job, err := m.client.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("retrieve batch: %w", err)
	}
	return job, nil
}

// List returns the most recent batch jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]openai.Batch, error) {
	page, err := m.client.Batches.List(ctx, openai.BatchListParams{
		Limit: openai.Int(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return page.Data, nil
}

// DownloadResults writes a completed job's output file to outputPath. When
// the job also produced an error file it is stored next to the output with
// an "_errors.jsonl" suffix. Jobs in any other state are an error.
func (m *Manager) DownloadResults(ctx context.Context, batchID, outputPath string) error {
	job, err := m.Status(ctx, batchID)
	if err != nil {
		return err
	}
	if job.Status != openai.BatchStatusCompleted {
		return fmt.Errorf("batch %s not completed yet (status %s)", batchID, job.Status)
	}
	if job.OutputFileID == "" {
		return fmt.Errorf("batch %s completed without an output file", batchID)
	}

	if err := m.download(ctx, job.OutputFileID, outputPath); err != nil {
		return fmt.Errorf("download results: %w", err)
	}
	if job.ErrorFileID != "" {
		if err := m.download(ctx, job.ErrorFileID, ErrorsPath(outputPath)); err != nil {
			return fmt.Errorf("download error file: %w", err)
		}
	}
	return nil
}

// ErrorsPath is where DownloadResults stores a job's error file.
func ErrorsPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_errors.jsonl"
}

func (m *Manager) download(ctx context.Context, fileID, path string) error {
	res, err := m.client.Files.Content(ctx, fileID)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
