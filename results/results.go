package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBatchSize is how many rows accumulate before an automatic flush.
const DefaultBatchSize = 10

// Columns of the result table, in write order. The order is part of the
// on-disk contract and must stay stable across resumed runs.
var Columns = []string{
	"filename",
	"year",
	"month",
	"conference_session_id",
	"talk_identifier",
	"speaker_name",
	"text_preview",
	"score",
	"explanation",
	"key_phrases",
	"model_used",
}

// errorIndicators mark rows whose classification failed. A row whose
// explanation contains any of them is eligible for reprocessing.
var errorIndicators = []string{
	"Error parsing LLM response",
	"Error in classification",
	"File content extraction failed",
}

// Row is one line of the result table.
type Row struct {
	Filename    string
	Year        string
	Month       string
	SessionID   string
	TalkID      string
	Speaker     string
	Preview     string
	Score       int
	Explanation string
	KeyPhrases  string
	Model       string
}

// IsError reports whether the row records a failed classification
// rather than a real score.
func (r Row) IsError() bool {
	for _, indicator := range errorIndicators {
		if strings.Contains(r.Explanation, indicator) {
			return true
		}
	}
	return false
}

func (r Row) record() []string {
	return []string{
		r.Filename,
		r.Year,
		r.Month,
		r.SessionID,
		r.TalkID,
		r.Speaker,
		r.Preview,
		strconv.Itoa(r.Score),
		r.Explanation,
		r.KeyPhrases,
		r.Model,
	}
}

// ReadTable loads every row of a result table. Columns are matched by
// header name, so tables with extra or reordered columns still load.
func ReadTable(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open result table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, rowFromRecord(rec, index))
	}
	return rows, nil
}

func rowFromRecord(rec []string, index map[string]int) Row {
	// Malformed scores read as zero; the writer only emits plain integers.
	score, _ := strconv.Atoi(field(rec, index, "score"))
	return Row{
		Filename:    field(rec, index, "filename"),
		Year:        field(rec, index, "year"),
		Month:       field(rec, index, "month"),
		SessionID:   field(rec, index, "conference_session_id"),
		TalkID:      field(rec, index, "talk_identifier"),
		Speaker:     field(rec, index, "speaker_name"),
		Preview:     field(rec, index, "text_preview"),
		Score:       score,
		Explanation: field(rec, index, "explanation"),
		KeyPhrases:  field(rec, index, "key_phrases"),
		Model:       field(rec, index, "model_used"),
	}
}

func field(rec []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// Ledger is the resume state loaded from a previous run's table.
type Ledger struct {
	// Processed holds the filenames of rows that completed successfully.
	Processed map[string]bool
	// CarryForward holds those successful rows themselves, written into
	// the new table before any fresh work so it stays self-contained.
	CarryForward []Row
}

// LoadLedger reads a previous result table and partitions it: successful
// rows are carried forward and their filenames marked processed, while
// error rows and rows with a blank filename are dropped so the same talks
// can be classified again. A missing file yields an empty ledger; an
// unreadable one is an error rather than a silent restart from scratch.
func LoadLedger(path string) (Ledger, error) {
	ledger := Ledger{Processed: make(map[string]bool)}

	rows, err := ReadTable(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ledger, nil
		}
		return ledger, fmt.Errorf("load resume table: %w", err)
	}

	for _, row := range rows {
		if row.Filename == "" || row.IsError() {
			continue
		}
		ledger.Processed[row.Filename] = true
		ledger.CarryForward = append(ledger.CarryForward, row)
	}
	return ledger, nil
}

// Writer accumulates rows and appends them to the table in batches, so
// an interrupted run loses at most one unflushed batch.
type Writer struct {
	path      string
	batchSize int
	pending   []Row
}

// NewWriter creates a batching writer for the table at path. Batch sizes
// below one fall back to DefaultBatchSize.
func NewWriter(path string, batchSize int) *Writer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Writer{path: path, batchSize: batchSize}
}

// Add buffers one row, flushing when the batch is full.
func (w *Writer) Add(row Row) error {
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush appends all buffered rows to the table. The header is written
// only when the file does not exist yet or is still empty; that check is
// repeated at every flush because an earlier flush in the same run may
// already have created the file.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := ensureDir(w.path); err != nil {
		return err
	}

	writeHeader := true
	if info, err := os.Stat(w.path); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open result table: %w", err)
	}

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(Columns); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range w.pending {
		if err := cw.Write(row.record()); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush result table: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close result table: %w", err)
	}

	w.pending = w.pending[:0]
	return nil
}

// Close flushes any remaining buffered rows.
func (w *Writer) Close() error {
	return w.Flush()
}

// WriteSnapshot truncates the table at path and rewrites it from scratch
// with a header. Used for resume carry-forward and the dedup rewrite.
func WriteSnapshot(path string, rows []Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result table: %w", err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(Columns); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write result table: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close result table: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
