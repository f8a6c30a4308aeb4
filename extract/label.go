package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LabeledColumn is the column LabelSpeakers appends to the output table.
const LabeledColumn = "speaker_name_from_html"

// ErrNoFilenameColumn reports that the input table lacks the filename
// column the join runs on.
var ErrNoFilenameColumn = errors.New("input table has no filename column")

// LabelStats summarizes one labeling run.
type LabelStats struct {
	Rows    int
	Labeled int
}

// LabelSpeakers extracts the author-name speaker from every talk file in
// talksDir and left-joins the names onto the table at inputPath by its
// filename column, appending them as a new column. Rows whose file is
// missing or carries no author paragraph get an empty value. All other
// columns are preserved as read.
func LabelSpeakers(talksDir, inputPath, outputPath string) (LabelStats, error) {
	speakers, err := speakersByFile(talksDir)
	if err != nil {
		return LabelStats{}, err
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return LabelStats{}, fmt.Errorf("open input table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return LabelStats{}, fmt.Errorf("read input table: %w", err)
	}
	if len(rows) == 0 {
		return LabelStats{}, fmt.Errorf("%w: empty table", ErrNoFilenameColumn)
	}

	header := rows[0]
	idx := -1
	for i, name := range header {
		if name == "filename" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LabelStats{}, ErrNoFilenameColumn
	}

	header = append(header, LabeledColumn)
	stats := LabelStats{Rows: len(rows) - 1}
	for i, rec := range rows[1:] {
		var speaker string
		if idx < len(rec) {
			speaker = speakers[rec[idx]]
		}
		if speaker != "" {
			stats.Labeled++
		}
		rows[i+1] = append(rec, speaker)
	}

	if err := writeRecords(outputPath, header, rows[1:]); err != nil {
		return LabelStats{}, err
	}
	return stats, nil
}

// speakersByFile maps every talk filename in dir to its extracted speaker
// name. Files without an author paragraph map to the empty string;
// unreadable files are skipped with a warning.
func speakersByFile(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read talks dir: %w", err)
	}

	speakers := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".html") {
			continue
		}
		content, err := Talk(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("skipping unreadable talk file", "file", name, "error", err)
			continue
		}
		speakers[name] = content.Speaker
	}
	return speakers, nil
}

func writeRecords(path string, header []string, records [][]string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output table: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush output table: %w", err)
	}
	return f.Close()
}
