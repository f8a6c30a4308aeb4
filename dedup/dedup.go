package dedup

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

const (
	// DefaultThreshold is the token-sort similarity (0-100) at which two
	// names are merged.
	DefaultThreshold = 90

	// ReportThreshold is the looser cutoff used when only listing
	// candidate pairs for review.
	ReportThreshold = 75

	// DefaultColumn is the column standardized when none is named.
	DefaultColumn = "speaker_name"
)

// ErrColumnNotFound reports that the requested column is absent from the
// table header.
var ErrColumnNotFound = errors.New("column not found")

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanName strips mis-encoded artifact characters and collapses
// whitespace. It does not touch honorifics; those are handled at
// extraction time.
func CleanName(name string) string {
	cleaned := strings.ReplaceAll(name, "Â ", " ")
	cleaned = strings.ReplaceAll(cleaned, "Â ", " ")
	cleaned = strings.ReplaceAll(cleaned, "Â", "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
}

// BuildNameMap clusters names whose token-sort similarity meets the
// threshold and maps every name to the lexicographically smallest member
// of its cluster. Every input name has an entry; unclustered names map to
// themselves. The result is deterministic for a given name set and
// threshold.
func BuildNameMap(names []string, threshold int) map[string]string {
	unique := uniqueSorted(names)

	nameMap := make(map[string]string, len(unique))
	for _, name := range unique {
		nameMap[name] = name
	}

	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			if fuzzy.TokenSortRatio(unique[i], unique[j]) >= threshold {
				nameMap[unique[j]] = unique[i]
			}
		}
	}

	// Chase chains until every name points directly at its cluster root.
	// A chain can be at most as long as the unique name count, which
	// bounds the passes.
	for changed, passes := true, 0; changed && passes < len(unique); passes++ {
		changed = false
		for _, name := range unique {
			target := nameMap[name]
			if target == name {
				continue
			}
			if root := nameMap[target]; root != target {
				nameMap[name] = root
				changed = true
			}
		}
	}

	return nameMap
}

// SimilarPair is a candidate merge found by the report pass.
type SimilarPair struct {
	Name1 string
	Name2 string
	Score int
}

// SimilarPairs returns every pair of distinct names whose token-sort
// similarity meets the threshold, ordered by descending score, then
// descending names.
func SimilarPairs(names []string, threshold int) []SimilarPair {
	unique := uniqueSorted(names)

	var pairs []SimilarPair
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			score := fuzzy.TokenSortRatio(unique[i], unique[j])
			if score >= threshold {
				pairs = append(pairs, SimilarPair{Name1: unique[i], Name2: unique[j], Score: score})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		if pairs[i].Name1 != pairs[j].Name1 {
			return pairs[i].Name1 > pairs[j].Name1
		}
		return pairs[i].Name2 > pairs[j].Name2
	})

	return pairs
}

// Stats summarizes a standardization run over one table.
type Stats struct {
	Rows         int
	UniqueBefore int
	UniqueAfter  int
	RowsChanged  int
}

// StandardizeFile cleans the named column of a CSV table, merges
// near-duplicate values via BuildNameMap and writes the full table to
// outputPath. Columns other than the target are preserved as read.
func StandardizeFile(inputPath, outputPath, column string, threshold int) (Stats, error) {
	header, records, err := readTable(inputPath)
	if err != nil {
		return Stats{}, err
	}

	idx := columnIndex(header, column)
	if idx < 0 {
		return Stats{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	var cleaned []string
	for _, rec := range records {
		if idx < len(rec) {
			cleaned = append(cleaned, CleanName(rec[idx]))
		}
	}
	unique := uniqueSorted(cleaned)

	nameMap := BuildNameMap(unique, threshold)

	stats := Stats{Rows: len(records), UniqueBefore: len(unique)}
	roots := make(map[string]bool)
	for _, root := range nameMap {
		roots[root] = true
	}
	stats.UniqueAfter = len(roots)

	for _, rec := range records {
		if idx >= len(rec) {
			continue
		}
		name := CleanName(rec[idx])
		if canonical, ok := nameMap[name]; ok {
			name = canonical
		}
		if name != rec[idx] {
			rec[idx] = name
			stats.RowsChanged++
		}
	}

	if err := writeTable(outputPath, header, records); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// FindSimilarInFile lists candidate merges in the named column of a CSV
// table without modifying anything.
func FindSimilarInFile(path, column string, threshold int) ([]SimilarPair, error) {
	header, records, err := readTable(path)
	if err != nil {
		return nil, err
	}

	idx := columnIndex(header, column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	var names []string
	for _, rec := range records {
		if idx < len(rec) && rec[idx] != "" {
			names = append(names, rec[idx])
		}
	}

	return SimilarPairs(names, threshold), nil
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]bool, len(names))
	var unique []string
	for _, name := range names {
		if name != "" && !seen[name] {
			seen[name] = true
			unique = append(unique, name)
		}
	}
	sort.Strings(unique)
	return unique
}

func columnIndex(header []string, column string) int {
	for i, name := range header {
		if name == column {
			return i
		}
	}
	return -1
}

func readTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read table: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

func writeTable(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
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
		return fmt.Errorf("flush table: %w", err)
	}
	return f.Close()
}
