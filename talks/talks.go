package talks

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const langSuffix = "_lang=eng.html"

// filenamePattern matches names like "2013-10-true-shepherds.html" with an
// optional speaker segment after an underscore. Matching is anchored at the
// start only, mirroring how the archive names its downloads.
var filenamePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-([^._]+)(?:_([a-zA-Z0-9\-]+))?\.html`)

// File is a talk HTML file on disk.
type File struct {
	Path string
	Name string
}

// Metadata holds the fields parsed from a talk filename. Speaker is the
// raw hyphenated token after the underscore, or empty when the filename
// carries none.
type Metadata struct {
	Year       string
	Month      string
	SessionID  string
	Identifier string
	Speaker    string
}

// ParseFilename extracts year, month and the talk identifier from a filename
// such as "2013-10-true-shepherds.html". The session ID is "YYYY-MM". Names
// that do not follow the pattern yield zero metadata.
func ParseFilename(name string) Metadata {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Metadata{}
	}
	return Metadata{
		Year:       m[1],
		Month:      m[2],
		SessionID:  m[1] + "-" + m[2],
		Identifier: m[3],
		Speaker:    m[4],
	}
}

// Discover lists the .html files directly inside dir, sorted by name.
// Hidden files and subdirectories are skipped.
func Discover(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read talks dir: %w", err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".html") {
			continue
		}
		files = append(files, File{Path: filepath.Join(dir, name), Name: name})
	}
	return files, nil
}

// Selection controls which talk files a run will process.
type Selection struct {
	// SingleFile, when set, restricts the run to exactly that file.
	SingleFile string
	// Limit caps how many files are processed. Zero or negative means no cap.
	Limit int
}

// SelectWork picks the files for a run. Files whose names appear in processed
// are skipped. When Limit is positive and below the total talk count, a random
// sample of the unprocessed files is returned; asking for more than remain
// returns everything that remains.
func SelectWork(sel Selection, all []File, processed map[string]bool) ([]File, error) {
	if sel.SingleFile != "" {
		if _, err := os.Stat(sel.SingleFile); err != nil {
			return nil, fmt.Errorf("stat talk file: %w", err)
		}
		name := filepath.Base(sel.SingleFile)
		if processed[name] {
			return nil, nil
		}
		return []File{{Path: sel.SingleFile, Name: name}}, nil
	}

	var remaining []File
	for _, f := range all {
		if !processed[f.Name] {
			remaining = append(remaining, f)
		}
	}

	if sel.Limit > 0 && sel.Limit < len(all) {
		if sel.Limit >= len(remaining) {
			return remaining, nil
		}
		return sample(remaining, sel.Limit), nil
	}
	return remaining, nil
}

func sample(files []File, n int) []File {
	shuffled := make([]File, len(files))
	copy(shuffled, files)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

// Prune deletes talks that exist both with and without the "_lang=eng"
// filename suffix, keeping the suffixed copy. It returns the names of the
// deleted files.
func Prune(dir string) ([]string, error) {
	files, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]bool, len(files))
	for _, f := range files {
		byName[f.Name] = true
	}

	var removed []string
	for _, f := range files {
		if !strings.HasSuffix(f.Name, langSuffix) {
			continue
		}
		plain := strings.TrimSuffix(f.Name, langSuffix) + ".html"
		if plain == f.Name || !byName[plain] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, plain)); err != nil {
			return removed, fmt.Errorf("remove duplicate %s: %w", plain, err)
		}
		removed = append(removed, plain)
	}
	return removed, nil
}
