package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/davehedengren/conference-talk-grace-works-classifier/results"
)

// DefaultTopSpeakers bounds the per-speaker ranking.
const DefaultTopSpeakers = 20

const (
	minScore = -3
	maxScore = 3
)

// SessionAverage is the mean score of one conference session.
type SessionAverage struct {
	SessionID string
	Mean      float64
	Count     int
}

// ScoreCount is the number of talks that received one score value.
type ScoreCount struct {
	Score int
	Count int
}

// SpeakerAverage is the mean score across one speaker's talks.
type SpeakerAverage struct {
	Speaker string
	Mean    float64
	Count   int
}

// Report aggregates a result table for display and export.
type Report struct {
	Talks        int
	OverallMean  float64
	Sessions     []SessionAverage
	Distribution []ScoreCount
	Speakers     []SpeakerAverage
}

// Build computes session averages, the score distribution and the
// top-speaker ranking for a result table. Error rows are counted like any
// other row; their score is always zero.
func Build(rows []results.Row) Report {
	report := Report{
		Talks:        len(rows),
		Sessions:     sessionAverages(rows),
		Distribution: distribution(rows),
		Speakers:     topSpeakers(rows, DefaultTopSpeakers),
	}

	if len(rows) > 0 {
		var total int
		for _, r := range rows {
			total += r.Score
		}
		report.OverallMean = float64(total) / float64(len(rows))
	}

	return report
}

func sessionAverages(rows []results.Row) []SessionAverage {
	type agg struct {
		total int
		count int
	}
	sessions := make(map[string]*agg)
	for _, r := range rows {
		a := sessions[r.SessionID]
		if a == nil {
			a = &agg{}
			sessions[r.SessionID] = a
		}
		a.total += r.Score
		a.count++
	}

	averages := make([]SessionAverage, 0, len(sessions))
	for id, a := range sessions {
		averages = append(averages, SessionAverage{
			SessionID: id,
			Mean:      float64(a.total) / float64(a.count),
			Count:     a.count,
		})
	}
	sort.Slice(averages, func(i, j int) bool {
		return averages[i].SessionID < averages[j].SessionID
	})
	return averages
}

func distribution(rows []results.Row) []ScoreCount {
	counts := make(map[int]int)
	for _, r := range rows {
		counts[r.Score]++
	}

	dist := make([]ScoreCount, 0, maxScore-minScore+1)
	for score := minScore; score <= maxScore; score++ {
		dist = append(dist, ScoreCount{Score: score, Count: counts[score]})
	}
	return dist
}

func topSpeakers(rows []results.Row, n int) []SpeakerAverage {
	type agg struct {
		total int
		count int
	}
	speakers := make(map[string]*agg)
	for _, r := range rows {
		if r.Speaker == "" || strings.EqualFold(r.Speaker, "Unknown Speaker") {
			continue
		}
		a := speakers[r.Speaker]
		if a == nil {
			a = &agg{}
			speakers[r.Speaker] = a
		}
		a.total += r.Score
		a.count++
	}

	averages := make([]SpeakerAverage, 0, len(speakers))
	for name, a := range speakers {
		averages = append(averages, SpeakerAverage{
			Speaker: name,
			Mean:    float64(a.total) / float64(a.count),
			Count:   a.count,
		})
	}
	sort.Slice(averages, func(i, j int) bool {
		if averages[i].Mean != averages[j].Mean {
			return averages[i].Mean > averages[j].Mean
		}
		return averages[i].Speaker < averages[j].Speaker
	})

	if len(averages) > n {
		averages = averages[:n]
	}
	return averages
}

// WriteXLSX exports the report as a spreadsheet with one sheet per table.
func WriteXLSX(report Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sessions = "Sessions"
	if err := f.SetSheetName("Sheet1", sessions); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{"Score Distribution", "Top Speakers", "Overview"} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
	}

	w := &sheetWriter{f: f}

	w.set(sessions, "A1", "conference_session_id")
	w.set(sessions, "B1", "average_score")
	w.set(sessions, "C1", "talks")
	for i, s := range report.Sessions {
		row := i + 2
		w.set(sessions, fmt.Sprintf("A%d", row), s.SessionID)
		w.set(sessions, fmt.Sprintf("B%d", row), s.Mean)
		w.set(sessions, fmt.Sprintf("C%d", row), s.Count)
	}

	w.set("Score Distribution", "A1", "score")
	w.set("Score Distribution", "B1", "talks")
	for i, sc := range report.Distribution {
		row := i + 2
		w.set("Score Distribution", fmt.Sprintf("A%d", row), sc.Score)
		w.set("Score Distribution", fmt.Sprintf("B%d", row), sc.Count)
	}

	w.set("Top Speakers", "A1", "speaker_name")
	w.set("Top Speakers", "B1", "average_score")
	w.set("Top Speakers", "C1", "talks")
	for i, s := range report.Speakers {
		row := i + 2
		w.set("Top Speakers", fmt.Sprintf("A%d", row), s.Speaker)
		w.set("Top Speakers", fmt.Sprintf("B%d", row), s.Mean)
		w.set("Top Speakers", fmt.Sprintf("C%d", row), s.Count)
	}

	w.set("Overview", "A1", "talks")
	w.set("Overview", "B1", report.Talks)
	w.set("Overview", "A2", "average_score")
	w.set("Overview", "B2", report.OverallMean)

	if w.err != nil {
		return fmt.Errorf("fill report: %w", w.err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// sheetWriter stops at the first cell error so call sites stay flat.
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) set(sheet, cell string, value interface{}) {
	if w.err == nil {
		w.err = w.f.SetCellValue(sheet, cell, value)
	}
}
