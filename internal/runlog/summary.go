package runlog

import (
	"sort"
	"time"
)

// UnitSummary aggregates every attempt recorded for one unit.
type UnitSummary struct {
	Unit      string
	Attempts  int
	Completed int
	Failed    int
	Last      Status
	LastNote  string
	LastEnded time.Time
	Duration  time.Duration // duration of the last attempt
}

// Summarize folds entries into per-unit summaries sorted by unit. The last
// entry for a unit (in log order) determines Last.
func Summarize(entries []Entry) []UnitSummary {
	byUnit := make(map[string]*UnitSummary)
	for _, e := range entries {
		s, ok := byUnit[e.Unit]
		if !ok {
			s = &UnitSummary{Unit: e.Unit}
			byUnit[e.Unit] = s
		}
		s.Attempts++
		switch e.Status {
		case StatusComplete:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
		s.Last = e.Status
		s.LastNote = e.Note
		s.LastEnded = e.EndedAt
		s.Duration = 0
		if !e.StartedAt.IsZero() && !e.EndedAt.IsZero() {
			s.Duration = e.EndedAt.Sub(e.StartedAt)
		}
	}

	out := make([]UnitSummary, 0, len(byUnit))
	for _, s := range byUnit {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out
}
