// Package crosswalk classifies land-cover classes into tree-canopy and
// developed categories and derives the gain and loss transition codes used
// to compute the canopy change indicator.
package crosswalk

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tc-outcome/internal/faults"
)

// Default generalized category labels.
var (
	DefaultCanopy    = []string{"TCIS", "TCTG", "FORE", "TCOT"}
	DefaultDeveloped = []string{"ROAD", "IMPS", "IMPO", "TURF", "PDEV"}
)

// Class is one row of the crosswalk table.
type Class struct {
	Label    string
	Category string
	Value    int
}

// Categories names the category labels forming each side of the transition.
type Categories struct {
	Canopy    []string
	Developed []string
	Width     int  // transition code digit width per class; 0 = DefaultCodeWidth
	Strict    bool // missing category labels are errors instead of warnings
}

// Transitions holds the classified class values and the derived codes.
type Transitions struct {
	Width     int
	Canopy    []int
	Developed []int
	Gain      []Code // developed → canopy
	Loss      []Code // canopy → developed

	// Missing lists expected category labels not present in the table.
	Missing []string

	gain map[Code]struct{}
	loss map[Code]struct{}
}

// IsGain reports whether code is a developed→canopy transition.
func (t *Transitions) IsGain(code Code) bool {
	_, ok := t.gain[code]
	return ok
}

// IsLoss reports whether code is a canopy→developed transition.
func (t *Transitions) IsLoss(code Code) bool {
	_, ok := t.loss[code]
	return ok
}

// Classify partitions classes into canopy set C and developed set D and
// builds Gain = {code(d,c)} and Loss = {code(c,d)}. It has no side effects.
func Classify(classes []Class, cats Categories) (*Transitions, error) {
	width := cats.Width
	if width == 0 {
		width = DefaultCodeWidth
	}
	if width < 0 {
		return nil, faults.Config(eris.Errorf("crosswalk: invalid code width %d", width))
	}

	canopyCats := upperSet(cats.Canopy)
	devCats := upperSet(cats.Developed)
	for c := range canopyCats {
		if _, ok := devCats[c]; ok {
			return nil, faults.Config(eris.Errorf("crosswalk: category %q is listed as both canopy and developed", c))
		}
	}

	seen := make(map[string]bool, len(canopyCats)+len(devCats))
	canopy := make(map[int]string)
	developed := make(map[int]string)
	for _, cl := range classes {
		cat := strings.ToUpper(strings.TrimSpace(cl.Category))
		_, isCanopy := canopyCats[cat]
		_, isDev := devCats[cat]
		switch {
		case isCanopy:
			seen[cat] = true
			if other, ok := developed[cl.Value]; ok {
				return nil, faults.Config(eris.Errorf("crosswalk: value %d is mapped to canopy %q and developed %q", cl.Value, cat, other))
			}
			canopy[cl.Value] = cat
		case isDev:
			seen[cat] = true
			if other, ok := canopy[cl.Value]; ok {
				return nil, faults.Config(eris.Errorf("crosswalk: value %d is mapped to canopy %q and developed %q", cl.Value, other, cat))
			}
			developed[cl.Value] = cat
		}
	}

	t := &Transitions{
		Width:     width,
		Canopy:    sortedKeys(canopy),
		Developed: sortedKeys(developed),
		gain:      make(map[Code]struct{}),
		loss:      make(map[Code]struct{}),
	}

	for _, group := range [][]string{cats.Canopy, cats.Developed} {
		for _, c := range group {
			if !seen[strings.ToUpper(strings.TrimSpace(c))] {
				t.Missing = append(t.Missing, c)
			}
		}
	}
	if cats.Strict && len(t.Missing) > 0 {
		return nil, faults.Config(eris.Errorf("crosswalk: categories not found in class table: %s", strings.Join(t.Missing, ", ")))
	}

	for _, c := range t.Canopy {
		for _, d := range t.Developed {
			loss, err := EncodeCode(c, d, width)
			if err != nil {
				return nil, faults.Config(err)
			}
			gain, err := EncodeCode(d, c, width)
			if err != nil {
				return nil, faults.Config(err)
			}
			t.loss[loss] = struct{}{}
			t.gain[gain] = struct{}{}
		}
	}
	t.Gain = sortedCodes(t.gain)
	t.Loss = sortedCodes(t.loss)

	return t, nil
}

func upperSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

func sortedKeys(m map[int]string) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func sortedCodes(m map[Code]struct{}) []Code {
	out := make([]Code, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
