package indicator

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tc-outcome/internal/faults"
)

// Report is the YAML summary written next to a scheme's outputs.
type Report struct {
	Scheme       string          `yaml:"scheme"`
	Started      time.Time       `yaml:"started"`
	Ended        time.Time       `yaml:"ended"`
	Tables       int             `yaml:"tables"`
	Cells        int             `yaml:"cells"`
	Joined       int             `yaml:"joined"`
	Unmatched    int             `yaml:"unmatched_cells"`
	Total        float64         `yaml:"total"`
	Failures     []ReportFailure `yaml:"failures,omitempty"`
	Contributing []string        `yaml:"units"`
}

// ReportFailure is one excluded unit table.
type ReportFailure struct {
	Unit  string `yaml:"unit"`
	Path  string `yaml:"path"`
	Kind  string `yaml:"kind"`
	Error string `yaml:"error"`
}

// Report summarizes r. joined and unmatched come from the geometry join.
func (r *Result) Report(joined, unmatched int) Report {
	rep := Report{
		Scheme:    r.Scheme,
		Started:   r.Started,
		Ended:     r.Ended,
		Tables:    len(r.Tables),
		Cells:     len(r.Values),
		Joined:    joined,
		Unmatched: unmatched,
	}
	for _, v := range r.Values {
		rep.Total += v
	}
	for _, t := range r.Tables {
		rep.Contributing = append(rep.Contributing, t.Unit)
	}
	for _, f := range r.Failures {
		rep.Failures = append(rep.Failures, ReportFailure{
			Unit:  f.Unit,
			Path:  f.Path,
			Kind:  faults.KindOf(f.Err).String(),
			Error: faults.Note(f.Err),
		})
	}
	return rep
}

// WriteYAML writes the report to path.
func (rep Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return eris.Wrap(err, "indicator: encode report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "indicator: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "indicator: write report %s", path)
	}
	return nil
}
