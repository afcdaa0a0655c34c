package tabulate

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tc-outcome/internal/faults"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// Runner is the per-unit capability a Batch drives. *Executor implements it.
type Runner interface {
	IsAlreadyDone(u string, scheme zone.Scheme) bool
	Run(ctx context.Context, u string, scheme zone.Scheme) (Outcome, error)
}

// Batch iterates units × schemes, skipping pairs that are already done and
// isolating per-unit failures. There are no retries.
type Batch struct {
	runner      Runner
	concurrency int
}

// NewBatch creates a Batch. concurrency <= 1 runs sequentially in
// scheme-major order; larger values partition work by unit so a unit's
// staging path is only ever used by one goroutine.
func NewBatch(r Runner, concurrency int) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{runner: r, concurrency: concurrency}
}

// Failure is one failed (unit, scheme) attempt.
type Failure struct {
	Unit   string `yaml:"unit"`
	Scheme string `yaml:"scheme"`
	Kind   string `yaml:"kind"`
	Note   string `yaml:"note"`
}

// Report summarizes a batch run.
type Report struct {
	BatchID   string    `yaml:"batch_id"`
	Started   time.Time `yaml:"started"`
	Ended     time.Time `yaml:"ended"`
	Attempted int       `yaml:"attempted"`
	Skipped   int       `yaml:"skipped"`
	Completed int       `yaml:"completed"`
	Failures  []Failure `yaml:"failures,omitempty"`
}

// FailedUnits returns the failed unit ids, deduplicated, in iteration order.
func (r *Report) FailedUnits() []string {
	seen := make(map[string]bool, len(r.Failures))
	var out []string
	for _, f := range r.Failures {
		if seen[f.Unit] {
			continue
		}
		seen[f.Unit] = true
		out = append(out, f.Unit)
	}
	return out
}

// WriteYAML writes the report to path.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "tabulate: encode batch report")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "tabulate: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "tabulate: write batch report %s", path)
	}
	return nil
}

// pairResult is the outcome slot for one (scheme, unit) pair.
type pairResult struct {
	skipped bool
	done    bool
	outcome Outcome
}

// Run processes every (unit, scheme) pair. It returns an error only for
// fatal conditions: the run log cannot be written or ctx is done. The
// partial report is returned alongside a fatal error.
func (b *Batch) Run(ctx context.Context, units []string, schemes []zone.Scheme) (*Report, error) {
	units = dedupe(units)
	schemes = dedupeSchemes(schemes)

	rep := &Report{BatchID: uuid.NewString(), Started: time.Now()}
	log := zap.L().With(
		zap.String("component", "tabulate.batch"),
		zap.String("batch_id", rep.BatchID),
	)
	log.Info("tabulate: batch starting",
		zap.Int("units", len(units)),
		zap.Int("schemes", len(schemes)),
		zap.Int("concurrency", b.concurrency),
	)

	// results[s][u] keeps the report in scheme-major order regardless of
	// completion order.
	results := make([][]pairResult, len(schemes))
	for s := range results {
		results[s] = make([]pairResult, len(units))
	}

	var err error
	if b.concurrency <= 1 {
		err = b.sequential(ctx, units, schemes, results)
	} else {
		err = b.parallel(ctx, units, schemes, results)
	}

	for s := range schemes {
		for u := range units {
			r := results[s][u]
			switch {
			case r.skipped:
				rep.Skipped++
			case !r.done:
			case r.outcome.Failed():
				rep.Attempted++
				rep.Failures = append(rep.Failures, Failure{
					Unit:   r.outcome.Unit,
					Scheme: r.outcome.Scheme,
					Kind:   faults.KindOf(r.outcome.Err).String(),
					Note:   faults.Note(r.outcome.Err),
				})
			default:
				rep.Attempted++
				rep.Completed++
			}
		}
	}
	rep.Ended = time.Now()

	log.Info("tabulate: batch finished",
		zap.Int("attempted", rep.Attempted),
		zap.Int("skipped", rep.Skipped),
		zap.Int("completed", rep.Completed),
		zap.Int("failed", len(rep.Failures)),
		zap.Strings("failed_units", rep.FailedUnits()),
		zap.Float64("minutes", rep.Ended.Sub(rep.Started).Minutes()),
	)
	return rep, err
}

func (b *Batch) sequential(ctx context.Context, units []string, schemes []zone.Scheme, results [][]pairResult) error {
	for s, scheme := range schemes {
		for u, name := range units {
			if err := b.pair(ctx, name, scheme, &results[s][u]); err != nil {
				return err
			}
		}
	}
	return nil
}

// parallel gives each unit its own goroutine, which walks the schemes in
// order for that unit.
func (b *Batch) parallel(ctx context.Context, units []string, schemes []zone.Scheme, results [][]pairResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for u, name := range units {
		g.Go(func() error {
			for s, scheme := range schemes {
				if err := b.pair(gctx, name, scheme, &results[s][u]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Batch) pair(ctx context.Context, u string, scheme zone.Scheme, slot *pairResult) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "tabulate: batch canceled")
	}
	if b.runner.IsAlreadyDone(u, scheme) {
		zap.L().Debug("tabulate: already done, skipping",
			zap.String("unit", u),
			zap.String("scheme", scheme.Name),
		)
		slot.skipped = true
		return nil
	}
	out, err := b.runner.Run(ctx, u, scheme)
	if err != nil {
		return err
	}
	slot.done = true
	slot.outcome = out
	return nil
}

func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func dedupeSchemes(schemes []zone.Scheme) []zone.Scheme {
	seen := make(map[string]bool, len(schemes))
	out := make([]zone.Scheme, 0, len(schemes))
	for _, s := range schemes {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return out
}
