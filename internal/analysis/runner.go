package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/posterior"
	"github.com/ademuri/genre-pooling/internal/sampler"
)

// Stages of fitting one model, as reported in a FitError.
const (
	StageValidate = "validate"
	StageSample   = "sample"
	StageDIC      = "dic"
)

// FitError says which model failed at which stage.
type FitError struct {
	Model string
	Stage string
	Err   error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("model %s: %s: %v", e.Model, e.Stage, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// Fit is a sampled model with its criterion and posterior summaries.
type Fit struct {
	Model     model.Model
	Genres    int
	Samples   *posterior.Samples
	Criterion Criterion
	Summaries []posterior.Summary
	Warning   string
	Elapsed   time.Duration
}

func (f *Fit) Record() Record {
	return Record{
		Model:      f.Model.Name,
		Title:      f.Model.Title,
		Parameters: len(f.Model.Parameters(f.Genres)),
		Criterion:  f.Criterion,
		Warning:    f.Warning,
	}
}

// Runner fits models with one sampler and one sampler configuration.
type Runner struct {
	Sampler sampler.Sampler
	Config  sampler.Config
	Logger  *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Fit validates m, samples its posterior and computes its DIC. Errors are
// *FitError.
func (r *Runner) Fit(ctx context.Context, m model.Model, d *dataset.Dataset) (*Fit, error) {
	log := r.logger().With("model", m.Name, "sampler", r.Sampler.Name())

	if err := m.Validate(); err != nil {
		return nil, &FitError{Model: m.Name, Stage: StageValidate, Err: err}
	}
	if err := r.Config.Validate(); err != nil {
		return nil, &FitError{Model: m.Name, Stage: StageValidate, Err: err}
	}

	fit := &Fit{Model: m, Genres: d.J()}
	if d.Degenerate() && m.HasGenreStructure() {
		fit.Warning = fmt.Sprintf("only %d genre: equivalent to the pooled model up to priors", d.J())
		log.Warn("degenerate genre structure", "genres", d.J())
	}

	start := time.Now()
	log.Info("sampling",
		"chains", r.Config.Chains,
		"adapt", r.Config.Adapt,
		"burn_in", r.Config.BurnIn,
		"draws", r.Config.Draws)
	samples, err := r.Sampler.Sample(ctx, m, d, r.Config)
	if err != nil {
		return nil, &FitError{Model: m.Name, Stage: StageSample, Err: err}
	}
	fit.Samples = samples

	fit.Criterion, err = ComputeDIC(m, d, samples)
	if err != nil {
		return nil, &FitError{Model: m.Name, Stage: StageDIC, Err: err}
	}
	fit.Summaries = posterior.Summarize(samples)
	fit.Elapsed = time.Since(start)

	log.Info("fitted", "dic", fit.Criterion.DIC, "elapsed", fit.Elapsed.Round(time.Millisecond))
	return fit, nil
}

// Comparison holds the fitted models ranked by ascending DIC, and the models
// that failed.
type Comparison struct {
	Fits     []*Fit
	Failures []*FitError
}

func (c *Comparison) Records() []Record {
	records := make([]Record, len(c.Fits))
	for i, f := range c.Fits {
		records[i] = f.Record()
	}
	return records
}

// Err joins the failures, or is nil if every model was fitted.
func (c *Comparison) Err() error {
	errs := make([]error, len(c.Failures))
	for i, f := range c.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Compare fits each model in turn. A model that fails is recorded and does
// not stop the others; only cancellation aborts the comparison.
func (r *Runner) Compare(ctx context.Context, models []model.Model, d *dataset.Dataset) (*Comparison, error) {
	comp := &Comparison{}
	for _, m := range models {
		fit, err := r.Fit(ctx, m, d)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			var fe *FitError
			if !errors.As(err, &fe) {
				return nil, err
			}
			r.logger().Error("model failed", "model", fe.Model, "stage", fe.Stage, "error", fe.Err)
			comp.Failures = append(comp.Failures, fe)
			continue
		}
		comp.Fits = append(comp.Fits, fit)
	}

	sort.SliceStable(comp.Fits, func(i, j int) bool {
		return comp.Fits[i].Criterion.DIC < comp.Fits[j].Criterion.DIC
	})
	return comp, nil
}
