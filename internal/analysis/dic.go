package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/posterior"
)

// Criterion is the Deviance Information Criterion of one fitted model and
// its parts.
type Criterion struct {
	// MeanDeviance is the posterior mean of the deviance (Dbar).
	MeanDeviance float64 `yaml:"mean_deviance"`
	// DevianceAtMean is the deviance at the posterior mean parameters (Dhat).
	DevianceAtMean float64 `yaml:"deviance_at_mean"`
	// Penalty is half the posterior variance of the deviance, which is twice
	// the posterior variance of the log-likelihood.
	Penalty float64 `yaml:"penalty"`
	DIC     float64 `yaml:"dic"`
}

// ComputeDIC returns Dhat + 2*pD for model m fitted to d, where pD is half
// the posterior variance of the per-draw deviance.
func ComputeDIC(m model.Model, d *dataset.Dataset, s *posterior.Samples) (Criterion, error) {
	if !s.Has(posterior.Deviance) {
		return Criterion{}, fmt.Errorf("samples of %s have no %s", s.Model, posterior.Deviance)
	}
	deviance := s.Pooled(posterior.Deviance)
	if len(deviance) < 2 {
		return Criterion{}, fmt.Errorf("need at least 2 deviance draws, got %d", len(deviance))
	}

	values, err := m.ValuesFrom(s.Mean, d.J())
	if err != nil {
		return Criterion{}, err
	}

	mean, variance := stat.MeanVariance(deviance, nil)
	c := Criterion{
		MeanDeviance:   mean,
		DevianceAtMean: m.Deviance(d, values),
		Penalty:        variance / 2,
	}
	c.DIC = c.DevianceAtMean + 2*c.Penalty

	for name, v := range map[string]float64{"mean deviance": c.MeanDeviance, "deviance at mean": c.DevianceAtMean, "DIC": c.DIC} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return c, fmt.Errorf("%s is not finite: %v", name, v)
		}
	}
	return c, nil
}

// Record is one row of the model comparison.
type Record struct {
	Model      string    `yaml:"model"`
	Title      string    `yaml:"title"`
	Parameters int       `yaml:"parameters"`
	Criterion  Criterion `yaml:"criterion"`
	Warning    string    `yaml:"warning,omitempty"`
}
