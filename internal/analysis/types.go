package analysis

import (
	"time"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/posterior"
	"github.com/ademuri/genre-pooling/internal/sampler"
)

// Report is the top-level structure for the model comparison report.
type Report struct {
	RunID         string          `yaml:"run_id"`
	GeneratedDate string          `yaml:"generated_date"`
	Sampler       string          `yaml:"sampler"`
	Config        sampler.Config  `yaml:"config"`
	Dataset       DatasetSummary  `yaml:"dataset"`
	Models        []ModelReport   `yaml:"models"`
	Failures      []FailureReport `yaml:"failures,omitempty"`
}

type DatasetSummary struct {
	Songs        int            `yaml:"songs"`
	Dropped      int            `yaml:"dropped_outliers"`
	Genres       []string       `yaml:"genres"`
	LengthBounds dataset.Bounds `yaml:"length_bounds"`
}

type ModelReport struct {
	Rank      int                 `yaml:"rank"`
	Record    Record              `yaml:",inline"`
	Elapsed   string              `yaml:"elapsed"`
	Posterior []posterior.Summary `yaml:"posterior"`
}

type FailureReport struct {
	Model string `yaml:"model"`
	Stage string `yaml:"stage"`
	Error string `yaml:"error"`
}

// NewReport assembles the report of one comparison run.
func NewReport(runID, samplerName string, cfg sampler.Config, d *dataset.Dataset, comp *Comparison) *Report {
	r := &Report{
		RunID:         runID,
		GeneratedDate: time.Now().Format("2006-01-02"),
		Sampler:       samplerName,
		Config:        cfg,
		Dataset: DatasetSummary{
			Songs:        d.N(),
			Dropped:      d.Dropped,
			Genres:       d.Genres(),
			LengthBounds: d.LengthBounds,
		},
	}
	for i, f := range comp.Fits {
		r.Models = append(r.Models, ModelReport{
			Rank:      i + 1,
			Record:    f.Record(),
			Elapsed:   f.Elapsed.Round(time.Millisecond).String(),
			Posterior: f.Summaries,
		})
	}
	for _, f := range comp.Failures {
		r.Failures = append(r.Failures, FailureReport{Model: f.Model, Stage: f.Stage, Error: f.Err.Error()})
	}
	return r
}
