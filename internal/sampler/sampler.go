// Package sampler draws posterior samples for the models in internal/model.
//
// Two backends implement Sampler: Gibbs, which runs in-process, and JAGS,
// which drives an installed jags binary.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/posterior"
)

var (
	// ErrInit means no valid starting state exists for the data.
	ErrInit = errors.New("sampler initialization failed")
	// ErrNumerical means sampling hit a non-finite density or a failed
	// factorization.
	ErrNumerical = errors.New("numerical failure during sampling")
	// ErrUnsupported means the backend cannot sample this model shape.
	ErrUnsupported = errors.New("model not supported by sampler")
	ErrUnknown     = errors.New("unknown sampler backend")
)

type Config struct {
	Chains int `yaml:"chains"`
	// Adapt iterations tune the sampler and are discarded.
	Adapt int `yaml:"adapt"`
	// BurnIn iterations run with tuning frozen and are discarded.
	BurnIn int `yaml:"burn_in"`
	// Draws is the number of kept draws per chain.
	Draws int `yaml:"draws"`
	// Thin keeps every Thin-th iteration after burn-in.
	Thin int    `yaml:"thin"`
	Seed uint64 `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Chains: 3,
		Adapt:  1000,
		BurnIn: 1000,
		Draws:  5000,
		Thin:   1,
		Seed:   20240613,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Chains < 1:
		return fmt.Errorf("chains must be positive, got %d", c.Chains)
	case c.Adapt < 0:
		return fmt.Errorf("adapt must not be negative, got %d", c.Adapt)
	case c.BurnIn < 0:
		return fmt.Errorf("burn-in must not be negative, got %d", c.BurnIn)
	case c.Draws < 1:
		return fmt.Errorf("draws must be positive, got %d", c.Draws)
	case c.Thin < 1:
		return fmt.Errorf("thin must be positive, got %d", c.Thin)
	}
	return nil
}

// Sampler produces posterior samples for a model given a cleaned dataset. The
// returned samples hold every parameter of m.Parameters(d.J()) plus
// posterior.Deviance.
type Sampler interface {
	Name() string
	Sample(ctx context.Context, m model.Model, d *dataset.Dataset, cfg Config) (*posterior.Samples, error)
}

// MonitoredNames is the order in which samplers record parameters.
func MonitoredNames(m model.Model, genres int) []string {
	return append(m.Parameters(genres), posterior.Deviance)
}

// New returns the sampler backend with the given name: "gibbs" or "jags".
// jagsBinary is only used by the jags backend.
func New(backend, jagsBinary string, logger *slog.Logger) (Sampler, error) {
	switch backend {
	case "", "gibbs":
		return NewGibbs(logger), nil
	case "jags":
		return NewJAGS(jagsBinary, logger), nil
	}
	return nil, fmt.Errorf("%w %q (expected gibbs or jags)", ErrUnknown, backend)
}
