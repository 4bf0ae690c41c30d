package cmd

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/ademuri/genre-pooling/internal/analysis"
	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/sampler"
)

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}

func datasetOptions() (dataset.Options, error) {
	delim, err := parseDelimiter(viper.GetString("delimiter"))
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		Delimiter:     delim,
		LowerQuantile: viper.GetFloat64("lower-quantile"),
		UpperQuantile: viper.GetFloat64("upper-quantile"),
	}, nil
}

func loadDataset() (*dataset.Dataset, error) {
	opts, err := datasetOptions()
	if err != nil {
		return nil, err
	}
	path := viper.GetString("data")
	d, err := dataset.Load(path, opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded dataset", "path", path, "songs", d.N(), "genres", d.J(), "dropped", d.Dropped)
	return d, nil
}

func samplerConfig() sampler.Config {
	return sampler.Config{
		Chains: viper.GetInt("chains"),
		Adapt:  viper.GetInt("adapt"),
		BurnIn: viper.GetInt("burn-in"),
		Draws:  viper.GetInt("draws"),
		Thin:   viper.GetInt("thin"),
		Seed:   viper.GetUint64("seed"),
	}
}

func newRunner() (*analysis.Runner, error) {
	cfg := samplerConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := sampler.New(viper.GetString("backend"), viper.GetString("jags"), slog.Default())
	if err != nil {
		return nil, err
	}
	return &analysis.Runner{Sampler: s, Config: cfg, Logger: slog.Default()}, nil
}

func newRunID() string {
	return uuid.NewString()
}
