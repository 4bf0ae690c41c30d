package model

import (
	"fmt"
	"math"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"gonum.org/v1/gonum/stat/distuv"
)

// Values holds the current value of every node: one entry for a global node,
// one per genre for a PerGenre node.
type Values map[string][]float64

// At returns the value of node for 0-based genre j.
func (v Values) At(node string, j int) float64 {
	vals := v[node]
	if len(vals) == 1 {
		return vals[0]
	}
	return vals[j]
}

// Flatten returns the values in the order of m.Parameters(genres).
func (m Model) Flatten(v Values, genres int) []float64 {
	var out []float64
	for _, n := range m.Nodes {
		if !n.PerGenre {
			out = append(out, v[n.Name][0])
			continue
		}
		for j := 0; j < genres; j++ {
			out = append(out, v.At(n.Name, j))
		}
	}
	return out
}

// ValuesFrom builds node values by looking up each monitored parameter name,
// e.g. with the posterior mean of that parameter.
func (m Model) ValuesFrom(lookup func(param string) (float64, bool), genres int) (Values, error) {
	v := make(Values, len(m.Nodes))
	for _, n := range m.Nodes {
		names := n.ParamNames(genres)
		vals := make([]float64, len(names))
		for i, name := range names {
			x, ok := lookup(name)
			if !ok {
				return nil, fmt.Errorf("model %s: no value for %s", m.Name, name)
			}
			vals[i] = x
		}
		v[n.Name] = vals
	}
	return v, nil
}

// Mean is the expected popularity of song s under v.
func (m Model) Mean(v Values, s dataset.Song) float64 {
	l := m.Likelihood
	j := s.GenreIndex - 1
	return v.At(l.Intercept, j) + v.At(l.Dance, j)*s.Danceability + v.At(l.Length, j)*s.LengthStandardized
}

// LogLikelihood sums log N(popularity | mean, sigma^2) over all songs.
func (m Model) LogLikelihood(d *dataset.Dataset, v Values) float64 {
	var ll float64
	for i := 0; i < d.N(); i++ {
		s := d.Song(i)
		sigma := v.At(m.Likelihood.Sigma, s.GenreIndex-1)
		ll += distuv.Normal{Mu: m.Mean(v, s), Sigma: sigma}.LogProb(s.Popularity)
	}
	return ll
}

// Deviance is -2 times the log-likelihood.
func (m Model) Deviance(d *dataset.Dataset, v Values) float64 {
	dev := -2 * m.LogLikelihood(d, v)
	if math.IsNaN(dev) {
		return math.Inf(1)
	}
	return dev
}
