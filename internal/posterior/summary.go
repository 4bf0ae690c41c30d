package posterior

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the marginal posterior of one parameter.
type Summary struct {
	Name   string  `yaml:"name"`
	Mean   float64 `yaml:"mean"`
	SD     float64 `yaml:"sd"`
	Q025   float64 `yaml:"q2_5"`
	Median float64 `yaml:"median"`
	Q975   float64 `yaml:"q97_5"`
	RHat   float64 `yaml:"rhat"`
}

// Summarize returns one summary per parameter, in parameter order.
func Summarize(s *Samples) []Summary {
	out := make([]Summary, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, SummarizeOne(name, s.Chains(name)))
	}
	return out
}

func SummarizeOne(name string, chains [][]float64) Summary {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	if len(pooled) == 0 {
		return Summary{Name: name, Mean: math.NaN(), SD: math.NaN(), Q025: math.NaN(), Median: math.NaN(), Q975: math.NaN(), RHat: math.NaN()}
	}

	sorted := append([]float64(nil), pooled...)
	sort.Float64s(sorted)
	mean, sd := stat.MeanStdDev(pooled, nil)
	return Summary{
		Name:   name,
		Mean:   mean,
		SD:     sd,
		Q025:   stat.Quantile(0.025, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q975:   stat.Quantile(0.975, stat.Empirical, sorted, nil),
		RHat:   RHat(chains),
	}
}

// RHat is the Gelman-Rubin potential scale reduction factor. It is NaN with
// fewer than two chains or two draws per chain, and 1 when every draw is
// identical.
func RHat(chains [][]float64) float64 {
	m := len(chains)
	if m < 2 {
		return math.NaN()
	}
	n := len(chains[0])
	for _, c := range chains {
		if len(c) != n {
			return math.NaN()
		}
	}
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}
