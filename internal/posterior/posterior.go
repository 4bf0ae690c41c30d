package posterior

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Deviance is the name under which samplers record the per-draw deviance.
const Deviance = "deviance"

// Samples is the posterior sample set of one model run: for every monitored
// parameter, one sequence of draws per chain. It is filled once by a sampler
// and only read afterwards.
type Samples struct {
	Model string

	mu     sync.Mutex
	names  []string
	index  map[string]int
	chains [][][]float64 // chain -> parameter -> draw
}

func New(model string, names []string, chains int) *Samples {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	return &Samples{
		Model:  model,
		names:  append([]string(nil), names...),
		index:  index,
		chains: make([][][]float64, chains),
	}
}

// SetChain stores the draws of chain c, indexed [parameter][draw] in the
// order of Names. Safe for concurrent use by different chains.
func (s *Samples) SetChain(c int, draws [][]float64) error {
	if c < 0 || c >= len(s.chains) {
		return fmt.Errorf("chain %d out of range [0, %d)", c, len(s.chains))
	}
	if len(draws) != len(s.names) {
		return fmt.Errorf("chain %d: got %d parameters, want %d", c, len(draws), len(s.names))
	}
	for i := 1; i < len(draws); i++ {
		if len(draws[i]) != len(draws[0]) {
			return fmt.Errorf("chain %d: parameter %s has %d draws, want %d", c, s.names[i], len(draws[i]), len(draws[0]))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[c] = draws
	return nil
}

func (s *Samples) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Samples) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Samples) NumChains() int {
	return len(s.chains)
}

// NumDraws is the number of draws per chain.
func (s *Samples) NumDraws() int {
	if len(s.chains) == 0 || len(s.chains[0]) == 0 {
		return 0
	}
	return len(s.chains[0][0])
}

// Chain returns the draws of one parameter in chain c, or nil.
func (s *Samples) Chain(name string, c int) []float64 {
	i, ok := s.index[name]
	if !ok || c < 0 || c >= len(s.chains) || s.chains[c] == nil {
		return nil
	}
	return s.chains[c][i]
}

// Chains returns the draws of one parameter, one slice per chain.
func (s *Samples) Chains(name string) [][]float64 {
	out := make([][]float64, 0, len(s.chains))
	for c := range s.chains {
		if draws := s.Chain(name, c); draws != nil {
			out = append(out, draws)
		}
	}
	return out
}

// Pooled returns the draws of one parameter from all chains, concatenated.
func (s *Samples) Pooled(name string) []float64 {
	var out []float64
	for _, draws := range s.Chains(name) {
		out = append(out, draws...)
	}
	return out
}

// Mean is the posterior mean of a parameter over all chains.
func (s *Samples) Mean(name string) (float64, bool) {
	pooled := s.Pooled(name)
	if len(pooled) == 0 {
		return 0, false
	}
	return stat.Mean(pooled, nil), true
}
