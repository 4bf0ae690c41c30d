package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	sliceMaxSteps   = 50
	sliceMaxShrinks = 200
	sliceMinWidth   = 1e-3
	sliceWarmup     = 10
)

// slicer is a univariate stepping-out slice sampler (Neal, 2003). During
// adaptation its width tracks twice the mean jump size.
type slicer struct {
	width float64
	jumps float64
	n     int
}

func newSlicer() *slicer {
	return &slicer{width: 1}
}

func (s *slicer) step(rng *rand.Rand, x0 float64, logf func(float64) float64, adapt bool) (float64, error) {
	f0 := logf(x0)
	if math.IsNaN(f0) || math.IsInf(f0, 0) {
		return x0, fmt.Errorf("log density %v at %v: %w", f0, x0, ErrNumerical)
	}
	level := f0 - rng.ExpFloat64()

	left := x0 - s.width*rng.Float64()
	right := left + s.width
	j := rng.IntN(sliceMaxSteps)
	k := sliceMaxSteps - 1 - j
	for ; j > 0 && logf(left) > level; j-- {
		left -= s.width
	}
	for ; k > 0 && logf(right) > level; k-- {
		right += s.width
	}

	for i := 0; i < sliceMaxShrinks; i++ {
		x1 := left + rng.Float64()*(right-left)
		if logf(x1) > level {
			if adapt {
				s.observe(math.Abs(x1 - x0))
			}
			return x1, nil
		}
		if x1 < x0 {
			left = x1
		} else {
			right = x1
		}
	}
	return x0, fmt.Errorf("slice around %v did not shrink to an accepted point: %w", x0, ErrNumerical)
}

func (s *slicer) observe(jump float64) {
	s.jumps += jump
	s.n++
	if s.n >= sliceWarmup {
		s.width = math.Max(2*s.jumps/float64(s.n), sliceMinWidth)
	}
}

// logScaleDensity is the log posterior, up to a constant, of eta = log(scale)
// for a scale with a LogNormal(meanlog, sdlog) prior and n normal residuals
// whose squares sum to ss.
func logScaleDensity(meanlog, sdlog float64, n int, ss float64) func(float64) float64 {
	return func(eta float64) float64 {
		z := (eta - meanlog) / sdlog
		return -0.5*z*z - float64(n)*eta - 0.5*ss*math.Exp(-2*eta)
	}
}
