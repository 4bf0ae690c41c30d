package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/posterior"
)

// Gibbs is an in-process Metropolis-within-Gibbs sampler for two-level normal
// regressions. Regression coefficients are drawn jointly per group from their
// normal full conditional, normal location hyperparameters from theirs, and
// every scale is slice sampled on the log scale. Chains run concurrently.
type Gibbs struct {
	Logger *slog.Logger

	// ProgressInterval bounds how often a chain logs its progress.
	ProgressInterval time.Duration
}

func NewGibbs(logger *slog.Logger) *Gibbs {
	return &Gibbs{Logger: logger, ProgressInterval: 5 * time.Second}
}

func (g *Gibbs) Name() string {
	return "gibbs"
}

func (g *Gibbs) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Gibbs) Sample(ctx context.Context, m model.Model, d *dataset.Dataset, cfg Config) (*posterior.Samples, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := newPlan(m, d)
	if err != nil {
		return nil, err
	}

	samples := posterior.New(m.Name, MonitoredNames(m, d.J()), cfg.Chains)
	eg, ctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.Chains; c++ {
		eg.Go(func() error {
			draws, err := g.runChain(ctx, p, cfg, c)
			if err != nil {
				return fmt.Errorf("chain %d: %w", c+1, err)
			}
			return samples.SetChain(c, draws)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

func (g *Gibbs) runChain(ctx context.Context, p *plan, cfg Config, c int) ([][]float64, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(c)+1))
	st := p.newChain(rng)

	nParams := len(p.model.Parameters(p.genres))
	draws := make([][]float64, nParams+1)
	for i := range draws {
		draws[i] = make([]float64, 0, cfg.Draws)
	}

	total := cfg.Adapt + cfg.BurnIn + cfg.Draws*cfg.Thin
	interval := g.ProgressInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	progress := rate.Sometimes{Interval: interval}
	log := g.logger().With("model", p.model.Name, "chain", c+1)

	for it := 0; it < total; it++ {
		if it%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := st.update(it < cfg.Adapt); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it+1, err)
		}

		kept := it - cfg.Adapt - cfg.BurnIn
		if kept >= 0 && (kept+1)%cfg.Thin == 0 {
			dev := p.model.Deviance(p.data, st.values)
			if math.IsInf(dev, 0) || math.IsNaN(dev) {
				return nil, fmt.Errorf("iteration %d: deviance %v: %w", it+1, dev, ErrNumerical)
			}
			for i, x := range p.model.Flatten(st.values, p.genres) {
				draws[i] = append(draws[i], x)
			}
			draws[nParams] = append(draws[nParams], dev)
		}

		progress.Do(func() {
			log.Debug("sampling", "iteration", it+1, "total", total)
		})
	}
	log.Debug("chain finished", "draws", cfg.Draws)
	return draws, nil
}

// plan is the model and data arranged for conditional updates.
type plan struct {
	model  model.Model
	data   *dataset.Dataset
	genres int

	y     []float64
	x     [][3]float64
	genre []int

	coef        [3]model.Node
	coefGroups  [][]int
	sigma       model.Node
	sigmaGroups [][]int

	// hypers[i] feeds the location (or scale) of coefficient slot.
	hypers []hyperLink
}

type hyperLink struct {
	node model.Node
	slot int
}

func newPlan(m model.Model, d *dataset.Dataset) (*plan, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	p := &plan{model: m, data: d, genres: d.J()}
	l := m.Likelihood
	for k, name := range []string{l.Intercept, l.Dance, l.Length} {
		n, _ := m.Node(name)
		if n.Prior.Family != model.Normal {
			return nil, fmt.Errorf("%w: coefficient %s needs a normal prior", ErrUnsupported, name)
		}
		if k > 0 && n.PerGenre != p.coef[0].PerGenre {
			return nil, fmt.Errorf("%w: coefficients must all be per-genre or all global", ErrUnsupported)
		}
		p.coef[k] = n
	}
	p.sigma, _ = m.Node(l.Sigma)
	if p.sigma.Prior.Loc.IsRef() || p.sigma.Prior.Scale.IsRef() {
		return nil, fmt.Errorf("%w: noise scale %s needs a fixed prior", ErrUnsupported, l.Sigma)
	}

	for _, name := range m.HyperParameters() {
		link, err := p.linkHyper(name)
		if err != nil {
			return nil, err
		}
		p.hypers = append(p.hypers, link)
	}

	p.y = make([]float64, d.N())
	p.x = make([][3]float64, d.N())
	p.genre = make([]int, d.N())
	for i := 0; i < d.N(); i++ {
		s := d.Song(i)
		p.y[i] = s.Popularity
		p.x[i] = [3]float64{1, s.Danceability, s.LengthStandardized}
		p.genre[i] = s.GenreIndex - 1
		for _, v := range []float64{s.Popularity, s.Danceability, s.LengthStandardized} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: song %d has a non-finite value", ErrInit, i+1)
			}
		}
	}

	p.coefGroups = p.groups(p.coef[0].PerGenre)
	p.sigmaGroups = p.groups(p.sigma.PerGenre)
	if err := p.checkGroups(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) linkHyper(name string) (hyperLink, error) {
	n, _ := p.model.Node(name)
	if n.PerGenre || n.Prior.Loc.IsRef() || n.Prior.Scale.IsRef() {
		return hyperLink{}, fmt.Errorf("%w: hyperparameter %s must be global with a fixed prior", ErrUnsupported, name)
	}

	var links []hyperLink
	for k, c := range p.coef {
		switch {
		case c.Prior.Loc.Ref == name && n.Prior.Family == model.Normal:
			links = append(links, hyperLink{node: n, slot: k})
		case c.Prior.Scale.Ref == name && n.Prior.Family == model.LogNormal:
			links = append(links, hyperLink{node: n, slot: k})
		}
	}
	if len(links) != 1 || len(p.model.Children(name)) != 1 {
		return hyperLink{}, fmt.Errorf("%w: hyperparameter %s must be the location or scale of exactly one coefficient", ErrUnsupported, name)
	}
	return links[0], nil
}

// groups partitions row indices by genre, or returns one group of all rows.
func (p *plan) groups(perGenre bool) [][]int {
	if !perGenre {
		all := make([]int, len(p.y))
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}
	out := make([][]int, p.genres)
	for i, j := range p.genre {
		out[j] = append(out[j], i)
	}
	return out
}

func (p *plan) groupLabel(g int, perGenre bool) string {
	if !perGenre {
		return "all songs"
	}
	return fmt.Sprintf("genre %q", p.data.Genre(g+1))
}

func (p *plan) checkGroups() error {
	for g, rows := range p.coefGroups {
		if len(rows) == 0 {
			return fmt.Errorf("%w: %s has no songs", ErrInit, p.groupLabel(g, p.coef[0].PerGenre))
		}
	}
	for g, rows := range p.sigmaGroups {
		label := p.groupLabel(g, p.sigma.PerGenre)
		if len(rows) < 2 {
			return fmt.Errorf("%w: %s has %d songs, need at least 2 to estimate %s", ErrInit, label, len(rows), p.sigma.Name)
		}
		ys := make([]float64, len(rows))
		for i, r := range rows {
			ys[i] = p.y[r]
		}
		if stat.Variance(ys, nil) == 0 {
			return fmt.Errorf("%w: %s has zero popularity variance", ErrInit, label)
		}
	}
	return nil
}

func resolve(v model.Values, t model.Term) float64 {
	if t.IsRef() {
		return v[t.Ref][0]
	}
	return t.Value
}

// chain is the mutable state of one Markov chain.
type chain struct {
	plan   *plan
	rng    *rand.Rand
	values model.Values

	sigmaSlicers []*slicer
	hyperSlicers []*slicer
}

func (p *plan) newChain(rng *rand.Rand) *chain {
	c := &chain{plan: p, rng: rng, values: make(model.Values)}
	jitter := func() float64 { return 0.1 * rng.NormFloat64() }

	for _, n := range p.model.Nodes {
		size := 1
		if n.PerGenre {
			size = p.genres
		}
		c.values[n.Name] = make([]float64, size)
	}

	for _, h := range p.hypers {
		prior := h.node.Prior
		x := prior.Loc.Value + jitter()*prior.Scale.Value
		if prior.Family == model.LogNormal {
			x = math.Exp(x)
		}
		c.values[h.node.Name][0] = x
	}
	for _, n := range p.coef {
		m := resolve(c.values, n.Prior.Loc)
		for j := range c.values[n.Name] {
			c.values[n.Name][j] = m
		}
	}
	for g, rows := range p.sigmaGroups {
		ys := make([]float64, len(rows))
		for i, r := range rows {
			ys[i] = p.y[r]
		}
		c.values[p.sigma.Name][g] = stat.StdDev(ys, nil) * math.Exp(jitter())
		c.sigmaSlicers = append(c.sigmaSlicers, newSlicer())
	}
	for range p.hypers {
		c.hyperSlicers = append(c.hyperSlicers, newSlicer())
	}
	return c
}

func (c *chain) update(adapt bool) error {
	for g := range c.plan.coefGroups {
		if err := c.updateCoefficients(g); err != nil {
			return err
		}
	}
	for g := range c.plan.sigmaGroups {
		if err := c.updateSigma(g, adapt); err != nil {
			return err
		}
	}
	for i, h := range c.plan.hypers {
		if err := c.updateHyper(i, adapt); err != nil {
			return err
		}
		if h.node.Prior.Family == model.Normal {
			c.translate(h)
		}
	}
	return nil
}

// updateCoefficients draws intercept and both slopes of group g from their
// joint normal full conditional.
func (c *chain) updateCoefficients(g int) error {
	p := c.plan
	prec := mat.NewSymDense(3, nil)
	rhs := make([]float64, 3)
	for k, n := range p.coef {
		s := resolve(c.values, n.Prior.Scale)
		w := 1 / (s * s)
		prec.SetSym(k, k, w)
		rhs[k] = resolve(c.values, n.Prior.Loc) * w
	}
	for _, i := range p.coefGroups[g] {
		sigma := c.values.At(p.sigma.Name, p.genre[i])
		w := 1 / (sigma * sigma)
		xi := p.x[i]
		for a := 0; a < 3; a++ {
			rhs[a] += w * xi[a] * p.y[i]
			for b := a; b < 3; b++ {
				prec.SetSym(a, b, prec.At(a, b)+w*xi[a]*xi[b])
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(prec); !ok {
		return fmt.Errorf("coefficients of %s: precision not positive definite: %w", p.groupLabel(g, p.coef[0].PerGenre), ErrNumerical)
	}
	mean := mat.NewVecDense(3, nil)
	if err := chol.SolveVecTo(mean, mat.NewVecDense(3, rhs)); err != nil {
		return fmt.Errorf("coefficients: %v: %w", err, ErrNumerical)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return fmt.Errorf("coefficients: %v: %w", err, ErrNumerical)
	}
	normal, ok := distmv.NewNormal(mean.RawVector().Data, &cov, c.rng)
	if !ok {
		return fmt.Errorf("coefficients: covariance not positive definite: %w", ErrNumerical)
	}

	draw := normal.Rand(nil)
	for k, n := range p.coef {
		c.values[n.Name][g] = draw[k]
	}
	return nil
}

func (c *chain) updateSigma(g int, adapt bool) error {
	p := c.plan
	rows := p.sigmaGroups[g]
	var ss float64
	for _, i := range rows {
		r := p.y[i] - p.model.Mean(c.values, p.data.Song(i))
		ss += r * r
	}

	prior := p.sigma.Prior
	logf := logScaleDensity(prior.Loc.Value, prior.Scale.Value, len(rows), ss)
	eta, err := c.sigmaSlicers[g].step(c.rng, math.Log(c.values[p.sigma.Name][g]), logf, adapt)
	if err != nil {
		return fmt.Errorf("%s of %s: %w", p.sigma.Name, p.groupLabel(g, p.sigma.PerGenre), err)
	}
	c.values[p.sigma.Name][g] = math.Exp(eta)
	return nil
}

// translate shifts a location hyperparameter and every coefficient it centers
// by the same amount, drawn from its normal full conditional. The children's
// prior is unchanged by the shift, so only the hyperprior and the likelihood
// enter the conditional.
func (c *chain) translate(h hyperLink) {
	p := c.plan
	child := p.coef[h.slot]
	prior := h.node.Prior
	mu := c.values[h.node.Name][0]

	prec := 1 / (prior.Scale.Value * prior.Scale.Value)
	num := (prior.Loc.Value - mu) * prec
	for i, y := range p.y {
		sigma := c.values.At(p.sigma.Name, p.genre[i])
		w := 1 / (sigma * sigma)
		x := p.x[i][h.slot]
		prec += w * x * x
		num += w * x * (y - p.model.Mean(c.values, p.data.Song(i)))
	}

	delta := distuv.Normal{Mu: num / prec, Sigma: math.Sqrt(1 / prec), Src: c.rng}.Rand()
	c.values[h.node.Name][0] += delta
	for j := range c.values[child.Name] {
		c.values[child.Name][j] += delta
	}
}

func (c *chain) updateHyper(i int, adapt bool) error {
	h := c.plan.hypers[i]
	child := c.plan.coef[h.slot]
	children := c.values[child.Name]
	prior := h.node.Prior

	if prior.Family == model.Normal {
		s := resolve(c.values, child.Prior.Scale)
		prec := 1/(prior.Scale.Value*prior.Scale.Value) + float64(len(children))/(s*s)
		sum := prior.Loc.Value / (prior.Scale.Value * prior.Scale.Value)
		for _, x := range children {
			sum += x / (s * s)
		}
		c.values[h.node.Name][0] = distuv.Normal{Mu: sum / prec, Sigma: math.Sqrt(1 / prec), Src: c.rng}.Rand()
		return nil
	}

	loc := resolve(c.values, child.Prior.Loc)
	var ss float64
	for _, x := range children {
		ss += (x - loc) * (x - loc)
	}
	logf := logScaleDensity(prior.Loc.Value, prior.Scale.Value, len(children), ss)
	eta, err := c.hyperSlicers[i].step(c.rng, math.Log(c.values[h.node.Name][0]), logf, adapt)
	if err != nil {
		return fmt.Errorf("%s: %w", h.node.Name, err)
	}
	c.values[h.node.Name][0] = math.Exp(eta)
	return nil
}
