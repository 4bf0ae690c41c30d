package analysis

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/posterior"
	"github.com/ademuri/genre-pooling/internal/sampler"
)

func cleanSongs(t *testing.T, songs []dataset.Song, opts dataset.Options) *dataset.Dataset {
	t.Helper()
	d, err := dataset.Clean(songs, opts)
	if err != nil {
		t.Fatalf("Clean() error: %v", err)
	}
	return d
}

// uniformSongs draws every column independently, so genre carries no signal.
func uniformSongs(n int, genres []string, seed uint64) []dataset.Song {
	rng := rand.New(rand.NewPCG(seed, 5))
	songs := make([]dataset.Song, n)
	for i := range songs {
		songs[i] = dataset.Song{
			Popularity:   rng.Float64() * 100,
			Danceability: rng.Float64() * 100,
			Length:       100 + rng.Float64()*300,
			Genre:        genres[i%len(genres)],
		}
	}
	return songs
}

// separatedSongs gives each genre its own popularity level.
func separatedSongs(n int, levels map[string]float64, seed uint64) []dataset.Song {
	rng := rand.New(rand.NewPCG(seed, 7))
	var genres []string
	for g := range levels {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	songs := make([]dataset.Song, n)
	for i := range songs {
		g := genres[i%len(genres)]
		dance := rng.Float64() * 100
		songs[i] = dataset.Song{
			Popularity:   levels[g] + 0.1*dance + 4*rng.NormFloat64(),
			Danceability: dance,
			Length:       100 + rng.Float64()*300,
			Genre:        g,
		}
	}
	return songs
}

func testRunner() *Runner {
	return &Runner{
		Sampler: sampler.NewGibbs(nil),
		Config:  sampler.Config{Chains: 2, Adapt: 300, BurnIn: 300, Draws: 1000, Thin: 1, Seed: 7},
	}
}

func TestComputeDIC(t *testing.T) {
	songs := []dataset.Song{
		{Popularity: 10, Danceability: 0, Length: 100, Genre: "a"},
		{Popularity: 20, Danceability: 10, Length: 200, Genre: "a"},
		{Popularity: 30, Danceability: 20, Length: 300, Genre: "b"},
		{Popularity: 40, Danceability: 30, Length: 400, Genre: "b"},
	}
	d := cleanSongs(t, songs, dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	m := model.Pooled()

	names := append(m.Parameters(d.J()), posterior.Deviance)
	s := posterior.New(m.Name, names, 2)
	for c := 0; c < 2; c++ {
		draws := [][]float64{
			{9, 10, 11},  // mu
			{1, 1, 1},    // b_dance
			{0, 0, 0},    // b_length
			{2, 2, 2},    // sigma
			{10, 12, 14}, // deviance
		}
		if err := s.SetChain(c, draws); err != nil {
			t.Fatalf("SetChain() error: %v", err)
		}
	}

	got, err := ComputeDIC(m, d, s)
	if err != nil {
		t.Fatalf("ComputeDIC() error: %v", err)
	}

	dhat := m.Deviance(d, model.Values{"mu": {10}, "b_dance": {1}, "b_length": {0}, "sigma": {2}})
	if math.Abs(got.DevianceAtMean-dhat) > 1e-9 {
		t.Errorf("Expected deviance at mean %v, got %v", dhat, got.DevianceAtMean)
	}
	if got.MeanDeviance != 12 {
		t.Errorf("Expected mean deviance 12, got %v", got.MeanDeviance)
	}
	// Sample variance of {10, 12, 14, 10, 12, 14} is 16/5.
	if math.Abs(got.Penalty-1.6) > 1e-9 {
		t.Errorf("Expected penalty 1.6, got %v", got.Penalty)
	}
	if math.Abs(got.DIC-(dhat+3.2)) > 1e-9 {
		t.Errorf("Expected DIC %v, got %v", dhat+3.2, got.DIC)
	}
}

func TestComputeDICErrors(t *testing.T) {
	d := cleanSongs(t, uniformSongs(10, []string{"a", "b"}, 1), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	m := model.Pooled()
	names := append(m.Parameters(d.J()), posterior.Deviance)

	short := posterior.New(m.Name, names, 1)
	if err := short.SetChain(0, [][]float64{{1}, {1}, {1}, {1}, {1}}); err != nil {
		t.Fatalf("SetChain() error: %v", err)
	}
	if _, err := ComputeDIC(m, d, short); err == nil {
		t.Error("Expected error for a single deviance draw")
	}

	missing := posterior.New(m.Name, []string{"mu", posterior.Deviance}, 1)
	if err := missing.SetChain(0, [][]float64{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("SetChain() error: %v", err)
	}
	if _, err := ComputeDIC(m, d, missing); err == nil {
		t.Error("Expected error for missing parameters")
	}

	noDeviance := posterior.New(m.Name, m.Parameters(d.J()), 1)
	if err := noDeviance.SetChain(0, [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}); err != nil {
		t.Fatalf("SetChain() error: %v", err)
	}
	if _, err := ComputeDIC(m, d, noDeviance); err == nil || !strings.Contains(err.Error(), "no deviance") {
		t.Errorf("Expected missing deviance error, got %v", err)
	}

	infinite := posterior.New(m.Name, names, 1)
	if err := infinite.SetChain(0, [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}, {math.Inf(1), 1}}); err != nil {
		t.Fatalf("SetChain() error: %v", err)
	}
	if _, err := ComputeDIC(m, d, infinite); err == nil {
		t.Error("Expected error for an infinite deviance")
	}
}

// Each model is sampled from the same seed whatever its position, so
// reordering the models changes neither the DICs nor the ranking.
func TestCompareModelOrder(t *testing.T) {
	d := cleanSongs(t, uniformSongs(60, []string{"pop", "rock"}, 21), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	r := testRunner()
	r.Config.Adapt, r.Config.BurnIn, r.Config.Draws = 100, 100, 200

	forward, err := r.Compare(context.Background(), model.All(), d)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	all := model.All()
	reversed := []model.Model{all[2], all[1], all[0]}
	backward, err := r.Compare(context.Background(), reversed, d)
	if err != nil {
		t.Fatalf("Compare(reversed) error: %v", err)
	}

	if len(forward.Fits) != 3 || len(backward.Fits) != 3 {
		t.Fatalf("Expected 3 fits each, got %d and %d", len(forward.Fits), len(backward.Fits))
	}
	dic := map[string]float64{}
	for _, f := range forward.Fits {
		dic[f.Model.Name] = f.Criterion.DIC
	}
	for i, f := range backward.Fits {
		if got, want := f.Criterion.DIC, dic[f.Model.Name]; got != want {
			t.Errorf("%s: DIC %v after reordering, want %v", f.Model.Name, got, want)
		}
		if f.Model.Name != forward.Fits[i].Model.Name {
			t.Errorf("Rank %d: %s after reordering, want %s", i+1, f.Model.Name, forward.Fits[i].Model.Name)
		}
	}
}

func TestCompareTiesKeepInputOrder(t *testing.T) {
	d := cleanSongs(t, uniformSongs(20, []string{"a", "b"}, 22), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	r := &Runner{Sampler: constantSampler{}, Config: sampler.Config{Chains: 1, Draws: 2, Thin: 1}}

	comp, err := r.Compare(context.Background(), []model.Model{model.Unpooled(), model.Pooled()}, d)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if len(comp.Fits) != 2 {
		t.Fatalf("Expected 2 fits, got %d: %v", len(comp.Fits), comp.Err())
	}
	if comp.Fits[0].Model.Name != "unpooled" || comp.Fits[1].Model.Name != "pooled" {
		t.Errorf("Expected tied models in input order, got %s, %s", comp.Fits[0].Model.Name, comp.Fits[1].Model.Name)
	}
}

// constantSampler gives every parameter the same draws, so the pooled and
// unpooled models get identical DICs.
type constantSampler struct{}

func (constantSampler) Name() string { return "constant" }

func (constantSampler) Sample(_ context.Context, m model.Model, d *dataset.Dataset, cfg sampler.Config) (*posterior.Samples, error) {
	names := sampler.MonitoredNames(m, d.J())
	s := posterior.New(m.Name, names, cfg.Chains)
	draws := make([][]float64, len(names))
	for i := range draws {
		draws[i] = []float64{1, 1}
	}
	draws[len(names)-1] = []float64{100, 102}
	if err := s.SetChain(0, draws); err != nil {
		return nil, err
	}
	return s, nil
}

type failingSampler struct {
	err error
}

func (f failingSampler) Name() string { return "failing" }

func (f failingSampler) Sample(context.Context, model.Model, *dataset.Dataset, sampler.Config) (*posterior.Samples, error) {
	return nil, f.err
}

func TestFitErrorStage(t *testing.T) {
	d := cleanSongs(t, uniformSongs(20, []string{"a", "b"}, 2), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	r := &Runner{Sampler: failingSampler{err: sampler.ErrInit}, Config: sampler.DefaultConfig()}

	_, err := r.Fit(context.Background(), model.Pooled(), d)
	var fe *FitError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FitError, got %v", err)
	}
	if fe.Stage != StageSample || fe.Model != "pooled" {
		t.Errorf("Expected pooled sample failure, got %s %s", fe.Model, fe.Stage)
	}
	if !errors.Is(err, sampler.ErrInit) {
		t.Errorf("Expected wrapped ErrInit, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "model pooled: sample: ") {
		t.Errorf("Unexpected error message %q", err.Error())
	}

	invalid := model.Pooled()
	invalid.Likelihood.Intercept = "missing"
	_, err = r.Fit(context.Background(), invalid, d)
	if !errors.As(err, &fe) || fe.Stage != StageValidate {
		t.Errorf("Expected validate failure, got %v", err)
	}
}

func TestCompareContinuesPastFailures(t *testing.T) {
	d := cleanSongs(t, uniformSongs(20, []string{"a", "b"}, 3), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	r := &Runner{Sampler: failingSampler{err: sampler.ErrNumerical}, Config: sampler.DefaultConfig()}

	comp, err := r.Compare(context.Background(), model.All(), d)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if len(comp.Fits) != 0 || len(comp.Failures) != 3 {
		t.Errorf("Expected 3 failures and no fits, got %d and %d", len(comp.Failures), len(comp.Fits))
	}
	if !errors.Is(comp.Err(), sampler.ErrNumerical) {
		t.Errorf("Expected joined ErrNumerical, got %v", comp.Err())
	}
}

func TestCompareCanceled(t *testing.T) {
	d := cleanSongs(t, uniformSongs(20, []string{"a", "b"}, 4), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testRunner().Compare(ctx, model.All(), d); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// 100 songs in two genres with no real structure.
func TestCompareUniformTwoGenres(t *testing.T) {
	d := cleanSongs(t, uniformSongs(100, []string{"pop", "rock"}, 11), dataset.DefaultOptions())
	if d.J() != 2 {
		t.Fatalf("Expected 2 genres, got %d", d.J())
	}

	comp, err := testRunner().Compare(context.Background(), model.All(), d)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if err := comp.Err(); err != nil {
		t.Fatalf("Unexpected failures: %v", err)
	}
	if len(comp.Fits) != 3 {
		t.Fatalf("Expected 3 fits, got %d", len(comp.Fits))
	}

	byName := map[string]*Fit{}
	for i, f := range comp.Fits {
		byName[f.Model.Name] = f
		if math.IsNaN(f.Criterion.DIC) || math.IsInf(f.Criterion.DIC, 0) {
			t.Errorf("%s: non-finite DIC", f.Model.Name)
		}
		if i > 0 && comp.Fits[i-1].Criterion.DIC > f.Criterion.DIC {
			t.Errorf("Fits not in ascending DIC order at %d", i)
		}
		if f.Warning != "" {
			t.Errorf("%s: unexpected warning %q", f.Model.Name, f.Warning)
		}
	}

	pooled, unpooled := byName["pooled"], byName["unpooled"]
	if unpooled.Criterion.DevianceAtMean > pooled.Criterion.DevianceAtMean+2 {
		t.Errorf("Expected unpooled deviance at mean (%v) not to exceed pooled (%v)",
			unpooled.Criterion.DevianceAtMean, pooled.Criterion.DevianceAtMean)
	}
	if got := pooled.Record().Parameters; got != 4 {
		t.Errorf("Expected 4 pooled parameters, got %d", got)
	}
	if got := unpooled.Record().Parameters; got != 8 {
		t.Errorf("Expected 8 unpooled parameters, got %d", got)
	}
	if got := byName["hierarchical"].Record().Parameters; got != 13 {
		t.Errorf("Expected 13 hierarchical parameters, got %d", got)
	}
}

func TestCompareSeparatedGenres(t *testing.T) {
	songs := separatedSongs(200, map[string]float64{"ambient": 15, "pop": 75}, 12)
	d := cleanSongs(t, songs, dataset.Options{LowerQuantile: 0, UpperQuantile: 1})

	comp, err := testRunner().Compare(context.Background(), model.All(), d)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if len(comp.Fits) != 3 {
		t.Fatalf("Expected 3 fits, got %d: %v", len(comp.Fits), comp.Err())
	}
	if last := comp.Fits[2].Model.Name; last != "pooled" {
		t.Errorf("Expected pooled to rank last, got %s", last)
	}
}

func TestSingleGenre(t *testing.T) {
	songs := separatedSongs(150, map[string]float64{"only": 40}, 13)
	d := cleanSongs(t, songs, dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	if !d.Degenerate() {
		t.Fatal("Expected a degenerate dataset")
	}

	comp, err := testRunner().Compare(context.Background(), model.All(), d)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if len(comp.Fits) != 3 {
		t.Fatalf("Expected 3 fits, got %d: %v", len(comp.Fits), comp.Err())
	}

	means := map[string]map[string]float64{}
	for _, f := range comp.Fits {
		if f.Model.HasGenreStructure() != (f.Warning != "") {
			t.Errorf("%s: warning %q does not match genre structure", f.Model.Name, f.Warning)
		}
		means[f.Model.Name] = map[string]float64{}
		for _, p := range f.Model.Parameters(d.J()) {
			means[f.Model.Name][p], _ = f.Samples.Mean(p)
		}
	}

	pooled, unpooled, hier := means["pooled"], means["unpooled"], means["hierarchical"]
	if math.Abs(pooled["mu"]-unpooled["mu[1]"]) > 2 {
		t.Errorf("Expected equal intercepts, got %v and %v", pooled["mu"], unpooled["mu[1]"])
	}
	if math.Abs(pooled["b_dance"]-unpooled["b_dance[1]"]) > 0.03 {
		t.Errorf("Expected equal dance slopes, got %v and %v", pooled["b_dance"], unpooled["b_dance[1]"])
	}
	if math.Abs(pooled["mu"]-hier["genre_intercept[1]"]) > 3 {
		t.Errorf("Expected hierarchical intercept near pooled, got %v and %v", hier["genre_intercept[1]"], pooled["mu"])
	}
	if math.Abs(pooled["b_dance"]-hier["slope_dance[1]"]) > 0.05 {
		t.Errorf("Expected hierarchical dance slope near pooled, got %v and %v", hier["slope_dance[1]"], pooled["b_dance"])
	}
}

func TestNewReport(t *testing.T) {
	d := cleanSongs(t, uniformSongs(40, []string{"a", "b"}, 14), dataset.Options{LowerQuantile: 0, UpperQuantile: 1})
	r := testRunner()
	r.Config.Adapt, r.Config.BurnIn, r.Config.Draws = 20, 20, 50

	fit, err := r.Fit(context.Background(), model.Pooled(), d)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	comp := &Comparison{
		Fits:     []*Fit{fit},
		Failures: []*FitError{{Model: "unpooled", Stage: StageSample, Err: sampler.ErrInit}},
	}

	report := NewReport("run-1", r.Sampler.Name(), r.Config, d, comp)
	out, err := yaml.Marshal(report)
	if err != nil {
		t.Fatalf("yaml.Marshal() error: %v", err)
	}
	for _, want := range []string{
		"run_id: run-1",
		"sampler: gibbs",
		"songs: 40",
		"rank: 1",
		"model: pooled",
		"parameters: 4",
		"dic: ",
		"name: b_dance",
		"stage: sample",
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("Report missing %q:\n%s", want, out)
		}
	}
}
