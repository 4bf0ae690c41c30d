package model

const (
	interceptMean = 50.0
	priorSD       = 20.0
)

// Pooled shares one intercept, one slope per predictor and one noise scale
// across all songs.
func Pooled() Model {
	return Model{
		Name:  "pooled",
		Title: "Fully pooled",
		Nodes: []Node{
			{Name: "mu", Prior: Dist{Normal, Const(interceptMean), Const(priorSD)}},
			{Name: "b_dance", Prior: Dist{Normal, Const(0), Const(priorSD)}},
			{Name: "b_length", Prior: Dist{Normal, Const(0), Const(priorSD)}},
			{Name: "sigma", Prior: Dist{LogNormal, Const(1), Const(1)}},
		},
		Likelihood: Likelihood{Intercept: "mu", Dance: "b_dance", Length: "b_length", Sigma: "sigma"},
	}
}

// Unpooled gives every genre its own intercept, slopes and noise scale with
// the pooled priors and no sharing between genres.
func Unpooled() Model {
	m := Pooled()
	m.Name = "unpooled"
	m.Title = "Fully unpooled"
	for i := range m.Nodes {
		m.Nodes[i].PerGenre = true
	}
	return m
}

// Hierarchical draws per-genre intercepts and slopes from population
// distributions with their own hyperpriors, and shares one noise scale.
func Hierarchical() Model {
	return Model{
		Name:  "hierarchical",
		Title: "Hierarchical",
		Nodes: []Node{
			{Name: "population_mean", Prior: Dist{Normal, Const(interceptMean), Const(priorSD)}},
			{Name: "population_sd", Prior: Dist{LogNormal, Const(-1), Const(1)}},
			{Name: "mu_slope_dance", Prior: Dist{Normal, Const(0), Const(priorSD)}},
			{Name: "sd_slope_dance", Prior: Dist{LogNormal, Const(1), Const(1)}},
			{Name: "mu_slope_length", Prior: Dist{Normal, Const(0), Const(priorSD)}},
			{Name: "sd_slope_length", Prior: Dist{LogNormal, Const(1), Const(1)}},
			{Name: "genre_intercept", PerGenre: true, Prior: Dist{Normal, Ref("population_mean"), Ref("population_sd")}},
			{Name: "slope_dance", PerGenre: true, Prior: Dist{Normal, Ref("mu_slope_dance"), Ref("sd_slope_dance")}},
			{Name: "slope_length", PerGenre: true, Prior: Dist{Normal, Ref("mu_slope_length"), Ref("sd_slope_length")}},
			{Name: "sigma", Prior: Dist{LogNormal, Const(1), Const(1)}},
		},
		Likelihood: Likelihood{Intercept: "genre_intercept", Dance: "slope_dance", Length: "slope_length", Sigma: "sigma"},
	}
}
