// Package plot draws the exploration and posterior figures as PNG files.
package plot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/posterior"
)

const (
	width  = 6 * vg.Inch
	height = 4 * vg.Inch

	posteriorBins = 40
	featureBins   = 25
)

var errNoData = errors.New("no data to plot")

// Figure is a named plot, built when it is rendered.
type Figure struct {
	Name  string
	Build func() (*plot.Plot, error)
}

// Histogram bins values into a single-series histogram.
func Histogram(title string, values []float64, bins int) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", title, errNoData)
	}
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", title, err)
	}
	h.FillColor = plotutil.Color(0)

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "count"
	p.Add(h)
	return p, nil
}

// Trace draws one line per chain against the draw index.
func Trace(title string, chains [][]float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "draw"

	drawn := 0
	for c, draws := range chains {
		if len(draws) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(draws))
		for i, v := range draws {
			xys[i].X = float64(i + 1)
			xys[i].Y = v
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("%s chain %d: %w", title, c+1, err)
		}
		l.Color = plotutil.Color(c)
		l.Width = vg.Points(0.5)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("chain %d", c+1), l)
		drawn++
	}
	if drawn == 0 {
		return nil, fmt.Errorf("%s: %w", title, errNoData)
	}
	return p, nil
}

// Boxplots draws one box per group, labelled with the group names.
func Boxplots(title string, groups []string, values [][]float64) (*plot.Plot, error) {
	if len(groups) != len(values) {
		return nil, fmt.Errorf("%s: %d groups for %d value sets", title, len(groups), len(values))
	}
	p := plot.New()
	p.Title.Text = title

	w := vg.Points(20)
	for i, vs := range values {
		if len(vs) == 0 {
			return nil, fmt.Errorf("%s: group %s: %w", title, groups[i], errNoData)
		}
		b, err := plotter.NewBoxPlot(w, float64(i), plotter.Values(vs))
		if err != nil {
			return nil, fmt.Errorf("%s: group %s: %w", title, groups[i], err)
		}
		p.Add(b)
	}
	p.NominalX(groups...)
	return p, nil
}

// Posterior returns a histogram and a trace figure for every parameter of s,
// the deviance included.
func Posterior(s *posterior.Samples) []Figure {
	var figs []Figure
	for _, name := range s.Names() {
		figs = append(figs,
			Figure{
				Name: fileName(s.Model, name, "hist"),
				Build: func() (*plot.Plot, error) {
					return Histogram(fmt.Sprintf("%s: %s", s.Model, name), s.Pooled(name), posteriorBins)
				},
			},
			Figure{
				Name: fileName(s.Model, name, "trace"),
				Build: func() (*plot.Plot, error) {
					return Trace(fmt.Sprintf("%s: %s", s.Model, name), s.Chains(name))
				},
			})
	}
	return figs
}

var features = []string{
	dataset.Popularity,
	dataset.Danceability,
	dataset.Length,
	dataset.LengthStandardized,
}

// FeatureHistograms returns one histogram per numeric column of d.
func FeatureHistograms(d *dataset.Dataset) []Figure {
	figs := make([]Figure, 0, len(features))
	for _, col := range features {
		figs = append(figs, Figure{
			Name: fileName("feature", col, "hist"),
			Build: func() (*plot.Plot, error) {
				values, err := d.Column(col)
				if err != nil {
					return nil, err
				}
				return Histogram(col, values, featureBins)
			},
		})
	}
	return figs
}

// GenreBoxplots returns, per numeric column of d, the distribution of that
// column within each genre.
func GenreBoxplots(d *dataset.Dataset) []Figure {
	figs := make([]Figure, 0, len(features))
	for _, col := range features {
		figs = append(figs, Figure{
			Name: fileName("genre", col, "box"),
			Build: func() (*plot.Plot, error) {
				values, err := d.Column(col)
				if err != nil {
					return nil, err
				}
				groups := make([][]float64, d.J())
				for i, g := range d.GenreColumn() {
					groups[g-1] = append(groups[g-1], values[i])
				}
				return Boxplots(col+" by genre", d.Genres(), groups)
			},
		})
	}
	return figs
}

// Render builds every figure and saves it as dir/<name>.png, rendering up to
// one figure per CPU at a time. It returns the written paths in figure order.
func Render(ctx context.Context, dir string, figs []Figure) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plot directory: %w", err)
	}

	paths := make([]string, len(figs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, fig := range figs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := fig.Build()
			if err != nil {
				return fmt.Errorf("figure %s: %w", fig.Name, err)
			}
			path := filepath.Join(dir, fig.Name+".png")
			if err := p.Save(width, height, path); err != nil {
				return fmt.Errorf("saving %s: %w", path, err)
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

var unsafeChars = strings.NewReplacer("[", "_", "]", "", "/", "_", " ", "_")

func fileName(parts ...string) string {
	return unsafeChars.Replace(strings.Join(parts, "_"))
}
