/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ademuri/genre-pooling/internal/analysis"
	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/posterior"
)

// Analysis is a table, header row first, followed by a free-form summary.
type Analysis struct {
	results [][]string
	summary string
}

func (a Analysis) String() string {
	out := new(bytes.Buffer)
	table := tablewriter.NewWriter(out)
	table.Header(a.results[0])
	for _, row := range a.results[1:] {
		if err := table.Append(row); err != nil {
			return fmt.Sprintf("Error rendering table: %v", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Sprintf("Error rendering table: %v", err)
	}
	if a.summary != "" {
		fmt.Fprintf(out, "%s\n", a.summary)
	}
	return out.String()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// genreIndexAnalysis lists the genre index assignment of a cleaned dataset.
func genreIndexAnalysis(d *dataset.Dataset) Analysis {
	results := [][]string{{"Index", "Genre", "Songs"}}
	for j, n := range d.GroupSizes() {
		results = append(results, []string{strconv.Itoa(j + 1), d.Genre(j + 1), strconv.Itoa(n)})
	}
	summary := fmt.Sprintf("Kept %d of %d songs (%d outside length [%s, %s] dropped)",
		d.N(), d.Raw, d.Dropped,
		formatFloat(d.LengthBounds.Lower, 2), formatFloat(d.LengthBounds.Upper, 2))
	return Analysis{results: results, summary: summary}
}

var featureColumns = []string{
	dataset.Popularity,
	dataset.Danceability,
	dataset.Length,
	dataset.LengthStandardized,
}

// featureAnalysis describes each numeric column of d.
func featureAnalysis(d *dataset.Dataset) (Analysis, error) {
	results := [][]string{{"Feature", "Mean", "SD", "Min", "Median", "Max"}}
	for _, col := range featureColumns {
		values, err := d.Column(col)
		if err != nil {
			return Analysis{}, err
		}
		sort.Float64s(values)
		mean, sd := stat.MeanStdDev(values, nil)
		results = append(results, []string{
			col,
			formatFloat(mean, 2),
			formatFloat(sd, 2),
			formatFloat(floats.Min(values), 2),
			formatFloat(stat.Quantile(0.5, stat.Empirical, values, nil), 2),
			formatFloat(floats.Max(values), 2),
		})
	}
	return Analysis{results: results}, nil
}

// genreFeatureAnalysis gives the per-genre mean of each numeric column.
func genreFeatureAnalysis(d *dataset.Dataset) (Analysis, error) {
	header := append([]string{"Genre", "Songs"}, featureColumns...)
	results := [][]string{header}

	genres := d.GenreColumn()
	columns := make([][]float64, len(featureColumns))
	for i, col := range featureColumns {
		values, err := d.Column(col)
		if err != nil {
			return Analysis{}, err
		}
		columns[i] = values
	}

	for j, n := range d.GroupSizes() {
		row := []string{d.Genre(j + 1), strconv.Itoa(n)}
		for _, values := range columns {
			var sum float64
			for i, g := range genres {
				if g == j+1 {
					sum += values[i]
				}
			}
			row = append(row, formatFloat(sum/float64(n), 2))
		}
		results = append(results, row)
	}

	var summary string
	if d.Degenerate() {
		summary = fmt.Sprintf("Only %d genre: genre-structured models reduce to the pooled model", d.J())
	}
	return Analysis{results: results, summary: summary}, nil
}

// posteriorAnalysis tabulates the posterior summaries of one fitted model.
func posteriorAnalysis(fit *analysis.Fit) Analysis {
	results := [][]string{{"Parameter", "Mean", "SD", "2.5%", "50%", "97.5%", "R-hat"}}
	for _, s := range fit.Summaries {
		results = append(results, summaryRow(s))
	}
	c := fit.Criterion
	summary := fmt.Sprintf("%s: DIC %s (Dbar %s, Dhat %s, pD %s)",
		fit.Model.Name, formatFloat(c.DIC, 2), formatFloat(c.MeanDeviance, 2),
		formatFloat(c.DevianceAtMean, 2), formatFloat(c.Penalty, 2))
	if fit.Warning != "" {
		summary += "\nWarning: " + fit.Warning
	}
	return Analysis{results: results, summary: summary}
}

func summaryRow(s posterior.Summary) []string {
	return []string{
		s.Name,
		formatFloat(s.Mean, 3),
		formatFloat(s.SD, 3),
		formatFloat(s.Q025, 3),
		formatFloat(s.Median, 3),
		formatFloat(s.Q975, 3),
		formatFloat(s.RHat, 3),
	}
}

// comparisonAnalysis lists the models in ascending DIC order.
func comparisonAnalysis(records []analysis.Record) Analysis {
	results := [][]string{{"Model", "DIC", "Dbar", "Dhat", "pD", "Parameters"}}
	var warnings []string
	for _, r := range records {
		c := r.Criterion
		results = append(results, []string{
			r.Model,
			formatFloat(c.DIC, 2),
			formatFloat(c.MeanDeviance, 2),
			formatFloat(c.DevianceAtMean, 2),
			formatFloat(c.Penalty, 2),
			strconv.Itoa(r.Parameters),
		})
		if r.Warning != "" {
			warnings = append(warnings, fmt.Sprintf("Warning: %s: %s", r.Model, r.Warning))
		}
	}
	summary := "No model fitted"
	if len(records) > 0 {
		summary = fmt.Sprintf("Best model: %s (%s)", records[0].Model, records[0].Title)
	}
	if len(warnings) > 0 {
		summary += "\n" + strings.Join(warnings, "\n")
	}
	return Analysis{results: results, summary: summary}
}
