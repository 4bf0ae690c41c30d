package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ademuri/genre-pooling/internal/analysis"
	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/plot"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
)

var compareFormat string
var comparePlotDir string
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Fits all models and ranks them by DIC",
	Long: `Fits the pooled, unpooled and hierarchical models and lists them from
lowest to highest DIC. A model that fails does not stop the others, but the
command exits non-zero after printing the rest.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if compareFormat != formatTable && compareFormat != formatYAML {
			return fmt.Errorf("format must be %q or %q, got %q", formatTable, formatYAML, compareFormat)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := printCompare(cmd.Context(), cmd.OutOrStdout(), compareFormat, comparePlotDir); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVarP(&compareFormat, "format", "f", formatTable, "output format: table or yaml")
	compareCmd.Flags().StringVar(&comparePlotDir, "plot-dir", "", "directory to write figures to")
}

func printCompare(ctx context.Context, out io.Writer, format, plotDir string) error {
	d, err := loadDataset()
	if err != nil {
		return err
	}
	runner, err := newRunner()
	if err != nil {
		return err
	}

	runID := newRunID()
	slog.Info("starting comparison", "run_id", runID, "sampler", runner.Sampler.Name(), "songs", d.N(), "genres", d.J())
	comp, err := runner.Compare(ctx, model.All(), d)
	if err != nil {
		return err
	}

	switch format {
	case formatYAML:
		report := analysis.NewReport(runID, runner.Sampler.Name(), runner.Config, d, comp)
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	default:
		fmt.Fprintln(out, comparisonAnalysis(comp.Records()))
	}

	if plotDir != "" && len(comp.Fits) > 0 {
		dir := filepath.Join(plotDir, runID)
		var figs []plot.Figure
		for _, fit := range comp.Fits {
			figs = append(figs, plot.Posterior(fit.Samples)...)
		}
		paths, err := plot.Render(ctx, dir, figs)
		if err != nil {
			return err
		}
		slog.Info("wrote figures", "dir", dir, "count", len(paths))
	}

	return comp.Err()
}
