package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ademuri/genre-pooling/internal/model"
	"github.com/ademuri/genre-pooling/internal/plot"
)

var fitPlotDir string
var fitCmd = &cobra.Command{
	Use:   "fit <model>",
	Short: "Fits one model and prints its posterior summary",
	Long:  `Model is one of pooled, unpooled or hierarchical. With --plot-dir, writes a histogram and a trace plot per parameter.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := printFit(cmd.Context(), cmd.OutOrStdout(), args[0], fitPlotDir); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(fitCmd)

	fitCmd.Flags().StringVar(&fitPlotDir, "plot-dir", "", "directory to write figures to")
}

func printFit(ctx context.Context, out io.Writer, name, plotDir string) error {
	m, err := model.ByName(name)
	if err != nil {
		return err
	}
	d, err := loadDataset()
	if err != nil {
		return err
	}
	runner, err := newRunner()
	if err != nil {
		return err
	}

	runID := newRunID()
	slog.Info("starting fit", "run_id", runID, "model", m.Name)
	fit, err := runner.Fit(ctx, m, d)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, posteriorAnalysis(fit))

	if plotDir == "" {
		return nil
	}
	dir := filepath.Join(plotDir, runID)
	paths, err := plot.Render(ctx, dir, plot.Posterior(fit.Samples))
	if err != nil {
		return err
	}
	slog.Info("wrote figures", "dir", dir, "count", len(paths))
	return nil
}
