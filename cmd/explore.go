package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ademuri/genre-pooling/internal/plot"
)

var explorePlotDir string
var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Summarizes the cleaned song table",
	Long:  `Prints per-feature and per-genre summaries. With --plot-dir, also writes feature histograms and per-genre boxplots.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := printExplore(cmd.Context(), cmd.OutOrStdout(), explorePlotDir); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(exploreCmd)

	exploreCmd.Flags().StringVar(&explorePlotDir, "plot-dir", "", "directory to write figures to")
}

func printExplore(ctx context.Context, out io.Writer, plotDir string) error {
	d, err := loadDataset()
	if err != nil {
		return err
	}

	features, err := featureAnalysis(d)
	if err != nil {
		return err
	}
	genres, err := genreFeatureAnalysis(d)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, features)
	fmt.Fprintln(out, genres)

	if plotDir == "" {
		return nil
	}
	figs := append(plot.FeatureHistograms(d), plot.GenreBoxplots(d)...)
	paths, err := plot.Render(ctx, plotDir, figs)
	if err != nil {
		return err
	}
	slog.Info("wrote figures", "dir", plotDir, "count", len(paths))
	return nil
}
