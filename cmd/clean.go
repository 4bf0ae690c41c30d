package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Loads and cleans the song table",
	Long: `Drops songs whose length falls outside the configured quantile range,
rescales length to [0, 100] and assigns each genre an index.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := printClean(cmd.OutOrStdout()); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func printClean(out io.Writer) error {
	d, err := loadDataset()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, genreIndexAnalysis(d))
	return nil
}
