package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ademuri/genre-pooling/internal/model"
)

var modelsGenres int
var modelsCmd = &cobra.Command{
	Use:   "models [name]",
	Short: "Prints the model definitions",
	Long:  `Prints the JAGS code and parameter count of each model, or only of the named one. Names: pooled, unpooled, hierarchical.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := printModels(cmd.OutOrStdout(), args, modelsGenres); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().IntVarP(&modelsGenres, "genres", "j", 2, "number of genres to count parameters for")
}

func printModels(out io.Writer, args []string, genres int) error {
	if genres < 1 {
		return fmt.Errorf("genres must be at least 1, got %d", genres)
	}

	models := model.All()
	if len(args) == 1 {
		m, err := model.ByName(args[0])
		if err != nil {
			return err
		}
		models = []model.Model{m}
	}

	for _, m := range models {
		fmt.Fprintf(out, "# %s: %s\n", m.Name, m.Title)
		fmt.Fprintf(out, "# %d parameters with %d genres (%d genre-level)\n",
			len(m.Parameters(genres)), genres, len(m.GenreParameters(genres)))
		fmt.Fprintln(out, m.JAGS())
	}
	return nil
}
