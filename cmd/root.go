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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/ademuri/genre-pooling/internal/dataset"
	"github.com/ademuri/genre-pooling/internal/sampler"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "genre-pooling",
	Short: "Compares pooled, unpooled and hierarchical models of song popularity",
	Long: `Loads a table of songs, cleans it, and fits three Bayesian regressions of
popularity on danceability and length: one ignoring genre, one per genre, and
one with genre effects drawn from a shared population. The fits are compared
with the Deviance Information Criterion.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(viper.GetBool("verbose")))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := dataset.DefaultOptions()
	sampling := sampler.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(
		&cfgFile, "config", "", "config file (default is $HOME/.genre-pooling.yaml)")

	flags.StringP("data", "d", "songs.csv", "Path to the song table")
	flags.String("delimiter", string(defaults.Delimiter), "Field delimiter of the song table (\"tab\" for tabs)")
	flags.Float64("lower-quantile", defaults.LowerQuantile, "Songs shorter than this length quantile are dropped")
	flags.Float64("upper-quantile", defaults.UpperQuantile, "Songs longer than this length quantile are dropped")

	flags.String("backend", "gibbs", "Sampler backend: gibbs or jags")
	flags.String("jags", "jags", "Path to the jags binary for the jags backend")
	flags.Int("chains", sampling.Chains, "Number of chains")
	flags.Int("adapt", sampling.Adapt, "Adaptation iterations per chain")
	flags.Int("burn-in", sampling.BurnIn, "Burn-in iterations per chain")
	flags.Int("draws", sampling.Draws, "Retained draws per chain")
	flags.Int("thin", sampling.Thin, "Keep every n-th iteration")
	flags.Uint64("seed", sampling.Seed, "Random seed")

	flags.BoolP("verbose", "v", false, "Enable debug logging")

	for _, name := range []string{
		"data", "delimiter", "lower-quantile", "upper-quantile",
		"backend", "jags", "chains", "adapt", "burn-in", "draws", "thin", "seed",
		"verbose",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".genre-pooling" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".genre-pooling")
	}

	viper.SetEnvPrefix("GENRE_POOLING")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// See https://github.com/spf13/viper/pull/852
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if viper.IsSet(f.Name) && viper.GetString(f.Name) != "" {
			rootCmd.PersistentFlags().Set(f.Name, viper.GetString(f.Name))
		}
	})
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
