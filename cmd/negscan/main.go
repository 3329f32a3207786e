// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the negscan CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seqlab/negscan/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API credentials loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// rootCmd is the base command for the negscan CLI.
var rootCmd = &cobra.Command{
	Use:   "negscan",
	Short: "Map negative primer-design features around a protein's gene",
	Long: `negscan resolves a UniProt protein accession to its genomic region,
fetches the surrounding gDNA, and annotates stretches unsuitable for
primer design: repeats, common variants, extreme-GC windows,
homopolymer runs, and ambiguous bases.

The run subcommand executes the full pipeline for one accession; cache
manages the on-disk API response cache.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if s.NCBIAPIKey != "" {
			fmt.Fprintln(os.Stderr, "Loaded secret: ncbi-api-key")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./negscan.yaml or ~/.config/negscan/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("negscan")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "negscan"))
		}
	}

	viper.SetEnvPrefix("NEGSCAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
