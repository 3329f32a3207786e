// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/seqlab/negscan/internal/httpcache"
	"github.com/seqlab/negscan/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the on-disk API response cache",
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove cache entries older than the TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ttlHours, _ := cmd.Flags().GetInt("cache-ttl-hours")
		cutoff := time.Now().Add(-time.Duration(ttlHours) * time.Hour)
		n, err := store.EvictExpired(cutoff)
		if err != nil {
			return fmt.Errorf("evicting expired cache entries: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Evicted %d expired cache entries\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Cache cleared")
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache statistics as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCacheStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		count, err := store.Count()
		if err != nil {
			return fmt.Errorf("counting cache entries: %w", err)
		}
		dir, _ := cmd.Flags().GetString("cache-dir")
		ttlHours, _ := cmd.Flags().GetInt("cache-ttl-hours")
		stats := struct {
			Directory string `yaml:"directory"`
			Entries   int    `yaml:"entries"`
			TTLHours  int    `yaml:"ttl_hours"`
		}{dir, count, ttlHours}

		out, err := yaml.Marshal(stats)
		if err != nil {
			return fmt.Errorf("rendering cache stats: %w", err)
		}
		fmt.Fprint(os.Stdout, string(out))
		return nil
	},
}

func openCacheStore(cmd *cobra.Command) (*httpcache.SQLiteStore, error) {
	dir, _ := cmd.Flags().GetString("cache-dir")
	store, err := httpcache.NewSQLiteStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening response cache: %w", err)
	}
	return store, nil
}

func init() {
	cacheCmd.PersistentFlags().String("cache-dir", "data/cache", "directory for the response cache database")
	cacheEvictCmd.Flags().Int("cache-ttl-hours", types.DefaultCacheTTLHours, "cache entry lifetime in hours")
	cacheStatsCmd.Flags().Int("cache-ttl-hours", types.DefaultCacheTTLHours, "cache entry lifetime in hours")

	cacheCmd.AddCommand(cacheEvictCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
