package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcadia-data/querylayer/env"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the query cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := env.Load()
		if err != nil {
			return err
		}
		store := buildStore(cfg, log)
		defer store.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(store.Stats(cmd.Context()))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached entries, optionally by pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := env.Load()
		if err != nil {
			return err
		}
		store := buildStore(cfg, log)
		defer store.Close()

		pattern, _ := cmd.Flags().GetString("pattern")
		if !store.Clear(cmd.Context(), pattern) {
			log.Warn("one or more tiers failed to clear")
		}
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().String("pattern", "", "only clear keys containing this pattern (tiers that support it)")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
