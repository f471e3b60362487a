package main

import (
	"github.com/spf13/cobra"

	"github.com/arcadia-data/querylayer/cache"
	"github.com/arcadia-data/querylayer/env"
	"github.com/arcadia-data/querylayer/logger"
	"github.com/arcadia-data/querylayer/paginate"
	"github.com/arcadia-data/querylayer/query"
	"github.com/arcadia-data/querylayer/warehouse"
)

var rootCmd = &cobra.Command{
	Use:           "queryd",
	Short:         "Cached, paginated query layer for the analytic warehouse",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func newLogger() logger.Logger {
	return logger.New(logger.GetLevelFromEnv())
}

// buildStore assembles the tier chain from configuration. The primary tier
// is optional: if redis is unreachable the process runs on the durable
// fallback alone, and if that also fails every cache operation becomes a
// pure miss.
func buildStore(cfg *env.Config, log logger.Logger) *cache.Store {
	var tiers []cache.Tier
	if cfg.RedisURL != "" {
		if tier, err := cache.NewRedisTier(cfg.RedisURL, log); err != nil {
			log.Warn("primary cache tier unavailable, falling back", "error", err)
		} else {
			tiers = append(tiers, tier)
		}
	}
	if tier, err := cache.NewSQLiteTier(cfg.CacheDir, log); err != nil {
		log.Warn("fallback cache tier unavailable, running uncached", "error", err)
	} else {
		tiers = append(tiers, tier)
	}
	return cache.NewStore(log, tiers...).Configure(cache.WithDefaultTTL(cfg.DefaultTTL))
}

func buildExecutor(cfg *env.Config, store *cache.Store, log logger.Logger) (*query.Executor, warehouse.Connector, error) {
	conn, err := warehouse.NewClient(cfg.WarehouseURL, log)
	if err != nil {
		return nil, nil, err
	}
	engine := paginate.NewEngine(cfg.DefaultPageSize, cfg.MaxPageSize, log)
	exec := query.NewExecutor(conn, store, engine, log,
		query.WithDefaultTTL(cfg.QueryTTL),
		query.WithLimits(query.Limits{
			LongQueryThreshold:        cfg.LongQueryThreshold,
			PaginateAtSourceThreshold: cfg.PaginateAtSourceThreshold,
			DefaultRowBound:           cfg.DefaultRowBound,
			FilteredRowBound:          cfg.FilteredRowBound,
			NarrowFilterMarkers:       cfg.NarrowFilterMarkers,
		}),
	)
	return exec, conn, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
}
