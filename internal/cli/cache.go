package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/cache"
)

var errNoCache = errors.New("cache is not configured (set cache.redis_addr)")

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the semantic cache",
	Long: `Inspect or clear a cache namespace directly in Redis.

Namespaces are "answers:<owner>" and "search-terms:<owner>". Clearing a
prefix such as "answers" clears every owner's answers.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [namespace]",
	Short: "Show entry counts for a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd.Context(), func(c *cache.Cache) error {
			st, err := c.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "namespace:  %s\n", st.Namespace)
			fmt.Fprintf(out, "entries:    %d\n", st.EntryCount)
			fmt.Fprintf(out, "threshold:  %.2f\n", st.Threshold)
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Delete every entry in a namespace and its sub-namespaces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd.Context(), func(c *cache.Cache) error {
			n, err := c.Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries from %s\n", n, args[0])
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func withCache(ctx context.Context, fn func(*cache.Cache) error) error {
	if !cfg.Cache.Enabled || cfg.Cache.RedisAddr == "" {
		return errNoCache
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Cache.RedisAddr},
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", cfg.Cache.RedisAddr, err)
	}

	c := cache.New(rdb, cache.Config{
		Enabled:   true,
		Threshold: cfg.Cache.Threshold,
		TTL:       cfg.Cache.TTL,
		L1Size:    cfg.Cache.L1Size,
	}, log)
	defer c.Close()
	return fn(c)
}
