package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/agentuity/tiercache/appcache"
	"github.com/agentuity/tiercache/cache"
	"github.com/agentuity/tiercache/config"
	"github.com/agentuity/tiercache/logger"
	"github.com/agentuity/tiercache/metrics"
	"github.com/agentuity/tiercache/reqcache"
	"github.com/agentuity/tiercache/resolver"
	"github.com/agentuity/tiercache/session"
)

var (
	sessionCount int
	lookupCount  int
	redisURL     string
)

var rootCmd = &cobra.Command{
	Use:   "tiercache",
	Short: "Exercise the tiered cache stack against a synthetic origin",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().IntVar(&sessionCount, "sessions", 10, "number of synthetic sessions")
	rootCmd.Flags().IntVar(&lookupCount, "lookups", 1000, "number of lookups to issue")
	rootCmd.Flags().StringVar(&redisURL, "redis", "", "optional Redis URL for the session backing store")
}

func runDemo(ctx context.Context) error {
	log := logger.NewConsoleLogger()
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	var sessions session.Store
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		backend := cache.NewRedis(client, cache.WithPrefix("session"))
		sessions = session.NewBackendStore(backend, session.WithTTL(cfg.SessionTTL))
		log.Info("session store: redis (%s)", redisURL)
	} else {
		sessions = session.NewMemoryStore(session.WithTTL(cfg.SessionTTL))
		log.Info("session store: in-memory")
	}
	defer sessions.Close(ctx)

	reaper := session.NewReaper(ctx, sessions, log, session.WithReapInterval(cfg.ReapInterval))
	defer reaper.Close()

	app := appcache.New(ctx,
		appcache.WithRefreshInterval(cfg.ApplicationRefreshInterval),
		appcache.WithLogger(log))
	defer app.Close(ctx)
	app.Register("catalog", func(ctx context.Context, key string) (any, error) {
		return []string{"item-1", "item-2", "item-3"}, nil
	})

	collector := metrics.NewAtomic()
	res := resolver.New(sessions, app,
		resolver.WithCollector(collector),
		resolver.WithLogger(log))

	ids := make([]string, sessionCount)
	for i := range ids {
		ids[i] = session.NewID()
	}

	originCalls := 0
	start := time.Now()
	for i := 0; i < lookupCount; i++ {
		// Each iteration is one unit of work with its own request cache.
		reqCtx := reqcache.WithContext(ctx, reqcache.New())
		id := ids[rand.Intn(len(ids))]

		key := resolver.Key{Name: "cart", Scope: resolver.ScopeSession, SessionID: id}
		if i%3 == 0 {
			key = resolver.Key{Name: "catalog", Scope: resolver.ScopeApplication}
		}
		_, _, err := res.Resolve(reqCtx, key, func(ctx context.Context) (any, bool, error) {
			originCalls++
			return map[string]any{"item-1": 1}, true, nil
		})
		if err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	scopes, latency := collector.Snapshot()
	log.Info("%d lookups in %s (%d origin calls)", lookupCount, elapsed, originCalls)
	for scope, counts := range scopes {
		log.Info("%-12s hits=%-6d misses=%d", scope, counts.Hits, counts.Misses)
	}
	for op, stats := range latency {
		if stats.Count > 0 {
			log.Info("%-18s n=%-6d avg=%s", op, stats.Count, stats.Total/time.Duration(stats.Count))
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
