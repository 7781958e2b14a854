package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sira-labs/sira/config"
	"github.com/sira-labs/sira/internal/cache"
	"github.com/sira-labs/sira/internal/memory"
	"github.com/sira-labs/sira/internal/realtime"
	"github.com/sira-labs/sira/internal/research"
	"github.com/sira-labs/sira/internal/runtime"
	"github.com/sira-labs/sira/internal/scheduler"
	"github.com/sira-labs/sira/internal/search"
	"github.com/sira-labs/sira/internal/search/brave"
	"github.com/sira-labs/sira/internal/search/duckduckgo"
	"github.com/sira-labs/sira/internal/search/serpapi"
	"github.com/sira-labs/sira/internal/store"
	"github.com/sira-labs/sira/provider"
)

// app bundles the wired components shared by the worker and the one-shot
// commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	rdb     *redis.Client
	llm     provider.Provider
	router  *search.Router
	mem     *memory.Manager
	rt      *realtime.Dispatcher
	runner  *research.Runner
	metrics *runtime.Metrics
}

func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}

	// Redis backs both the offline cache and scheduler locks. When it is
	// down the process still works, with an in-memory cache and no
	// cross-process locking.
	var (
		rdb      *redis.Client
		docCache cache.Cache
	)
	rdb, err = cache.Conn(ctx, cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
	if err != nil {
		log.Printf("[WORKER] redis unavailable, using in-memory cache: %v", err)
		rdb = nil
		docCache = cache.NewMemoryCache()
	} else {
		docCache = cache.NewRedisCache(rdb)
	}

	metrics := runtime.NewMetrics()

	states := make([]search.ProviderState, 0, len(cfg.Search.Providers))
	fetchers := map[string]search.Fetcher{
		search.OfflineProvider: search.OfflineFetcher{Cache: docCache},
	}
	httpClient := &http.Client{Timeout: cfg.General.DefaultTimeout}
	for name, pc := range cfg.Search.Providers {
		states = append(states, search.ProviderState{
			Name:            name,
			Weight:          pc.Weight,
			Quota:           pc.Quota,
			MinCallInterval: pc.MinCallInterval,
		})
		switch name {
		case "serpapi":
			fetchers[name] = serpapi.Search{ApiKey: pc.APIKey, Client: httpClient}
		case "brave":
			fetchers[name] = brave.Search{ApiKey: pc.APIKey, Client: httpClient}
		case "duckduckgo":
			fetchers[name] = duckduckgo.Search{Client: httpClient, FetchPages: true}
		default:
			return nil, fmt.Errorf("unknown search provider %q in config", name)
		}
	}
	fallback := cfg.Search.Fallback
	if fallback == "" {
		fallback = search.OfflineProvider
	}
	registry := search.NewRegistry(states, fallback)
	router, err := search.NewRouter(registry, fetchers, docCache, cfg.Search.ResultCount, cfg.Search.MaxAttempts, metrics, nil)
	if err != nil {
		return nil, err
	}

	var mem *memory.Manager
	if cfg.Memory.Enabled {
		mem = memory.NewManager(st, llm, cfg.Memory.EmbeddingDimensions, nil)
	}

	rt := realtime.NewDispatcher(&http.Client{Timeout: cfg.Realtime.Timeout}, cfg.Realtime.OpenWeatherAPIKey, cfg.Realtime.WeatherCity, nil)

	var memWriter research.MemoryWriter
	if mem != nil {
		memWriter = mem
	}
	runner := research.NewRunner(router, llm, memWriter, st, metrics, nil)

	return &app{
		cfg:     cfg,
		store:   st,
		rdb:     rdb,
		llm:     llm,
		router:  router,
		mem:     mem,
		rt:      rt,
		runner:  runner,
		metrics: metrics,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.DB.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}

func workerCMD() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the recurring research worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New(func(ctx context.Context, job store.Job) {
				a.runner.Run(ctx, job)
			}, scheduler.Options{
				TickInterval: a.cfg.Scheduler.TickInterval,
				LockTTL:      a.cfg.Scheduler.LockTTL,
				Rdb:          a.rdb,
				OnCount:      func(n int) { a.metrics.ActiveJobs.Set(float64(n)) },
			})

			svc := research.NewService(a.store, sched, nil)
			restored, err := svc.Restore(ctx)
			if err != nil {
				return err
			}
			log.Printf("[WORKER] restored %d active jobs", restored)

			// Pick up jobs scheduled or cancelled from other processes.
			go func() {
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						jobs, err := a.store.ListActiveJobs(ctx)
						if err != nil {
							log.Printf("[WORKER] job resync failed: %v", err)
							continue
						}
						sched.Sync(jobs)
					}
				}
			}()

			if a.cfg.Telemetry.Enabled {
				go func() {
					if err := a.metrics.Serve(a.cfg.Telemetry.MetricsPort); err != nil && err != http.ErrServerClosed {
						log.Printf("[WORKER] metrics server: %v", err)
					}
				}()
			}

			log.Printf("[WORKER] scheduler started, tick %s", a.cfg.Scheduler.TickInterval)
			sched.Start(ctx)

			// Give in-flight runs a moment to flush their history rows.
			time.Sleep(time.Second)
			log.Printf("[WORKER] shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
