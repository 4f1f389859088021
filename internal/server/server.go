package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/skillsmith/coursegen/config"
	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/agent/telemetry"
	"github.com/skillsmith/coursegen/internal/media"
	"github.com/skillsmith/coursegen/internal/queue/streams"
	"github.com/skillsmith/coursegen/internal/runtime"
	"github.com/skillsmith/coursegen/internal/store"
	"github.com/skillsmith/coursegen/internal/taxonomy"
	"github.com/skillsmith/coursegen/tools/web_fetch"
	"github.com/skillsmith/coursegen/tools/web_search"
)

// Deps bundles the shared dependencies behind the API server and the worker.
type Deps struct {
	Store        *store.Store
	Provider     core.LLMProvider
	Toolset      *core.Toolset
	Taxonomy     *taxonomy.Index
	Telemetry    *telemetry.Telemetry
	Narrator     core.Narrator
	Orchestrator *core.Orchestrator
	Redis        *redis.Client
	Publisher    *streams.Publisher
}

// BuildDeps constructs the store, LLM provider, toolset and orchestrator
// from configuration. Both `serve` and `worker` start from here.
func BuildDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	dsn, err := runtime.BuildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return nil, err
	}

	provider, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	tel := telemetry.New()

	idx, err := taxonomy.NewInMemory()
	if err != nil {
		return nil, err
	}
	n, err := idx.Load(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy index: %w", err)
	}
	log.Printf("taxonomy index loaded: %d skills", n)

	searchers, err := buildSearchers(cfg.Research)
	if err != nil {
		return nil, err
	}
	fetcher, err := buildFetcher(cfg.Research)
	if err != nil {
		return nil, err
	}

	toolset := &core.Toolset{
		Store:      st,
		Taxonomy:   idx,
		Searchers:  searchers,
		Fetcher:    fetcher,
		MaxResults: cfg.Research.MaxResults,
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	var narrator core.Narrator
	if cfg.Media.Enabled {
		scriptModel := cfg.LLM.Routing.Content
		if scriptModel == "" {
			scriptModel = cfg.LLM.Routing.Fallback
		}
		narrator = media.NewSynthesizer(provider, st, cfg.Media, scriptModel, cfg.LLM.Routing.Speech)
	}

	orch := core.NewOrchestrator(cfg, provider, st, toolset, tel, narrator)

	return &Deps{
		Store:        st,
		Provider:     provider,
		Toolset:      toolset,
		Taxonomy:     idx,
		Telemetry:    tel,
		Narrator:     narrator,
		Orchestrator: orch,
		Redis:        rdb,
		Publisher:    streams.NewPublisher(rdb),
	}, nil
}

func buildSearchers(cfg config.ResearchConfig) ([]web_search.WebSearcher, error) {
	var out []web_search.WebSearcher
	for provider, key := range map[web_search.Provider]string{
		web_search.SerperProvider: cfg.SerperAPIKey,
		web_search.BraveProvider:  cfg.BraveAPIKey,
		web_search.TavilyProvider: cfg.TavilyAPIKey,
	} {
		if key == "" {
			continue
		}
		s, err := web_search.NewWebSearcher(provider, key)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func buildFetcher(cfg config.ResearchConfig) (web_fetch.WebFetcher, error) {
	plain, err := web_fetch.NewWebFetcher(web_fetch.PlainFetcherType, cfg.FetchTimeout, 0, cfg.MaxFetchBytes)
	if err != nil {
		return nil, err
	}
	if !cfg.EnableHeadless {
		return plain, nil
	}
	headless, err := web_fetch.NewWebFetcher(web_fetch.ChromedpFetcherType, cfg.FetchTimeout, 0, cfg.MaxFetchBytes)
	if err != nil {
		return nil, err
	}
	return web_fetch.Fallback{Primary: plain, Secondary: headless}, nil
}

// Run starts the API server and blocks until it exits.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := runtime.BuildPostgresDSN(cfg)
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate: %w", err)
	}

	deps, err := BuildDeps(ctx, cfg)
	if err != nil {
		return err
	}

	if err := streams.EnsureGroup(ctx, deps.Redis, cfg.Queue.Stream, cfg.Queue.ConsumerGroup); err != nil {
		return err
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: deps.Store, Secret: secret}
	auth.Register(api.Group("/auth"))

	protected := api.Group("", runtime.EchoAuthMiddleware(secret))

	eh := &EmployeesHandler{Store: deps.Store}
	eh.Register(protected.Group("/employees"))

	ch := &CoursesHandler{
		Store:        deps.Store,
		Orch:         deps.Orchestrator,
		Publisher:    deps.Publisher,
		Stream:       cfg.Queue.Stream,
		MaxLenApprox: cfg.Queue.MaxLenApprox,
		Async:        cfg.Server.AsyncRuns,
		Logger:       log.New(log.Writer(), "[COURSES] ", log.LstdFlags),
	}
	ch.Register(protected.Group("/courses"))

	ph := &PlansHandler{Store: deps.Store}
	ph.Register(protected)

	th := &TaxonomyHandler{Store: deps.Store, Index: deps.Taxonomy}
	th.Register(protected.Group("/skills"))

	mh := &MediaHandler{Store: deps.Store, Narrator: deps.Narrator}
	mh.Register(protected.Group("/media"))

	if cfg.Scheduler.Enabled {
		sched := &Scheduler{
			Store:        deps.Store,
			Rdb:          deps.Redis,
			Stop:         make(chan struct{}),
			ScanInterval: cfg.Scheduler.ScanInterval,
			LockTTL:      cfg.Scheduler.LockTTL,
			Fire:         refreshFirer(cfg, deps, ch),
		}
		sched.Start()
	}

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// refreshFirer creates a generation run for a stale plan and hands it to the
// worker pool, or runs it inline when async runs are disabled.
func refreshFirer(cfg *config.Config, deps *Deps, ch *CoursesHandler) func(ctx context.Context, plan store.CoursePlanRecord) error {
	return func(ctx context.Context, plan store.CoursePlanRecord) error {
		runID := uuid.NewString()
		if err := deps.Store.CreateGenerationRun(ctx, runID, plan.EmployeeID); err != nil {
			return err
		}
		req := core.GenerationRequest{
			RunID:        runID,
			EmployeeID:   plan.EmployeeID,
			IncludeMedia: cfg.Media.Enabled,
		}
		if cfg.Server.AsyncRuns {
			payload := streams.GenerateRequestedPayload{
				RunID:        req.RunID,
				EmployeeID:   req.EmployeeID,
				IncludeMedia: req.IncludeMedia,
			}
			_, err := deps.Publisher.PublishRaw(ctx, cfg.Queue.Stream, streams.EventCourseGenerateRequested, streams.PayloadVersionV1, payload)
			return err
		}
		go func() {
			if _, err := deps.Orchestrator.GenerateCourse(context.Background(), req); err != nil {
				ch.Logger.Printf("scheduled run %s failed: %v", runID, err)
			}
		}()
		return nil
	}
}
