package compliance

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/logger"
	"github.com/spf13/viper"

	"github.com/kart-io/compliance-x/internal/compliance/biz"
	"github.com/kart-io/compliance-x/internal/compliance/router"
	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/pkg/infra/config"
	"github.com/kart-io/compliance-x/pkg/infra/pool"
	httpserver "github.com/kart-io/compliance-x/pkg/infra/server/http"
	cacheopts "github.com/kart-io/compliance-x/pkg/options/cache"
)

// App is the assembled compliance service.
type App struct {
	opts *Options

	storeFactory store.Factory
	sessionPool  *pool.Pool
	unitPool     *pool.Pool
	bgPool       *pool.Pool
	janitor      *biz.Janitor
	server       *httpserver.Server
}

// NewApp wires the service together from validated options.
func NewApp(opts *Options) (*App, error) {
	if err := opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := opts.Database.New()
	if err != nil {
		return nil, err
	}

	factory := store.NewFactory(db)
	if err := factory.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	rdb := opts.Redis.NewClient()

	provider, err := opts.LLM.NewProvider()
	if err != nil {
		return nil, err
	}

	// Session tasks block while scheduling their paragraph units, so they
	// get a pool of their own.
	sessionPool, err := pool.NewPool("analysis-sessions", pool.SessionPool, pool.SessionPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create session pool: %w", err)
	}
	unitPool, err := pool.NewPool("analysis-units", pool.AnalysisPool, pool.AnalysisPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create unit pool: %w", err)
	}
	bgPool, err := pool.NewPool("background", pool.BackgroundPool, pool.BackgroundPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create background pool: %w", err)
	}

	catalog := biz.NewCatalogService(factory)
	oracle := biz.NewChatOracle(provider)
	resultCache := biz.NewResultCache(rdb, factory.CacheEntries(), opts.CacheConfig())

	analyzer := biz.NewAnalyzer(factory, catalog, oracle, oracle, resultCache, sessionPool, unitPool, opts.AnalyzerConfig())
	history := biz.NewHistoryService(factory, resultCache)
	ruleSets := biz.NewRuleSetService(factory, catalog)
	capabilities := biz.NewCapabilityRegistry(&biz.CapabilityContext{
		Store:    factory,
		Provider: provider,
		History:  history,
	})
	janitor := biz.NewJanitor(factory, resultCache, bgPool, opts.JanitorConfig())

	// Cache tuning follows config file edits without a restart.
	watcher := config.NewWatcher(viper.GetViper())
	watcher.Subscribe("result-cache", func(v *viper.Viper) error {
		reloaded := cacheopts.NewOptions()
		if err := v.UnmarshalKey("cache", reloaded); err != nil {
			return fmt.Errorf("failed to decode cache config: %w", err)
		}
		if errs := reloaded.Validate(); len(errs) > 0 {
			return fmt.Errorf("invalid cache config: %v", errs)
		}
		resultCache.Reload(biz.CacheConfig{
			Enabled:   reloaded.Enabled,
			TTL:       reloaded.TTL,
			KeyPrefix: reloaded.KeyPrefix,
		})
		return nil
	})
	watcher.Start()

	server := httpserver.New(opts.Server)
	router.Register(server.Engine(), &router.Services{
		Analyzer:     analyzer,
		History:      history,
		RuleSets:     ruleSets,
		Capabilities: capabilities,
	})

	return &App{
		opts:         opts,
		storeFactory: factory,
		sessionPool:  sessionPool,
		unitPool:     unitPool,
		bgPool:       bgPool,
		janitor:      janitor,
		server:       server,
	}, nil
}

// Run starts the service and blocks until a shutdown signal arrives or the
// server fails.
func (a *App) Run() error {
	if err := a.janitor.Start(); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case sig := <-sigCh:
		logger.Infow("shutdown signal received", "signal", sig.String())
		a.shutdown()
		return nil
	}
}

func (a *App) shutdown() {
	if err := a.server.Stop(context.Background()); err != nil {
		logger.Warnw("server shutdown failed", "error", err.Error())
	}

	a.janitor.Stop()
	a.sessionPool.Release()
	a.unitPool.Release()
	a.bgPool.Release()

	if err := a.storeFactory.Close(); err != nil {
		logger.Warnw("store close failed", "error", err.Error())
	}
}
