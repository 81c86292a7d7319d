package commands

import (
	"log/slog"

	"github.com/tridentsec/trident-analytics/internal/cache"
	"github.com/tridentsec/trident-analytics/internal/config"
	"github.com/tridentsec/trident-analytics/internal/engine"
	"github.com/tridentsec/trident-analytics/internal/history"
	"github.com/tridentsec/trident-analytics/internal/repo"
)

// components is the object graph shared by serve and snapshot.
type components struct {
	client     *repo.TridentClient
	fileTokens *repo.FileTokenSource
	analyzer   *engine.Analyzer
	history    *history.Store
	closers    []func() error
}

func buildComponents(cfg *config.Config, logger *slog.Logger, withHistory bool) (*components, error) {
	c := &components{}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		if cfg.Cache.Addr != "" {
			provider, err := cache.NewRedisProvider(cache.RedisConfig{
				Addr:         cfg.Cache.Addr,
				Username:     cfg.Cache.Username,
				Password:     cfg.Cache.Password,
				DB:           cfg.Cache.DB,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
				MaxRetries:   cfg.Cache.MaxRetries,
				TLS:          cfg.Cache.TLS,
			})
			if err != nil {
				logger.Warn("redis cache unavailable, using in-memory cache", slog.Any("error", err))
				cacheProvider = cache.NewMemoryProvider()
			} else {
				cacheProvider = provider
				c.closers = append(c.closers, provider.Close)
			}
		} else {
			cacheProvider = cache.NewMemoryProvider()
		}
	}
	cacheTTL := cfg.Cache.ResponseTTL
	if !cfg.Cache.Enabled {
		cacheTTL = 0
	}

	var tokens repo.TokenSource = repo.NewStaticTokenSource(cfg.Backend.Token)
	if cfg.Backend.TokenFile != "" {
		fileTokens, err := repo.NewFileTokenSource(cfg.Backend.TokenFile, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.fileTokens = fileTokens
		tokens = fileTokens
	}

	c.client = repo.NewTridentClient(repo.ClientConfig{
		BaseURL:          cfg.Backend.BaseURL,
		MetricsPath:      cfg.Backend.MetricsPath,
		ModelMetricsPath: cfg.Backend.ModelMetricsPath,
		BaselinesPath:    cfg.Backend.BaselinesPath,
		AlertsPath:       cfg.Backend.AlertsPath,
		Timeout:          cfg.Backend.Timeout,
		Tokens:           tokens,
		Cache:            cacheProvider,
		CacheTTL:         cacheTTL,
		Logger:           logger,
	})

	orchestrator := engine.NewOrchestrator(c.client, cfg.Backend.AlertLimit, logger)
	c.analyzer = engine.NewAnalyzer(logger, orchestrator)

	if withHistory && cfg.History.Path != "" {
		store, err := history.NewStore(cfg.History.Path, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.history = store
		c.closers = append(c.closers, store.Close)
	}
	return c, nil
}

// Close releases the cache connection and history database.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
