package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ent0n29/convotone/internal/bindings"
	"github.com/ent0n29/convotone/internal/config"
	"github.com/ent0n29/convotone/internal/httpapi"
	"github.com/ent0n29/convotone/internal/logging"
	"github.com/ent0n29/convotone/internal/logstore"
	"github.com/ent0n29/convotone/internal/observability"
	"github.com/ent0n29/convotone/internal/tone"
)

type BuildResult struct {
	Config      config.Config
	Credentials bindings.Credentials
	API         *httpapi.Server
	Logs        *logstore.Repository
	Tones       *tone.Aggregator
	Metrics     *observability.Metrics

	// Cleanup should be called on shutdown to release the pooled store handle.
	Cleanup func() error
}

// ResolveCredentials loads the service bindings the configuration points at.
func ResolveCredentials(cfg config.Config) (bindings.Credentials, error) {
	services, err := bindings.Load(cfg.VCAPLocalFile)
	if err != nil {
		return bindings.Credentials{}, fmt.Errorf("service bindings: %w", err)
	}
	creds, err := bindings.Resolve(services, bindings.Options{
		DatabaseNames:   cfg.DBBindingNames,
		AnalyzerName:    cfg.ToneBindingName,
		AnalyzerURL:     cfg.ToneAnalyzerURL,
		AnalyzerVersion: cfg.ToneAPIVersion,
		RequireDatabase: cfg.NeedsDatabaseBinding(),
	})
	if err != nil {
		return bindings.Credentials{}, fmt.Errorf("service bindings: %w", err)
	}
	return creds, nil
}

// StoreConfig maps settings and resolved credentials onto a logstore backend.
func StoreConfig(cfg config.Config, creds bindings.Credentials) (logstore.Config, error) {
	sc := logstore.Config{
		Backend:    cfg.StoreBackend,
		Database:   cfg.StoreDatabase,
		Collection: cfg.StoreCollection,
		PoolSize:   cfg.StorePoolSize,
		BoltPath:   cfg.StoreBoltPath,
	}
	if cfg.NeedsDatabaseBinding() && creds.Database != nil {
		tlsCfg, err := creds.Database.TLSConfig()
		if err != nil {
			return logstore.Config{}, fmt.Errorf("database tls: %w", err)
		}
		sc.URI = creds.Database.URI
		sc.TLS = tlsCfg
	}
	return sc, nil
}

func Build(_ context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	creds, err := ResolveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	storeCfg, err := StoreConfig(cfg, creds)
	if err != nil {
		return nil, err
	}
	open, err := logstore.NewOpener(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("log store init failed: %w", err)
	}
	repo := logstore.NewRepository(
		open,
		logstore.Policy(cfg.StoreConnectionPolicy),
		cfg.StoreBackend,
		logging.Component(logger, "logstore"),
		metrics,
	)

	// A nil interface value marks the analyzer as unconfigured.
	var analyzer tone.Analyzer
	if creds.Analyzer != nil {
		client, err := tone.NewClient(tone.ClientConfig{
			URL:      creds.Analyzer.URL,
			Username: creds.Analyzer.Username,
			Password: creds.Analyzer.Password,
			Version:  creds.Analyzer.Version,
			Timeout:  cfg.ToneAnalyzerWait,
		})
		if err != nil {
			return nil, fmt.Errorf("tone analyzer init failed: %w", err)
		}
		analyzer = client
	}
	tones := tone.NewAggregator(repo, analyzer, logging.Component(logger, "tone"), metrics)

	api := httpapi.New(cfg, repo, tones, metrics, logging.Component(logger, "http"))

	logger.Info().
		Str("store_backend", cfg.StoreBackend).
		Str("store_policy", cfg.StoreConnectionPolicy).
		Bool("tone_configured", tones.Configured()).
		Msg("service assembled")

	return &BuildResult{
		Config:      cfg,
		Credentials: creds,
		API:         api,
		Logs:        repo,
		Tones:       tones,
		Metrics:     metrics,
		Cleanup:     repo.Close,
	}, nil
}
