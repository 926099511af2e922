package logstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync/atomic"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend    string
	URI        string
	TLS        *tls.Config
	Database   string
	Collection string
	PoolSize   int
	BoltPath   string
}

// NewOpener returns an Opener for the configured backend. Nothing is dialed
// until the Opener is called.
func NewOpener(cfg Config) (Opener, error) {
	switch cfg.Backend {
	case "mongo":
		if cfg.URI == "" {
			return nil, errors.New("mongo backend needs a connection uri")
		}
		mc := MongoConfig{
			URI:        cfg.URI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
			TLS:        cfg.TLS,
			PoolSize:   cfg.PoolSize,
		}
		return func(ctx context.Context) (Store, error) {
			return OpenMongo(ctx, mc)
		}, nil
	case "postgres":
		if cfg.URI == "" {
			return nil, errors.New("postgres backend needs a connection uri")
		}
		var schemaReady atomic.Bool
		return func(ctx context.Context) (Store, error) {
			s, err := OpenPostgres(ctx, PostgresConfig{
				URI:        cfg.URI,
				Collection: cfg.Collection,
				TLS:        cfg.TLS,
				PoolSize:   cfg.PoolSize,
				SkipSchema: schemaReady.Load(),
			})
			if err != nil {
				return nil, err
			}
			schemaReady.Store(true)
			return s, nil
		}, nil
	case "bolt":
		return func(context.Context) (Store, error) {
			return OpenBolt(cfg.BoltPath, cfg.Collection)
		}, nil
	case "memory":
		mem := NewMemoryStore()
		return func(context.Context) (Store, error) {
			return mem, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
