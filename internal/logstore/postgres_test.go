package logstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresPoolConfig(t *testing.T) {
	roots := x509.NewCertPool()
	cfg, err := postgresPoolConfig(PostgresConfig{
		URI:      "postgres://u:p@db.example:5432/logs?sslmode=verify-full",
		TLS:      &tls.Config{RootCAs: roots},
		PoolSize: 1,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, cfg.MaxConns)
	require.NotNil(t, cfg.ConnConfig.TLSConfig)
	assert.Same(t, roots, cfg.ConnConfig.TLSConfig.RootCAs)
	assert.Equal(t, "db.example", cfg.ConnConfig.TLSConfig.ServerName)
}

func TestPostgresPoolConfigForcesVerifiedTLS(t *testing.T) {
	roots := x509.NewCertPool()
	for _, uri := range []string{
		"postgres://u:p@db.example.com:5432/logs",
		"postgres://u:p@db.example.com:5432/logs?sslmode=prefer",
		"postgres://u:p@db.example.com:5432/logs?sslmode=disable",
		"postgres://u:p@db.example.com:5432/logs?sslmode=require",
	} {
		cfg, err := postgresPoolConfig(PostgresConfig{
			URI: uri,
			TLS: &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
		})
		require.NoError(t, err, uri)

		tlsCfg := cfg.ConnConfig.TLSConfig
		require.NotNil(t, tlsCfg, uri)
		assert.False(t, tlsCfg.InsecureSkipVerify, uri)
		assert.Nil(t, tlsCfg.VerifyPeerCertificate, uri)
		assert.Same(t, roots, tlsCfg.RootCAs, uri)
		assert.Equal(t, "db.example.com", tlsCfg.ServerName, uri)
		for _, fb := range cfg.ConnConfig.Fallbacks {
			require.NotNil(t, fb.TLSConfig, uri)
			assert.False(t, fb.TLSConfig.InsecureSkipVerify, uri)
		}
	}
}

func TestPostgresPoolConfigWithoutBindingKeepsURIMode(t *testing.T) {
	cfg, err := postgresPoolConfig(PostgresConfig{URI: "postgres://u:p@localhost:5432/logs?sslmode=disable"})
	require.NoError(t, err)
	assert.Nil(t, cfg.ConnConfig.TLSConfig)
}

func TestPostgresPoolConfigRejectsBadURI(t *testing.T) {
	_, err := postgresPoolConfig(PostgresConfig{URI: "postgres://u:p@db:notaport/logs"})
	require.Error(t, err)
}

// Runs against a real server only when CONVOTONE_TEST_POSTGRES_URI is set.
func TestPostgresStoreIntegration(t *testing.T) {
	uri := os.Getenv("CONVOTONE_TEST_POSTGRES_URI")
	if uri == "" {
		t.Skip("CONVOTONE_TEST_POSTGRES_URI not set")
	}
	open, err := NewOpener(Config{
		Backend:    "postgres",
		URI:        uri,
		Collection: "logs_" + time.Now().Format("150405"),
		PoolSize:   1,
	})
	require.NoError(t, err)
	repo := NewRepository(open, PolicyPerRequest, "postgres", zerolog.Nop(), nil)
	ctx := context.Background()

	_, err = repo.Save(ctx, Document{Conversation: "c1", Date: at(1), Logs: []Turn{{InputText: "great"}}})
	require.NoError(t, err)
	_, err = repo.Save(ctx, Document{Conversation: "c2", Date: at(5)})
	require.NoError(t, err)

	docs, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c2", docs[0].Conversation)

	doc, err := repo.FindByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "great", doc.Logs[0].InputText)

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
