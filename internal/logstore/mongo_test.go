package logstore

import (
	"context"
	"crypto/tls"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoClientOptions(t *testing.T) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	opts := mongoClientOptions(MongoConfig{
		URI:      "mongodb://admin:pw@h1:27017,h2:27017/compose?authSource=admin",
		TLS:      tlsCfg,
		PoolSize: 1,
	})

	require.NoError(t, opts.Validate())
	require.NotNil(t, opts.MaxPoolSize)
	assert.EqualValues(t, 1, *opts.MaxPoolSize)
	require.NotNil(t, opts.RetryReads)
	assert.True(t, *opts.RetryReads)
	assert.Same(t, tlsCfg, opts.TLSConfig)
	assert.Equal(t, []string{"h1:27017", "h2:27017"}, opts.Hosts)
}

func TestMongoClientOptionsClampsPoolSize(t *testing.T) {
	opts := mongoClientOptions(MongoConfig{URI: "mongodb://localhost:27017"})
	assert.EqualValues(t, 1, *opts.MaxPoolSize)
	assert.Nil(t, opts.TLSConfig)
}

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "explicit", mongoDatabase(MongoConfig{URI: "mongodb://h/compose", Database: "explicit"}))
	assert.Equal(t, "compose", mongoDatabase(MongoConfig{URI: "mongodb://admin:pw@h1:1,h2:2/compose?ssl=true"}))
	assert.Equal(t, defaultMongoDatabase, mongoDatabase(MongoConfig{URI: "mongodb://h1:27017"}))
}

// Runs against a real server only when CONVOTONE_TEST_MONGO_URI is set.
func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("CONVOTONE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CONVOTONE_TEST_MONGO_URI not set")
	}
	open, err := NewOpener(Config{
		Backend:    "mongo",
		URI:        uri,
		Database:   "convotone_test",
		Collection: "logs_" + time.Now().Format("150405"),
		PoolSize:   1,
	})
	require.NoError(t, err)
	repo := NewRepository(open, PolicyPerRequest, "mongo", zerolog.Nop(), nil)
	ctx := context.Background()

	_, err = repo.Save(ctx, Document{Conversation: "c1", Date: at(1), Logs: []Turn{{InputText: "great"}}})
	require.NoError(t, err)
	_, err = repo.Save(ctx, Document{Conversation: "c2", Date: at(5)})
	require.NoError(t, err)

	docs, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c2", docs[0].Conversation)
	assert.NotEmpty(t, docs[0].ID)

	doc, err := repo.FindByConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "great", doc.Logs[0].InputText)

	n, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
