package logstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultMongoDatabase = "conversation"

// MongoConfig describes one mongo connection.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	TLS        *tls.Config
	PoolSize   int
}

// MongoStore reads and drains the log collection in MongoDB.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, mongoClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	// Connect is lazy; ping so a dead server fails here rather than mid-query.
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(mongoDatabase(cfg)).Collection(cfg.Collection)
	return &MongoStore{client: client, coll: coll}, nil
}

func mongoClientOptions(cfg MongoConfig) *options.ClientOptions {
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(uint64(poolSize)).
		// The driver retries a failed read or write exactly once.
		SetRetryReads(true).
		SetRetryWrites(true).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}
	return opts
}

func mongoDatabase(cfg MongoConfig) string {
	if name := strings.TrimSpace(cfg.Database); name != "" {
		return name
	}
	if cs, err := connstring.ParseAndValidate(cfg.URI); err == nil && cs.Database != "" {
		return cs.Database
	}
	return defaultMongoDatabase
}

func (s *MongoStore) FindAll(ctx context.Context) ([]Document, error) {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	docs := []Document{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return docs, nil
}

func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) FindOne(ctx context.Context, conversationID string) (Document, error) {
	var doc Document
	err := s.coll.FindOne(ctx, bson.D{{Key: "conversation", Value: conversationID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("find conversation %q: %w", conversationID, err)
	}
	return doc, nil
}

func (s *MongoStore) Insert(ctx context.Context, doc Document) (Document, error) {
	if doc.Date.IsZero() {
		doc.Date = NewTimestamp(time.Now())
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return Document{}, fmt.Errorf("insert log: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = DocumentID(oid.Hex())
	}
	return doc, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
