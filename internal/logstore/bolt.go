package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps log documents as JSON values in one bucket of a bbolt file.
// The file lock is exclusive, so concurrent per-request handles queue on it.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

func OpenBolt(path, collection string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	bucket := []byte(collection)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", collection, err)
	}
	return &BoltStore{db: db, bucket: bucket}, nil
}

func (s *BoltStore) FindAll(_ context.Context) ([]Document, error) {
	docs := []Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	return docs, nil
}

func (s *BoltStore) DeleteAll(_ context.Context) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(s.bucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		}); err != nil {
			return err
		}
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return n, nil
}

func (s *BoltStore) FindOne(_ context.Context, conversationID string) (Document, error) {
	var (
		found Document
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if doc.Conversation == conversationID {
				found, ok = doc, true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("find conversation %q: %w", conversationID, err)
	}
	if !ok {
		return Document{}, ErrNotFound
	}
	return found, nil
}

func (s *BoltStore) Insert(_ context.Context, doc Document) (Document, error) {
	doc = withDefaults(doc)
	data, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("marshal log: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(doc.ID), data)
	})
	if err != nil {
		return Document{}, fmt.Errorf("insert log: %w", err)
	}
	return doc, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
