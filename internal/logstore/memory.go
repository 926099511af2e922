package logstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a simple in-process log store for local/dev use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) FindAll(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, len(s.docs))
	for i, doc := range s.docs {
		out[i] = cloneDocument(doc)
	}
	return out, nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.docs))
	s.docs = nil
	return n, nil
}

func (s *MemoryStore) FindOne(_ context.Context, conversationID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.Conversation == conversationID {
			return cloneDocument(doc), nil
		}
	}
	return Document{}, ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc = withDefaults(doc)
	s.docs = append(s.docs, cloneDocument(doc))
	return doc, nil
}

// Close is a no-op; the documents live as long as the process.
func (s *MemoryStore) Close() error { return nil }

func cloneDocument(doc Document) Document {
	doc.Logs = slices.Clone(doc.Logs)
	return doc
}

// withDefaults assigns an id and date the way the logging process would.
func withDefaults(doc Document) Document {
	if doc.ID == "" {
		doc.ID = DocumentID(uuid.NewString())
	}
	if doc.Date.IsZero() {
		doc.Date = NewTimestamp(time.Now())
	}
	return doc
}
