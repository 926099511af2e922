package logstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/convotone/internal/observability"
)

// Policy decides whether store handles live for one call or for the process.
type Policy string

const (
	PolicyPerRequest Policy = "per-request"
	PolicyPooled     Policy = "pooled"
)

// Repository operations, as reported in metrics and the latency window.
const (
	OpList   = "list"
	OpDelete = "delete"
	OpFind   = "find"
	OpInsert = "insert"
)

// Repository runs one collection operation per call against handles obtained
// from an Opener.
type Repository struct {
	open    Opener
	policy  Policy
	backend string
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	shared Store
}

func NewRepository(open Opener, policy Policy, backend string, logger zerolog.Logger, metrics *observability.Metrics) *Repository {
	if policy == "" {
		policy = PolicyPerRequest
	}
	return &Repository{
		open:    open,
		policy:  policy,
		backend: backend,
		logger:  logger,
		metrics: metrics,
	}
}

func (r *Repository) Backend() string { return r.backend }
func (r *Repository) Policy() Policy  { return r.policy }

// ListAll returns every document, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := r.with(ctx, OpList, func(s Store) error {
		var err error
		docs, err = s.FindAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	SortNewestFirst(docs)
	return docs, nil
}

// DeleteAll removes every document and reports how many were removed.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.with(ctx, OpDelete, func(s Store) error {
		var err error
		n, err = s.DeleteAll(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	r.metrics.AddDeleted(n)
	return n, nil
}

// FindByConversation returns at most one document for the conversation, or
// ErrNotFound.
func (r *Repository) FindByConversation(ctx context.Context, conversationID string) (Document, error) {
	var doc Document
	err := r.with(ctx, OpFind, func(s Store) error {
		var err error
		doc, err = s.FindOne(ctx, conversationID)
		return err
	})
	return doc, err
}

// Save inserts one document, filling in id and date when absent.
func (r *Repository) Save(ctx context.Context, doc Document) (Document, error) {
	var saved Document
	err := r.with(ctx, OpInsert, func(s Store) error {
		var err error
		saved, err = s.Insert(ctx, doc)
		return err
	})
	return saved, err
}

// Close releases the shared handle of a pooled repository.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shared == nil {
		return nil
	}
	err := r.shared.Close()
	r.shared = nil
	return err
}

func (r *Repository) with(ctx context.Context, op string, fn func(Store) error) error {
	start := time.Now()
	s, release, err := r.acquire(ctx)
	if err != nil {
		r.metrics.ObserveStore(r.backend, op, time.Since(start), err)
		return err
	}
	defer release()

	err = fn(s)
	r.metrics.ObserveStore(r.backend, op, time.Since(start), err)
	return err
}

func (r *Repository) acquire(ctx context.Context) (Store, func(), error) {
	if r.policy == PolicyPooled {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.shared == nil {
			s, err := r.open(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("open %s store: %w", r.backend, err)
			}
			r.shared = s
		}
		return r.shared, func() {}, nil
	}

	s, err := r.open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", r.backend, err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			r.logger.Warn().Err(err).Str("backend", r.backend).Msg("close store handle")
		}
	}, nil
}
