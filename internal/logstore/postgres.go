package logstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig describes one postgres connection. Collection names the table.
type PostgresConfig struct {
	URI        string
	Collection string
	TLS        *tls.Config
	PoolSize   int
	// SkipSchema is set once the table is known to exist.
	SkipSchema bool
}

// PostgresStore keeps log documents in a table with the turns as JSONB.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := postgresPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, table: pgx.Identifier{cfg.Collection}.Sanitize()}
	if !cfg.SkipSchema {
		if err := s.initSchema(ctx, cfg.Collection); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func postgresPoolConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("parse postgres uri: %w", err)
	}
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	poolCfg.MaxConns = int32(size)
	// Bound credentials always connect over verified TLS, whatever sslmode
	// the URI carries. Plaintext fallbacks from sslmode=prefer are dropped.
	if cfg.TLS != nil {
		conn := poolCfg.ConnConfig
		conn.TLSConfig = verifiedTLS(cfg.TLS, conn.Host)
		fallbacks := conn.Fallbacks[:0]
		for _, fb := range conn.Fallbacks {
			if fb.TLSConfig == nil {
				continue
			}
			fb.TLSConfig = verifiedTLS(cfg.TLS, fb.Host)
			fallbacks = append(fallbacks, fb)
		}
		conn.Fallbacks = fallbacks
	}
	return poolCfg, nil
}

func verifiedTLS(base *tls.Config, host string) *tls.Config {
	c := base.Clone()
	c.InsecureSkipVerify = false
	c.VerifyPeerCertificate = nil
	c.ServerName = host
	return c
}

func (s *PostgresStore) initSchema(ctx context.Context, collection string) error {
	index := pgx.Identifier{"idx_" + collection + "_conversation"}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id TEXT PRIMARY KEY,
			conversation TEXT NOT NULL,
			date TIMESTAMPTZ NULL,
			logs JSONB NOT NULL DEFAULT '[]'::jsonb
		);`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + s.table + ` (conversation);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, conversation, date, logs FROM `+s.table)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log rows: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table)
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) FindOne(ctx context.Context, conversationID string) (Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, conversation, date, logs FROM `+s.table+` WHERE conversation=$1 LIMIT 1`,
		conversationID,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("find conversation %q: %w", conversationID, err)
	}
	return doc, nil
}

func (s *PostgresStore) Insert(ctx context.Context, doc Document) (Document, error) {
	doc = withDefaults(doc)
	logs, err := json.Marshal(turnsOrEmpty(doc.Logs))
	if err != nil {
		return Document{}, fmt.Errorf("marshal turns: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (id, conversation, date, logs) VALUES ($1, $2, $3, $4)`,
		string(doc.ID),
		doc.Conversation,
		doc.Date.Time,
		logs,
	)
	if err != nil {
		return Document{}, fmt.Errorf("insert log: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc  Document
		id   string
		date *time.Time
		logs []byte
	)
	if err := row.Scan(&id, &doc.Conversation, &date, &logs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("scan log row: %w", err)
	}
	doc.ID = DocumentID(id)
	if date != nil {
		doc.Date = NewTimestamp(*date)
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &doc.Logs); err != nil {
			return Document{}, fmt.Errorf("decode turns of %s: %w", id, err)
		}
	}
	return doc, nil
}

func turnsOrEmpty(turns []Turn) []Turn {
	if turns == nil {
		return []Turn{}
	}
	return turns
}
