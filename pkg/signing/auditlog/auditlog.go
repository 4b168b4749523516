// Copyright 2025 Certen Protocol
//
// Package auditlog mirrors the transition log to a Postgres table for
// durable, queryable audit trails, following the same database/sql +
// lib/pq wiring used elsewhere in this codebase's services. It is optional:
// a Sink constructed with an empty URL degrades to a no-op so the
// orchestrator runs unchanged when no audit database is configured.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

// Sink persists TransitionLogRecord entries to Postgres. The zero value with
// a nil db is a valid no-op sink.
type Sink struct {
	db     *sql.DB
	logger *log.Logger
}

// Option customizes a Sink at construction time.
type Option func(*Sink)

// WithLogger overrides the sink's default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS transition_log (
	event_seq             BIGINT NOT NULL,
	command_id            TEXT NOT NULL,
	flow_id               TEXT NOT NULL,
	state_before          TEXT NOT NULL,
	state_after           TEXT NOT NULL,
	side_effect_key       TEXT,
	side_effect_dispatched BOOLEAN NOT NULL,
	side_effect_outcome   TEXT,
	recorded_at_ms        BIGINT NOT NULL,
	PRIMARY KEY (flow_id, event_seq)
)`

// NewSink opens a connection pool against databaseURL and ensures the
// transition_log table exists. An empty databaseURL returns a no-op Sink
// rather than an error, so callers can wire it unconditionally.
func NewSink(ctx context.Context, databaseURL string, opts ...Option) (*Sink, error) {
	s := &Sink{
		logger: log.New(log.Writer(), "[auditlog] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	if databaseURL == "" {
		return s, nil
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create transition_log table: %w", err)
	}

	s.db = db
	s.logger.Printf("audit log connected")
	return s, nil
}

// Record inserts a TransitionLogRecord, ignoring a duplicate (flow_id,
// event_seq) pair so a
// replayed AppendTransitionLog call is idempotent. A no-op Sink returns nil
// without touching any database.
func (s *Sink) Record(ctx context.Context, record domain.TransitionLogRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transition_log
			(event_seq, command_id, flow_id, state_before, state_after,
			 side_effect_key, side_effect_dispatched, side_effect_outcome, recorded_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (flow_id, event_seq) DO NOTHING`,
		record.EventSeq, record.CommandID, record.FlowID, record.StateBefore, record.StateAfter,
		record.SideEffectKey, record.SideEffectDispatched, record.SideEffectOutcome, record.RecordedAtMs)
	if err != nil {
		return fmt.Errorf("insert transition log record: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool, if any.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
