package writequeue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// schemaSQL is the single source of truth for the queue log schema,
// embedded at compile time.
//
//go:embed schema.sql
var schemaSQL string

// Operation is an opaque, ordered record of a not-yet-confirmed
// mutation. It is created when a producer is offline, replayed in
// creation order, and destroyed once the store acknowledges it.
type Operation struct {
	Seq            int64           `json:"seq"`
	Origin         string          `json:"origin"`
	Type           string          `json:"type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

// Log is the sqlite-backed persistence for queued operations. It
// survives app restarts; a simple append log is all the queue needs.
type Log struct {
	conn    *sql.DB
	writeMu sync.Mutex // sqlite supports one writer at a time
}

// OpenLog opens (or creates) the append log at path with WAL mode
// enabled and the schema applied.
func OpenLog(path string) (*Log, error) {
	dsn := path + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue log: %w", err)
	}

	// A single connection plus the write mutex serializes all writes,
	// preventing nested-transaction errors under concurrent producers.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping queue log: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply queue log schema: %w", err)
	}

	return &Log{conn: conn}, nil
}

func (l *Log) Close() error {
	return l.conn.Close()
}

// Append persists an operation and returns its sequence number.
func (l *Log) Append(ctx context.Context, op Operation) (int64, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	res, err := l.conn.ExecContext(ctx,
		`INSERT INTO queued_operations (origin, op_type, idempotency_key, payload, enqueued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		op.Origin, op.Type, op.IdempotencyKey, string(op.Payload),
		op.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append operation: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read operation seq: %w", err)
	}
	return seq, nil
}

// Next returns the oldest pending operation for origin, or ok=false when
// the queue is empty.
func (l *Log) Next(ctx context.Context, origin string) (Operation, bool, error) {
	row := l.conn.QueryRowContext(ctx,
		`SELECT seq, origin, op_type, idempotency_key, payload, enqueued_at
		 FROM queued_operations WHERE origin = ? ORDER BY seq ASC LIMIT 1`,
		origin,
	)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, false, nil
	}
	if err != nil {
		return Operation{}, false, fmt.Errorf("failed to read next operation: %w", err)
	}
	return op, true, nil
}

// Pending returns all queued operations for origin in enqueue order.
func (l *Log) Pending(ctx context.Context, origin string) ([]Operation, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT seq, origin, op_type, idempotency_key, payload, enqueued_at
		 FROM queued_operations WHERE origin = ? ORDER BY seq ASC`,
		origin,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Ack deletes an acknowledged (or terminally failed) operation.
func (l *Log) Ack(ctx context.Context, seq int64) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := l.conn.ExecContext(ctx,
		`DELETE FROM queued_operations WHERE seq = ?`, seq,
	); err != nil {
		return fmt.Errorf("failed to ack operation %d: %w", seq, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (Operation, error) {
	var op Operation
	var payload, enqueuedAt string
	if err := row.Scan(&op.Seq, &op.Origin, &op.Type, &op.IdempotencyKey, &payload, &enqueuedAt); err != nil {
		return Operation{}, err
	}
	op.Payload = json.RawMessage(payload)
	ts, err := time.Parse(time.RFC3339Nano, enqueuedAt)
	if err != nil {
		return Operation{}, fmt.Errorf("bad enqueued_at %q: %w", enqueuedAt, err)
	}
	op.EnqueuedAt = ts
	return op, nil
}
