// Package writequeue buffers mutating operations per producer while the
// producer is offline and replays them, strictly in FIFO order, once
// connectivity returns. Operations are persisted to a sqlite append log
// so the queue survives app restarts.
package writequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bus-ops/internal/domain"
	"bus-ops/pkg/logger"
)

// Applier is the store-side acceptance point for queued operations.
type Applier interface {
	Apply(ctx context.Context, op Operation) error
}

// Options bound the replay-retry loop. Retries apply only to transient
// errors; terminal errors are surfaced immediately.
type Options struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
	}
}

// FailureFunc surfaces an operation the queue had to discard, either
// because the store rejected it terminally or because retry attempts
// were exhausted. Nothing is ever dropped silently.
type FailureFunc func(op Operation, err error)

// Queue is the durable write queue for one producer (a driver or agent
// client). It is either Online, forwarding operations straight to the
// store, or Offline, appending them to the log for later replay.
type Queue struct {
	origin  string
	log     *Log
	applier Applier
	logger  logger.Logger
	opts    Options

	mu        sync.Mutex
	online    bool
	onFailure FailureFunc
}

func New(origin string, wal *Log, applier Applier, lg logger.Logger, opts Options) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultOptions().BaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultOptions().MaxBackoff
	}
	return &Queue{
		origin:  origin,
		log:     wal,
		applier: applier,
		logger:  lg,
		opts:    opts,
	}
}

// OnFailure registers the callback that surfaces discarded operations
// to the user.
func (q *Queue) OnFailure(fn FailureFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = fn
}

func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// Submit routes a mutation. Online, it goes straight to the store and
// the store's answer is returned with applied=true. A transient failure
// flips the queue offline and enqueues the operation, which is how the
// client notices connectivity loss; the caller's optimistic local update
// stands until replay resolves it. Offline, the operation is appended
// for replay and applied=false is returned.
func (q *Queue) Submit(ctx context.Context, opType, idempotencyKey string, payload any) (applied bool, err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, domain.ValidationError{Field: "payload", Msg: fmt.Sprintf("not serializable: %v", err)}
	}
	op := Operation{
		Origin:         q.origin,
		Type:           opType,
		IdempotencyKey: idempotencyKey,
		Payload:        body,
		EnqueuedAt:     time.Now(),
	}

	q.mu.Lock()
	online := q.online
	q.mu.Unlock()

	if online {
		err := q.applier.Apply(ctx, op)
		if err == nil || domain.IsTerminal(err) {
			return true, err
		}
		// Transient failure: treat it as going offline and buffer the op.
		q.logger.Error("queue_transient", fmt.Errorf("store unreachable, buffering %s: %w", opType, err))
		q.mu.Lock()
		q.online = false
		q.mu.Unlock()
	}

	if _, err := q.log.Append(ctx, op); err != nil {
		return false, fmt.Errorf("failed to buffer %s operation: %w", opType, err)
	}
	q.logger.Debug("queue_buffered", fmt.Sprintf("buffered %s for %s", opType, q.origin))
	return false, nil
}

// SetOffline stops forwarding; subsequent Submit calls append to the
// log. An in-progress drain stops before its next operation.
func (q *Queue) SetOffline() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.online = false
}

// SetOnline flips the queue online and drains it: pending operations are
// replayed strictly in enqueue order, one at a time, each waiting for
// the store's acknowledgment or terminal rejection before the next is
// sent. This preserves causal ordering between a producer's writes.
func (q *Queue) SetOnline(ctx context.Context) error {
	q.mu.Lock()
	q.online = true
	q.mu.Unlock()
	return q.drain(ctx)
}

// Pending lists the operations still awaiting replay.
func (q *Queue) Pending(ctx context.Context) ([]Operation, error) {
	return q.log.Pending(ctx, q.origin)
}

func (q *Queue) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !q.Online() {
			return nil
		}

		op, ok, err := q.log.Next(ctx, q.origin)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		applyErr := q.applyWithRetry(ctx, op)
		if applyErr != nil {
			if !domain.IsTerminal(applyErr) && ctx.Err() != nil {
				// Interrupted mid-retry; leave the operation queued.
				return ctx.Err()
			}
			q.surface(op, applyErr)
		}
		if err := q.log.Ack(ctx, op.Seq); err != nil {
			return err
		}
	}
}

// applyWithRetry sends one operation, retrying transient failures with
// bounded exponential backoff. Terminal errors return immediately.
func (q *Queue) applyWithRetry(ctx context.Context, op Operation) error {
	backoff := q.opts.BaseBackoff
	var err error
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		err = q.applier.Apply(ctx, op)
		if err == nil || domain.IsTerminal(err) {
			return err
		}
		if attempt == q.opts.MaxAttempts {
			break
		}
		q.logger.Debug("queue_retry", fmt.Sprintf("transient failure on %s (attempt %d/%d), retrying in %s",
			op.Type, attempt, q.opts.MaxAttempts, backoff))
		select {
		case <-ctx.Done():
			return domain.TransientError{Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > q.opts.MaxBackoff {
			backoff = q.opts.MaxBackoff
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", q.opts.MaxAttempts, err)
}

func (q *Queue) surface(op Operation, err error) {
	q.logger.Error("queue_discard", fmt.Errorf("discarding %s (seq %d): %w", op.Type, op.Seq, err))
	q.mu.Lock()
	fn := q.onFailure
	q.mu.Unlock()
	if fn != nil {
		fn(op, err)
	}
}
