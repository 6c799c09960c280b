package writequeue

import (
	"context"
	"sync"

	"bus-ops/pkg/logger"
)

// Manager hands out one durable queue per producer origin, all sharing a
// single append log. Queues are created on first use and start online,
// draining whatever the previous run left behind.
type Manager struct {
	wal     *Log
	applier Applier
	logger  logger.Logger
	opts    Options

	mu     sync.Mutex
	queues map[string]*Queue
}

func NewManager(wal *Log, applier Applier, lg logger.Logger, opts Options) *Manager {
	return &Manager{
		wal:     wal,
		applier: applier,
		logger:  lg,
		opts:    opts,
		queues:  make(map[string]*Queue),
	}
}

// ForOrigin returns the queue for a producer, creating it if needed. A
// freshly created queue replays any operations persisted by a previous
// process before new submissions interleave.
func (m *Manager) ForOrigin(ctx context.Context, origin string) *Queue {
	m.mu.Lock()
	q, ok := m.queues[origin]
	if !ok {
		q = New(origin, m.wal, m.applier, m.logger, m.opts)
		m.queues[origin] = q
		m.mu.Unlock()
		if err := q.SetOnline(ctx); err != nil {
			m.logger.Error("queue_recover_failed", err)
		}
		return q
	}
	m.mu.Unlock()
	return q
}
