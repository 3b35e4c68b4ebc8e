package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loadboard/internal/api"
	"loadboard/internal/logging"
)

const (
	defaultBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Source is the long-poll endpoint a Manager reads from. Head returns the
// current cursor without waiting; Poll blocks until events newer than since
// exist or the server gives up on the request.
type Source interface {
	Head(ctx context.Context, topic string) (uint64, error)
	Poll(ctx context.Context, topic string, since uint64) (api.EventStreamResponse, error)
}

// Manager owns the shared subscription connection. It stays open while at
// least one reference is held.
type Manager struct {
	source  Source
	logger  *slog.Logger
	backoff time.Duration

	mu     sync.Mutex
	refs   int
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithBackoff sets the base reconnect delay.
func WithBackoff(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.backoff = d
		}
	}
}

// NewManager builds a manager reading from source.
func NewManager(source Source, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		source:  source,
		logger:  logging.NewComponentLogger(logger, "broadcast"),
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes a reference on the connection and returns its release
// function. Releasing more than once has no effect.
func (m *Manager) Acquire() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs++
	if m.refs == 1 {
		m.ctx, m.cancel = context.WithCancel(context.Background())
		m.logger.Debug("broadcast connection opened")
	}
	var once sync.Once
	return func() { once.Do(m.release) }
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		return
	}
	m.refs--
	if m.refs == 0 {
		m.cancel()
		m.ctx, m.cancel = nil, nil
		m.logger.Debug("broadcast connection closed")
	}
}

// Refs reports the number of live references.
func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Active reports whether the connection is open.
func (m *Manager) Active() bool {
	return m.Refs() > 0
}

// Wait blocks until every subscription loop has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Subscribe starts delivering events for topic to handler. The subscription
// holds its own reference until the returned function is called. onReconnect
// may be nil.
func (m *Manager) Subscribe(topic string, handler func(api.Event), onReconnect func()) (unsubscribe func()) {
	release := m.Acquire()
	m.mu.Lock()
	ctx, cancel := context.WithCancel(m.ctx)
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, topic, handler, onReconnect)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			release()
		})
	}
}

func (m *Manager) run(ctx context.Context, topic string, handler func(api.Event), onReconnect func()) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldTopic, topic))

	var (
		cursor    uint64
		connected bool
		everUp    bool
		failures  int
	)
	for ctx.Err() == nil {
		if !connected {
			head, err := m.source.Head(ctx, topic)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Debug("broadcast connect failed", logging.Int("failures", failures), logging.Error(err))
				if !sleep(ctx, calculateBackoff(failures-1, m.backoff)) {
					return
				}
				continue
			}
			cursor = head
			connected = true
			failures = 0
			if everUp {
				logger.Info("broadcast reconnected", logging.Uint64(logging.FieldSeq, head))
				if onReconnect != nil {
					onReconnect()
				}
			}
			everUp = true
		}

		resp, err := m.source.Poll(ctx, topic, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			connected = false
			failures++
			logging.WarnWithContext(logger, "broadcast subscription dropped", "broadcast_disconnect",
				logging.Int("failures", failures),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the loadboard server is reachable"),
				logging.String(logging.FieldImpact, "changes from other sessions arrive with the next resync"),
			)
			if !sleep(ctx, calculateBackoff(failures-1, m.backoff)) {
				return
			}
			continue
		}
		for _, evt := range resp.Events {
			if evt.Type != api.EventChanged && evt.Sequence <= cursor {
				continue
			}
			handler(evt)
		}
		cursor = resp.Next
	}
}

// calculateBackoff doubles base per consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for range failures {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
