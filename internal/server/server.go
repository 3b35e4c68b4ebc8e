package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"loadboard/internal/api"
	"loadboard/internal/broadcast"
	"loadboard/internal/config"
	"loadboard/internal/logging"
	"loadboard/internal/orders"
	"loadboard/internal/orderstore"
)

// Server coordinates the HTTP API and enforces single-instance execution.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *orderstore.Store
	hub    *broadcast.Hub
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents server runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Counts       map[orders.WorkflowState]int
	EventSeq     uint64
}

// New constructs a server around an opened store.
func New(cfg *config.Config, store *orderstore.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("server requires config and store")
	}
	s := &Server{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "server"),
		store:    store,
		hub:      broadcast.NewHub(cfg.Server.EventBuffer),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	s.api = newAPIServer(cfg.Server.APIBind, s, logger)
	return s, nil
}

// Start acquires the instance lock and begins serving.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another loadboard server already holds %s", s.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.api.start(runCtx); err != nil {
		cancel()
		_ = s.lock.Unlock()
		return err
	}
	s.cancel = cancel
	s.running.Store(true)
	s.logger.Info("loadboard server started",
		logging.String("address", s.api.addr()),
		logging.String("lock", s.lockPath),
		logging.String("database", s.store.Path()),
	)
	return nil
}

// Stop ends serving, wakes long-poll clients and releases the lock.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.hub.Close()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.api.stop()
	if err := s.lock.Unlock(); err != nil {
		logging.WarnWithContext(s.logger, "failed to release server lock", "lock_release",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+s.lockPath+" if no server is running"),
		)
	}
	s.logger.Info("loadboard server stopped")
}

// Close stops the server and closes the store.
func (s *Server) Close() error {
	s.Stop()
	return s.store.Close()
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	return s.api.addr()
}

// Handler returns the HTTP API handler without a listener.
func (s *Server) Handler() http.Handler {
	return s.api.server.Handler
}

// Hub exposes the broadcast hub.
func (s *Server) Hub() *broadcast.Hub {
	return s.hub
}

// Status reports runtime information.
func (s *Server) Status(ctx context.Context) (Status, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      s.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: s.store.Path(),
		LockFilePath: s.lockPath,
		Counts:       counts,
		EventSeq:     s.hub.Head(api.TopicOrders),
	}, nil
}

// publishChange broadcasts the changed order and every renumbered neighbour.
func (s *Server) publishChange(change orderstore.Change) {
	s.publishOrder(api.EventUpdated, change.Order)
	for _, item := range change.Renumbered {
		s.publishOrder(api.EventUpdated, item)
	}
}

func (s *Server) publishOrder(kind string, item orders.Item) {
	dto := api.FromItem(item)
	evt := s.hub.Publish(api.TopicOrders, api.Event{Type: kind, ID: dto.ID, Order: &dto})
	s.logger.Debug("order event published",
		logging.String(logging.FieldOrderID, dto.ID),
		logging.String("event", kind),
		logging.Uint64(logging.FieldSeq, evt.Sequence),
	)
}

func (s *Server) publishDeleted(id orders.ID) {
	s.hub.Publish(api.TopicOrders, api.Event{Type: api.EventDeleted, ID: string(id)})
}
