package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"loadboard/internal/api"
	"loadboard/internal/broadcast"
	"loadboard/internal/logging"
	"loadboard/internal/orders"
	"loadboard/internal/orderstore"
)

const (
	requestIDHeader = "X-Request-ID"
	longPollTimeout = 25 * time.Second
	maxBodyBytes    = 1 << 20
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	srv    *Server

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, srv *Server, logger *slog.Logger) *apiServer {
	a := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		srv:    srv,
	}
	a.server = &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      longPollTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a
}

func (a *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/orders", a.handleListOrders)
	mux.HandleFunc("POST /api/orders", a.handleCreateOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", a.handleDeleteOrder)
	mux.HandleFunc("POST /api/orders/{id}/{action}", a.handleOrderAction)
	mux.HandleFunc("POST /api/queue/reorder", a.handleReorder)
	mux.HandleFunc("GET /api/crews", a.handleListCrews)
	mux.HandleFunc("POST /api/crews", a.handleCreateCrew)
	mux.HandleFunc("GET /api/events", a.handleEvents)
	return a.withRequestID(mux)
}

func (a *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(a.logger, "api server error", "api_serve", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()

	a.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (a *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.server.Shutdown(shutdownCtx)
	a.mu.Lock()
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.mu.Unlock()
}

func (a *apiServer) addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return a.bind
	}
	return a.listener.Addr().String()
}

// withRequestID tags the request context with the caller's request id, or a
// fresh one, for log correlation.
func (a *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

func (a *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.srv.Status(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	counts := make(map[string]int, len(status.Counts))
	for state, n := range status.Counts {
		counts[string(state)] = n
	}
	a.writeJSON(w, http.StatusOK, api.Status{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Counts:       counts,
		EventSeq:     status.EventSeq,
	})
}

func (a *apiServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := a.srv.store
	var (
		items []orders.Item
		err   error
	)
	query := r.URL.Query()
	switch {
	case query.Get("state") != "":
		state, ok := orders.ParseState(query.Get("state"))
		if !ok {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", query.Get("state")))
			return
		}
		items, err = store.ListByState(ctx, state)
	case query.Get("view") == "unqueued":
		items, err = store.ListUnqueued(ctx)
	case query.Get("view") == "", query.Get("view") == "queued":
		items, err = store.ListQueued(ctx)
	default:
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown view %q", query.Get("view")))
		return
	}
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, api.OrderListResponse{Orders: api.FromItems(items)})
}

func (a *apiServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOrderRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.srv.store.Create(r.Context(), req.Reference, req.CrewID)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	a.srv.publishOrder(api.EventCreated, item)
	a.writeJSON(w, http.StatusCreated, api.OrderResponse{Order: api.FromItem(item)})
}

func (a *apiServer) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := orders.ID(r.PathValue("id"))
	renumbered, err := a.srv.store.Delete(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	a.srv.publishDeleted(id)
	for _, item := range renumbered {
		a.srv.publishOrder(api.EventUpdated, item)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleOrderAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := a.srv.store
	id := orders.ID(r.PathValue("id"))
	var (
		change orderstore.Change
		err    error
	)
	switch action := r.PathValue("action"); action {
	case "enqueue":
		change, err = store.Enqueue(ctx, id)
	case "dequeue":
		change, err = store.Dequeue(ctx, id)
	case "advance":
		change, err = store.Advance(ctx, id)
	case "state":
		var req api.StateRequest
		if !a.decode(w, r, &req) {
			return
		}
		state, ok := orders.ParseState(req.State)
		if !ok {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", req.State))
			return
		}
		change, err = store.SetState(ctx, id, state)
	case "crew":
		var req api.CrewRequest
		if !a.decode(w, r, &req) {
			return
		}
		change, err = store.AssignCrew(ctx, id, strings.TrimSpace(req.CrewID))
	case "controlled":
		var req api.ControlledRequest
		if !a.decode(w, r, &req) {
			return
		}
		change, err = store.SetControlled(ctx, id, req.Controlled)
	default:
		a.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	a.srv.publishChange(change)
	a.writeJSON(w, http.StatusOK, api.OrderResponse{Order: api.FromItem(change.Order)})
}

func (a *apiServer) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req api.ReorderRequest
	if !a.decode(w, r, &req) {
		return
	}
	ids := make([]orders.ID, 0, len(req.IDs))
	for _, id := range req.IDs {
		ids = append(ids, orders.ID(id))
	}
	queue, changed, err := a.srv.store.Reorder(r.Context(), ids)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	for _, item := range changed {
		a.srv.publishOrder(api.EventUpdated, item)
	}
	a.writeJSON(w, http.StatusOK, api.OrderListResponse{Orders: api.FromItems(queue)})
}

func (a *apiServer) handleListCrews(w http.ResponseWriter, r *http.Request) {
	crews, err := a.srv.store.ListCrews(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	resp := api.CrewListResponse{Crews: make([]api.Crew, 0, len(crews))}
	for _, c := range crews {
		resp.Crews = append(resp.Crews, api.Crew{ID: c.ID, Name: c.Name})
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *apiServer) handleCreateCrew(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCrewRequest
	if !a.decode(w, r, &req) {
		return
	}
	crew, err := a.srv.store.CreateCrew(r.Context(), req.Name)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	a.srv.hub.Publish(api.TopicCrews, api.Event{Type: api.EventCreated, ID: crew.ID})
	a.writeJSON(w, http.StatusCreated, api.Crew{ID: crew.ID, Name: crew.Name})
}

// handleEvents serves the broadcast long poll. Without since it returns the
// current cursor immediately; with follow it waits up to longPollTimeout.
func (a *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	topic := strings.TrimSpace(query.Get("topic"))
	if topic == "" {
		topic = api.TopicOrders
	}
	hub := a.srv.hub
	rawSince := strings.TrimSpace(query.Get("since"))
	if rawSince == "" {
		a.writeJSON(w, http.StatusOK, api.EventStreamResponse{Events: []api.Event{}, Next: hub.Head(topic)})
		return
	}
	since, err := strconv.ParseUint(rawSince, 10, 64)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid since value")
		return
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid limit value")
			return
		}
	}
	follow := query.Get("follow") == "1"

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, longPollTimeout)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, topic, since, limit, follow)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		events, next = nil, since
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, broadcast.ErrClosed):
		a.writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []api.Event{}
	}
	a.writeJSON(w, http.StatusOK, api.EventStreamResponse{Events: events, Next: next})
}

func (a *apiServer) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (a *apiServer) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orderstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orderstore.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, orderstore.ErrInvalid):
		status = http.StatusBadRequest
	}
	logger := logging.WithContext(r.Context(), a.logger)
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "api request failed", "api_store_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	} else {
		logger.Debug("api request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	a.writeError(w, status, err.Error())
}

func (a *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (a *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, api.ErrorResponse{Error: message})
}
