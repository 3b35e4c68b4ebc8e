package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"loadboard/internal/api"
	"loadboard/internal/broadcast"
	"loadboard/internal/logging"
	"loadboard/internal/orders"
	"loadboard/internal/reconcile"
)

const (
	defaultUserAgent = "loadboard/0.1"
	requestTimeout   = 10 * time.Second

	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-ID"
)

var (
	_ reconcile.Remote = (*Client)(nil)
	_ broadcast.Source = (*Client)(nil)
)

// Client talks to the loadboard HTTP API.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	logger *slog.Logger
}

// New builds a client for the host:port (or URL) in bind.
func New(bind string, logger *slog.Logger) (*Client, error) {
	base, err := parseBaseURL(bind)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: requestTimeout},
		// No timeout: long polls block until the server answers or the caller cancels.
		stream: &http.Client{},
		logger: logging.NewComponentLogger(logger, "client"),
	}, nil
}

func parseBaseURL(bind string) (*url.URL, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return base, nil
}

// BaseURL returns the server address requests are sent to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchQueued returns the queue in rank order.
func (c *Client) FetchQueued(ctx context.Context) ([]orders.Item, error) {
	return c.list(ctx, url.Values{"view": {"queued"}})
}

// FetchUnqueued returns every order without a queue rank.
func (c *Client) FetchUnqueued(ctx context.Context) ([]orders.Item, error) {
	return c.list(ctx, url.Values{"view": {"unqueued"}})
}

// FetchByWorkflowState returns every order in state.
func (c *Client) FetchByWorkflowState(ctx context.Context, state orders.WorkflowState) ([]orders.Item, error) {
	return c.list(ctx, url.Values{"state": {string(state)}})
}

func (c *Client) list(ctx context.Context, query url.Values) ([]orders.Item, error) {
	var payload api.OrderListResponse
	if err := c.do(ctx, c.http, http.MethodGet, &url.URL{Path: "/api/orders", RawQuery: query.Encode()}, nil, &payload); err != nil {
		return nil, err
	}
	items, err := api.ToItems(payload.Orders)
	if err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return items, nil
}

// Enqueue appends the order to the queue tail.
func (c *Client) Enqueue(ctx context.Context, id orders.ID) (orders.Item, error) {
	return c.orderAction(ctx, id, "enqueue", nil)
}

// Dequeue removes the order from the queue.
func (c *Client) Dequeue(ctx context.Context, id orders.ID) (orders.Item, error) {
	return c.orderAction(ctx, id, "dequeue", nil)
}

// AdvanceStage moves the order one step through preparation.
func (c *Client) AdvanceStage(ctx context.Context, id orders.ID) (orders.Item, error) {
	return c.orderAction(ctx, id, "advance", nil)
}

// AssignCrew sets the crew; an empty crewID clears it.
func (c *Client) AssignCrew(ctx context.Context, id orders.ID, crewID string) (orders.Item, error) {
	return c.orderAction(ctx, id, "crew", api.CrewRequest{CrewID: crewID})
}

// SetWorkflowState moves the order to state.
func (c *Client) SetWorkflowState(ctx context.Context, id orders.ID, state orders.WorkflowState) (orders.Item, error) {
	return c.orderAction(ctx, id, "state", api.StateRequest{State: string(state)})
}

// SetControlled records the outcome of the control stage.
func (c *Client) SetControlled(ctx context.Context, id orders.ID, controlled bool) (orders.Item, error) {
	return c.orderAction(ctx, id, "controlled", api.ControlledRequest{Controlled: controlled})
}

// Reorder sends the complete queue order in one request and returns the
// renumbered queue.
func (c *Client) Reorder(ctx context.Context, ids []orders.ID) ([]orders.Item, error) {
	req := api.ReorderRequest{IDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		req.IDs = append(req.IDs, string(id))
	}
	var payload api.OrderListResponse
	if err := c.do(ctx, c.http, http.MethodPost, &url.URL{Path: "/api/queue/reorder"}, req, &payload); err != nil {
		return nil, err
	}
	items, err := api.ToItems(payload.Orders)
	if err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return items, nil
}

// CreateOrder registers a new unassigned order.
func (c *Client) CreateOrder(ctx context.Context, reference, crewID string) (orders.Item, error) {
	var payload api.OrderResponse
	req := api.CreateOrderRequest{Reference: reference, CrewID: crewID}
	if err := c.do(ctx, c.http, http.MethodPost, &url.URL{Path: "/api/orders"}, req, &payload); err != nil {
		return orders.Item{}, err
	}
	return payload.Order.ToItem()
}

// DeleteOrder removes an order.
func (c *Client) DeleteOrder(ctx context.Context, id orders.ID) error {
	return c.do(ctx, c.http, http.MethodDelete, orderPath(id, ""), nil, nil)
}

// ListCrews returns every crew sorted by name.
func (c *Client) ListCrews(ctx context.Context) ([]api.Crew, error) {
	var payload api.CrewListResponse
	if err := c.do(ctx, c.http, http.MethodGet, &url.URL{Path: "/api/crews"}, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Crews, nil
}

// CreateCrew registers a crew.
func (c *Client) CreateCrew(ctx context.Context, name string) (api.Crew, error) {
	var crew api.Crew
	if err := c.do(ctx, c.http, http.MethodPost, &url.URL{Path: "/api/crews"}, api.CreateCrewRequest{Name: name}, &crew); err != nil {
		return api.Crew{}, err
	}
	return crew, nil
}

// Status returns the server summary.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var status api.Status
	if err := c.do(ctx, c.http, http.MethodGet, &url.URL{Path: "/api/status"}, nil, &status); err != nil {
		return api.Status{}, err
	}
	return status, nil
}

// Head returns the current event cursor for topic without waiting.
func (c *Client) Head(ctx context.Context, topic string) (uint64, error) {
	var payload api.EventStreamResponse
	rel := &url.URL{Path: "/api/events", RawQuery: url.Values{"topic": {topic}}.Encode()}
	if err := c.do(ctx, c.http, http.MethodGet, rel, nil, &payload); err != nil {
		return 0, err
	}
	return payload.Next, nil
}

// Poll long-polls for events on topic newer than since.
func (c *Client) Poll(ctx context.Context, topic string, since uint64) (api.EventStreamResponse, error) {
	values := url.Values{}
	values.Set("topic", topic)
	values.Set("since", strconv.FormatUint(since, 10))
	values.Set("follow", "1")
	var payload api.EventStreamResponse
	if err := c.do(ctx, c.stream, http.MethodGet, &url.URL{Path: "/api/events", RawQuery: values.Encode()}, nil, &payload); err != nil {
		return api.EventStreamResponse{}, err
	}
	return payload, nil
}

func (c *Client) orderAction(ctx context.Context, id orders.ID, action string, body any) (orders.Item, error) {
	var payload api.OrderResponse
	if err := c.do(ctx, c.http, http.MethodPost, orderPath(id, action), body, &payload); err != nil {
		return orders.Item{}, err
	}
	item, err := payload.Order.ToItem()
	if err != nil {
		return orders.Item{}, fmt.Errorf("decode order: %w", err)
	}
	return item, nil
}

func orderPath(id orders.ID, action string) *url.URL {
	p := "/api/orders/" + url.PathEscape(string(id))
	if action != "" {
		p += "/" + action
	}
	return &url.URL{Path: p}
}

func (c *Client) do(ctx context.Context, hc *http.Client, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	reqURL := c.base.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var payload api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		c.logger.Debug("api request failed",
			logging.String("method", method),
			logging.String("path", rel.Path),
			logging.Int("status", resp.StatusCode),
			logging.String(logging.FieldCorrelationID, requestID),
		)
		if resp.StatusCode < 500 {
			return &RejectedError{Status: resp.StatusCode, Path: rel.Path, Message: payload.Error}
		}
		if payload.Error != "" {
			return fmt.Errorf("api %s returned status %d: %s", rel.Path, resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("api %s returned status %d", rel.Path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
