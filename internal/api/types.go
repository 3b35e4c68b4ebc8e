package api

// dateTimeFormat is used for timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// Order describes one order in a transport-friendly format.
type Order struct {
	ID               string `json:"id"`
	Reference        string `json:"reference"`
	WorkflowState    string `json:"workflowState"`
	PreparationStage string `json:"preparationStage"`
	QueueRank        int    `json:"queueRank,omitempty"`
	CrewID           string `json:"crewId,omitempty"`
	Controlled       bool   `json:"controlled"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// OrderResponse wraps a single order.
type OrderResponse struct {
	Order Order `json:"order"`
}

// OrderListResponse wraps a list of orders. Queued views are in rank order.
type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

// CreateOrderRequest creates an unassigned order.
type CreateOrderRequest struct {
	Reference string `json:"reference"`
	CrewID    string `json:"crewId,omitempty"`
}

// ReorderRequest carries the complete queue order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// StateRequest moves an order to a workflow state.
type StateRequest struct {
	State string `json:"state"`
}

// CrewRequest assigns or clears (empty CrewID) a crew.
type CrewRequest struct {
	CrewID string `json:"crewId"`
}

// ControlledRequest sets the control flag.
type ControlledRequest struct {
	Controlled bool `json:"controlled"`
}

// Crew is a team orders can be assigned to.
type Crew struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CrewListResponse wraps the crew list.
type CrewListResponse struct {
	Crews []Crew `json:"crews"`
}

// CreateCrewRequest registers a crew.
type CreateCrewRequest struct {
	Name string `json:"name"`
}

// Broadcast topics.
const (
	TopicOrders = "orders"
	TopicCrews  = "crews"
)

// Event types carried in Event.Type.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventChanged = "changed"
)

// Event is one broadcast notification.
type Event struct {
	Sequence  uint64 `json:"seq"`
	Topic     string `json:"topic"`
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Order     *Order `json:"order,omitempty"`
	Timestamp string `json:"ts,omitempty"`
}

// EventStreamResponse is returned by the long-poll events endpoint. Next is
// the cursor to pass as since on the following request.
type EventStreamResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// Status summarizes the running server.
type Status struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Counts       map[string]int `json:"counts"`
	EventSeq     uint64         `json:"eventSeq"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
