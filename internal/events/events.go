package events

import (
	"encoding/json"
	"sync"
	"time"

	"sheetsync/internal/models"
)

const (
	EventOperationEnqueued  = "operation_enqueued"
	EventOperationCompleted = "operation_completed"
	EventOperationFailed    = "operation_failed"
	EventOperationCancelled = "operation_cancelled"
	EventOperationsCleared  = "operations_cleared"
	EventDrainCompleted     = "drain_completed"
	EventReconcileCompleted = "reconcile_completed"
	EventReconcileWriteFail = "reconcile_write_failed"
)

// OperationEventPayload describes the minimal operation snapshot for event consumers.
type OperationEventPayload struct {
	OperationID models.OperationID     `json:"operation_id"`
	Kind        models.OperationKind   `json:"kind"`
	StoreID     string                 `json:"store_id"`
	Range       string                 `json:"range"`
	Status      models.OperationStatus `json:"status"`
	ErrorCode   models.ErrorCode       `json:"error_code,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// NewOperationEventPayload builds a payload from an operation.
func NewOperationEventPayload(op *models.Operation) OperationEventPayload {
	p := OperationEventPayload{
		OperationID: op.ID,
		Kind:        op.Kind,
		StoreID:     op.StoreID,
		Range:       op.Range,
		Status:      op.Status,
	}
	if op.Error != nil {
		p.ErrorCode = op.Error.Code
		p.Message = op.Error.Message
	}
	return p
}

// OperationsClearedPayload carries the ledger entries removed by ClearCompleted.
type OperationsClearedPayload struct {
	Operations []models.Operation `json:"operations"`
}

// DrainPayload summarises one drain pass.
type DrainPayload struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Finished  time.Time     `json:"finished"`
}

// ReconcilePayload summarises a reconciliation run.
type ReconcilePayload struct {
	SourceStoreID string `json:"source_store_id"`
	SourceRange   string `json:"source_range"`
	TargetStoreID string `json:"target_store_id"`
	TargetRange   string `json:"target_range"`
	Changed       bool   `json:"changed"`
	Direction     string `json:"direction,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Without it errors are dropped.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
