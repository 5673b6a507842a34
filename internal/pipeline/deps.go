package pipeline

import (
	"context"
	"time"

	"github.com/supportiq/backend/internal/a2a"
	"github.com/supportiq/backend/internal/storage/models"
)

// AgentCaller is the protocol surface the orchestrator needs from the A2A
// client.
type AgentCaller interface {
	Send(ctx context.Context, provider a2a.Provider, message string, opts a2a.SendOptions) (*a2a.Response, error)
}

// TicketStore persists ticket state transitions and completed traces.
type TicketStore interface {
	UpdateTicket(ctx context.Context, ticketID string, fields map[string]any) error
	WriteTrace(ctx context.Context, trace *models.PipelineTrace) error
}

// ActionDispatcher executes decision side effects. Failures are the
// orchestrator's to log, never to propagate.
type ActionDispatcher interface {
	TriggerAction(ctx context.Context, action string, payload map[string]any) error
	Notify(ctx context.Context, text, severity string) error
}

// AlertGate deduplicates ghost alerts per service. A nil gate means every
// qualifying alert fires.
type AlertGate interface {
	MarkGhostAlert(ctx context.Context, service string, ttl time.Duration) (bool, error)
}

// Event is a live progress notification for one run.
type Event struct {
	TicketID  string    `json:"ticket_id"`
	TraceID   string    `json:"trace_id"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives run progress events. Implementations must not block.
type EventSink interface {
	Publish(event Event)
}
