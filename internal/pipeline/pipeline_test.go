package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/supportiq/backend/internal/a2a"
	"github.com/supportiq/backend/internal/storage/models"
)

// fakeAgents replays scripted responses per provider and records every
// message it was sent.
type fakeAgents struct {
	mu        sync.Mutex
	responses map[a2a.Provider][]*a2a.Response
	errs      map[a2a.Provider]error
	messages  map[a2a.Provider][]string
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{
		responses: map[a2a.Provider][]*a2a.Response{},
		errs:      map[a2a.Provider]error{},
		messages:  map[a2a.Provider][]string{},
	}
}

func (f *fakeAgents) queue(provider a2a.Provider, v any) {
	f.responses[provider] = append(f.responses[provider], jsonResponse(provider, v))
}

func (f *fakeAgents) Send(ctx context.Context, provider a2a.Provider, message string, opts a2a.SendOptions) (*a2a.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages[provider] = append(f.messages[provider], message)
	if err := f.errs[provider]; err != nil {
		return nil, err
	}
	queue := f.responses[provider]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted response for %s", provider)
	}
	resp := queue[0]
	f.responses[provider] = queue[1:]
	return resp, nil
}

func jsonResponse(provider a2a.Provider, v any) *a2a.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		panic(err)
	}
	return &a2a.Response{
		Provider: provider,
		Text:     string(data),
		Payload:  a2a.Payload{Fields: fields, Raw: string(data)},
		Duration: 10 * time.Millisecond,
		Success:  true,
	}
}

type fakeStore struct {
	mu      sync.Mutex
	updates []map[string]any
	traces  []*models.PipelineTrace
	err     error
}

func (f *fakeStore) UpdateTicket(ctx context.Context, ticketID string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fields)
	return f.err
}

func (f *fakeStore) WriteTrace(ctx context.Context, trace *models.PipelineTrace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces = append(f.traces, trace)
	return nil
}

func (f *fakeStore) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fields := range f.updates {
		if s, ok := fields["status"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type dispatched struct {
	action  string
	payload map[string]any
}

type fakeDispatcher struct {
	mu      sync.Mutex
	actions []dispatched
	notices []string
}

func (f *fakeDispatcher) TriggerAction(ctx context.Context, action string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, dispatched{action: action, payload: payload})
	return nil
}

func (f *fakeDispatcher) Notify(ctx context.Context, text, severity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, severity+": "+text)
	return nil
}

func (f *fakeDispatcher) actionNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.actions {
		out = append(out, a.action)
	}
	return out
}

func testTicket() *models.Ticket {
	return &models.Ticket{
		TicketID:    "TICK-1001",
		Title:       "Cannot login after password reset",
		Description: "Getting invalid credentials on every attempt",
		CustomerID:  "CUST-77",
		Category:    "authentication",
		CreatedAt:   time.Now(),
	}
}

func enrichmentReply(ticketID string) models.EnrichmentResult {
	return models.EnrichmentResult{
		TicketID: ticketID,
		Enrichment: models.Enrichment{
			CustomerTier:     "enterprise",
			SLAHours:         4,
			SimilarCount:     3,
			HasKnownSolution: true,
		},
	}
}

func triageReply(ticketID string, surge bool, correlated bool) models.TriageResult {
	tr := models.TriageResult{
		TicketID:      ticketID,
		PriorityScore: 72.5,
		PriorityLabel: "HIGH",
		SurgeDetected: surge,
	}
	if surge {
		tr.SurgeData = &models.SurgeData{
			CurrentHourlyRate:    40,
			BaselineHourlyRate:   8,
			SigmaLevel:           4.2,
			CurrentCountInWindow: 40,
		}
	}
	if correlated {
		tr.DeploymentCorrelation = &models.DeploymentCorrelation{
			RelatedDeployments: []models.Deployment{
				{DeploymentID: "deploy-991", Service: "auth-service", DeployedAt: "2026-08-26T10:00:00Z", RollbackAvailable: true},
			},
		}
	}
	return tr
}

func solverReply(ticketID string, confidence float64) models.ResolutionAttempt {
	return models.ResolutionAttempt{
		TicketID:            ticketID,
		ResolutionDraft:     "Clear your session cookies and reset the password again.",
		Confidence:          confidence,
		Decision:            "auto_resolve",
		ResolutionReasoning: "Known issue after the recent auth deploy.",
	}
}

func criticReply(ticketID string, quality float64, decision string) models.ReviewResult {
	review := models.ReviewResult{
		TicketID:     ticketID,
		QualityScore: quality,
		Decision:     decision,
	}
	if decision != models.ReviewApproved {
		review.Critique = "Draft does not mention the known deploy rollback."
		review.ImprovementRequired = "Reference the auth-service rollback and its ETA."
	}
	return review
}
