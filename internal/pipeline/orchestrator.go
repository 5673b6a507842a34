package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/a2a"
	"github.com/supportiq/backend/internal/metrics"
	"github.com/supportiq/backend/internal/storage/models"
	"github.com/supportiq/backend/pkg/logger"
)

// Options tunes one orchestrator instance. Zero values fall back to the
// policy defaults and a ceiling of three solver attempts.
type Options struct {
	Policy                 Policy
	CriticQualityThreshold float64
	MaxSolverAttempts      int
	GhostAlertDedup        time.Duration
	SideEffectTimeout      time.Duration
	Gate                   AlertGate
	Sink                   EventSink
}

// Orchestrator drives one ticket through enrich, triage, the solver/critic
// loop, the decision, and trace persistence. It holds no per-run state and
// is safe for concurrent runs.
type Orchestrator struct {
	agents  AgentCaller
	store   TicketStore
	actions ActionDispatcher
	opts    Options
}

func NewOrchestrator(agents AgentCaller, store TicketStore, actions ActionDispatcher, opts Options) *Orchestrator {
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.CriticQualityThreshold == 0 {
		opts.CriticQualityThreshold = 0.75
	}
	if opts.MaxSolverAttempts < 1 {
		opts.MaxSolverAttempts = 3
	}
	if opts.SideEffectTimeout == 0 {
		opts.SideEffectTimeout = 5 * time.Second
	}
	return &Orchestrator{
		agents:  agents,
		store:   store,
		actions: actions,
		opts:    opts,
	}
}

// Run processes one ticket end to end and returns the full trace. It never
// returns an error: any stage failure is recorded on the trace with final
// decision "error", and the trace is persisted either way.
func (o *Orchestrator) Run(ctx context.Context, ticket *models.Ticket) *models.PipelineTrace {
	start := time.Now()
	trace := &models.PipelineTrace{
		TraceID:       fmt.Sprintf("pipeline-%s-%s", ticket.TicketID, uuid.NewString()[:8]),
		TicketID:      ticket.TicketID,
		PipelineStart: start.UTC(),
	}

	logger.Info("Processing ticket",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("trace_id", trace.TraceID),
		zap.String("title", truncate(ticket.Title, 60)),
	)

	if err := o.run(ctx, ticket, trace); err != nil {
		logger.Error("Pipeline failed",
			zap.String("ticket_id", ticket.TicketID),
			zap.String("trace_id", trace.TraceID),
			zap.Error(err),
		)
		trace.Error = err.Error()
		trace.FinalDecision = models.DecisionError
	}

	trace.TotalDurationMS = time.Since(start).Milliseconds()

	metrics.PipelineRuns.WithLabelValues(string(trace.FinalDecision)).Inc()
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	logger.Info("Pipeline complete",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("decision", string(trace.FinalDecision)),
		zap.Int64("duration_ms", trace.TotalDurationMS),
	)

	if err := o.store.WriteTrace(ctx, trace); err != nil {
		logger.Warn("Trace write failed", zap.String("trace_id", trace.TraceID), zap.Error(err))
	}

	o.publish(trace, "done", string(trace.FinalDecision))
	return trace
}

func (o *Orchestrator) run(ctx context.Context, ticket *models.Ticket, trace *models.PipelineTrace) error {
	enrichment, err := o.runWatcher(ctx, ticket, trace)
	if err != nil {
		return err
	}

	triage, err := o.runJudge(ctx, ticket, enrichment, trace)
	if err != nil {
		return err
	}

	resolution, err := o.runSolverCriticLoop(ctx, ticket, enrichment, triage, trace)
	if err != nil {
		return err
	}

	return o.executeDecision(ctx, ticket, resolution, triage, trace)
}

func (o *Orchestrator) runWatcher(ctx context.Context, ticket *models.Ticket, trace *models.PipelineTrace) (*models.EnrichmentResult, error) {
	o.publish(trace, "enrich", "")
	logger.Info("Watcher: enriching ticket", zap.String("ticket_id", ticket.TicketID))

	message := fmt.Sprintf("New support ticket received. Please enrich it:\n\n%s", mustJSON(ticket))

	resp, err := o.agents.Send(ctx, a2a.ProviderWatcher, message, a2a.SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to run watcher: %w", err)
	}
	metrics.StageDuration.WithLabelValues("watcher").Observe(resp.Duration.Seconds())

	var enrichment models.EnrichmentResult
	if !resp.Success || resp.Payload.Decode(&enrichment) != nil {
		logger.Warn("Watcher reply not parseable, continuing with empty enrichment",
			zap.String("ticket_id", ticket.TicketID),
		)
		enrichment = models.EnrichmentResult{TicketID: ticket.TicketID}
	}

	trace.Steps = append(trace.Steps, models.TraceStep{
		Step:             "1",
		Agent:            "watcher",
		DurationMS:       resp.Duration.Milliseconds(),
		SimilarCount:     enrichment.Enrichment.SimilarCount,
		HasKnownSolution: enrichment.Enrichment.HasKnownSolution,
		CustomerTier:     enrichment.Enrichment.CustomerTier,
	})

	o.updateTicket(ctx, ticket.TicketID, map[string]any{
		"customer_tier": enrichment.Enrichment.CustomerTier,
		"sla_hours":     enrichment.Enrichment.SLAHours,
		"status":        models.StatusEnriched,
	})

	return &enrichment, nil
}

func (o *Orchestrator) runJudge(ctx context.Context, ticket *models.Ticket, enrichment *models.EnrichmentResult, trace *models.PipelineTrace) (*models.TriageResult, error) {
	o.publish(trace, "triage", "")
	logger.Info("Judge: scoring priority", zap.String("ticket_id", ticket.TicketID))

	message := fmt.Sprintf("Triage this enriched support ticket:\n\nTicket:\n%s\n\nEnrichment data:\n%s",
		mustJSON(ticket), mustJSON(enrichment))

	resp, err := o.agents.Send(ctx, a2a.ProviderJudge, message, a2a.SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to run judge: %w", err)
	}
	metrics.StageDuration.WithLabelValues("judge").Observe(resp.Duration.Seconds())

	var triage models.TriageResult
	if !resp.Success || resp.Payload.Decode(&triage) != nil {
		logger.Warn("Judge reply not parseable, continuing with empty triage",
			zap.String("ticket_id", ticket.TicketID),
		)
		triage = models.TriageResult{TicketID: ticket.TicketID}
	}

	trace.Steps = append(trace.Steps, models.TraceStep{
		Step:                 "2",
		Agent:                "judge",
		DurationMS:           resp.Duration.Milliseconds(),
		PriorityScore:        triage.PriorityScore,
		PriorityLabel:        triage.PriorityLabel,
		SurgeDetected:        triage.SurgeDetected,
		DeploymentCorrelated: triage.DeploymentCorrelation != nil,
	})

	logger.Info("Judge verdict",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("priority", triage.PriorityLabel),
		zap.Float64("score", triage.PriorityScore),
		zap.Bool("surge", triage.SurgeDetected),
	)

	if triage.SurgeDetected && triage.DeploymentCorrelation != nil {
		o.fireGhostAlert(ticket, &triage)
	}

	o.updateTicket(ctx, ticket.TicketID, map[string]any{
		"priority_score":         triage.PriorityScore,
		"priority_label":         triage.PriorityLabel,
		"triage_reasoning":       triage.TriageReasoning,
		"sla_breach_risk":        triage.SLABreachRisk,
		"deployment_correlation": triage.DeploymentCorrelation,
		"status":                 models.StatusTriaged,
	})

	return &triage, nil
}

func (o *Orchestrator) executeDecision(ctx context.Context, ticket *models.Ticket, resolution *models.FinalResolution, triage *models.TriageResult, trace *models.PipelineTrace) error {
	decision := o.opts.Policy.Route(resolution.Confidence)
	resolutionText := resolution.ResolutionDraft

	o.publish(trace, "decide", string(decision))
	logger.Info("Executing decision",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("decision", string(decision)),
		zap.Float64("confidence", resolution.Confidence),
	)

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.SideEffectTimeout)
	defer cancel()

	switch decision {
	case models.DecisionAutoResolve:
		o.dispatch(sctx, "crm_update", map[string]any{
			"ticket_id":        ticket.TicketID,
			"resolution_text":  resolutionText,
			"resolved_by":      "agent",
			"is_auto_resolved": true,
			"confidence":       resolution.Confidence,
		})
		o.notify(sctx, fmt.Sprintf(
			"*Auto-resolved:* `%s`\n*Confidence:* %.0f%% | *Quality:* %.0f%%\n*Attempts:* %d\n*Response sent to customer.*",
			ticket.TicketID, resolution.Confidence*100, resolution.QualityScore*100, resolution.Attempts,
		), "info")
		o.updateTicket(ctx, ticket.TicketID, map[string]any{
			"status":           models.StatusResolved,
			"resolution_final": resolutionText,
			"resolved_by":      "agent",
		})

	case models.DecisionDraftForApproval:
		o.notify(sctx, fmt.Sprintf(
			"*Needs approval:* `%s`\n*Confidence:* %.0f%% | *Quality:* %.0f%%\n*Draft response:*\n```%s```\nReact to approve or reject.",
			ticket.TicketID, resolution.Confidence*100, resolution.QualityScore*100, truncate(resolutionText, 500),
		), "draft")
		o.updateTicket(ctx, ticket.TicketID, map[string]any{
			"status": models.StatusPendingApproval,
		})

	default:
		priority := triage.PriorityLabel
		if priority == "" {
			priority = "UNKNOWN"
		}
		o.notify(sctx, fmt.Sprintf(
			"*Escalation required:* `%s`\n*Priority:* %s\n*Reason:* Low confidence (%.0f%%). Human expertise needed.\n*Draft available as a starting point.*",
			ticket.TicketID, priority, resolution.Confidence*100,
		), "critical")
		o.updateTicket(ctx, ticket.TicketID, map[string]any{
			"status":           models.StatusEscalated,
			"resolution_draft": resolutionText,
		})
	}

	trace.Steps = append(trace.Steps, models.TraceStep{
		Step:         "5",
		Agent:        "pipeline",
		Decision:     decision,
		Confidence:   resolution.Confidence,
		QualityScore: resolution.QualityScore,
	})
	trace.FinalDecision = decision
	trace.FinalResolution = resolutionText
	return nil
}

// fireGhostAlert dispatches the pre-emptive surge alert. It never blocks the
// run and never fails it.
func (o *Orchestrator) fireGhostAlert(ticket *models.Ticket, triage *models.TriageResult) {
	var top models.Deployment
	if len(triage.DeploymentCorrelation.RelatedDeployments) > 0 {
		top = triage.DeploymentCorrelation.RelatedDeployments[0]
	}

	service := top.Service
	if service == "" {
		service = "unknown"
	}

	payload := map[string]any{
		"category":           ticket.Category,
		"window_minutes":     60,
		"deployment_id":      orUnknown(top.DeploymentID),
		"service":            service,
		"deployed_at":        orUnknown(top.DeployedAt),
		"rollback_available": top.RollbackAvailable,
		"draft_template": fmt.Sprintf(
			"Hi, we're aware of an issue with %s and our team is actively working on a fix. We'll update you within the hour.",
			orUnknown(ticket.Category),
		),
	}
	if triage.SurgeData != nil {
		payload["current_hourly_rate"] = triage.SurgeData.CurrentHourlyRate
		payload["sigma_level"] = triage.SurgeData.SigmaLevel
		payload["current_count"] = triage.SurgeData.CurrentCountInWindow
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.SideEffectTimeout)
		defer cancel()

		if o.opts.Gate != nil {
			fire, err := o.opts.Gate.MarkGhostAlert(ctx, service, o.opts.GhostAlertDedup)
			if err != nil {
				logger.Warn("Ghost alert dedup check failed, firing anyway", zap.Error(err))
			} else if !fire {
				logger.Info("Ghost alert suppressed by dedup", zap.String("service", service))
				return
			}
		}

		logger.Info("Firing ghost ticket alert",
			zap.String("ticket_id", ticket.TicketID),
			zap.String("service", service),
		)
		o.dispatch(ctx, "ghost_alert", payload)
		metrics.GhostAlerts.Inc()
	}()
}

// updateTicket is best-effort: persistence problems are logged, never
// surfaced to the run.
func (o *Orchestrator) updateTicket(ctx context.Context, ticketID string, fields map[string]any) {
	if err := o.store.UpdateTicket(ctx, ticketID, fields); err != nil {
		logger.Warn("Ticket update failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, action string, payload map[string]any) {
	if err := o.actions.TriggerAction(ctx, action, payload); err != nil {
		metrics.SideEffectFailures.WithLabelValues(action).Inc()
		logger.Warn("Workflow trigger failed", zap.String("action", action), zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, text, severity string) {
	if err := o.actions.Notify(ctx, text, severity); err != nil {
		metrics.SideEffectFailures.WithLabelValues("notify").Inc()
		logger.Warn("Notification failed", zap.Error(err))
	}
}

func (o *Orchestrator) publish(trace *models.PipelineTrace, stage, detail string) {
	if o.opts.Sink == nil {
		return
	}
	o.opts.Sink.Publish(Event{
		TicketID:  trace.TicketID,
		TraceID:   trace.TraceID,
		Stage:     stage,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
