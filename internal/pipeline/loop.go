package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/a2a"
	"github.com/supportiq/backend/internal/metrics"
	"github.com/supportiq/backend/internal/storage/models"
	"github.com/supportiq/backend/pkg/logger"
)

// runSolverCriticLoop alternates solver drafts with critic reviews until the
// critic approves or the attempt ceiling is reached. A rejected draft is
// carried into the next solver prompt verbatim, with the critique attached.
// Exhausting the ceiling keeps the last draft and flags it with a quality
// warning.
func (o *Orchestrator) runSolverCriticLoop(ctx context.Context, ticket *models.Ticket, enrichment *models.EnrichmentResult, triage *models.TriageResult, trace *models.PipelineTrace) (*models.FinalResolution, error) {
	o.publish(trace, "resolve", "")
	logger.Info("Solver+Critic: generating and validating resolution",
		zap.String("ticket_id", ticket.TicketID),
	)

	var (
		feedback   *models.RejectionFeedback
		resolution models.ResolutionAttempt
		review     models.ReviewResult
	)

	for attempt := 1; attempt <= o.opts.MaxSolverAttempts; attempt++ {
		logger.Info("Solver attempt",
			zap.String("ticket_id", ticket.TicketID),
			zap.Int("attempt", attempt),
			zap.Int("max", o.opts.MaxSolverAttempts),
		)

		solverResp, err := o.agents.Send(ctx, a2a.ProviderSolver, solverMessage(ticket, enrichment, triage, feedback), a2a.SendOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to run solver on attempt %d: %w", attempt, err)
		}
		metrics.StageDuration.WithLabelValues("solver").Observe(solverResp.Duration.Seconds())

		resolution = models.ResolutionAttempt{}
		if !solverResp.Success || solverResp.Payload.Decode(&resolution) != nil {
			logger.Warn("Solver reply not parseable, treating as zero-confidence draft",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int("attempt", attempt),
			)
			resolution = models.ResolutionAttempt{TicketID: ticket.TicketID, ResolutionDraft: solverResp.Text}
		}

		criticResp, err := o.agents.Send(ctx, a2a.ProviderCritic, criticMessage(ticket, &resolution), a2a.SendOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to run critic on attempt %d: %w", attempt, err)
		}
		metrics.StageDuration.WithLabelValues("critic").Observe(criticResp.Duration.Seconds())

		review = models.ReviewResult{}
		if !criticResp.Success || criticResp.Payload.Decode(&review) != nil {
			logger.Warn("Critic reply not parseable, treating as rejection",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int("attempt", attempt),
			)
			review = models.ReviewResult{TicketID: ticket.TicketID, Decision: "REJECTED"}
		}

		trace.Steps = append(trace.Steps, models.TraceStep{
			Step:             fmt.Sprintf("3.%d", attempt),
			Agent:            "solver+critic",
			Attempt:          attempt,
			SolverConfidence: resolution.Confidence,
			CriticQuality:    review.QualityScore,
			CriticDecision:   review.Decision,
			SolverDurationMS: solverResp.Duration.Milliseconds(),
			CriticDurationMS: criticResp.Duration.Milliseconds(),
		})

		// A critic reply that carries a score but no verdict string is
		// judged against the quality threshold instead.
		approved := review.Decision == models.ReviewApproved ||
			(review.Decision == "" && review.QualityScore >= o.opts.CriticQualityThreshold)

		if approved {
			logger.Info("Critic approved",
				zap.String("ticket_id", ticket.TicketID),
				zap.Int("attempt", attempt),
				zap.Float64("quality", review.QualityScore),
			)
			return o.finishResolution(ctx, ticket, &models.FinalResolution{
				ResolutionAttempt: resolution,
				QualityScore:      review.QualityScore,
				Attempts:          attempt,
				Final:             true,
			}), nil
		}

		logger.Info("Critic rejected",
			zap.String("ticket_id", ticket.TicketID),
			zap.Int("attempt", attempt),
			zap.Float64("quality", review.QualityScore),
			zap.String("critique", truncate(review.Critique, 100)),
		)
		feedback = &models.RejectionFeedback{
			ResolutionDraft:     resolution.ResolutionDraft,
			Confidence:          resolution.Confidence,
			CriticFeedback:      review.Critique,
			ImprovementRequired: review.ImprovementRequired,
		}
	}

	logger.Warn("Max solver attempts reached, using last draft with quality warning",
		zap.String("ticket_id", ticket.TicketID),
	)
	metrics.QualityWarnings.Inc()

	return o.finishResolution(ctx, ticket, &models.FinalResolution{
		ResolutionAttempt: resolution,
		QualityScore:      review.QualityScore,
		Attempts:          o.opts.MaxSolverAttempts,
		QualityWarning:    true,
		Final:             true,
	}), nil
}

func (o *Orchestrator) finishResolution(ctx context.Context, ticket *models.Ticket, final *models.FinalResolution) *models.FinalResolution {
	metrics.SolverAttempts.Observe(float64(final.Attempts))
	metrics.SolverConfidence.Observe(final.Confidence)
	metrics.CriticQuality.Observe(final.QualityScore)

	o.updateTicket(ctx, ticket.TicketID, map[string]any{
		"resolution_draft":      final.ResolutionDraft,
		"resolution_confidence": final.Confidence,
		"critic_score":          final.QualityScore,
		"resolution_attempts":   final.Attempts,
		"status":                models.StatusResolvedDraft,
	})
	return final
}

func solverMessage(ticket *models.Ticket, enrichment *models.EnrichmentResult, triage *models.TriageResult, feedback *models.RejectionFeedback) string {
	message := fmt.Sprintf("Resolve this support ticket.\n\nTicket:\n%s\n\nEnrichment:\n%s\n\nTriage:\n%s",
		mustJSON(ticket), mustJSON(enrichment), mustJSON(triage))

	if feedback != nil {
		message += fmt.Sprintf(
			"\n\nPREVIOUS ATTEMPT WAS REJECTED by the Critic Agent.\nprevious_attempt: %s\n\nDO NOT repeat the same mistakes. Address every point in critic_feedback.",
			mustJSON(feedback),
		)
	}
	return message
}

func criticMessage(ticket *models.Ticket, resolution *models.ResolutionAttempt) string {
	category := ticket.Category
	if category == "" {
		category = "unknown"
	}
	return fmt.Sprintf(
		"Evaluate this resolution draft:\n\nTicket:\ntitle: %s\ndescription: %s\ncategory: %s\n\nResolution draft:\n%s",
		ticket.Title, ticket.Description, category, mustJSON(resolution),
	)
}
