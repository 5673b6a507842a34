package models

import "time"

// Ticket is the immutable intake record a pipeline run operates on.
type Ticket struct {
	TicketID    string    `json:"ticket_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CustomerID  string    `json:"customer_id"`
	Category    string    `json:"category"`
	Channel     string    `json:"channel,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ticket lifecycle statuses, written back as the pipeline progresses.
const (
	StatusOpen            = "open"
	StatusEnriched        = "enriched"
	StatusTriaged         = "triaged"
	StatusResolvedDraft   = "resolved_draft"
	StatusResolved        = "resolved"
	StatusPendingApproval = "pending_approval"
	StatusEscalated       = "escalated"
)

type SimilarTicket struct {
	TicketID          string  `json:"ticket_id"`
	Title             string  `json:"title"`
	Category          string  `json:"category"`
	ResolutionSummary string  `json:"resolution_summary"`
	SimilarityScore   float64 `json:"similarity_score"`
}

type Enrichment struct {
	SimilarTickets    []SimilarTicket `json:"similar_tickets"`
	CustomerTier      string          `json:"customer_tier"`
	SLAHours          int             `json:"sla_hours"`
	ContractValue     float64         `json:"contract_value"`
	SimilarCount      int             `json:"similar_count"`
	HasKnownSolution  bool            `json:"has_known_solution"`
	SuggestedCategory string          `json:"suggested_category"`
}

// EnrichmentResult is the watcher's reply for one run.
type EnrichmentResult struct {
	TicketID   string     `json:"ticket_id"`
	Enrichment Enrichment `json:"enrichment"`
}

type SurgeData struct {
	CurrentHourlyRate    float64 `json:"current_hourly_rate"`
	BaselineHourlyRate   float64 `json:"baseline_hourly_rate"`
	SigmaLevel           float64 `json:"sigma_level"`
	CurrentCountInWindow int     `json:"current_count_in_window"`
}

type Deployment struct {
	DeploymentID      string `json:"deployment_id"`
	Service           string `json:"service"`
	DeployedAt        string `json:"deployed_at"`
	RollbackAvailable bool   `json:"rollback_available"`
}

type DeploymentCorrelation struct {
	RelatedDeployments []Deployment `json:"related_deployments"`
}

// TriageResult is the judge's reply for one run. DeploymentCorrelation is
// nil unless a surge was correlated with a recent deployment.
type TriageResult struct {
	TicketID              string                 `json:"ticket_id"`
	PriorityScore         float64                `json:"priority_score"`
	PriorityLabel         string                 `json:"priority_label"`
	RoutingQueue          string                 `json:"routing_queue"`
	SurgeDetected         bool                   `json:"surge_detected"`
	SurgeData             *SurgeData             `json:"surge_data"`
	DeploymentCorrelation *DeploymentCorrelation `json:"deployment_correlation"`
	TriageReasoning       string                 `json:"triage_reasoning"`
	SLABreachRisk         float64                `json:"sla_breach_risk"`
}

// ResolutionAttempt is one solver draft within the retry loop.
type ResolutionAttempt struct {
	TicketID                 string   `json:"ticket_id"`
	ResolutionDraft          string   `json:"resolution_draft"`
	Confidence               float64  `json:"confidence"`
	Decision                 string   `json:"decision"`
	KBArticlesUsed           []string `json:"kb_articles_used"`
	ResolutionReasoning      string   `json:"resolution_reasoning"`
	PreviousAttemptAddressed bool     `json:"previous_attempt_addressed"`
}

type EvaluationBreakdown struct {
	Accuracy             float64 `json:"accuracy"`
	Completeness         float64 `json:"completeness"`
	Tone                 float64 `json:"tone"`
	TechnicalCorrectness float64 `json:"technical_correctness"`
	LengthAppropriate    bool    `json:"length_appropriate"`
}

// ReviewResult is the critic's verdict on one ResolutionAttempt. Critique
// and ImprovementRequired are non-empty iff the draft was rejected.
type ReviewResult struct {
	TicketID            string               `json:"ticket_id"`
	QualityScore        float64              `json:"quality_score"`
	Decision            string               `json:"decision"`
	Critique            string               `json:"critique"`
	ImprovementRequired string               `json:"improvement_required"`
	EvaluationBreakdown *EvaluationBreakdown `json:"evaluation_breakdown,omitempty"`
}

const ReviewApproved = "APPROVED"

// RejectionFeedback carries a rejected draft into the next solver attempt.
type RejectionFeedback struct {
	ResolutionDraft     string  `json:"resolution_draft"`
	Confidence          float64 `json:"confidence"`
	CriticFeedback      string  `json:"critic_feedback"`
	ImprovementRequired string  `json:"improvement_required"`
}

// FinalResolution is the retry loop's terminal output. QualityWarning marks
// a forced exit: the ceiling was reached without an approval and the last
// draft is used anyway.
type FinalResolution struct {
	ResolutionAttempt
	QualityScore   float64 `json:"critic_quality_score"`
	Attempts       int     `json:"attempts"`
	QualityWarning bool    `json:"quality_warning,omitempty"`
	Final          bool    `json:"final"`
}

// Decision is the routing outcome of a run.
type Decision string

const (
	DecisionAutoResolve      Decision = "auto_resolve"
	DecisionDraftForApproval Decision = "draft_for_approval"
	DecisionEscalate         Decision = "escalate"
	DecisionError            Decision = "error"
)

// TraceStep is one stage record in a pipeline trace. The populated fields
// depend on the stage; everything else stays omitted.
type TraceStep struct {
	Step       string `json:"step"`
	Agent      string `json:"agent"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	// enrich
	SimilarCount     int    `json:"similar_count,omitempty"`
	HasKnownSolution bool   `json:"has_known_solution,omitempty"`
	CustomerTier     string `json:"customer_tier,omitempty"`

	// triage
	PriorityScore        float64 `json:"priority_score,omitempty"`
	PriorityLabel        string  `json:"priority_label,omitempty"`
	SurgeDetected        bool    `json:"surge_detected,omitempty"`
	DeploymentCorrelated bool    `json:"deployment_correlated,omitempty"`

	// solver/critic iterations
	Attempt          int     `json:"attempt,omitempty"`
	SolverConfidence float64 `json:"solver_confidence,omitempty"`
	CriticQuality    float64 `json:"critic_quality,omitempty"`
	CriticDecision   string  `json:"critic_decision,omitempty"`
	SolverDurationMS int64   `json:"solver_duration_ms,omitempty"`
	CriticDurationMS int64   `json:"critic_duration_ms,omitempty"`

	// decision
	Decision     Decision `json:"decision,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
	QualityScore float64  `json:"quality_score,omitempty"`
}

// PipelineTrace is the full audit record of one run. Steps is append-only
// and ordered by execution sequence.
type PipelineTrace struct {
	TraceID         string      `json:"trace_id"`
	TicketID        string      `json:"ticket_id"`
	PipelineStart   time.Time   `json:"pipeline_start"`
	Steps           []TraceStep `json:"steps"`
	FinalDecision   Decision    `json:"final_decision"`
	FinalResolution string      `json:"final_resolution,omitempty"`
	TotalDurationMS int64       `json:"total_duration_ms"`
	Error           string      `json:"error,omitempty"`
}
