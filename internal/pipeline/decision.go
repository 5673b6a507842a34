package pipeline

import "github.com/supportiq/backend/internal/storage/models"

// Policy routes a finished resolution by its solver confidence alone. The
// solver's own routing suggestion is recorded in the trace but never trusted
// for the actual decision.
type Policy struct {
	AutoResolveThreshold float64
	EscalateThreshold    float64
}

func DefaultPolicy() Policy {
	return Policy{
		AutoResolveThreshold: 0.90,
		EscalateThreshold:    0.65,
	}
}

// Route maps confidence to a decision. Both thresholds are inclusive lower
// bounds: confidence equal to AutoResolveThreshold auto-resolves, equal to
// EscalateThreshold drafts for approval.
func (p Policy) Route(confidence float64) models.Decision {
	switch {
	case confidence >= p.AutoResolveThreshold:
		return models.DecisionAutoResolve
	case confidence >= p.EscalateThreshold:
		return models.DecisionDraftForApproval
	default:
		return models.DecisionEscalate
	}
}
