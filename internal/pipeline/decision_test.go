package pipeline

import (
	"testing"

	"github.com/supportiq/backend/internal/storage/models"
)

func TestPolicyRoute(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name       string
		confidence float64
		want       models.Decision
	}{
		{"high confidence auto-resolves", 0.95, models.DecisionAutoResolve},
		{"auto-resolve threshold is inclusive", 0.90, models.DecisionAutoResolve},
		{"mid confidence drafts", 0.80, models.DecisionDraftForApproval},
		{"escalate threshold is inclusive", 0.65, models.DecisionDraftForApproval},
		{"low confidence escalates", 0.40, models.DecisionEscalate},
		{"just under escalate threshold escalates", 0.6499, models.DecisionEscalate},
		{"zero escalates", 0, models.DecisionEscalate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Route(tt.confidence); got != tt.want {
				t.Errorf("Route(%v) = %q, want %q", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestPolicyRouteCustomThresholds(t *testing.T) {
	policy := Policy{AutoResolveThreshold: 0.80, EscalateThreshold: 0.50}

	if got := policy.Route(0.85); got != models.DecisionAutoResolve {
		t.Errorf("Route(0.85) = %q, want auto_resolve", got)
	}
	if got := policy.Route(0.50); got != models.DecisionDraftForApproval {
		t.Errorf("Route(0.50) = %q, want draft_for_approval", got)
	}
	if got := policy.Route(0.49); got != models.DecisionEscalate {
		t.Errorf("Route(0.49) = %q, want escalate", got)
	}
}
