package a2a

import "fmt"

// Provider is one of the named reasoning roles the pipeline talks to.
// The roster is closed; anything else fails before a request is issued.
type Provider string

const (
	ProviderWatcher Provider = "watcher"
	ProviderJudge   Provider = "judge"
	ProviderSolver  Provider = "solver"
	ProviderCritic  Provider = "critic"
	ProviderAnalyst Provider = "analyst"
)

// agentIDs must match the agent ids registered in Agent Builder.
var agentIDs = map[Provider]string{
	ProviderWatcher: "supportiq_watcher",
	ProviderJudge:   "supportiq_judge",
	ProviderSolver:  "supportiq_solver",
	ProviderCritic:  "supportiq_critic",
	ProviderAnalyst: "supportiq_analyst",
}

// Providers returns the roster in a stable order.
func Providers() []Provider {
	return []Provider{ProviderWatcher, ProviderJudge, ProviderSolver, ProviderCritic, ProviderAnalyst}
}

type UnknownProviderError struct {
	Provider Provider
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

type CallFailedError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("call to provider %q failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}
