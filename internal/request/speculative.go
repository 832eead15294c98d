package request

import "golang.org/x/sync/semaphore"

// NewSpeculativeGate builds the session-wide bound on concurrently
// outstanding speculative executions, sized from
// ClusterConfig.MaxConcurrentSpeculativeExecutions. A gate of nil (pass
// max <= 0) disables the bound entirely, relying solely on each
// request's own SpeculativeExecutionPolicy to cap its fan-out.
func NewSpeculativeGate(max int64) speculativeGate {
	if max <= 0 {
		return nil
	}
	return semaphore.NewWeighted(max)
}
