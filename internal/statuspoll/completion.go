package statuspoll

import (
	"sync"

	"interview-insights-go/internal/types"
)

// Completion applies a job's terminal result exactly once when the direct
// response and the poller race to deliver it.
type Completion struct {
	mu   sync.Mutex
	done bool
	job  types.Job
}

// Apply records job if it is terminal and nothing was applied before.
// Only the first such call returns true.
func (c *Completion) Apply(job types.Job) bool {
	if !job.Stage.Terminal() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done, c.job = true, job
	return true
}

// Result returns the applied job, if any.
func (c *Completion) Result() (types.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job, c.done
}
