package task

import (
	"strings"
	stdsync "sync"
	"time"
)

// control is one task's cooperative-cancellation entry.
type control struct {
	cancelled bool
	createdAt time.Time
}

// Controller tracks cancellation flags for queued and running tasks. All
// methods tolerate ids they have never seen: Ensure registers one
// idempotently, Cancel registers and flags it, and Cleanup forgets it once
// the job finishes. Safe for concurrent use.
type Controller struct {
	mu    stdsync.Mutex
	tasks map[string]*control
}

// NewController returns an empty controller.
func NewController() *Controller {
	return &Controller{tasks: make(map[string]*control)}
}

// Ensure registers the task id. An existing entry is kept intact, so a
// cancel flag raised before the job started survives. Blank ids are
// ignored.
func (c *Controller) Ensure(taskID string) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tasks[tid]; !ok {
		c.tasks[tid] = &control{createdAt: time.Now()}
	}
}

// Cancel flags the task for cancellation, registering it first so a cancel
// that races the job's startup still sticks.
func (c *Controller) Cancel(taskID string) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctl, ok := c.tasks[tid]
	if !ok {
		ctl = &control{createdAt: time.Now()}
		c.tasks[tid] = ctl
	}

	ctl.cancelled = true
}

// IsCancelled reports whether the task has been flagged. Unknown and blank
// ids are not cancelled.
func (c *Controller) IsCancelled(taskID string) bool {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctl, ok := c.tasks[tid]

	return ok && ctl.cancelled
}

// Cleanup forgets the task's entry.
func (c *Controller) Cleanup(taskID string) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tasks, tid)
}
