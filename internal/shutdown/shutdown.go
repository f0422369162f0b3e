// Package shutdown runs teardown hooks in registration order with a
// deadline, so cmd/debugger-mcp can stop the registry, flush logs and exit
// cleanly on SIGINT/SIGTERM (spec.md §6 "Process shutdown").
package shutdown

import (
	"context"
	"sync"
	"time"
)

// Hook is one teardown step. It should respect ctx's deadline.
type Hook func(ctx context.Context)

// Runner accumulates hooks and runs them, in registration order, when
// triggered.
type Runner struct {
	mu    sync.Mutex
	hooks []Hook
}

// New constructs an empty Runner.
func New() *Runner { return &Runner{} }

// Register appends a hook to run on shutdown.
func (r *Runner) Register(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Run executes every registered hook in order, each within the shared
// deadline. The deadline is checked between hooks: a hook that is running
// when it expires is not interrupted, and no later hook is started.
func (r *Runner) Run(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	r.mu.Lock()
	hooks := append([]Hook(nil), r.hooks...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}
