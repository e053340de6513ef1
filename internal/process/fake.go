package process

import (
	"context"
	"sync"
)

// FakeExecutor records commands and returns scripted results. Useful for
// testing filter policy without spawning processes.
type FakeExecutor struct {
	mu    sync.Mutex
	calls []Command

	// Handler produces the result for a command. When nil every command
	// succeeds with empty output.
	Handler func(Command) (*Result, error)
}

// Run implements Executor.
func (f *FakeExecutor) Run(_ context.Context, c Command) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.Handler == nil {
		return &Result{State: Succeeded}, nil
	}
	return f.Handler(c)
}

// Calls returns the commands run so far.
func (f *FakeExecutor) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}
