package runner

import (
	"context"
	"strings"
	"sync"
)

// Call is one invocation recorded by Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return commandLine(c.Name, c.Args)
}

// Fake is an in-memory Runner for tests and dry runs. Outcomes are decided
// by Handler; a nil Handler makes every call succeed with empty output.
type Fake struct {
	Handler func(name string, args []string) (string, bool)

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) bool {
	_, ok := f.Output(ctx, name, args...)
	return ok
}

func (f *Fake) Output(_ context.Context, name string, args ...string) (string, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	f.mu.Unlock()
	if f.Handler == nil {
		return "", true
	}
	return f.Handler(name, args)
}

// Calls returns a copy of the recorded invocations in call order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded invocations of name.
func (f *Fake) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether some call's command line contains substr.
func (f *Fake) Contains(substr string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c.String(), substr) {
			return true
		}
	}
	return false
}
