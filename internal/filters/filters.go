// Package filters implements the Filter Registry (C3): named,
// ordered, scope-matched hooks with timeout/error policy, published
// via an atomic snapshot-and-swap so Execute never blocks on writers —
// the same pattern the teacher uses for pkg/websocket's HubRef.
package filters

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type OnError string

const (
	OnErrorNoop  OnError = "noop"
	OnErrorBlock OnError = "block"
)

// Outcome is what a filter's Run returns.
type Outcome struct {
	Allowed      bool
	Code         string
	Reason       string
	StateChanged bool
}

// RunFunc must return synchronously; if it needs to suspend it should
// do so via a context-bound channel read so ctx's deadline (realizing
// Policy.Timeout) can abort it.
type RunFunc func(ctx context.Context, fctx any) (Outcome, error)

type Policy struct {
	Enabled bool
	Timeout time.Duration
	OnError OnError
}

type Filter struct {
	ID     string
	Scope  string
	Run    RunFunc
	Policy Policy
}

type Diagnostic struct {
	FilterID string
	Status   string // "ok" | "disabled" | "timeout" | "error" | "blocked"
	Detail   string
}

type Result struct {
	Allowed      bool
	BlockedBy    string
	Code         string
	Reason       string
	StateChanged bool
	Diagnostics  []Diagnostic
}

// Registry holds the live filter list behind an atomic pointer so
// Execute never takes a lock against concurrent Register/Unregister.
type Registry struct {
	filters atomic.Pointer[[]*Filter]
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := []*Filter{}
	r.filters.Store(&empty)
	return r
}

// Register appends (or replaces, if id already present) a filter and
// publishes the new list atomically.
func (r *Registry) Register(f *Filter) {
	prev := *r.filters.Load()
	next := make([]*Filter, 0, len(prev)+1)
	replaced := false
	for _, existing := range prev {
		if existing.ID == f.ID {
			next = append(next, f)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, f)
	}
	r.filters.Store(&next)
}

func (r *Registry) Unregister(id string) {
	prev := *r.filters.Load()
	next := make([]*Filter, 0, len(prev))
	for _, existing := range prev {
		if existing.ID != id {
			next = append(next, existing)
		}
	}
	r.filters.Store(&next)
}

// Execute walks filters matching scope in registration order per §4.3.
func (r *Registry) Execute(ctx context.Context, scope string, fctx any) Result {
	result := Result{Allowed: true}
	for _, f := range *r.filters.Load() {
		if f.Scope != scope {
			continue
		}
		if !f.Policy.Enabled {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{FilterID: f.ID, Status: "disabled"})
			continue
		}

		runCtx := ctx
		var cancel context.CancelFunc
		if f.Policy.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, f.Policy.Timeout)
		}
		outcome, err := runFilterSafely(runCtx, f, fctx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			status := "error"
			if runCtx.Err() == context.DeadlineExceeded {
				status = "timeout"
			}
			result.Diagnostics = append(result.Diagnostics, Diagnostic{FilterID: f.ID, Status: status, Detail: err.Error()})
			if f.Policy.OnError == OnErrorBlock {
				result.Allowed = false
				result.BlockedBy = f.ID
				result.Code = fmt.Sprintf("filter_%s_%s", f.ID, status)
				return result
			}
			continue
		}

		result.Diagnostics = append(result.Diagnostics, Diagnostic{FilterID: f.ID, Status: "ok"})
		if outcome.StateChanged {
			result.StateChanged = true
		}
		if !outcome.Allowed {
			result.Allowed = false
			result.BlockedBy = f.ID
			result.Code = outcome.Code
			result.Reason = outcome.Reason
			return result
		}
	}
	return result
}

func runFilterSafely(ctx context.Context, f *Filter, fctx any) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("filter %s panicked: %v", f.ID, rec)
		}
	}()
	outcome, err = f.Run(ctx, fctx)
	if ctx.Err() == context.DeadlineExceeded {
		err = context.DeadlineExceeded
	}
	return outcome, err
}
