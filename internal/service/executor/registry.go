package executor

import (
	"context"
	"sort"

	"github.com/target/cashier/internal/domain/model"
)

// HandlerFunc runs one job kind against a leased session and returns its JSON-serializable
// result.
type HandlerFunc func(ctx context.Context, run *Run) (any, error)

// Registry maps job kinds to handlers.
type Registry struct {
	handlers map[model.JobKind]HandlerFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.JobKind]HandlerFunc)}
}

// DefaultRegistry returns a registry with the built-in handler for every job kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.JobKindLogin, handleLogin)
	r.Register(model.JobKindCreatePlayer, handleCreatePlayer)
	r.Register(model.JobKindDeposit, handleFunds)
	r.Register(model.JobKindWithdrawal, handleFunds)
	r.Register(model.JobKindWithdrawalFull, handleFunds)
	r.Register(model.JobKindBalance, handleBalance)
	return r
}

// Register installs h for kind, replacing any previous handler.
func (r *Registry) Register(kind model.JobKind, h HandlerFunc) {
	r.handlers[kind] = h
}

// Lookup returns the handler for kind.
func (r *Registry) Lookup(kind model.JobKind) (HandlerFunc, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []model.JobKind {
	out := make([]model.JobKind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
