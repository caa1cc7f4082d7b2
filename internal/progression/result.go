package progression

import (
	"errors"

	perr "github.com/noni/smptweaks/internal/pkg/errors"
)

// Result carries a value plus the reason it may be a fallback. Persistence
// calls never fail outright: when the store is unavailable or a query fails,
// Value holds a safe default and Reason says why.
type Result[T any] struct {
	Value  T
	Reason error
}

// OK reports whether Value came from the store.
func (r Result[T]) OK() bool { return r.Reason == nil }

// Degraded reports whether the manager was running without a store.
func (r Result[T]) Degraded() bool { return errors.Is(r.Reason, perr.ErrDegraded) }

func ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func fallback[T any](v T, reason error) Result[T] { return Result[T]{Value: v, Reason: reason} }
