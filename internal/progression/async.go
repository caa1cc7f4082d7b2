package progression

import (
	"context"
	"errors"

	"github.com/google/uuid"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
)

// LoadAsync runs Load on the worker pool. The channel yields exactly one
// result. Work queued before Shutdown still runs.
func (m *Manager) LoadAsync(ctx context.Context, playerID uuid.UUID) <-chan Result[*domain.Record] {
	return submit(ctx, m, "load_async", (*domain.Record)(nil), func(ctx context.Context) Result[*domain.Record] {
		return m.load(ctx, playerID)
	})
}

// SaveAsync stores a snapshot of rec on the worker pool. Later changes to rec
// do not affect what is written.
func (m *Manager) SaveAsync(ctx context.Context, rec *domain.Record) <-chan Result[struct{}] {
	if rec == nil {
		out := make(chan Result[struct{}], 1)
		out <- fallback(struct{}{}, perr.Op("save", "", perr.ErrStore, errors.New("nil record")))
		return out
	}
	snapshot := rec.Clone()
	return submit(ctx, m, "save_async", struct{}{}, func(ctx context.Context) Result[struct{}] {
		return m.upsert(ctx, snapshot)
	})
}

func submit[T any](ctx context.Context, m *Manager, op string, zero T, fn func(context.Context) Result[T]) <-chan Result[T] {
	out := make(chan Result[T], 1)
	task := func(context.Context) {
		res := fallback(zero, perr.Op(op, "", perr.ErrStore, errors.New("task panicked")))
		defer func() { out <- res }()
		res = fn(ctx)
	}
	if err := m.workers.Submit(ctx, task); err != nil {
		if m.closed.Load() {
			err = ErrShutdown
		}
		out <- fallback(zero, err)
	}
	return out
}
