package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	"github.com/noni/smptweaks/internal/observability"
)

type instrumentedBackend struct {
	inner   Backend
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Instrument wraps a backend with per-operation metrics and spans.
func Instrument(inner Backend, metrics *observability.Metrics) Backend {
	if inner == nil {
		return nil
	}
	return &instrumentedBackend{
		inner:   inner,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

func (b *instrumentedBackend) start(ctx context.Context, op string, playerID uuid.UUID) (context.Context, trace.Span, time.Time) {
	attrs := []attribute.KeyValue{
		attribute.String("store.backend", string(b.inner.Kind())),
		attribute.String("store.op", op),
	}
	if playerID != uuid.Nil {
		attrs = append(attrs, attribute.String("player.id", playerID.String()))
	}
	ctx, span := b.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (b *instrumentedBackend) finish(span trace.Span, op string, err error, began time.Time) {
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	b.metrics.ObserveStoreOperation(string(b.inner.Kind()), op, status, time.Since(began))
}

func (b *instrumentedBackend) Kind() Kind { return b.inner.Kind() }

func (b *instrumentedBackend) IsReachable(ctx context.Context) bool {
	ctx, span, began := b.start(ctx, "is_reachable", uuid.Nil)
	ok := b.inner.IsReachable(ctx)
	span.SetAttributes(attribute.Bool("store.reachable", ok))
	b.finish(span, "is_reachable", nil, began)
	return ok
}

func (b *instrumentedBackend) HasSchema(ctx context.Context) bool {
	ctx, span, began := b.start(ctx, "has_schema", uuid.Nil)
	ok := b.inner.HasSchema(ctx)
	span.SetAttributes(attribute.Bool("store.schema_present", ok))
	b.finish(span, "has_schema", nil, began)
	return ok
}

func (b *instrumentedBackend) EnsureSchema(ctx context.Context) error {
	ctx, span, began := b.start(ctx, "ensure_schema", uuid.Nil)
	err := b.inner.EnsureSchema(ctx)
	b.finish(span, "ensure_schema", err, began)
	return err
}

func (b *instrumentedBackend) Fetch(ctx context.Context, playerID uuid.UUID) (*domain.Record, error) {
	ctx, span, began := b.start(ctx, "fetch", playerID)
	rec, err := b.inner.Fetch(ctx, playerID)
	span.SetAttributes(attribute.Bool("store.found", rec != nil))
	b.finish(span, "fetch", err, began)
	return rec, err
}

func (b *instrumentedBackend) Exists(ctx context.Context, playerID uuid.UUID) (bool, error) {
	ctx, span, began := b.start(ctx, "exists", playerID)
	ok, err := b.inner.Exists(ctx, playerID)
	b.finish(span, "exists", err, began)
	return ok, err
}

func (b *instrumentedBackend) Upsert(ctx context.Context, rec *domain.Record) error {
	id := uuid.Nil
	if rec != nil {
		id = rec.PlayerID
	}
	ctx, span, began := b.start(ctx, "upsert", id)
	err := b.inner.Upsert(ctx, rec)
	b.finish(span, "upsert", err, began)
	return err
}

func (b *instrumentedBackend) ReadTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField) (time.Time, error) {
	ctx, span, began := b.start(ctx, "read_timestamp", playerID)
	span.SetAttributes(attribute.String("store.field", field.Column()))
	t, err := b.inner.ReadTimestamp(ctx, playerID, field)
	b.finish(span, "read_timestamp", err, began)
	return t, err
}

func (b *instrumentedBackend) WriteTimestamp(ctx context.Context, playerID uuid.UUID, field domain.StampField, at time.Time) error {
	ctx, span, began := b.start(ctx, "write_timestamp", playerID)
	span.SetAttributes(attribute.String("store.field", field.Column()))
	err := b.inner.WriteTimestamp(ctx, playerID, field, at)
	b.finish(span, "write_timestamp", err, began)
	return err
}

func (b *instrumentedBackend) Close() error { return b.inner.Close() }
