package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
)

// backendUnderTest exposes what the shared suite needs beyond Backend.
type backendUnderTest interface {
	Backend
	Pool() *Pool
}

func countRows(t *testing.T, b backendUnderTest, tableName string, id uuid.UUID) int64 {
	t.Helper()
	var n int64
	err := b.Pool().Do(context.Background(), "count", func(conn *gorm.DB) error {
		return conn.Table(tableName).Where("player_id = ?", id.String()).Count(&n).Error
	})
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func runBackendConformance(t *testing.T, b backendUnderTest, tableName string) {
	ctx := context.Background()

	t.Run("schema", func(t *testing.T) {
		if !b.IsReachable(ctx) {
			t.Fatalf("IsReachable: expected true")
		}
		if b.HasSchema(ctx) {
			t.Fatalf("HasSchema: expected false before EnsureSchema")
		}
		if err := b.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		if !b.HasSchema(ctx) {
			t.Fatalf("HasSchema: expected true after EnsureSchema")
		}
		if err := b.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema (second run): %v", err)
		}
	})

	t.Run("missing key is absent", func(t *testing.T) {
		rec, err := b.Fetch(ctx, uuid.New())
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if rec != nil {
			t.Fatalf("Fetch: expected nil record, got %+v", rec)
		}
		ok, err := b.Exists(ctx, uuid.New())
		if err != nil || ok {
			t.Fatalf("Exists: got (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("insert then update in place", func(t *testing.T) {
		id := uuid.New()
		first := &domain.Record{PlayerID: id, DisplayName: "U1", Level: 1, TotalXP: 0}
		if err := b.Upsert(ctx, first); err != nil {
			t.Fatalf("Upsert (insert): %v", err)
		}
		got, err := b.Fetch(ctx, id)
		if err != nil || got == nil {
			t.Fatalf("Fetch after insert: (%+v, %v)", got, err)
		}
		if got.Level != 1 || got.TotalXP != 0 || got.DisplayName != "U1" {
			t.Fatalf("Fetch after insert: unexpected record %+v", got)
		}
		if got.LastRewardClaimedAt != nil || got.LastSpecialDropAt != nil {
			t.Fatalf("Fetch after insert: timestamps must start null")
		}

		second := &domain.Record{PlayerID: id, DisplayName: "U1", Level: 2, TotalXP: 150}
		if err := b.Upsert(ctx, second); err != nil {
			t.Fatalf("Upsert (update): %v", err)
		}
		got, err = b.Fetch(ctx, id)
		if err != nil || got == nil {
			t.Fatalf("Fetch after update: (%+v, %v)", got, err)
		}
		if got.Level != 2 || got.TotalXP != 150 {
			t.Fatalf("Fetch after update: got level=%d xp=%d", got.Level, got.TotalXP)
		}
		if n := countRows(t, b, tableName, id); n != 1 {
			t.Fatalf("expected exactly one row, got %d", n)
		}
	})

	t.Run("round trip keeps every persisted field", func(t *testing.T) {
		rec := &domain.Record{
			PlayerID:      uuid.New(),
			DisplayName:   "Notch",
			Level:         17,
			TotalXP:       23_456,
			XPDisplayMode: domain.DisplayPercentage,
		}
		if err := b.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		got, err := b.Fetch(ctx, rec.PlayerID)
		if err != nil || got == nil {
			t.Fatalf("Fetch: (%+v, %v)", got, err)
		}
		if got.DisplayName != rec.DisplayName || got.Level != rec.Level ||
			got.TotalXP != rec.TotalXP || got.XPDisplayMode != rec.XPDisplayMode {
			t.Fatalf("round trip mismatch: saved %+v, loaded %+v", rec, got)
		}
		if got.ExistedBeforeLoad {
			t.Fatalf("backend must not set the transient flag")
		}
	})

	t.Run("upsert twice keeps one row and last values", func(t *testing.T) {
		id := uuid.New()
		for _, xp := range []int{10, 99} {
			if err := b.Upsert(ctx, &domain.Record{PlayerID: id, DisplayName: "twice", Level: 1, TotalXP: xp}); err != nil {
				t.Fatalf("Upsert(%d): %v", xp, err)
			}
		}
		if n := countRows(t, b, tableName, id); n != 1 {
			t.Fatalf("expected one row, got %d", n)
		}
		got, err := b.Fetch(ctx, id)
		if err != nil || got == nil || got.TotalXP != 99 {
			t.Fatalf("Fetch: (%+v, %v), want total_xp 99", got, err)
		}
	})

	t.Run("concurrent upserts of a new key", func(t *testing.T) {
		id := uuid.New()
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(xp int) {
				defer wg.Done()
				errs <- b.Upsert(ctx, &domain.Record{PlayerID: id, DisplayName: "race", Level: 1, TotalXP: xp})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent Upsert: %v", err)
			}
		}
		if n := countRows(t, b, tableName, id); n != 1 {
			t.Fatalf("expected one row, got %d", n)
		}
	})

	t.Run("timestamps", func(t *testing.T) {
		id := uuid.New()
		if err := b.Upsert(ctx, domain.NewRecord(id, "stamp")); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		got, err := b.ReadTimestamp(ctx, id, domain.LastRewardClaimed)
		if err != nil || !got.Equal(domain.Never) {
			t.Fatalf("ReadTimestamp (never claimed): (%v, %v)", got, err)
		}

		at := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
		if err := b.WriteTimestamp(ctx, id, domain.LastRewardClaimed, at); err != nil {
			t.Fatalf("WriteTimestamp: %v", err)
		}
		got, err = b.ReadTimestamp(ctx, id, domain.LastRewardClaimed)
		if err != nil || !got.Equal(at) {
			t.Fatalf("ReadTimestamp: got (%v, %v), want %v", got, err, at)
		}
		other, err := b.ReadTimestamp(ctx, id, domain.LastSpecialDrop)
		if err != nil || !other.Equal(domain.Never) {
			t.Fatalf("ReadTimestamp (other field): (%v, %v)", other, err)
		}

		// an upsert never touches the cooldown columns
		if err := b.Upsert(ctx, &domain.Record{PlayerID: id, DisplayName: "stamp", Level: 3, TotalXP: 300}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		rec, err := b.Fetch(ctx, id)
		if err != nil || rec == nil || rec.LastRewardClaimedAt == nil || !rec.LastRewardClaimedAt.Equal(at) {
			t.Fatalf("Fetch after upsert: (%+v, %v)", rec, err)
		}
	})

	t.Run("timestamps for a missing key", func(t *testing.T) {
		id := uuid.New()
		got, err := b.ReadTimestamp(ctx, id, domain.LastRewardClaimed)
		if !errors.Is(err, perr.ErrNotFound) || !got.Equal(domain.Never) {
			t.Fatalf("ReadTimestamp: got (%v, %v), want (Never, ErrNotFound)", got, err)
		}
		err = b.WriteTimestamp(ctx, id, domain.LastRewardClaimed, time.Now())
		if !errors.Is(err, perr.ErrNotFound) {
			t.Fatalf("WriteTimestamp: got %v, want ErrNotFound", err)
		}
		if ok, _ := b.Exists(ctx, id); ok {
			t.Fatalf("WriteTimestamp must not create a row")
		}
	})
}
