package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"aparthotel/internal/app"
	"aparthotel/internal/domain"
)

const feedA = "https://airbnb.example/a.ics"

func TestSync_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA,
		event("u1", "2026-07-01", "2026-07-04"),
		event("u2", "2026-07-10", "2026-07-12"),
		event("old", "2026-03-01", "2026-03-05"), // past: ignored
	)

	first, err := f.engine.Sync(ctx, in.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if first.Added != 2 || first.Removed != 0 || first.FutureEventCount != 2 {
		t.Fatalf("first: %+v", first)
	}
	second, err := f.engine.Sync(ctx, in.ID)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if second.Added != 0 || second.Removed != 0 || second.Updated != 0 {
		t.Fatalf("second sync must be a no-op: %+v", second)
	}
	blocks, _ := f.store.ListBlocks(ctx, "studio", nil)
	if len(blocks) != 2 {
		t.Fatalf("blocks: %+v", blocks)
	}
	got, _ := f.ints.Get(ctx, in.ID)
	if got.LastSyncedAt == nil || !got.LastSyncedAt.Equal(now) || got.LastSyncError != nil {
		t.Fatalf("sync bookkeeping: %+v", got)
	}
}

func TestSync_RemovesAndUpdatesOnlyOwnRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.integration(t, "airbnb", "studio", feedA)
	b := f.integration(t, "booking", "studio", "https://booking.example/b.ics")
	f.source.set(feedA, event("u1", "2026-07-01", "2026-07-04"), event("u2", "2026-07-10", "2026-07-12"))
	f.source.set("https://booking.example/b.ics", event("u1", "2026-09-01", "2026-09-03"))

	for _, id := range []int64{a.ID, b.ID} {
		if _, err := f.engine.Sync(ctx, id); err != nil {
			t.Fatalf("sync %d: %v", id, err)
		}
	}
	manual, err := f.blocks.AddManualBlock(ctx, "studio", rng("2026-07-02", "2026-07-03"), "owner stay")
	if err != nil {
		t.Fatalf("manual: %v", err)
	}
	// an owned row that already ended is history, not a stale event
	past := domain.BlockedRange{ApartmentType: "studio", Range: rng("2026-05-01", "2026-05-03"), Source: "airbnb",
		ExternalID: ptr("gone"), IntegrationID: ptr(a.ID)}
	if err := f.store.InsertBlock(ctx, &past); err != nil {
		t.Fatalf("past: %v", err)
	}

	// u1 moved, u2 cancelled upstream
	f.source.set(feedA, event("u1", "2026-07-02", "2026-07-05"))
	res, err := f.engine.Sync(ctx, a.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Added != 0 || res.Updated != 1 || res.Removed != 1 {
		t.Fatalf("result: %+v", res)
	}

	owned, _ := f.store.ListOwnedBlocks(ctx, a.ID)
	if len(owned) != 2 || !owned[0].Range.Equal(past.Range) || !owned[1].Range.Equal(rng("2026-07-02", "2026-07-05")) {
		t.Fatalf("owned rows: %+v", owned)
	}
	if _, err := f.store.GetBlock(ctx, manual.ID); err != nil {
		t.Fatalf("manual block touched: %v", err)
	}
	if other, _ := f.store.ListOwnedBlocks(ctx, b.ID); len(other) != 1 {
		t.Fatalf("other integration's rows touched: %+v", other)
	}
}

func TestSync_EmptyFeedClearsFutureRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA, event("u1", "2026-07-01", "2026-07-04"))
	if _, err := f.engine.Sync(ctx, in.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}
	f.source.set(feedA)
	res, err := f.engine.Sync(ctx, in.ID)
	if err != nil || res.Removed != 1 {
		t.Fatalf("empty feed: %+v %v", res, err)
	}
}

func TestSync_FetchFailureLeavesBlocksAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA, event("u1", "2026-07-01", "2026-07-04"))
	if _, err := f.engine.Sync(ctx, in.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}

	f.source.fail(feedA, &domain.FetchError{URL: feedA, StatusCode: 503, Err: fmt.Errorf("remote 503")})
	_, err := f.engine.Sync(ctx, in.ID)
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %v", err)
	}
	if owned, _ := f.store.ListOwnedBlocks(ctx, in.ID); len(owned) != 1 {
		t.Fatalf("failed fetch must not change blocks: %+v", owned)
	}
	got, _ := f.ints.Get(ctx, in.ID)
	if got.LastSyncError == nil || got.LastSyncedAt == nil {
		t.Fatalf("failure bookkeeping: %+v", got)
	}

	f.source.fail(feedA, nil)
	if _, err := f.engine.Sync(ctx, in.ID); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if got, _ := f.ints.Get(ctx, in.ID); got.LastSyncError != nil {
		t.Fatalf("success must clear the error: %+v", got)
	}
}

func TestSync_ReportsConflictsWithoutCancelling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, "studio", rng("2026-07-02", "2026-07-05"), true)
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA, event("u1", "2026-07-01", "2026-07-03"))

	res, err := f.engine.Sync(ctx, in.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].BookingID != b.ID || res.Added != 1 {
		t.Fatalf("result: %+v", res)
	}
	got, _ := f.bookings.GetBooking(ctx, b.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("booking changed: %s", got.Status)
	}
	types := f.pub.types()
	if types[len(types)-1] != domain.EventChannelConflict {
		t.Fatalf("events: %v", types)
	}
}

func TestSync_SecondRunIsSkippedWhileFirstHoldsTheLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)

	release, err := f.locker.TryLock(ctx, fmt.Sprintf("sync:integration:%d", in.ID), time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := f.engine.Sync(ctx, in.ID); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("want ErrSyncInProgress, got %v", err)
	}
	if f.source.calls != 0 {
		t.Fatalf("skipped run must not fetch")
	}
	release()
	if _, err := f.engine.Sync(ctx, in.ID); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestSync_RejectsInactiveAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)
	in.Active = false
	if _, err := f.ints.Update(ctx, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := f.engine.Sync(ctx, in.ID); !errors.Is(err, domain.ErrInactive) {
		t.Fatalf("want ErrInactive, got %v", err)
	}
	if _, err := f.engine.Sync(ctx, 12345); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSync_StaffMoveDuringFetchDropsResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avail := app.NewAvailabilityResolver(f.store)
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA, event("u1", "2026-07-10", "2026-07-13"))

	f.source.during(func() {
		moved := in
		moved.ApartmentType = "loft"
		if _, err := f.ints.Update(ctx, moved); err != nil {
			t.Errorf("move: %v", err)
		}
	})
	if _, err := f.engine.Sync(ctx, in.ID); !errors.Is(err, domain.ErrIntegrationChanged) {
		t.Fatalf("want ErrIntegrationChanged, got %v", err)
	}
	if bs, _ := f.store.ListBlocks(ctx, "studio", nil); len(bs) != 0 {
		t.Fatalf("stale feed written to the old type: %+v", bs)
	}
	got, _ := f.ints.Get(ctx, in.ID)
	if got.LastSyncError != nil {
		t.Fatalf("an edit is not a sync failure: %q", *got.LastSyncError)
	}

	res, err := f.engine.Sync(ctx, in.ID)
	if err != nil || res.Added != 1 {
		t.Fatalf("resync: %+v %v", res, err)
	}
	r := rng("2026-07-10", "2026-07-13")
	if ok, _ := avail.IsAvailable(ctx, "loft", r, 0); ok {
		t.Fatalf("loft sellable on channel-booked dates")
	}
	if ok, _ := avail.IsAvailable(ctx, "studio", r, 0); !ok {
		t.Fatalf("studio still blocked after the move")
	}
}

func TestSync_DeleteDuringFetchWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA, event("u1", "2026-07-10", "2026-07-13"))

	f.source.during(func() {
		if err := f.ints.Delete(ctx, in.ID); err != nil {
			t.Errorf("delete: %v", err)
		}
	})
	if _, err := f.engine.Sync(ctx, in.ID); !errors.Is(err, domain.ErrIntegrationChanged) {
		t.Fatalf("want ErrIntegrationChanged, got %v", err)
	}
	if bs, _ := f.store.ListBlocks(ctx, "studio", nil); len(bs) != 0 {
		t.Fatalf("orphan channel blocks: %+v", bs)
	}

	ext, owner := "u9", in.ID
	err := f.store.InsertBlock(ctx, &domain.BlockedRange{
		ApartmentType: "studio", Range: rng("2026-08-01", "2026-08-02"), Source: "airbnb", ExternalID: &ext, IntegrationID: &owner,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("block owned by a removed integration: %v", err)
	}
}

func TestSync_MovesRowsLeftOnAnotherType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.integration(t, "airbnb", "studio", feedA)
	f.source.set(feedA, event("u1", "2026-07-10", "2026-07-13"))
	if _, err := f.engine.Sync(ctx, in.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// repoint at the store level, leaving the imported row on studio
	moved := in
	moved.ApartmentType = "loft"
	if err := f.store.UpdateIntegration(ctx, moved); err != nil {
		t.Fatalf("update: %v", err)
	}

	res, err := f.engine.Sync(ctx, in.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Removed != 1 || res.Added != 1 {
		t.Fatalf("want the row moved, got %+v", res)
	}
	if bs, _ := f.store.ListBlocks(ctx, "studio", nil); len(bs) != 0 {
		t.Fatalf("studio: %+v", bs)
	}
	if bs, _ := f.store.ListBlocks(ctx, "loft", nil); len(bs) != 1 {
		t.Fatalf("loft: %+v", bs)
	}
}
