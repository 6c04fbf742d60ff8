package deadletter_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"parley/internal/classify"
	"parley/internal/deadletter"
	"parley/internal/testsupport"
)

func newEntry(owner string, idx int) *deadletter.Entry {
	return &deadletter.Entry{
		OwnerID:              owner,
		AudioKey:             fmt.Sprintf("%s/audio/blob-%d.webm", owner, idx),
		AudioFileName:        fmt.Sprintf("note-%d.webm", idx),
		FileSizeBytes:        1024,
		AudioDurationSeconds: 30,
		ErrorKind:            classify.KindAPIError,
		ErrorMessage:         "http 503: upstream sad",
		RecordedAt:           time.Now().Add(-time.Duration(idx) * time.Minute).UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := newEntry("owner-1", 1)
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected ID assigned")
	}
	if entry.FailedAt.IsZero() {
		t.Fatal("expected FailedAt stamped")
	}

	fetched, err := store.Get(ctx, "owner-1", entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.AudioKey != entry.AudioKey || fetched.ErrorKind != classify.KindAPIError {
		t.Fatalf("unexpected entry: %+v", fetched)
	}
	if fetched.RetryCount != 0 {
		t.Fatalf("expected retry count 0, got %d", fetched.RetryCount)
	}
	if fetched.LastRetryAt != nil {
		t.Fatal("expected no last retry timestamp")
	}
}

func TestCreateClampsRecordedAt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := newEntry("owner-1", 1)
	entry.RecordedAt = time.Now().Add(48 * time.Hour).UTC()
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	fetched, err := store.Get(ctx, "owner-1", entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.RecordedAt.After(fetched.FailedAt) {
		t.Fatalf("recorded_at %v exceeds failed_at %v", fetched.RecordedAt, fetched.FailedAt)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := newEntry("owner-1", 1)
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.Get(ctx, "owner-2", entry.ID); !errors.Is(err, deadletter.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	// A foreign delete attempt must not mutate anything.
	if _, err := store.Delete(ctx, "owner-2", entry.ID); !errors.Is(err, deadletter.ErrPermissionDenied) {
		t.Fatalf("expected permission denied on delete, got %v", err)
	}
	if _, err := store.Get(ctx, "owner-1", entry.ID); err != nil {
		t.Fatalf("entry should survive foreign delete: %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Get(context.Background(), "owner-1", "no-such-id"); !errors.Is(err, deadletter.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByOwnerOrdersByRecordedAtDesc(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	// idx 3 is oldest, idx 1 most recent.
	for _, idx := range []int{2, 3, 1} {
		if err := store.Create(ctx, newEntry("owner-1", idx)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.Create(ctx, newEntry("owner-2", 9)); err != nil {
		t.Fatalf("Create foreign: %v", err)
	}

	entries, err := store.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].RecordedAt.After(entries[i-1].RecordedAt) {
			t.Fatalf("entries not in recorded_at descending order: %v then %v",
				entries[i-1].RecordedAt, entries[i].RecordedAt)
		}
	}
}

func TestUpdateOnRetryFailureIncrementsMonotonically(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := newEntry("owner-1", 1)
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const attempts = 4
	for i := 0; i < attempts; i++ {
		current, err := store.Get(ctx, "owner-1", entry.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		err = store.UpdateOnRetryFailure(ctx, entry.ID, classify.KindTimeout,
			fmt.Sprintf("attempt %d timed out", i+1), time.Now().UTC(), current.Version)
		if err != nil {
			t.Fatalf("UpdateOnRetryFailure %d: %v", i, err)
		}
	}

	updated, err := store.Get(ctx, "owner-1", entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.RetryCount != attempts {
		t.Fatalf("expected retry count %d, got %d", attempts, updated.RetryCount)
	}
	if updated.ErrorKind != classify.KindTimeout {
		t.Fatalf("expected overwritten kind, got %s", updated.ErrorKind)
	}
	if updated.LastRetryAt == nil {
		t.Fatal("expected last retry timestamp set")
	}
	if updated.Version != attempts {
		t.Fatalf("expected version %d, got %d", attempts, updated.Version)
	}
}

func TestUpdateOnRetryFailureRejectsStaleVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := newEntry("owner-1", 1)
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateOnRetryFailure(ctx, entry.ID, classify.KindTimeout, "first", time.Now().UTC(), 0); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// Second writer still holds version 0.
	err := store.UpdateOnRetryFailure(ctx, entry.ID, classify.KindNetworkError, "second", time.Now().UTC(), 0)
	if !errors.Is(err, deadletter.ErrStaleEntry) {
		t.Fatalf("expected stale entry error, got %v", err)
	}

	updated, err := store.Get(ctx, "owner-1", entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.RetryCount != 1 {
		t.Fatalf("stale writer must not increment: got %d", updated.RetryCount)
	}
}

func TestUpdateOnRetryFailureMissingEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	err := store.UpdateOnRetryFailure(context.Background(), "ghost", classify.KindTimeout, "x", time.Now(), 0)
	if !errors.Is(err, deadletter.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := newEntry("owner-1", 1)
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted, err := store.Delete(ctx, "owner-1", entry.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected first delete to remove the entry")
	}

	deleted, err = store.Delete(ctx, "owner-1", entry.ID)
	if err != nil {
		t.Fatalf("second Delete must succeed: %v", err)
	}
	if deleted {
		t.Fatal("second delete should report nothing removed")
	}
}

func TestDeleteAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, newEntry("owner-1", i)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.Create(ctx, newEntry("owner-2", 7)); err != nil {
		t.Fatalf("Create foreign: %v", err)
	}

	count, err := store.DeleteAll(ctx, "owner-1")
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 deleted, got %d", count)
	}

	remaining, err := store.ListByOwner(ctx, "owner-2")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("other owner's entries must survive, got %d", len(remaining))
	}
}

func TestListOlderThan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()

	old := newEntry("owner-1", 1)
	old.FailedAt = now.Add(-8 * 24 * time.Hour)
	old.RecordedAt = old.FailedAt
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("Create old: %v", err)
	}

	fresh := newEntry("owner-2", 2)
	fresh.FailedAt = now.Add(-time.Hour)
	fresh.RecordedAt = fresh.FailedAt
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("Create fresh: %v", err)
	}

	expired, err := store.ListOlderThan(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ListOlderThan: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expected only the old entry, got %d entries", len(expired))
	}
}

func TestOwnerDefaultModel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	model, err := store.OwnerDefaultModel(ctx, "owner-1")
	if err != nil {
		t.Fatalf("OwnerDefaultModel: %v", err)
	}
	if model != "" {
		t.Fatalf("expected empty default, got %q", model)
	}

	if err := store.SetOwnerDefaultModel(ctx, "owner-1", "gemini-2.5-pro"); err != nil {
		t.Fatalf("SetOwnerDefaultModel: %v", err)
	}
	if err := store.SetOwnerDefaultModel(ctx, "owner-1", "gemini-2.5-flash"); err != nil {
		t.Fatalf("SetOwnerDefaultModel upsert: %v", err)
	}

	model, err = store.OwnerDefaultModel(ctx, "owner-1")
	if err != nil {
		t.Fatalf("OwnerDefaultModel: %v", err)
	}
	if model != "gemini-2.5-flash" {
		t.Fatalf("expected latest model, got %q", model)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	kinds := []classify.Kind{classify.KindAPIError, classify.KindAPIError, classify.KindTimeout}
	for i, kind := range kinds {
		entry := newEntry("owner-1", i)
		entry.ErrorKind = kind
		if err := store.Create(ctx, entry); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected total 3, got %d", stats.Total)
	}
	if stats.ByKind[classify.KindAPIError] != 2 || stats.ByKind[classify.KindTimeout] != 1 {
		t.Fatalf("unexpected kind counts: %v", stats.ByKind)
	}
}
