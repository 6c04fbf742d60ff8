package retention_test

import (
	"context"
	"testing"
	"time"

	"parley/internal/blobstore"
	"parley/internal/classify"
	"parley/internal/config"
	"parley/internal/deadletter"
	"parley/internal/retention"
	"parley/internal/testsupport"
)

type fixture struct {
	cfg   *config.Config
	store *deadletter.Store
	blobs *blobstore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return fixture{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
		blobs: testsupport.MustOpenBlobs(t, cfg),
	}
}

func (f fixture) sweeper(now time.Time) *retention.Sweeper {
	s := retention.New(f.cfg, f.store, f.blobs, nil, nil)
	return s.WithClock(func() time.Time { return now })
}

func (f fixture) addEntry(t *testing.T, owner string, failedAt time.Time, withBlob bool) *deadletter.Entry {
	t.Helper()
	key := blobstore.NewAudioKey(owner, "note.webm")
	if withBlob {
		if err := f.blobs.Upload(key, []byte("audio"), nil); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}
	entry := &deadletter.Entry{
		OwnerID:      owner,
		AudioKey:     key,
		ErrorKind:    classify.KindAPIError,
		ErrorMessage: "boom",
		RecordedAt:   failedAt,
		FailedAt:     failedAt,
	}
	if err := f.store.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return entry
}

func TestSweepBoundary(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	// One second past the window is swept, one day inside it is kept.
	expired := f.addEntry(t, "owner-1", now.Add(-7*24*time.Hour-time.Second), true)
	fresh := f.addEntry(t, "owner-1", now.Add(-6*24*time.Hour), true)

	summary, err := f.sweeper(now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.Examined != 1 || summary.Swept != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if _, err := f.store.Get(context.Background(), "owner-1", expired.ID); err == nil {
		t.Fatal("expired entry should be swept")
	}
	if _, err := f.store.Get(context.Background(), "owner-1", fresh.ID); err != nil {
		t.Fatalf("fresh entry should survive: %v", err)
	}

	exists, err := f.blobs.Exists(expired.AudioKey)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expired blob should be removed")
	}
	exists, err = f.blobs.Exists(fresh.AudioKey)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("fresh blob should survive")
	}
}

func TestSweepSpansOwners(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	old := now.Add(-10 * 24 * time.Hour)

	f.addEntry(t, "owner-1", old, true)
	f.addEntry(t, "owner-2", old, true)
	f.addEntry(t, "owner-3", old, true)

	summary, err := f.sweeper(now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.Swept != 3 || summary.Owners != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestSweepToleratesMissingBlob(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	// Entry whose blob is already gone still gets purged.
	entry := f.addEntry(t, "owner-1", now.Add(-9*24*time.Hour), false)

	summary, err := f.sweeper(now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.Swept != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := f.store.Get(context.Background(), "owner-1", entry.ID); err == nil {
		t.Fatal("entry should be swept despite missing blob")
	}
}

func TestSweepEmptyStore(t *testing.T) {
	f := newFixture(t)
	summary, err := f.sweeper(time.Now().UTC()).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.Examined != 0 || summary.Swept != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
