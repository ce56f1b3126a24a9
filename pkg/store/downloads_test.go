package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reelcache/reelcache/pkg/models"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	st, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func makeDownload(t *testing.T, st *GORMStore, userID string, status models.DownloadStatus, size int64) *models.DownloadRecord {
	t.Helper()

	rec := &models.DownloadRecord{
		UserID:    userID,
		ContentID: uuid.New().String(),
		Status:    status,
		Quality:   "1080p",
		ByteSize:  size,
		ExpiresAt: time.Now().AddDate(0, 0, 30),
	}
	if _, err := st.CreateDownload(context.Background(), rec); err != nil {
		t.Fatalf("CreateDownload() error = %v", err)
	}
	return rec
}

func TestDownloadCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := makeDownload(t, st, "user-1", models.StatusPending, 1000)

	got, err := st.GetDownload(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got.UserID != "user-1" || got.ByteSize != 1000 {
		t.Errorf("GetDownload() = %+v", got)
	}

	if _, err := st.GetDownload(ctx, "missing"); !errors.Is(err, models.ErrDownloadNotFound) {
		t.Errorf("GetDownload(missing) error = %v, want ErrDownloadNotFound", err)
	}

	if _, err := st.GetDownloadForUser(ctx, "other-user", rec.ID); !errors.Is(err, models.ErrDownloadNotFound) {
		t.Errorf("GetDownloadForUser(wrong user) error = %v, want ErrDownloadNotFound", err)
	}

	byPair, err := st.GetDownloadByUserContent(ctx, "user-1", rec.ContentID)
	if err != nil {
		t.Fatalf("GetDownloadByUserContent() error = %v", err)
	}
	if byPair.ID != rec.ID {
		t.Errorf("GetDownloadByUserContent() = %q, want %q", byPair.ID, rec.ID)
	}
}

func TestDownloadPairUniqueness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := makeDownload(t, st, "user-1", models.StatusPending, 1000)

	dup := &models.DownloadRecord{
		UserID:    rec.UserID,
		ContentID: rec.ContentID,
		Status:    models.StatusPending,
		Quality:   "720p",
		ByteSize:  600,
	}
	_, err := st.CreateDownload(ctx, dup)
	if err == nil {
		t.Fatal("duplicate (user, content) insert succeeded, want conflict")
	}

	var conflict *models.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate insert error = %v, want *models.ConflictError", err)
	}
	if conflict.Existing == nil || conflict.Existing.ID != rec.ID {
		t.Errorf("conflict carries record %+v, want existing %s", conflict.Existing, rec.ID)
	}
}

func TestTransitionDownload_Guard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := makeDownload(t, st, "user-1", models.StatusPending, 1000)

	ok, err := st.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusPending},
		map[string]any{"status": models.StatusDownloading})
	if err != nil || !ok {
		t.Fatalf("TransitionDownload(pending→downloading) = %v, %v", ok, err)
	}

	// Same guard again: the record is no longer pending.
	ok, err = st.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusPending},
		map[string]any{"status": models.StatusPaused})
	if err != nil {
		t.Fatalf("TransitionDownload() error = %v", err)
	}
	if ok {
		t.Error("stale guard matched, CAS is broken")
	}

	got, _ := st.GetDownload(ctx, rec.ID)
	if got.Status != models.StatusDownloading {
		t.Errorf("status = %q, want downloading untouched by stale writer", got.Status)
	}
}

func TestUpdateDownloadProgress(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := makeDownload(t, st, "user-1", models.StatusDownloading, 1000)

	ok, err := st.UpdateDownloadProgress(ctx, rec.ID, 250, 25)
	if err != nil || !ok {
		t.Fatalf("UpdateDownloadProgress() = %v, %v", ok, err)
	}

	got, _ := st.GetDownload(ctx, rec.ID)
	if got.BytesTransferred != 250 || got.Progress != 25 {
		t.Errorf("counters = %d/%f, want 250/25", got.BytesTransferred, got.Progress)
	}

	// Progress writes double as cancellation checks: once the record
	// leaves downloading, they must report false.
	_, err = st.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusDownloading},
		map[string]any{"status": models.StatusPaused})
	if err != nil {
		t.Fatal(err)
	}

	ok, err = st.UpdateDownloadProgress(ctx, rec.ID, 500, 50)
	if err != nil {
		t.Fatalf("UpdateDownloadProgress() error = %v", err)
	}
	if ok {
		t.Error("progress write succeeded on a paused record")
	}

	got, _ = st.GetDownload(ctx, rec.ID)
	if got.BytesTransferred != 250 {
		t.Errorf("paused record counters moved to %d", got.BytesTransferred)
	}
}

func TestSumCompletedBytes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	makeDownload(t, st, "user-1", models.StatusCompleted, 300)
	makeDownload(t, st, "user-1", models.StatusCompleted, 200)
	makeDownload(t, st, "user-1", models.StatusDownloading, 999) // not counted
	makeDownload(t, st, "user-2", models.StatusCompleted, 111)   // other user

	soft := makeDownload(t, st, "user-1", models.StatusCompleted, 400)
	now := time.Now()
	soft.DeletedAt = &now
	if err := st.SaveDownload(ctx, soft); err != nil {
		t.Fatal(err)
	}

	sum, err := st.SumCompletedBytes(ctx, "user-1")
	if err != nil {
		t.Fatalf("SumCompletedBytes() error = %v", err)
	}
	if sum != 500 {
		t.Errorf("sum = %d, want 500 (completed, non-deleted only)", sum)
	}

	sum, err = st.SumCompletedBytes(ctx, "nobody")
	if err != nil {
		t.Fatalf("SumCompletedBytes(empty) error = %v", err)
	}
	if sum != 0 {
		t.Errorf("sum for empty user = %d, want 0", sum)
	}
}

func TestListDownloads(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		makeDownload(t, st, "user-1", models.StatusPending, 100)
	}
	makeDownload(t, st, "user-1", models.StatusCompleted, 100)

	soft := makeDownload(t, st, "user-1", models.StatusCancelled, 100)
	now := time.Now()
	soft.DeletedAt = &now
	if err := st.SaveDownload(ctx, soft); err != nil {
		t.Fatal(err)
	}

	recs, total, err := st.ListDownloads(ctx, "user-1", "", 1, 100)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if total != 6 || len(recs) != 6 {
		t.Errorf("ListDownloads() = %d (total %d), want 6 non-deleted", len(recs), total)
	}

	recs, total, err = st.ListDownloads(ctx, "user-1", models.StatusPending, 1, 3)
	if err != nil {
		t.Fatalf("ListDownloads(pending) error = %v", err)
	}
	if total != 5 {
		t.Errorf("pending total = %d, want 5", total)
	}
	if len(recs) != 3 {
		t.Errorf("page size = %d, want 3", len(recs))
	}

	// Out-of-range pagination values are clamped, not rejected.
	recs, _, err = st.ListDownloads(ctx, "user-1", "", -5, 100000)
	if err != nil {
		t.Fatalf("ListDownloads(clamped) error = %v", err)
	}
	if len(recs) != 6 {
		t.Errorf("clamped list = %d records, want 6", len(recs))
	}
}

func TestHardDeleteDownloads(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := makeDownload(t, st, "user-1", models.StatusCompleted, 100)
	b := makeDownload(t, st, "user-1", models.StatusPending, 100)

	n, err := st.HardDeleteDownloads(ctx, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("HardDeleteDownloads() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	if n, err := st.HardDeleteDownloads(ctx, nil); err != nil || n != 0 {
		t.Errorf("HardDeleteDownloads(nil) = %d, %v, want 0, nil", n, err)
	}
}

func TestListStaleActive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	stale := makeDownload(t, st, "user-1", models.StatusPending, 100)
	fresh := makeDownload(t, st, "user-1", models.StatusPending, 100)
	done := makeDownload(t, st, "user-1", models.StatusCompleted, 100)

	old := time.Now().Add(-time.Hour)
	for _, id := range []string{stale.ID, done.ID} {
		err := st.DB().Exec(
			"UPDATE download_records SET updated_at = ? WHERE id = ?", old, id).Error
		if err != nil {
			t.Fatal(err)
		}
	}

	recs, err := st.ListStaleActive(ctx, time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ListStaleActive() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != stale.ID {
		t.Errorf("stale records = %v, want only %s", recs, stale.ID)
	}
	_ = fresh
}
