package download

import (
	"testing"

	"github.com/reelcache/reelcache/pkg/models"
)

var allStatuses = []models.DownloadStatus{
	models.StatusPending,
	models.StatusDownloading,
	models.StatusPaused,
	models.StatusCompleted,
	models.StatusFailed,
	models.StatusCancelled,
}

func TestCanTransition(t *testing.T) {
	legal := map[[2]models.DownloadStatus]bool{
		{models.StatusPending, models.StatusDownloading}:     true,
		{models.StatusPending, models.StatusPaused}:          true,
		{models.StatusPending, models.StatusCancelled}:       true,
		{models.StatusDownloading, models.StatusDownloading}: true,
		{models.StatusDownloading, models.StatusPending}:     true,
		{models.StatusDownloading, models.StatusPaused}:      true,
		{models.StatusDownloading, models.StatusCompleted}:   true,
		{models.StatusDownloading, models.StatusFailed}:      true,
		{models.StatusDownloading, models.StatusCancelled}:   true,
		{models.StatusPaused, models.StatusDownloading}:      true,
		{models.StatusPaused, models.StatusCancelled}:        true,
		{models.StatusFailed, models.StatusPending}:          true,
		{models.StatusFailed, models.StatusCancelled}:        true,
		{models.StatusCancelled, models.StatusPending}:       true,
	}

	// Exhaustive closure: every pair not in the table must be rejected.
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[[2]models.DownloadStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_CompletedIsTerminal(t *testing.T) {
	for _, to := range allStatuses {
		if CanTransition(models.StatusCompleted, to) {
			t.Errorf("completed must have no outgoing edge, found one to %s", to)
		}
	}
}

// The per-event predicates on DownloadStatus must agree with the graph.
func TestStatusPredicatesMatchGraph(t *testing.T) {
	for _, s := range allStatuses {
		if s.CanPause() != CanTransition(s, models.StatusPaused) {
			t.Errorf("CanPause(%s) disagrees with the transition graph", s)
		}
		if s.CanResume() && !CanTransition(s, models.StatusDownloading) {
			t.Errorf("CanResume(%s) allows an edge the graph forbids", s)
		}
		if s.CanCancel() != CanTransition(s, models.StatusCancelled) {
			t.Errorf("CanCancel(%s) disagrees with the transition graph", s)
		}
		if s.Retryable() != CanTransition(s, models.StatusPending) && s != models.StatusDownloading {
			t.Errorf("Retryable(%s) disagrees with the transition graph", s)
		}
	}
}

func TestLocalPath(t *testing.T) {
	rec := &models.DownloadRecord{
		UserID:    "user-1",
		ContentID: "content-9",
		Quality:   "720p",
	}

	got := LocalPath("/data/downloads", rec)
	want := "/data/downloads/user-1/content-9_720p.mp4"
	if got != want {
		t.Errorf("LocalPath() = %q, want %q", got, want)
	}
}

func TestVariantKey(t *testing.T) {
	if got := VariantKey("contents/abc", "1080p"); got != "contents/abc/1080p.mp4" {
		t.Errorf("VariantKey() = %q", got)
	}
	if got := VariantKey("contents/abc/", "480p"); got != "contents/abc/480p.mp4" {
		t.Errorf("VariantKey() with trailing slash = %q", got)
	}
}
