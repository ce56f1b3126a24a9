package download

import "github.com/reelcache/reelcache/pkg/models"

// transitions is the full lifecycle graph. Edges out of terminal states only
// exist through re-admission (failed/cancelled back to pending), which goes
// through Service.Request, not a direct status write.
var transitions = map[models.DownloadStatus][]models.DownloadStatus{
	models.StatusPending: {
		models.StatusDownloading, // worker claims
		models.StatusPaused,      // Pause before the worker starts
		models.StatusCancelled,   // Cancel
	},
	models.StatusDownloading: {
		models.StatusDownloading, // progress writes
		models.StatusPending,     // transient error parks for retry
		models.StatusPaused,      // Pause
		models.StatusCompleted,   // worker success
		models.StatusFailed,      // retries exhausted
		models.StatusCancelled,   // Cancel
	},
	models.StatusPaused: {
		models.StatusDownloading, // Resume
		models.StatusCancelled,   // Cancel
	},
	models.StatusFailed: {
		models.StatusPending,   // re-admission
		models.StatusCancelled, // Cancel
	},
	models.StatusCancelled: {
		models.StatusPending, // re-admission
	},
	models.StatusCompleted: {},
}

// CanTransition reports whether the lifecycle graph has an edge from one
// status to another.
func CanTransition(from, to models.DownloadStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
