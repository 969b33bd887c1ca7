// Package merge holds the last-write-wins policy applied when remote
// entities are laid over local ones during a sync pull.
//
// The rules are deliberately simple: a remote copy is accepted only when no
// local copy exists or the remote updatedAt is strictly later. Ties keep the
// local copy. There is no field-level merging; a concurrent local edit can
// lose to a newer remote timestamp, which is the accepted trade-off of an
// offline-first single-user design.
package merge

import "github.com/tempora-app/tempora/internal/models"

// ShouldApplyRemoteTask reports whether the remote task replaces the local
// one. A nil local always accepts the remote.
func ShouldApplyRemoteTask(local *models.Task, remote *models.Task) bool {
	if local == nil {
		return true
	}

	return remote.UpdatedAt.After(local.UpdatedAt)
}

// ShouldApplyRemoteSession reports whether the remote session replaces the
// local one.
func ShouldApplyRemoteSession(local *models.Session, remote *models.Session) bool {
	if local == nil {
		return true
	}

	return remote.UpdatedAt.After(local.UpdatedAt)
}

// ShouldApplyRemoteSettings reports whether the remote settings record
// replaces the local singleton.
func ShouldApplyRemoteSettings(local *models.Settings, remote *models.Settings) bool {
	if local == nil {
		return true
	}

	return remote.UpdatedAt.After(local.UpdatedAt)
}
