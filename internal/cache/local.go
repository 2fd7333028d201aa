package cache

import (
	"context"
	"path/filepath"

	"gend/internal/common/fsutil"
)

// weightsMarker must be present for a local entry to count as complete.
// Matches the layout produced by the origin registry's repositories.
const weightsMarker = "config.json"

// entryComplete reports whether path holds a fully-published model entry.
func entryComplete(path string) bool {
	return fsutil.DirNonEmpty(path) && fsutil.PathExists(filepath.Join(path, weightsMarker))
}

// localTier is the cheapest tier: a directory check under cache_dir.
type localTier struct {
	cacheDir string
}

func (t *localTier) name() string { return "local" }

func (t *localTier) attempt(ctx context.Context, modelID string) (string, bool, error) {
	path := localPathFor(t.cacheDir, modelID)
	if !entryComplete(path) {
		return "", false, nil
	}
	return path, true, nil
}

// promote is a no-op: artifacts from slower tiers are materialized under
// cache_dir as part of their download, so a hit below us is already local.
func (t *localTier) promote(ctx context.Context, modelID, localPath string) error { return nil }
