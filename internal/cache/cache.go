package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gend/internal/common/fsutil"
	"gend/internal/secret"
)

// tier is one ordered source of model weights. attempt returns the usable
// local path when the tier holds the artifact, found=false on a clean miss,
// and an error only for real failures. promote stores an already-local
// artifact into the tier and is best-effort from the resolver's view.
type tier interface {
	name() string
	attempt(ctx context.Context, modelID string) (path string, found bool, err error)
	promote(ctx context.Context, modelID, localPath string) error
}

// Resolver walks the tier hierarchy for a model identifier and returns a
// usable local path, persisting newly-fetched weights into faster tiers.
type Resolver struct {
	cacheDir string
	tiers    []tier
	log      zerolog.Logger
}

// Options configures resolver construction.
type Options struct {
	CacheDir string
	// Store is the remote bucket tier; nil disables tier 2.
	Store ObjectStore
	// Tokens supplies the gated-model access token; nil means unauthenticated.
	Tokens secret.Provider
	// OriginBaseURL overrides the origin registry endpoint (tests).
	OriginBaseURL string
	Log           zerolog.Logger
}

// NewResolver builds a resolver with the standard local -> bucket -> origin order.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{cacheDir: opts.CacheDir, log: opts.Log}
	r.tiers = append(r.tiers, &localTier{cacheDir: opts.CacheDir})
	if opts.Store != nil {
		r.tiers = append(r.tiers, &bucketTier{cacheDir: opts.CacheDir, store: opts.Store})
	}
	r.tiers = append(r.tiers, &originTier{
		cacheDir: opts.CacheDir,
		baseURL:  opts.OriginBaseURL,
		tokens:   opts.Tokens,
	})
	return r
}

// Resolve locates or materializes the weights for modelID and returns the
// local path. A populated local tier short-circuits without network I/O.
func (r *Resolver) Resolve(ctx context.Context, modelID string) (string, error) {
	if strings.TrimSpace(modelID) == "" {
		return "", ErrDownload("resolve", fmt.Errorf("empty model id"))
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir %s: %w", r.cacheDir, err)
	}
	start := time.Now()
	for i, t := range r.tiers {
		path, found, err := t.attempt(ctx, modelID)
		if err != nil {
			tierResolutions.WithLabelValues(t.name(), "error").Inc()
			return "", err
		}
		if !found {
			tierResolutions.WithLabelValues(t.name(), "miss").Inc()
			r.log.Debug().Str("tier", t.name()).Str("model", modelID).Msg("tier miss")
			continue
		}
		tierResolutions.WithLabelValues(t.name(), "hit").Inc()
		r.log.Info().Str("tier", t.name()).Str("model", modelID).
			Dur("dur", time.Since(start)).Msg("model resolved")
		// Write the artifact back into the faster tiers that missed. Failure
		// here is logged, not fatal to the current request.
		for j := 0; j < i; j++ {
			if err := r.tiers[j].promote(ctx, modelID, path); err != nil {
				r.log.Warn().Err(err).Str("tier", r.tiers[j].name()).
					Str("model", modelID).Msg("tier promotion failed")
			}
		}
		return path, nil
	}
	return "", ErrDownload("resolve", fmt.Errorf("model %s not found in any tier", modelID))
}

// Sanitize derives the path-safe cache directory name for a model identifier.
func Sanitize(modelID string) string { return strings.ReplaceAll(modelID, "/", "--") }

// localPathFor is the final published location for a model's weights.
func localPathFor(cacheDir, modelID string) string {
	return filepath.Join(cacheDir, Sanitize(modelID))
}

// tempDirFor creates a staging directory on the same filesystem as the final
// path so the publish rename stays atomic.
func tempDirFor(cacheDir, modelID string) (string, error) {
	return os.MkdirTemp(cacheDir, ".tmp-"+Sanitize(modelID)+"-")
}

// publish atomically moves a fully-materialized staging directory into place.
// Losing the rename race to a concurrent resolver is not an error: the
// existing entry is complete, so the staging copy is discarded. An existing
// incomplete entry (external corruption, pre-atomic leftovers) is replaced.
func publish(tmp, final string) (string, error) {
	if err := os.Rename(tmp, final); err == nil {
		return final, nil
	}
	if entryComplete(final) {
		_ = os.RemoveAll(tmp)
		return final, nil
	}
	if fsutil.PathExists(final) {
		if err := os.RemoveAll(final); err != nil {
			_ = os.RemoveAll(tmp)
			return "", fmt.Errorf("replace stale entry %s: %w", final, err)
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		if entryComplete(final) {
			return final, nil
		}
		return "", fmt.Errorf("publish %s: %w", final, err)
	}
	return final, nil
}
