package cache

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxTransferConcurrency bounds parallel object transfers per resolution.
const maxTransferConcurrency = 4

// ObjectStore abstracts the remote bucket used as the second cache tier.
type ObjectStore interface {
	// List returns the object names under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Download writes the named object to w.
	Download(ctx context.Context, object string, w io.Writer) error
	// Upload stores r as the named object.
	Upload(ctx context.Context, object string, r io.Reader) error
}

// bucketPrefix is the object-key namespace for a model's files.
func bucketPrefix(modelID string) string { return "models/" + Sanitize(modelID) + "/" }

// bucketTier serves and receives model artifacts from an ObjectStore.
type bucketTier struct {
	cacheDir string
	store    ObjectStore
}

func (t *bucketTier) name() string { return "bucket" }

func (t *bucketTier) attempt(ctx context.Context, modelID string) (string, bool, error) {
	prefix := bucketPrefix(modelID)
	objects, err := t.store.List(ctx, prefix)
	if err != nil {
		return "", false, ErrDownload("list bucket", err)
	}
	if len(objects) == 0 {
		return "", false, nil
	}

	tmp, err := tempDirFor(t.cacheDir, modelID)
	if err != nil {
		return "", false, ErrDownload("stage bucket download", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTransferConcurrency)
	for _, object := range objects {
		g.Go(func() error {
			rel := strings.TrimPrefix(object, prefix)
			if rel == "" || path.Clean(rel) != rel || strings.HasPrefix(rel, "..") {
				return fmt.Errorf("unexpected object name %q", object)
			}
			local := filepath.Join(tmp, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
				return err
			}
			f, err := os.Create(local)
			if err != nil {
				return err
			}
			defer f.Close()
			cw := &countingWriter{w: f, source: "bucket"}
			return t.store.Download(gctx, object, cw)
		})
	}
	if err := g.Wait(); err != nil {
		_ = os.RemoveAll(tmp)
		return "", false, ErrDownload("download from bucket", err)
	}

	final, err := publish(tmp, localPathFor(t.cacheDir, modelID))
	if err != nil {
		return "", false, ErrDownload("publish bucket download", err)
	}
	return final, true, nil
}

// promote uploads a locally-materialized artifact so future processes hit
// the bucket instead of the origin registry.
func (t *bucketTier) promote(ctx context.Context, modelID, localPath string) error {
	prefix := bucketPrefix(modelID)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTransferConcurrency)
	err := filepath.WalkDir(localPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		g.Go(func() error {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			return t.store.Upload(gctx, prefix+filepath.ToSlash(rel), f)
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return fmt.Errorf("upload to bucket: %w", err)
	}
	return nil
}

// countingWriter feeds the transfer-volume counter as bytes flow through.
type countingWriter struct {
	w      io.Writer
	source string
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		downloadBytes.WithLabelValues(cw.source).Add(float64(n))
	}
	return n, err
}
