package cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore implements ObjectStore over a Google Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
}

// NewGCSStore wraps the named bucket of an existing storage client.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket)}
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (s *GCSStore) Download(ctx context.Context, object string, w io.Writer) error {
	rc, err := s.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", object, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("read %s: %w", object, err)
	}
	return nil
}

func (s *GCSStore) Upload(ctx context.Context, object string, r io.Reader) error {
	w := s.bucket.Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", object, err)
	}
	return nil
}
