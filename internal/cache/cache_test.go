package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeStore is an in-memory ObjectStore that counts calls.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	listCalls int
	uploads   map[string][]byte
	// downloadGate, when set, blocks Download until closed.
	downloadGate chan struct{}
	listErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, uploads: map[string][]byte{}}
}

func (s *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) Download(ctx context.Context, object string, w io.Writer) error {
	if s.downloadGate != nil {
		select {
		case <-s.downloadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	data, ok := s.objects[object]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such object %q", object)
	}
	_, err := w.Write(data)
	return err
}

func (s *fakeStore) Upload(ctx context.Context, object string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.uploads[object] = data
	s.mu.Unlock()
	return nil
}

// newOriginServer serves a one-level file tree for repo plus its raw files.
// If gated is true, requests without a bearer token get 401.
func newOriginServer(t *testing.T, repo string, files map[string]string, gated bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gated && r.Header.Get("Authorization") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/api/models/"+repo+"/tree/main" {
			var entries []repoFile
			for name, content := range files {
				entries = append(entries, repoFile{Type: "file", Path: name, Size: int64(len(content))})
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
			_ = json.NewEncoder(w).Encode(entries)
			return
		}
		if rest, ok := strings.CutPrefix(r.URL.Path, "/"+repo+"/resolve/main/"); ok {
			if content, ok := files[rest]; ok {
				_, _ = io.Copy(w, bytes.NewBufferString(content))
				return
			}
		}
		http.NotFound(w, r)
	}))
}

func populateLocal(t *testing.T, cacheDir, modelID string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(cacheDir, Sanitize(modelID))
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil { t.Fatal(err) }
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil { t.Fatal(err) }
	}
	return dir
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("org/tiny-model"); got != "org--tiny-model" { t.Fatalf("got %q", got) }
	if got := Sanitize("plain"); got != "plain" { t.Fatalf("got %q", got) }
}

func TestResolveLocalShortCircuit(t *testing.T) {
	cacheDir := t.TempDir()
	want := populateLocal(t, cacheDir, "org/tiny-model", map[string]string{"config.json": "{}", "model.bin": "w"})
	store := newFakeStore()
	r := NewResolver(Options{CacheDir: cacheDir, Store: store, OriginBaseURL: "http://127.0.0.1:1", Log: zerolog.Nop()})

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "org/tiny-model")
		if err != nil { t.Fatalf("resolve #%d: %v", i+1, err) }
		if got != want { t.Fatalf("path: %q, want %q", got, want) }
	}
	// Local hit must never touch the remote tiers.
	if store.listCalls != 0 { t.Fatalf("bucket queried %d times", store.listCalls) }
}

func TestResolveLocalRequiresMarker(t *testing.T) {
	cacheDir := t.TempDir()
	populateLocal(t, cacheDir, "org/tiny-model", map[string]string{"model.bin": "w"}) // no config.json
	store := newFakeStore()
	store.objects["models/org--tiny-model/config.json"] = []byte("{}")
	store.objects["models/org--tiny-model/model.bin"] = []byte("weights")
	r := NewResolver(Options{CacheDir: cacheDir, Store: store, Log: zerolog.Nop()})

	got, err := r.Resolve(context.Background(), "org/tiny-model")
	if err != nil { t.Fatalf("resolve: %v", err) }
	if store.listCalls == 0 { t.Fatal("expected bucket query for incomplete local entry") }
	// The stale incomplete entry is replaced by the published bucket copy.
	if _, err := os.Stat(filepath.Join(got, "config.json")); err != nil { t.Fatalf("marker missing: %v", err) }
}

func TestResolveBucketHit(t *testing.T) {
	cacheDir := t.TempDir()
	store := newFakeStore()
	store.objects["models/org--tiny-model/config.json"] = []byte("{}")
	store.objects["models/org--tiny-model/weights/part-0.bin"] = []byte("wwww")
	r := NewResolver(Options{CacheDir: cacheDir, Store: store, OriginBaseURL: "http://127.0.0.1:1", Log: zerolog.Nop()})

	got, err := r.Resolve(context.Background(), "org/tiny-model")
	if err != nil { t.Fatalf("resolve: %v", err) }
	for _, rel := range []string{"config.json", "weights/part-0.bin"} {
		if _, err := os.Stat(filepath.Join(got, rel)); err != nil { t.Fatalf("missing %s: %v", rel, err) }
	}
	calls := store.listCalls

	// Second resolve is a pure local check.
	if _, err := r.Resolve(context.Background(), "org/tiny-model"); err != nil { t.Fatalf("resolve: %v", err) }
	if store.listCalls != calls { t.Fatalf("bucket queried again: %d -> %d", calls, store.listCalls) }
}

func TestResolveOriginHitPromotesToBucket(t *testing.T) {
	cacheDir := t.TempDir()
	files := map[string]string{"config.json": "{}", "model.safetensors": "tensor-bytes"}
	srv := newOriginServer(t, "org/tiny-model", files, false)
	defer srv.Close()
	store := newFakeStore()
	r := NewResolver(Options{CacheDir: cacheDir, Store: store, OriginBaseURL: srv.URL, Log: zerolog.Nop()})

	got, err := r.Resolve(context.Background(), "org/tiny-model")
	if err != nil { t.Fatalf("resolve: %v", err) }
	for name, content := range files {
		b, err := os.ReadFile(filepath.Join(got, name))
		if err != nil { t.Fatalf("read %s: %v", name, err) }
		if string(b) != content { t.Fatalf("%s content: %q", name, b) }
	}
	// Origin fetch is written back into the bucket tier.
	if len(store.uploads) != len(files) { t.Fatalf("uploads: %d", len(store.uploads)) }
	if string(store.uploads["models/org--tiny-model/config.json"]) != "{}" {
		t.Fatalf("upload content: %q", store.uploads["models/org--tiny-model/config.json"])
	}
}

func TestResolveGatedModelWithoutToken(t *testing.T) {
	cacheDir := t.TempDir()
	srv := newOriginServer(t, "org/gated", map[string]string{"config.json": "{}"}, true)
	defer srv.Close()
	r := NewResolver(Options{CacheDir: cacheDir, OriginBaseURL: srv.URL, Log: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), "org/gated")
	if err == nil { t.Fatal("expected error") }
	if !IsAuthFailure(err) { t.Fatalf("expected auth failure, got %v", err) }
	if IsDownloadFailure(err) { t.Fatalf("auth failure must not classify as download failure: %v", err) }
}

func TestResolveGatedModelWithToken(t *testing.T) {
	cacheDir := t.TempDir()
	srv := newOriginServer(t, "org/gated", map[string]string{"config.json": "{}"}, true)
	defer srv.Close()
	r := NewResolver(Options{
		CacheDir:      cacheDir,
		Tokens:        staticTokens("hf_tok"),
		OriginBaseURL: srv.URL,
		Log:           zerolog.Nop(),
	})

	if _, err := r.Resolve(context.Background(), "org/gated"); err != nil { t.Fatalf("resolve: %v", err) }
}

func TestResolveOriginOutage(t *testing.T) {
	cacheDir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	r := NewResolver(Options{CacheDir: cacheDir, OriginBaseURL: srv.URL, Log: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), "org/tiny-model")
	if err == nil { t.Fatal("expected error") }
	if !IsDownloadFailure(err) { t.Fatalf("expected download failure, got %v", err) }
	if IsAuthFailure(err) { t.Fatalf("outage must not classify as auth failure: %v", err) }
}

func TestResolveNotFoundAnywhere(t *testing.T) {
	cacheDir := t.TempDir()
	srv := newOriginServer(t, "org/other", map[string]string{"config.json": "{}"}, false)
	defer srv.Close()
	r := NewResolver(Options{CacheDir: cacheDir, Store: newFakeStore(), OriginBaseURL: srv.URL, Log: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), "org/absent")
	if err == nil { t.Fatal("expected error") }
	if !IsDownloadFailure(err) { t.Fatalf("expected download failure, got %v", err) }
	if !strings.Contains(err.Error(), "not found in any tier") { t.Fatalf("err: %v", err) }
}

func TestAtomicPublishHidesPartialDownload(t *testing.T) {
	cacheDir := t.TempDir()
	store := newFakeStore()
	store.objects["models/org--tiny-model/config.json"] = []byte("{}")
	store.downloadGate = make(chan struct{})
	r := NewResolver(Options{CacheDir: cacheDir, Store: store, OriginBaseURL: "http://127.0.0.1:1", Log: zerolog.Nop()})

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), "org/tiny-model")
		done <- err
	}()

	// While the download is parked mid-flight, a concurrent reader must see
	// the entry as absent: only staging dirs exist under cache_dir.
	local := &localTier{cacheDir: cacheDir}
	if _, found, err := local.attempt(context.Background(), "org/tiny-model"); err != nil || found {
		t.Fatalf("partial entry visible: found=%v err=%v", found, err)
	}

	close(store.downloadGate)
	if err := <-done; err != nil { t.Fatalf("resolve: %v", err) }
	if _, found, _ := local.attempt(context.Background(), "org/tiny-model"); !found {
		t.Fatal("entry missing after publish")
	}
}

func TestPublishLosingRaceUsesExisting(t *testing.T) {
	cacheDir := t.TempDir()
	final := populateLocal(t, cacheDir, "org/tiny-model", map[string]string{"config.json": "{}"})
	tmp, err := tempDirFor(cacheDir, "org/tiny-model")
	if err != nil { t.Fatal(err) }
	if err := os.WriteFile(filepath.Join(tmp, "config.json"), []byte("{}"), 0o644); err != nil { t.Fatal(err) }

	got, err := publish(tmp, final)
	if err != nil { t.Fatalf("publish: %v", err) }
	if got != final { t.Fatalf("path: %q", got) }
	if _, err := os.Stat(tmp); !errors.Is(err, os.ErrNotExist) { t.Fatalf("staging dir left behind: %v", err) }
}

func TestResolveBucketListError(t *testing.T) {
	cacheDir := t.TempDir()
	store := newFakeStore()
	store.listErr = errors.New("bucket unreachable")
	r := NewResolver(Options{CacheDir: cacheDir, Store: store, OriginBaseURL: "http://127.0.0.1:1", Log: zerolog.Nop()})

	_, err := r.Resolve(context.Background(), "org/tiny-model")
	if err == nil { t.Fatal("expected error") }
	if !IsDownloadFailure(err) { t.Fatalf("expected download failure, got %v", err) }
}

// staticTokens is a fixed-token secret provider for tests.
type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) { return string(s), nil }
