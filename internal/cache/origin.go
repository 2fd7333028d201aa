package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"gend/internal/secret"
)

const (
	defaultOriginBaseURL = "https://huggingface.co"
	defaultRevision      = "main"
	originUserAgent      = "gend"
)

// errOriginNotFound marks a repository the origin does not know about.
var errOriginNotFound = errors.New("not found at origin")

// repoFile is one entry of the origin registry's file tree listing.
type repoFile struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// originClient speaks the Hugging Face Hub HTTP API: tree listings under
// /api/models/<repo>/tree/<rev> and raw files under /<repo>/resolve/<rev>.
type originClient struct {
	httpClient *http.Client
	baseURL    string
	revision   string
	token      string
}

func newOriginClient(baseURL, token string) *originClient {
	if baseURL == "" {
		baseURL = defaultOriginBaseURL
	}
	return &originClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		revision:   defaultRevision,
		token:      token,
	}
}

func (c *originClient) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", originUserAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// listFiles returns every file in the repository, recursing into directories.
func (c *originClient) listFiles(ctx context.Context, repo string) ([]repoFile, error) {
	return c.listFilesAt(ctx, repo, "")
}

func (c *originClient) listFilesAt(ctx context.Context, repo, filePath string) ([]repoFile, error) {
	treeURL := fmt.Sprintf("%s/api/models/%s/tree/%s", c.baseURL, repo, url.PathEscape(c.revision))
	if filePath != "" {
		treeURL += "/" + filePath
	}
	resp, err := c.do(ctx, treeURL)
	if err != nil {
		return nil, ErrDownload("list origin tree", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrAuth("list origin tree", fmt.Errorf("origin returned %s for %s", resp.Status, repo))
	case http.StatusNotFound:
		return nil, errOriginNotFound
	default:
		return nil, ErrDownload("list origin tree", fmt.Errorf("origin returned %s for %s", resp.Status, repo))
	}

	var entries []repoFile
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, ErrDownload("decode origin tree", err)
	}
	var files []repoFile
	for _, e := range entries {
		switch e.Type {
		case "file":
			files = append(files, e)
		case "directory":
			sub, err := c.listFilesAt(ctx, repo, e.Path)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

// downloadFile streams one repository file to w.
func (c *originClient) downloadFile(ctx context.Context, repo, filePath string, w io.Writer) error {
	fileURL := fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, repo, url.PathEscape(c.revision), filePath)
	resp, err := c.do(ctx, fileURL)
	if err != nil {
		return ErrDownload("fetch "+filePath, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth("fetch "+filePath, fmt.Errorf("origin returned %s", resp.Status))
	default:
		return ErrDownload("fetch "+filePath, fmt.Errorf("origin returned %s", resp.Status))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return ErrDownload("fetch "+filePath, err)
	}
	return nil
}

// originTier fetches from the origin model registry, optionally authenticated
// for gated models via the secret provider.
type originTier struct {
	cacheDir string
	baseURL  string
	tokens   secret.Provider
}

func (t *originTier) name() string { return "origin" }

func (t *originTier) attempt(ctx context.Context, modelID string) (string, bool, error) {
	var token string
	if t.tokens != nil {
		tok, err := t.tokens.Token(ctx)
		if err == nil {
			token = tok
		} else if !errors.Is(err, secret.ErrNoToken) {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			// No usable token; a gated repo will answer 401/403 below.
		}
	}
	client := newOriginClient(t.baseURL, token)

	files, err := client.listFiles(ctx, modelID)
	if errors.Is(err, errOriginNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(files) == 0 {
		return "", false, nil
	}

	tmp, err := tempDirFor(t.cacheDir, modelID)
	if err != nil {
		return "", false, ErrDownload("stage origin download", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTransferConcurrency)
	for _, f := range files {
		g.Go(func() error {
			rel := path.Clean(f.Path)
			if rel == "" || rel == "." || strings.HasPrefix(rel, "..") {
				return fmt.Errorf("unexpected repo path %q", f.Path)
			}
			local := filepath.Join(tmp, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
				return err
			}
			out, err := os.Create(local)
			if err != nil {
				return err
			}
			defer out.Close()
			return client.downloadFile(gctx, modelID, rel, &countingWriter{w: out, source: "origin"})
		})
	}
	if err := g.Wait(); err != nil {
		_ = os.RemoveAll(tmp)
		if IsAuthFailure(err) || IsDownloadFailure(err) {
			return "", false, err
		}
		return "", false, ErrDownload("download from origin", err)
	}

	final, err := publish(tmp, localPathFor(t.cacheDir, modelID))
	if err != nil {
		return "", false, ErrDownload("publish origin download", err)
	}
	return final, true, nil
}

// promote is a no-op: nothing writes back into the origin registry.
func (t *originTier) promote(ctx context.Context, modelID, localPath string) error { return nil }
