// Package secret resolves the access token used for gated models.
//
// Lookup order is fixed by construction: the secret store is consulted first,
// then a local token file. A failure in one provider falls through to the
// next; only when every provider comes up empty does Token return ErrNoToken.
// Callers treat ErrNoToken as "proceed unauthenticated".
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rs/zerolog"
)

// ErrNoToken indicates that no provider could produce a token.
var ErrNoToken = errors.New("no access token available")

// Provider resolves an authentication token for gated model access.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// accessFunc fetches raw secret bytes by fully-qualified version name.
type accessFunc func(ctx context.Context, name string) ([]byte, error)

// ManagerProvider reads the token from Google Secret Manager.
type ManagerProvider struct {
	access     accessFunc
	projectID  string
	secretName string
}

// NewManagerProvider wraps a Secret Manager client for the given project/secret.
func NewManagerProvider(client *secretmanager.Client, projectID, secretName string) *ManagerProvider {
	return &ManagerProvider{
		access: func(ctx context.Context, name string) ([]byte, error) {
			resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
			if err != nil {
				return nil, err
			}
			return resp.GetPayload().GetData(), nil
		},
		projectID:  projectID,
		secretName: secretName,
	}
}

// newManagerProviderFunc is the test seam used by provider tests.
func newManagerProviderFunc(access accessFunc, projectID, secretName string) *ManagerProvider {
	return &ManagerProvider{access: access, projectID: projectID, secretName: secretName}
}

func (p *ManagerProvider) Token(ctx context.Context) (string, error) {
	if p.projectID == "" || p.secretName == "" {
		return "", ErrNoToken
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.projectID, p.secretName)
	data, err := p.access(ctx, name)
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", p.secretName, err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// FileProvider reads the token from a file on disk.
type FileProvider struct {
	path string
}

// NewFileProvider returns a provider backed by the given token file path.
func NewFileProvider(path string) *FileProvider { return &FileProvider{path: path} }

func (p *FileProvider) Token(ctx context.Context) (string, error) {
	if p.path == "" {
		return "", ErrNoToken
	}
	b, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file %s: %w", p.path, err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Chain tries providers in order and returns the first token found.
type Chain struct {
	providers []Provider
	log       zerolog.Logger
}

// NewChain builds a fallback chain over the given providers.
func NewChain(log zerolog.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, log: log}
}

func (c *Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c.providers {
		tok, err := p.Token(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoToken) {
			// Provider reachable but failing; fall through to the next one.
			c.log.Warn().Err(err).Msg("secret provider lookup failed")
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", ErrNoToken
}
