// Package service validates generation requests and drives them through the
// model loader. Validation always runs before the loader is touched, so a
// malformed request can never trigger an expensive cold load.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gend/internal/loader"
	"gend/pkg/types"
)

// Config encapsulates tunables for Service construction.
type Config struct {
	Loader *loader.Loader
	// MaxLengthLimit is the configured ceiling for max_length.
	MaxLengthLimit int
	// GenerateTimeout bounds a single inference call. Zero disables it.
	GenerateTimeout time.Duration
	Log             zerolog.Logger
}

// Service is the generation entry point used by the HTTP layer.
type Service struct {
	loader          *loader.Loader
	maxLengthLimit  int
	generateTimeout time.Duration
	startTime       time.Time
	log             zerolog.Logger
}

// New constructs a Service.
func New(cfg Config) *Service {
	return &Service{
		loader:          cfg.Loader,
		maxLengthLimit:  cfg.MaxLengthLimit,
		generateTimeout: cfg.GenerateTimeout,
		startTime:       time.Now(),
		log:             cfg.Log,
	}
}

// Generate validates req, obtains the shared model handle (performing the
// cold load if this is the first request), and runs inference. Loader and
// cache failures are propagated unchanged so the HTTP layer can classify them.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	if err := s.validate(req); err != nil {
		return types.GenerateResponse{}, err
	}

	handle, err := s.loader.GetOrLoad(ctx)
	if err != nil {
		return types.GenerateResponse{}, err
	}

	if s.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.generateTimeout)
		defer cancel()
	}
	start := time.Now()
	out, err := handle.Generate(ctx, req.Text, req.MaxLength)
	if err != nil {
		return types.GenerateResponse{}, err
	}
	s.log.Debug().Int("max_length", req.MaxLength).Dur("dur", time.Since(start)).Msg("generation complete")
	return types.GenerateResponse{GeneratedText: out}, nil
}

func (s *Service) validate(req types.GenerateRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrInvalidRequest("text is required")
	}
	if req.MaxLength <= 0 {
		return ErrInvalidRequest("max_length must be positive")
	}
	if req.MaxLength > s.maxLengthLimit {
		return ErrInvalidRequest("max_length exceeds configured limit")
	}
	return nil
}

// Ready reports whether the model is loaded, without triggering a load.
func (s *Service) Ready() bool { return s.loader.Ready() }

// Status returns the loader snapshot plus server uptime for GET /status.
func (s *Service) Status() types.StatusResponse {
	snap := s.loader.Snapshot()
	now := time.Now()
	return types.StatusResponse{
		ModelID:        snap.ModelID,
		State:          string(snap.State),
		LocalPath:      snap.LocalPath,
		LastError:      snap.Err,
		UptimeSeconds:  int64(now.Sub(s.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}
