package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gend/internal/cache"
	"gend/internal/config"
	"gend/internal/httpapi"
	"gend/internal/llm"
	"gend/internal/loader"
	"gend/internal/secret"
	"gend/internal/service"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// buildRootCmd wires flags over config-file and environment values.
// Precedence: flags > environment > file > defaults.
func buildRootCmd() *cobra.Command {
	var (
		configPath     string
		addr           string
		modelID        string
		projectID      string
		bucketName     string
		cacheDir       string
		secretName     string
		tokenFile      string
		originBaseURL  string
		maxLengthLimit int
		loadTimeoutSec int
		genTimeoutSec  int
		logLevel       string
		llamaCtxSize   int
		llamaThreads   int
	)

	root := &cobra.Command{
		Use:           "gend",
		Short:         "Text generation daemon with a tiered model-weight cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if configPath != "" {
				fileCfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = fileCfg
			}
			cfg = config.FromEnv(cfg)
			// Explicit flags win over file and environment.
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("model") {
				cfg.ModelID = modelID
			}
			if flags.Changed("project") {
				cfg.ProjectID = projectID
			}
			if flags.Changed("bucket") {
				cfg.BucketName = bucketName
			}
			if flags.Changed("cache-dir") {
				cfg.CacheDir = cacheDir
			}
			if flags.Changed("secret-name") {
				cfg.SecretName = secretName
			}
			if flags.Changed("token-file") {
				cfg.TokenFile = tokenFile
			}
			if flags.Changed("origin-base-url") {
				cfg.OriginBaseURL = originBaseURL
			}
			if flags.Changed("max-length-limit") {
				cfg.MaxLengthLimit = maxLengthLimit
			}
			if flags.Changed("load-timeout-sec") {
				cfg.LoadTimeoutSec = loadTimeoutSec
			}
			if flags.Changed("generate-timeout-sec") {
				cfg.GenerateTimeoutSec = genTimeoutSec
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			resolved, err := config.Resolve(cfg)
			if err != nil {
				return err
			}
			return run(resolved, llamaCtxSize, llamaThreads)
		},
	}

	root.Flags().StringVar(&configPath, "config", os.Getenv("GEND_CONFIG"), "Path to a yaml/json/toml config file")
	root.Flags().StringVar(&addr, "addr", config.DefaultAddr, "HTTP listen address, e.g. :8080")
	root.Flags().StringVar(&modelID, "model", "", "Model id to serve, e.g. org/model-name")
	root.Flags().StringVar(&projectID, "project", "", "Cloud project id for the secret store (empty disables it)")
	root.Flags().StringVar(&bucketName, "bucket", "", "Object-storage bucket for cached weights (empty disables the bucket tier)")
	root.Flags().StringVar(&cacheDir, "cache-dir", config.DefaultCacheDir, "Local directory for cached weights")
	root.Flags().StringVar(&secretName, "secret-name", config.DefaultSecretName, "Secret name holding the origin access token")
	root.Flags().StringVar(&tokenFile, "token-file", config.DefaultTokenFile, "Fallback file holding the origin access token")
	root.Flags().StringVar(&originBaseURL, "origin-base-url", "", "Override the model registry endpoint (default: Hugging Face Hub)")
	root.Flags().IntVar(&maxLengthLimit, "max-length-limit", config.DefaultMaxLengthLimit, "Upper bound accepted for max_length")
	root.Flags().IntVar(&loadTimeoutSec, "load-timeout-sec", config.DefaultLoadTimeoutSec, "Deadline in seconds for the one-time model load")
	root.Flags().IntVar(&genTimeoutSec, "generate-timeout-sec", 0, "Deadline in seconds for a single generation (0=unbounded)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error|off")
	root.Flags().IntVar(&llamaCtxSize, "ctx-size", 2048, "Model context window in tokens")
	root.Flags().IntVar(&llamaThreads, "threads", runtime.NumCPU(), "Inference threads")

	return root
}

func run(cfg config.Config, ctxSize, threads int) error {
	log := newLogger(cfg.LogLevel)
	ctx := context.Background()

	var store cache.ObjectStore
	if cfg.BucketName != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		defer client.Close()
		store = cache.NewGCSStore(client, cfg.BucketName)
		log.Info().Str("bucket", cfg.BucketName).Msg("bucket cache tier enabled")
	} else {
		log.Warn().Msg("no bucket configured, cache misses always go to origin")
	}

	providers := make([]secret.Provider, 0, 2)
	if cfg.ProjectID != "" {
		smClient, err := secretmanager.NewClient(ctx)
		if err != nil {
			// Gated models will fail later with an auth error; public models
			// do not need a token at all.
			log.Warn().Err(err).Msg("secret store unavailable, falling back to token file")
		} else {
			defer smClient.Close()
			providers = append(providers, secret.NewManagerProvider(smClient, cfg.ProjectID, cfg.SecretName))
		}
	}
	providers = append(providers, secret.NewFileProvider(cfg.TokenFile))
	tokens := secret.NewChain(log, providers...)

	resolver := cache.NewResolver(cache.Options{
		CacheDir:      cfg.CacheDir,
		Store:         store,
		Tokens:        tokens,
		OriginBaseURL: cfg.OriginBaseURL,
		Log:           log,
	})

	ldr := loader.New(loader.Config{
		ModelID:     cfg.ModelID,
		Resolve:     resolver.Resolve,
		Runtime:     llm.NewLlamaRuntime(ctxSize, threads),
		LoadTimeout: time.Duration(cfg.LoadTimeoutSec) * time.Second,
		Log:         log,
	})

	svc := service.New(service.Config{
		Loader:          ldr,
		MaxLengthLimit:  cfg.MaxLengthLimit,
		GenerateTimeout: time.Duration(cfg.GenerateTimeoutSec) * time.Second,
		Log:             log,
	})

	httpapi.SetLogger(log)
	if origins := os.Getenv("GEND_CORS_ORIGINS"); origins != "" {
		httpapi.SetCORSOptions(true,
			splitCSV(origins),
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type"},
		)
	}
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(svc)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model", cfg.ModelID).Str("cache_dir", cfg.CacheDir).Msg("gend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty items.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if level == "off" {
		lvl = zerolog.Disabled
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
}
