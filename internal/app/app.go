// Package app wires the Vocalis subsystems together: configuration, the
// calibration store, the audio processing pipeline, the check-in manager,
// and the HTTP surface. It owns startup ordering and shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/novahale/vocalis/internal/biomarker"
	"github.com/novahale/vocalis/internal/calibration"
	calpg "github.com/novahale/vocalis/internal/calibration/postgres"
	"github.com/novahale/vocalis/internal/checkin"
	"github.com/novahale/vocalis/internal/config"
	"github.com/novahale/vocalis/internal/health"
	"github.com/novahale/vocalis/internal/ingest"
	"github.com/novahale/vocalis/internal/observe"
	"github.com/novahale/vocalis/internal/processor"
	"github.com/novahale/vocalis/internal/resilience"
	"github.com/novahale/vocalis/pkg/provider/semantic"
	"github.com/novahale/vocalis/pkg/provider/vad"
	"github.com/novahale/vocalis/pkg/provider/vad/energy"
)

const serverShutdownTimeout = 15 * time.Second

// App is the assembled Vocalis server. Construct with [New], start with
// [App.Run], and tear down with [App.Shutdown].
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	repo      calibration.Repository
	processor *processor.Processor
	manager   *checkin.Manager
	server    *http.Server
	tls       *config.TLSConfig

	metrics         *observe.Metrics
	metricsShutdown func(context.Context) error

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option customises App construction, mainly so tests can inject doubles
// for subsystems that would otherwise reach external services.
type Option func(*App)

// WithLogger sets the logger used by the app and all subsystems it builds.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithCalibrationRepo replaces the configured calibration store.
func WithCalibrationRepo(repo calibration.Repository) Option {
	return func(a *App) { a.repo = repo }
}

// WithMetrics supplies a pre-built metrics set and skips global telemetry
// provider installation.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New builds the full server from cfg. Providers named in the config are
// instantiated through reg, so the caller decides which implementations are
// available. The returned App is ready for [App.Run].
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// 1. Telemetry. A caller-supplied metrics set (tests) skips the global
	// provider so parallel tests do not fight over it.
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.metricsShutdown = shutdown
		a.metrics = observe.DefaultMetrics()
	}

	// 2. Calibration store.
	var checkers []health.Checker
	if a.repo == nil {
		storageCheck, err := a.initCalibrationStore(ctx)
		if err != nil {
			return nil, err
		}
		if storageCheck != nil {
			checkers = append(checkers, *storageCheck)
		}
	}

	// 3. Audio pipeline: VAD engine plus the feature extraction processor.
	engine, err := reg.CreateVAD(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: init vad engine: %w", err)
	}
	checkers = append(checkers, health.VAD(engine))

	procOpts := []processor.Option{
		processor.WithLogger(a.logger),
		processor.WithVADConfig(vadConfigFrom(cfg.VAD)),
	}
	if cfg.VAD.Engine != "energy" {
		procOpts = append(procOpts, processor.WithFallbackEngine(energy.New()))
	}
	a.processor = processor.New(engine, procOpts...)

	// 4. Semantic analysis is optional. A missing provider name disables it
	// and check-ins stay acoustic-only.
	provider, err := a.buildSemantic(reg, cfg.Semantic)
	if err != nil {
		return nil, err
	}

	// 5. Check-in manager.
	managerOpts := []checkin.Option{
		checkin.WithMetrics(a.metrics),
		checkin.WithManagerLogger(a.logger),
	}
	if provider != nil {
		managerOpts = append(managerOpts, checkin.WithSemanticProvider(provider))
	}
	if cfg.Semantic.TimeoutSeconds > 0 {
		managerOpts = append(managerOpts, checkin.WithSemanticTimeout(secondsToDuration(cfg.Semantic.TimeoutSeconds)))
	}
	if cfg.Audio.MaxRecordingSeconds > 0 {
		managerOpts = append(managerOpts, checkin.WithMaxRecording(secondsToDuration(cfg.Audio.MaxRecordingSeconds)))
	}
	a.manager = checkin.NewManager(a.processor, biomarker.NewScorer(), a.repo, managerOpts...)

	// 6. HTTP surface.
	a.server = a.buildServer(checkers)

	return a, nil
}

func (a *App) initCalibrationStore(ctx context.Context) (*health.Checker, error) {
	dsn := a.cfg.Calibration.PostgresDSN
	if dsn == "" {
		a.logger.Info("calibration store: in-memory (no postgres_dsn configured)")
		a.repo = calibration.NewMemoryRepository()
		return nil, nil
	}

	repo, err := calpg.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("app: init calibration store: %w", err)
	}
	a.closers = append(a.closers, func() error {
		repo.Close()
		return nil
	})
	a.repo = repo
	a.logger.Info("calibration store: postgres")
	check := health.Storage(repo)
	return &check, nil
}

func (a *App) buildSemantic(reg *config.Registry, cfg config.SemanticConfig) (semantic.Provider, error) {
	primary := cfg.Primary
	if primary.Name == "" {
		a.logger.Info("semantic analysis disabled, check-ins will be acoustic-only")
		return nil, nil
	}

	provider, err := reg.CreateSemantic(primary)
	if err != nil {
		return nil, fmt.Errorf("app: init semantic provider: %w", err)
	}
	a.logger.Info("semantic provider ready", "name", primary.Name, "model", primary.Model)

	fb := cfg.Fallback
	if fb == nil {
		return provider, nil
	}

	fallback, err := reg.CreateSemantic(*fb)
	if err != nil {
		return nil, fmt.Errorf("app: init semantic fallback: %w", err)
	}
	group := resilience.NewSemanticFallback(provider, primary.Name, resilience.FallbackConfig{})
	group.AddFallback(fb.Name, fallback)
	a.logger.Info("semantic fallback ready", "name", fb.Name, "model", fb.Model)
	return group, nil
}

// ApplyReload applies the hot-reloadable parts of a new configuration: VAD
// tuning takes effect for subsequent recordings, and the semantic backend is
// rebuilt and swapped. Engine, listen address, and store changes still
// require a restart.
func (a *App) ApplyReload(reg *config.Registry, next *config.Config, diff config.ConfigDiff) {
	if diff.VADTuningChanged {
		a.processor.SetVADConfig(vadConfigFrom(next.VAD))
		a.logger.Info("vad tuning reloaded")
	}
	if diff.SemanticChanged {
		provider, err := a.buildSemantic(reg, next.Semantic)
		if err != nil {
			a.logger.Warn("semantic reload failed, keeping previous provider", "error", err)
		} else {
			a.manager.SetSemantic(provider, secondsToDuration(next.Semantic.TimeoutSeconds))
			a.logger.Info("semantic provider reloaded")
		}
	}
	a.cfg = next
}

func (a *App) buildServer(checkers []health.Checker) *http.Server {
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /v1/checkin/stream", ingest.NewHandler(a.manager, ingest.WithLogger(a.logger)))

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.tls = a.cfg.Server.TLS
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On cancellation the server drains in-flight connections before Run
// returns; call [App.Shutdown] afterwards to release the remaining resources.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.tls; tls != nil {
			a.logger.Info("listening", "addr", a.server.Addr, "tls", true)
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			a.logger.Info("listening", "addr", a.server.Addr, "tls", false)
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown releases non-HTTP resources: provider connections, the
// calibration store, and the telemetry pipeline. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if a.metricsShutdown != nil {
			if err := a.metricsShutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Handler exposes the assembled HTTP handler for in-process tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func vadConfigFrom(cfg config.VADConfig) vad.Config {
	return vad.Config{
		SpeechThreshold:  cfg.SpeechThreshold,
		SilenceThreshold: cfg.SilenceThreshold,
		MinSpeechFrames:  cfg.MinSpeechFrames,
		HangoverFrames:   cfg.HangoverFrames,
	}
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
