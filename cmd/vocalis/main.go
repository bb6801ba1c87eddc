// Command vocalis is the main entry point for the Vocalis check-in server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/novahale/vocalis/internal/app"
	"github.com/novahale/vocalis/internal/config"
	"github.com/novahale/vocalis/pkg/provider/semantic"
	"github.com/novahale/vocalis/pkg/provider/semantic/anyllm"
	oaisemantic "github.com/novahale/vocalis/pkg/provider/semantic/openai"
	"github.com/novahale/vocalis/pkg/provider/vad"
	"github.com/novahale/vocalis/pkg/provider/vad/energy"
	"github.com/novahale/vocalis/pkg/provider/vad/model"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	// A .env file is optional; explicit environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "vocalis: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalis: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalis: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vocalis starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		diff := config.Diff(old, next)
		if !diff.HasChanges() {
			slog.Info("config changed, no hot-reloadable fields affected — restart to apply")
			return
		}
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level reloaded", "level", diff.NewLogLevel)
		}
		application.ApplyReload(reg, next, diff)
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(cfg config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	reg.RegisterVAD("model", func(cfg config.VADConfig) (vad.Engine, error) {
		if cfg.ModelPath != "" {
			engine, err := model.Load(cfg.ModelPath)
			if err == nil {
				return engine, nil
			}
			if !errors.Is(err, vad.ErrModelUnavailable) {
				return nil, err
			}
			// An unloadable weights file degrades to the compiled-in
			// weights rather than refusing to start.
			slog.Warn("vad model weights unavailable, using built-in weights",
				"model_path", cfg.ModelPath, "err", err)
		}
		return model.New(), nil
	})

	// ── Semantic ──────────────────────────────────────────────────────────────
	// openai gets the native SDK client; everything else goes through the
	// any-llm universal backend.

	reg.RegisterSemantic("openai", func(entry config.ProviderEntry) (semantic.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []oaisemantic.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaisemantic.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaisemantic.WithOrganization(org))
		}
		return oaisemantic.New(apiKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterSemantic(providerName, func(entry config.ProviderEntry) (semantic.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterSemantic("ollama", func(entry config.ProviderEntry) (semantic.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Vocalis — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("VAD", cfg.VAD.Engine, "")
	printProvider("Semantic", cfg.Semantic.Primary.Name, cfg.Semantic.Primary.Model)
	if fb := cfg.Semantic.Fallback; fb != nil {
		printProvider("Fallback", fb.Name, fb.Model)
	} else {
		printProvider("Fallback", "", "")
	}
	if cfg.Calibration.PostgresDSN != "" {
		fmt.Printf("║  Calibration     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Calibration     : %-19s ║\n", "in-memory")
	}
	if cfg.Server.TLS != nil {
		fmt.Printf("║  TLS             : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  TLS             : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
