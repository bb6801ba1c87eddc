package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/novahale/vocalis/internal/calibration"
	"github.com/novahale/vocalis/internal/config"
	"github.com/novahale/vocalis/internal/observe"
	"github.com/novahale/vocalis/pkg/provider/semantic"
	semanticmock "github.com/novahale/vocalis/pkg/provider/semantic/mock"
	"github.com/novahale/vocalis/pkg/provider/vad"
	"github.com/novahale/vocalis/pkg/provider/vad/energy"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met
}

func testRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	reg.RegisterSemantic("mock", func(config.ProviderEntry) (semantic.Provider, error) {
		return &semanticmock.Provider{Result: &semantic.Result{Confidence: 0.5}}, nil
	})
	return reg
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo},
		VAD:    config.VADConfig{Engine: "energy"},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, testRegistry(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCalibrationRepo(calibration.NewMemoryRepository()),
		WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNewWiresEndpoints(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	// The check-in endpoint only speaks websocket, but it must be routed.
	resp, err := http.Get(srv.URL + "/v1/checkin/stream")
	if err != nil {
		t.Fatalf("GET /v1/checkin/stream: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		t.Errorf("GET /v1/checkin/stream status = %d, route not registered", resp.StatusCode)
	}
}

func TestReadyzReportsVADCheck(t *testing.T) {
	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if got := body.Checks["vad"]; got != "ok" {
		t.Errorf("checks[vad] = %q, want %q", got, "ok")
	}
}

func TestNewUnknownVADEngine(t *testing.T) {
	cfg := testConfig()
	cfg.VAD.Engine = "nope"
	_, err := New(context.Background(), cfg, testRegistry(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCalibrationRepo(calibration.NewMemoryRepository()),
		WithMetrics(testMetrics(t)),
	)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("New err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestNewUnknownSemanticProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Semantic.Primary = config.ProviderEntry{Name: "nope"}
	_, err := New(context.Background(), cfg, testRegistry(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCalibrationRepo(calibration.NewMemoryRepository()),
		WithMetrics(testMetrics(t)),
	)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("New err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestNewWithSemanticFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Semantic.Primary = config.ProviderEntry{Name: "mock", Model: "a"}
	cfg.Semantic.Fallback = &config.ProviderEntry{Name: "mock", Model: "b"}
	newTestApp(t, cfg)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := newTestApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	a := newTestApp(t, testConfig())
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
