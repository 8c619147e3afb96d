// Package kernel assembles a context buffer and its collaborators from
// configuration and owns their lifecycle.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/archive"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/config"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/tokenizer"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/version"
)

// Kernel holds a configured buffer and the services behind it.
type Kernel struct {
	Config *config.Config
	Logger *logx.Logger

	Buffer    *contextbuf.Buffer
	Tokenizer contextbuf.Tokenizer
	Archive   archive.Store // nil when the archive backend is "none"
	Registry  *prometheus.Registry
	Stats     *metrics.InternalRecorder

	metricsServer *http.Server
	metricsAddr   net.Addr
	stopped       bool
}

// NewKernel builds every component named by cfg. Nothing is started.
func NewKernel(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	if cfg.Debug.Enabled {
		logx.SetDebug(true)
	}
	if len(cfg.Debug.Domains) > 0 {
		logx.SetDebugDomains(cfg.Debug.Domains)
	}

	k := &Kernel{
		Config:   cfg,
		Logger:   logx.NewLogger("kernel"),
		Registry: prometheus.NewRegistry(),
		Stats:    metrics.NewInternalRecorder(),
	}
	k.Registry.MustRegister(collectors.NewGoCollector())

	var err error
	k.Tokenizer, err = tokenizer.New(ctx, cfg.TokenizerOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	k.Archive, err = archive.Open(ctx, cfg.ArchiveOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	opts := []contextbuf.Option{
		contextbuf.WithRecorder(metrics.Multi{k.Stats, metrics.NewPrometheusRecorder(k.Registry)}),
		contextbuf.WithLogger(logx.NewLogger("contextbuf")),
		contextbuf.WithArchiveWorkers(cfg.Archive.Workers, cfg.Archive.QueueSize),
		contextbuf.WithArchiveWriteTimeout(time.Duration(cfg.Archive.WriteTimeout)),
	}
	if k.Archive != nil {
		opts = append(opts, contextbuf.WithArchive(k.Archive))
	}

	k.Buffer, err = contextbuf.New(cfg.BufferOptions(), k.Tokenizer, opts...)
	if err != nil {
		if k.Archive != nil {
			_ = k.Archive.Close()
		}
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}

	k.Logger.Info("kernel ready: tokenizer=%s archive=%s max_tokens=%d model=%q",
		cfg.Tokenizer.Provider, cfg.Archive.Backend, cfg.Buffer.MaxTokens, cfg.Buffer.ModelID)
	return k, nil
}

// StartMetrics serves the Prometheus registry on addr, or on the configured
// listen address when addr is empty. It returns once the listener is bound.
func (k *Kernel) StartMetrics(addr string) (net.Addr, error) {
	if k.metricsServer != nil {
		return nil, errors.New("metrics server already running")
	}
	if addr == "" {
		addr = k.Config.Metrics.ListenAddr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(k.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok %s\n", version.String())
	})
	k.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	k.metricsAddr = ln.Addr()

	go func() {
		if err := k.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			k.Logger.Error("metrics server: %v", err)
		}
	}()
	k.Logger.Info("serving metrics on http://%s/metrics", ln.Addr())
	return ln.Addr(), nil
}

// Stop closes the buffer, waiting for pending archive writes, then the
// archive and the metrics server. It is safe to call more than once.
func (k *Kernel) Stop(ctx context.Context) error {
	if k.stopped {
		return nil
	}
	k.stopped = true

	var errs []error
	if err := k.Buffer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close buffer: %w", err))
	}
	if k.Archive != nil {
		if err := k.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	if k.metricsServer != nil {
		if err := k.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	k.Logger.Info("kernel stopped: %s", k.Buffer.Summary())
	return errors.Join(errs...)
}
