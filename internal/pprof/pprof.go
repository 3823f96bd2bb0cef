// Package pprof exposes runtime profiles of agentd, either over a debug HTTP
// listener or as files written at shutdown.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/codefionn/agentweb/internal/logger"
)

// Config selects which profiles to collect. Empty fields are disabled.
type Config struct {
	HTTPAddr    string // e.g. "localhost:6060"
	CPUProfile  string
	HeapProfile string
}

// Enabled reports whether any profile is requested.
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != "" || c.HeapProfile != ""
}

// Profiler owns the running profiles.
type Profiler struct {
	cfg     Config
	log     *logger.Logger
	server  *http.Server
	addr    net.Addr
	cpuFile *os.File

	mu      sync.Mutex
	stopped bool
}

// Start begins CPU profiling and the debug listener as configured.
func Start(cfg Config) (*Profiler, error) {
	p := &Profiler{cfg: cfg, log: logger.Component("pprof")}

	if cfg.CPUProfile != "" {
		f, err := create(cfg.CPUProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		p.cpuFile = f
	}

	if cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			p.Stop()
			return nil, fmt.Errorf("failed to bind pprof HTTP server: %w", err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)

		p.addr = ln.Addr()
		p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.log.Error("pprof server error: %v", err)
			}
		}()
		p.log.Info("pprof listening on %s", p.addr)
	}
	return p, nil
}

// Addr is the debug listener address, or nil when HTTP mode is off.
func (p *Profiler) Addr() net.Addr { return p.addr }

// Stop flushes the CPU profile, writes the heap profile and shuts down the
// listener. Later calls are no-ops.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true

	var errs []error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
	}

	if p.cfg.HeapProfile != "" {
		if err := writeHeap(p.cfg.HeapProfile); err != nil {
			errs = append(errs, err)
		}
	}

	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown pprof server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
