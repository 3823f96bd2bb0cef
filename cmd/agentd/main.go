package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codefionn/agentweb/internal/backend"
	"github.com/codefionn/agentweb/internal/config"
	"github.com/codefionn/agentweb/internal/logger"
	"github.com/codefionn/agentweb/internal/pidfile"
	"github.com/codefionn/agentweb/internal/pprof"
	"github.com/spf13/cobra"
)

var version = "dev"

type serveFlags struct {
	configPath    string
	addr          string
	workspaceRoot string
	dbPath        string
	stepDelay     time.Duration
	origins       []string
	logLevel      string
	logStderr     bool
	pidPath       string
	profile       pprof.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:     "agentd",
		Short:   "Development backend for agentweb",
		Long:    "agentd serves the agent HTTP, SSE and WebSocket API with a simulated task runner and a SQLite chat store.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, &f)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file path (default "+config.GetConfigPath()+")")
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&f.workspaceRoot, "workspace-root", "", "directory holding session workspaces")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "chat database path, or :memory:")
	cmd.Flags().DurationVar(&f.stepDelay, "step-delay", 0, "pause between simulated steps")
	cmd.Flags().StringSliceVar(&f.origins, "allow-origin", nil, "allowed CORS origin, repeatable (\"*\" allows any)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error, none")
	cmd.Flags().BoolVar(&f.logStderr, "log-stderr", false, "log to stderr instead of the log file")
	cmd.Flags().StringVar(&f.pidPath, "pidfile", "", "write the process id here and refuse to start if another agentd owns it")
	cmd.Flags().StringVar(&f.profile.HTTPAddr, "pprof-addr", "", "serve /debug/pprof on this address")
	cmd.Flags().StringVar(&f.profile.CPUProfile, "cpu-profile", "", "write a CPU profile to this file")
	cmd.Flags().StringVar(&f.profile.HeapProfile, "heap-profile", "", "write a heap profile to this file on exit")
	return cmd
}

func serve(cmd *cobra.Command, f *serveFlags) error {
	path := f.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()

	sc := cfg.Server
	flags := cmd.Flags()
	if flags.Changed("addr") {
		sc.Addr = f.addr
	}
	if flags.Changed("workspace-root") {
		sc.WorkspaceRoot = f.workspaceRoot
	}
	if flags.Changed("db") {
		sc.DatabasePath = f.dbPath
	}
	if flags.Changed("allow-origin") {
		sc.AllowedOrigins = f.origins
	}
	stepDelay := sc.StepDelay()
	if flags.Changed("step-delay") {
		stepDelay = f.stepDelay
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if f.logStderr {
		logger.SetGlobal(logger.NewWithWriter(level, os.Stderr, ""))
	} else if err := logger.Init(level, cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Global().Close()

	if f.pidPath != "" {
		pf, err := pidfile.Acquire(f.pidPath)
		if err != nil {
			return err
		}
		defer pf.Release()
	}

	if f.profile.Enabled() {
		prof, err := pprof.Start(f.profile)
		if err != nil {
			return err
		}
		defer func() {
			if err := prof.Stop(); err != nil {
				logger.Warn("profiling: %v", err)
			}
		}()
	}

	srv, err := backend.New(backend.Options{
		WorkspaceRoot:  sc.WorkspaceRoot,
		DatabasePath:   sc.DatabasePath,
		AllowedOrigins: sc.AllowedOrigins,
		StepDelay:      stepDelay,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	l, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sc.Addr, err)
	}
	fmt.Fprintf(os.Stderr, "agentd %s listening on http://%s\n", version, l.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, l)
}
