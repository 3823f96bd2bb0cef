package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codefionn/agentweb/internal/agent"
	"github.com/codefionn/agentweb/internal/config"
	"github.com/codefionn/agentweb/internal/logger"
	"github.com/codefionn/agentweb/internal/render"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	backend    string
	logLevel   string
}

// app carries the loaded configuration into subcommands.
type app struct {
	flags globalFlags
	cfg   *config.Config
	out   io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:     "agentweb",
		Short:   "Client for a remote coding-agent backend",
		Long:    "agentweb submits tasks to an agent backend, follows their event streams and browses the session workspace.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Global().Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.flags.configPath, "config", "c", "", "config file path (default "+config.GetConfigPath()+")")
	root.PersistentFlags().StringVarP(&a.flags.backend, "backend", "b", "", "backend base URL (overrides config)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error, none")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newFilesCmd(a),
		newCatCmd(a),
		newChatCmd(a),
		newProvidersCmd(a),
	)
	return root
}

func (a *app) init() error {
	path := a.flags.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	if a.flags.backend != "" {
		cfg.BackendURL = strings.TrimSpace(a.flags.backend)
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}
	logger.Debug("agentweb %s using backend %s", version, cfg.BackendURL)

	a.cfg = cfg
	return nil
}

// newClient builds an agent client from the loaded configuration.
func (a *app) newClient(reconnect bool, opts func(*agent.ClientConfig)) (*agent.Client, error) {
	cc := agent.ClientConfig{
		BaseURL:        a.cfg.BackendURL,
		RequestTimeout: a.cfg.RequestTimeout(),
		RecentSessions: a.cfg.RecentSessions,
		Reconnect: agent.ReconnectPolicy{
			Enabled:         reconnect || a.cfg.Stream.Reconnect,
			MaxRetries:      a.cfg.Stream.MaxRetries,
			InitialInterval: a.cfg.Stream.InitialBackoff(),
			MaxInterval:     a.cfg.Stream.MaxBackoff(),
		},
	}
	if opts != nil {
		opts(&cc)
	}
	return agent.NewClient(cc)
}

// width is the terminal width of stdout, or the render default.
func (a *app) width() int {
	if f, ok := a.out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			return w
		}
	}
	return render.DefaultWidth
}
