package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codefionn/agentweb/internal/agent"
	"github.com/codefionn/agentweb/internal/catalog"
	"github.com/codefionn/agentweb/internal/render"
	"github.com/codefionn/agentweb/internal/securemem"
	"github.com/spf13/cobra"
)

// taskFlags select the provider configuration for a submission.
type taskFlags struct {
	provider  string
	model     string
	apiKey    string
	maxSteps  int
	reconnect bool
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "LLM provider (default from config)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model name (default: provider's first model)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "provider API key (default: provider env var, then prompt)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "maximum agent steps, 1-100 (default from config)")
}

// agentConfig resolves flags against the loaded configuration. The API key
// falls back to the provider's environment variables, then to a prompt when
// stdin is a terminal.
func (f *taskFlags) agentConfig(a *app) (agent.Config, error) {
	provider := a.cfg.Provider
	if f.provider != "" {
		provider = strings.ToLower(strings.TrimSpace(f.provider))
	}
	model := f.model
	if model == "" {
		if provider == a.cfg.Provider {
			model = a.cfg.Model
		} else {
			model = catalog.DefaultModel(provider)
		}
	}
	steps := a.cfg.MaxSteps
	if f.maxSteps != 0 {
		steps = f.maxSteps
	}

	key := catalog.ResolveAPIKey(provider, f.apiKey)
	if key == "" && stdinIsTerminal() {
		prompted, err := promptForSecret(fmt.Sprintf("API key for %s: ", provider))
		if err != nil {
			return agent.Config{}, fmt.Errorf("read API key: %w", err)
		}
		key = prompted
	}

	return agent.Config{
		Provider: provider,
		Model:    model,
		APIKey:   securemem.NewString(key),
		MaxSteps: steps,
	}, nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flags   taskFlags
		attach  string
		quiet   bool
		fromArg string
	)

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Submit a task and follow its event stream",
		Example: `  agentweb run "Create a hello world Python script"
  echo "refactor main.go" | agentweb run -
  agentweb run --attach 3f2a9c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				fromArg = args[0]
			}
			if attach == "" && fromArg == "" {
				return errors.New("a task or --attach is required")
			}
			if fromArg == "-" {
				text, err := readAllStdin()
				if err != nil {
					return err
				}
				fromArg = text
			}
			return a.runTask(cmd.Context(), &flags, fromArg, attach, quiet)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.reconnect, "reconnect", false, "resume the stream after transport errors")
	cmd.Flags().StringVar(&attach, "attach", "", "follow an already running session instead of submitting")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the final summary")
	return cmd
}

func (a *app) runTask(parent context.Context, flags *taskFlags, task, attach string, quiet bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	width := a.width()
	client, err := a.newClient(flags.reconnect, func(cc *agent.ClientConfig) {
		if quiet {
			return
		}
		cc.OnEvent = func(_ *agent.Session, ev agent.Event) {
			fmt.Fprintln(a.out, render.Event(ev, width))
		}
	})
	if err != nil {
		return err
	}
	defer client.Close()

	var session *agent.Session
	if attach != "" {
		session = client.StreamSessionUpdates(attach)
	} else {
		cfg, err := flags.agentConfig(a)
		if err != nil {
			return err
		}
		session, err = client.ExecuteTask(ctx, task, cfg)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "Following session %s\n", session.ID())

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Cancel()
	}

	fmt.Fprintln(a.out, render.Summary(session))
	switch session.Status() {
	case agent.StatusCompleted:
		return nil
	default:
		return fmt.Errorf("session %s ended with status %s", session.ID(), session.Status())
	}
}
