package main

import (
	"fmt"
	"time"

	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/catalog"
	"github.com/codefionn/agentweb/internal/render"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	var flags taskFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check provider, model and API key against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.agentConfig(a)
			if err != nil {
				return err
			}
			client, err := a.newClient(false, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			v := client.ValidateConfig(cmd.Context(), cfg)
			fmt.Fprintln(a.out, render.Validation(v))
			if !v.Valid {
				return fmt.Errorf("configuration rejected")
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newFilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files <session-id>",
		Short: "List the files in a session workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			list := client.WorkspaceFiles(cmd.Context(), args[0])
			fmt.Fprintln(a.out, render.FileTable(list.Files, time.Now()))
			return nil
		},
	}
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <session-id> <path>",
		Short: "Print a workspace file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(false, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			fc := client.FileContent(cmd.Context(), args[0], args[1])
			fmt.Fprintln(a.out, render.FileContent(args[1], fc, a.width()))
			if fc.Type == api.ContentError {
				return fmt.Errorf("could not read %s", args[1])
			}
			return nil
		},
	}
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List known providers and models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(a.out, render.Providers(catalog.Providers()))
			return nil
		},
	}
}
