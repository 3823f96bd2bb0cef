package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codefionn/agentweb/internal/agent"
	"github.com/codefionn/agentweb/internal/render"
	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [session-id]",
		Short: "Open an interactive chat session",
		Long:  "Reads one message per line from stdin. Without a session id a new chat session is created. Type /quit or send EOF to leave.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			width := a.width()
			client, err := a.newClient(false, func(cc *agent.ClientConfig) {
				cc.OnEvent = func(_ *agent.Session, ev agent.Event) {
					fmt.Fprintln(a.out, render.Event(ev, width))
				}
			})
			if err != nil {
				return err
			}
			defer client.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else if id, err = client.NewChatSession(ctx); err != nil {
				return err
			}

			chat, err := client.DialChat(ctx, id)
			if err != nil {
				return err
			}
			defer chat.Close()
			fmt.Fprintf(os.Stderr, "Chat session %s (type /quit to leave)\n", id)

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-chat.Session().Done():
					fmt.Fprintln(a.out, render.Summary(chat.Session()))
					return chat.Session().Err()
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					if line == "/quit" {
						return nil
					}
					if err := chat.Send(ctx, line); err != nil {
						return err
					}
				}
			}
		},
	}
}
