package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/logging"
)

// NewAskCmd constructs the `ragchat ask` command, which runs one chat turn
// from the terminal and prints the reply to stdout.
func NewAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message through the chat pipeline",
		Long: `Send one message through the same pipeline as POST /api/chat.

Similar stored messages are recalled into the prompt, the reply is printed
as it arrives, and both sides of the exchange are stored.

Examples:
  ragchat ask "I felt the urge to bet again today"
  ragchat --config ./dev.yaml ask "what did we talk about yesterday?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.log
			ctx := logging.WithLogger(cmd.Context(), log)

			svcs, err := buildServices(ctx, a.cfg, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() {
				if cerr := svcs.Close(); cerr != nil {
					log.Warn("ask: failed to close store", slog.Any("error", cerr))
				}
			}()

			res, err := svcs.chat.Handle(ctx, chat.Request{Message: strings.Join(args, " ")})
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point, error goes directly to cobra
			}
			if res.Stream == nil {
				_, err = fmt.Fprintln(os.Stdout, res.Text)
				return err
			}
			return printStream(os.Stdout, res)
		},
	}

	return cmd
}

// printStream writes the content delta of every frame to w as it arrives.
func printStream(w io.Writer, res chat.Result) error {
	defer res.Stream.Close()
	for {
		f, err := res.Stream.Recv()
		if errors.Is(err, io.EOF) {
			_, err = fmt.Fprintln(w)
			return err
		}
		if err != nil {
			return fmt.Errorf("ask: stream interrupted: %w", err)
		}
		if _, err := io.WriteString(w, gjson.GetBytes(f, "choices.0.delta.content").String()); err != nil {
			return err
		}
	}
}
