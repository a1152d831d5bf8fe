package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/server"
	"github.com/54b3r/ragchat-go/internal/tracing"
	"github.com/54b3r/ragchat-go/internal/version"
)

// NewServeCmd constructs the `ragchat serve` command, which starts the HTTP
// relay in front of the configured chat model.
func NewServeCmd(a *app) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragchat HTTP server",
		Long: `Start the ragchat HTTP server.

POST /api/chat takes
  {"message":"...","history":[{"role":"user","content":"..."}]}
where message is the new user message and history is the optional live
conversation so far. It answers with the model reply, streamed as
newline-delimited JSON chunks when chat.mode is "streaming". Every user
message and reply is stored and recalled on later turns.

Examples:
  ragchat serve
  ragchat serve --port 9090
  MODEL_PROVIDER=ollama ragchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := a.log
			ctx = logging.WithLogger(ctx, log)

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			handler, flush, ok := tracing.Setup(a.cfg.Tracing)
			if ok {
				tracing.Enable(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			svcs, err := buildServices(ctx, a.cfg, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if cerr := svcs.Close(); cerr != nil {
					log.Warn("serve: failed to close store", slog.Any("error", cerr))
				}
			}()

			var auth server.Authenticator
			if a.cfg.Server.APIKey != "" {
				auth = server.NewStaticKey(a.cfg.Server.APIKey, "")
			}

			srv, err := server.New(server.Deps{
				Chat:      svcs.chat,
				Completer: svcs.completion,
				Searcher:  svcs.searcher,
				Backfill:  svcs.backfill,
			}, &server.Config{
				Host:          a.cfg.Server.Host,
				Port:          a.cfg.Server.Port,
				Logger:        log,
				Pingers:       buildPingers(a.cfg, svcs.store),
				Authenticator: auth,
				Version:       version.Version,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides server.port)")

	return cmd
}
