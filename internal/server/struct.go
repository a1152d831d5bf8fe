package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragchat-go/internal/backfill"
	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// Authenticator verifies bearer tokens on /api/* routes.
	// If nil, authentication is disabled.
	Authenticator Authenticator
	// Version is reported by GET /api/health.
	Version string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// chatter runs one chat turn. *chat.Service satisfies it.
type chatter interface {
	Handle(ctx context.Context, req chat.Request) (chat.Result, error)
	Mode() string
}

// completer runs a plain completion. *completion.Client satisfies it.
type completer interface {
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
}

// searcher runs a standalone similarity search. *rag.Searcher satisfies it.
type searcher interface {
	Search(ctx context.Context, query string) ([]store.Match, error)
}

// backfiller embeds stored messages. *backfill.Runner satisfies it.
type backfiller interface {
	Run(ctx context.Context) (backfill.Result, error)
	ProcessJobs(ctx context.Context, jobs []backfill.Job) ([]backfill.Job, []backfill.FailedJob)
}

// Deps are the services the HTTP handlers delegate to. Chat is required;
// routes whose dependency is nil are not registered.
type Deps struct {
	Chat      chatter
	Completer completer
	Searcher  searcher
	Backfill  backfiller
}

// Server is the HTTP server that exposes the chat relay.
type Server struct {
	// deps are the services behind the handlers.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server.
	metrics *serverMetrics
}

// queryRequest is the JSON body for POST /api/complete and POST /api/search.
type queryRequest struct {
	// Query is the free text to complete or search for.
	Query string `json:"query"`
}

// errorResponse is the JSON body of every handler error.
type errorResponse struct {
	Error string `json:"error"`
}

// generateResponse is the JSON body returned by POST /api/embeddings/generate.
type generateResponse struct {
	Message  string `json:"message"`
	Embedded int    `json:"embedded"`
	Failed   int    `json:"failed"`
}

// embedResponse is the JSON body returned by POST /api/embed.
type embedResponse struct {
	CompletedJobs []backfill.Job       `json:"completedJobs"`
	FailedJobs    []backfill.FailedJob `json:"failedJobs"`
}

// healthResponse is the JSON body returned by GET /api/health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
