// Package chat runs one retrieval-augmented chat turn: validate, embed,
// retrieve, assemble, complete, then relay the reply and persist the turn.
//
// Persistence never blocks or fails the reply. In streaming mode the reply
// is teed: one copy goes to the client, the other is drained in the
// background on a context detached from the request, so the turn is stored
// even when the client disconnects mid-stream.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/budget"
	"github.com/54b3r/ragchat-go/internal/completion"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/embedder"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/prompt"
	"github.com/54b3r/ragchat-go/internal/store"
)

// MissingMessage is the validation error text for an empty request message.
const MissingMessage = "Message content is missing"

// Retrieval failure policies.
const (
	RetrievalDegrade = "degrade"
	RetrievalFail    = "fail"
)

// Request is one chat turn as sent by the client.
type Request struct {
	Message string        `json:"message"`
	History []prompt.Turn `json:"history"`
}

// Retriever finds stored turns similar to a vector.
type Retriever interface {
	Search(ctx context.Context, vec []float32, threshold float64, limit int) ([]store.Match, error)
}

// Completer calls the chat model.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
	Stream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[completion.Frame], error)
}

// Recorder persists chat turns.
type Recorder interface {
	RecordTurn(ctx context.Context, msg *store.Message) error
	RecordPair(ctx context.Context, user, assistant *store.Message) error
}

// Config holds the deployment-time settings of a Service.
type Config struct {
	// Mode is config.ModeStreaming or config.ModeSingle.
	Mode string
	// SimilarityThreshold is the minimum similarity of a recalled turn.
	SimilarityThreshold float64
	// MatchCount is the maximum number of recalled turns.
	MatchCount int
	// RetrievalFailure is RetrievalDegrade or RetrievalFail.
	RetrievalFailure string
	// MaxContextTokens is the estimated prompt size above which a warning is
	// logged. Zero disables the check.
	MaxContextTokens int
	// Prompt configures prompt assembly.
	Prompt prompt.Options
}

// ConfigFrom maps the chat section of the application config.
func ConfigFrom(c config.ChatConfig) Config {
	return Config{
		Mode:                c.Mode,
		SimilarityThreshold: c.SimilarityThreshold,
		MatchCount:          c.MatchCount,
		RetrievalFailure:    c.RetrievalFailure,
		MaxContextTokens:    c.MaxContextTokens,
		Prompt: prompt.Options{
			SystemPrompt: c.SystemPrompt,
			HistoryOrder: prompt.Order(c.HistoryOrder),
			Separator:    c.Separator,
			RecallPrefix: c.RecallPrefix,
		},
	}
}

// Deps are the collaborators of a Service.
type Deps struct {
	Embedder   embedder.Embedder
	Retriever  Retriever
	Completion Completer
	Sink       Recorder
	// Metrics is optional; nil registers into a private registry.
	Metrics *Metrics
}

// Service runs chat turns. It is safe for concurrent use; each call owns its
// own buffers and the collaborators are shared stateless handles.
type Service struct {
	cfg       Config
	deps      Deps
	assembler *prompt.Assembler
	metrics   *Metrics

	// bg tracks background persistence so shutdown can wait for it.
	bg sync.WaitGroup
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Embedder == nil:
		return nil, fmt.Errorf("chat: embedder must not be nil")
	case deps.Retriever == nil:
		return nil, fmt.Errorf("chat: retriever must not be nil")
	case deps.Completion == nil:
		return nil, fmt.Errorf("chat: completion client must not be nil")
	case deps.Sink == nil:
		return nil, fmt.Errorf("chat: sink must not be nil")
	}
	switch cfg.Mode {
	case config.ModeStreaming, config.ModeSingle:
	default:
		return nil, apperr.New(apperr.KindConfiguration, fmt.Sprintf("chat: unknown mode %q", cfg.Mode))
	}
	if cfg.RetrievalFailure == "" {
		cfg.RetrievalFailure = RetrievalDegrade
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		cfg:       cfg,
		deps:      deps,
		assembler: prompt.NewAssembler(cfg.Prompt),
		metrics:   metrics,
	}, nil
}

// Mode returns the configured completion mode.
func (s *Service) Mode() string { return s.cfg.Mode }

// Result is the outcome of Handle: Text in single mode, Stream otherwise.
type Result struct {
	Text   string
	Stream *schema.StreamReader[completion.Frame]
}

// Handle runs a turn in the configured mode.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	if s.cfg.Mode == config.ModeSingle {
		text, err := s.Reply(ctx, req)
		return Result{Text: text}, err
	}
	sr, err := s.Stream(ctx, req)
	return Result{Stream: sr}, err
}

// Wait blocks until all background persistence has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

// turn is the per-request state carried between pipeline steps.
type turn struct {
	log  *slog.Logger
	msgs []*schema.Message
	user *store.Message
}

// prepare runs every step before completion. Errors returned here are raised
// before any byte reaches the client.
func (s *Service) prepare(ctx context.Context, req Request) (*turn, error) {
	log := logging.FromContext(ctx).With(slog.String("mode", s.cfg.Mode))

	enter(log, stateReceiving)
	if strings.TrimSpace(req.Message) == "" {
		enter(log, stateErrored, slog.String("kind", string(apperr.KindValidation)))
		return nil, apperr.New(apperr.KindValidation, MissingMessage)
	}

	enter(log, stateEmbedding)
	vec, err := s.deps.Embedder.Embed(ctx, req.Message)
	if err != nil {
		enter(log, stateErrored, slog.String("kind", string(apperr.KindOf(err))))
		return nil, apperr.Wrap(apperr.KindProvider, err, "failed to embed message")
	}

	enter(log, stateRetrieving)
	recalled, err := s.deps.Retriever.Search(ctx, vec, s.cfg.SimilarityThreshold, s.cfg.MatchCount)
	if err != nil {
		if s.cfg.RetrievalFailure == RetrievalFail {
			enter(log, stateErrored, slog.String("kind", string(apperr.KindRetrieval)))
			return nil, apperr.Wrap(apperr.KindRetrieval, err, "failed to match messages")
		}
		log.Error("chat: retrieval failed, continuing without recalled history", slog.Any("error", err))
		s.metrics.retrievalDegraded.Inc()
		recalled = nil
	}

	enter(log, stateAssembling, slog.Int("recalled", len(recalled)), slog.Int("history", len(req.History)))
	msgs := s.assembler.Assemble(recalled, req.History, req.Message)
	if n, over := budget.Exceeds(msgs, s.cfg.MaxContextTokens); over {
		log.Warn("chat: assembled prompt exceeds context budget",
			slog.Int("estimated_tokens", n),
			slog.Int("max_context_tokens", s.cfg.MaxContextTokens),
		)
	}

	return &turn{
		log:  log,
		msgs: msgs,
		user: &store.Message{Content: req.Message, IsUser: true, Embedding: vec},
	}, nil
}

// Reply runs a single-mode turn and returns the full reply. Both messages are
// recorded before returning; storage errors are logged, never returned. When
// completion fails the user message is still recorded.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	enter(t.log, stateCompleting)
	text, err := s.deps.Completion.Complete(ctx, t.msgs)
	if err != nil {
		enter(t.log, statePersistingSync)
		if rerr := s.deps.Sink.RecordTurn(ctx, t.user); rerr != nil {
			t.log.Error("chat: failed to record user message", slog.Any("error", rerr))
		}
		enter(t.log, stateErrored, slog.String("kind", string(apperr.KindOf(err))))
		return "", err
	}

	enter(t.log, statePersistingSync)
	assistant := &store.Message{Content: text}
	if err := s.deps.Sink.RecordPair(ctx, t.user, assistant); err != nil {
		t.log.Error("chat: failed to record turn", slog.Any("error", err))
	}

	enter(t.log, stateDone, slog.Int("reply_chars", len(text)))
	return text, nil
}

// Stream runs a streaming-mode turn and returns the client copy of the
// reply. The caller must drain or close it. Recording the user message and
// accumulating the reply for persistence both happen in the background.
func (s *Service) Stream(ctx context.Context, req Request) (*schema.StreamReader[completion.Frame], error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// Background work keeps the request logger but not its cancellation.
	bgCtx := context.WithoutCancel(logging.WithLogger(ctx, t.log))

	userDone := make(chan struct{})
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer close(userDone)
		if err := s.deps.Sink.RecordTurn(bgCtx, t.user); err != nil {
			t.log.Error("chat: failed to record user message", slog.Any("error", err))
		}
	}()

	enter(t.log, stateCompleting)
	src, err := s.deps.Completion.Stream(bgCtx, t.msgs)
	if err != nil {
		enter(t.log, stateErrored, slog.String("kind", string(apperr.KindOf(err))))
		return nil, err
	}

	copies := completion.Tee(src, 2)
	enter(t.log, stateStreaming)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.persistReply(bgCtx, t.log, copies[1], userDone)
	}()

	return copies[0], nil
}

// persistReply drains the background copy of a stream and records the
// assistant reply once the user message has been handled.
func (s *Service) persistReply(ctx context.Context, log *slog.Logger, frames *schema.StreamReader[completion.Frame], userDone <-chan struct{}) {
	reply := completion.Accumulate(ctx, frames)
	if reply.Malformed > 0 {
		log.Warn("chat: skipped malformed stream frames", slog.Int("count", reply.Malformed))
	}
	if !reply.Finished {
		s.metrics.truncatedReplies.Inc()
		log.Warn("chat: reply stream truncated, persisting partial reply",
			slog.Int("frames", reply.Frames),
			slog.Int("chars", len(reply.Text)),
			slog.Any("error", reply.Err),
		)
	}

	<-userDone
	enter(log, statePersistingAsync)
	if strings.TrimSpace(reply.Text) == "" {
		log.Info("chat: skipping persistence of empty reply")
		return
	}
	if err := s.deps.Sink.RecordTurn(ctx, &store.Message{Content: reply.Text}); err != nil {
		log.Error("chat: failed to record assistant reply", slog.Any("error", err))
		return
	}
	enter(log, stateDone,
		slog.Int("reply_chars", len(reply.Text)),
		slog.Bool("finished", reply.Finished),
		slog.String("finish_reason", reply.FinishReason),
	)
}
