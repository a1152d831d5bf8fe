// Package sink persists chat turns. Empty messages are never written.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/store"
)

// Outcome labels reported to an Observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Observer is notified of every record attempt. It may be nil.
type Observer func(outcome string)

// Sink writes messages to a store.
type Sink struct {
	store   store.Store
	observe Observer
}

// New returns a Sink over s. observe may be nil.
func New(s store.Store, observe Observer) *Sink {
	if observe == nil {
		observe = func(string) {}
	}
	return &Sink{store: s, observe: observe}
}

// RecordTurn inserts msg unless its trimmed content is empty, in which case
// it returns nil without touching the store. Insert failures are returned as
// storage errors.
func (s *Sink) RecordTurn(ctx context.Context, msg *store.Message) error {
	log := logging.FromContext(ctx)
	if strings.TrimSpace(msg.Content) == "" {
		log.Debug("sink: skipping empty message", slog.Bool("is_user", msg.IsUser))
		s.observe(OutcomeSkipped)
		return nil
	}
	if err := s.store.Insert(ctx, msg); err != nil {
		s.observe(OutcomeError)
		return apperr.Wrap(apperr.KindStorage, err, "failed to record message")
	}
	s.observe(OutcomeOK)
	log.Debug("sink: message recorded",
		slog.String("id", msg.ID),
		slog.Bool("is_user", msg.IsUser),
		slog.Int("chars", len(msg.Content)),
	)
	return nil
}

// RecordPair records user then assistant. The assistant is attempted even
// when the user insert failed; both failures are joined.
func (s *Sink) RecordPair(ctx context.Context, user, assistant *store.Message) error {
	return errors.Join(
		s.RecordTurn(ctx, user),
		s.RecordTurn(ctx, assistant),
	)
}
