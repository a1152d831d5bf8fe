package chat

import (
	"context"
	"log/slog"
)

// state names a step of the turn pipeline.
type state string

const (
	stateReceiving       state = "receiving_request"
	stateEmbedding       state = "embedding"
	stateRetrieving      state = "retrieving"
	stateAssembling      state = "assembling"
	stateCompleting      state = "completing"
	stateStreaming       state = "streaming_to_client"
	statePersistingAsync state = "persisting_async"
	statePersistingSync  state = "persisting_sync"
	stateDone            state = "done"
	stateErrored         state = "errored"
)

// enter logs a state transition. Errored is logged at WARN, the rest at DEBUG.
func enter(log *slog.Logger, s state, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if s == stateErrored {
		level = slog.LevelWarn
	}
	log.LogAttrs(context.Background(), level, "chat: state", append([]slog.Attr{slog.String("state", string(s))}, attrs...)...)
}
