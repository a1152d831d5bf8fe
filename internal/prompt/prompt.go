// Package prompt assembles the ordered message list sent to the chat model:
// the system prompt, recalled turns, the live session history and finally
// the new user message.
package prompt

import (
	"sort"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragchat-go/internal/store"
)

// Order controls how recalled turns are arranged.
type Order string

const (
	// OrderChronological sorts recalled turns oldest first.
	OrderChronological Order = "chronological"
	// OrderAsReturned keeps the retriever's most-similar-first order.
	OrderAsReturned Order = "as_returned"
)

// Turn is one message of the client-supplied running history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures an Assembler. The zero value (plus a system prompt)
// recalls turns chronologically with no separator and no prefix.
type Options struct {
	// SystemPrompt is always the first message.
	SystemPrompt string
	// HistoryOrder arranges recalled turns. Empty means chronological.
	HistoryOrder Order
	// Separator, when non-empty, is emitted as a system message between
	// recalled turns and the live history. Skipped when nothing was recalled.
	Separator string
	// RecallPrefix is prepended to the content of every recalled turn.
	RecallPrefix string
}

// Assembler builds prompts. It holds no per-request state.
type Assembler struct {
	opts Options
}

// NewAssembler returns an Assembler with the given options.
func NewAssembler(opts Options) *Assembler {
	return &Assembler{opts: opts}
}

// Assemble returns [system, recalled..., separator?, history..., user].
// It never reorders history and never fails.
func (a *Assembler) Assemble(recalled []store.Match, history []Turn, message string) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(recalled)+len(history)+3)
	msgs = append(msgs, schema.SystemMessage(a.opts.SystemPrompt))

	for _, m := range a.arrange(recalled) {
		content := a.opts.RecallPrefix + m.Content
		if m.IsUser {
			msgs = append(msgs, schema.UserMessage(content))
		} else {
			msgs = append(msgs, schema.AssistantMessage(content, nil))
		}
	}

	if a.opts.Separator != "" && len(recalled) > 0 {
		msgs = append(msgs, schema.SystemMessage(a.opts.Separator))
	}

	for _, t := range history {
		msgs = append(msgs, &schema.Message{Role: schema.RoleType(t.Role), Content: t.Content})
	}

	return append(msgs, schema.UserMessage(message))
}

// arrange returns a copy of recalled in the configured order.
func (a *Assembler) arrange(recalled []store.Match) []store.Match {
	out := make([]store.Match, len(recalled))
	copy(out, recalled)
	if a.opts.HistoryOrder == OrderAsReturned {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
