// Package completion calls the chat model in single or streaming mode.
//
// Streaming replies are re-framed as OpenAI chat.completion.chunk NDJSON
// lines so clients written against the OpenAI wire format can consume them
// unchanged. A stream ends with an explicit frame carrying finish_reason;
// a stream that stops without one was truncated.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/54b3r/ragchat-go/internal/apperr"
)

// Frame is one newline-terminated JSON chunk of a streamed reply.
type Frame []byte

// defaultFinishReason is reported when the model ends a stream without one.
const defaultFinishReason = "stop"

// Config holds the settings for constructing a Client.
type Config struct {
	// Model is the chat model backend.
	Model model.BaseChatModel
	// ModelName is reported in every stream frame.
	ModelName string
	// BufferSize is the number of frames the producer may run ahead of the
	// fastest reader. Defaults to 16.
	BufferSize int
}

// Client runs prompts through a compiled single-node eino chain so global
// callback handlers (tracing) observe every call.
type Client struct {
	runnable  compose.Runnable[[]*schema.Message, *schema.Message]
	modelName string
	buffer    int
	now       func() time.Time
}

// NewClient compiles the chat model into a runnable chain.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("completion: model must not be nil")
	}
	runnable, err := compose.NewChain[[]*schema.Message, *schema.Message]().
		AppendChatModel(cfg.Model).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("completion: compile chain: %w", err)
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		runnable:  runnable,
		modelName: cfg.ModelName,
		buffer:    buffer,
		now:       time.Now,
	}, nil
}

// Complete blocks until the full reply is available.
func (c *Client) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	out, err := c.runnable.Invoke(ctx, msgs)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProvider, err, "completion request failed")
	}
	if out == nil || out.Content == "" {
		return "", apperr.New(apperr.KindProvider, "completion: provider returned no content")
	}
	return out.Content, nil
}

// Stream starts a streamed completion and returns its frames. One producer
// goroutine owns the model stream and the write end of the pipe; it sends a
// frame per non-empty delta, then an end frame on clean EOF. An upstream
// error is forwarded to the reader and no end frame follows.
func (c *Client) Stream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[Frame], error) {
	src, err := c.runnable.Stream(ctx, msgs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "completion stream failed")
	}

	sr, sw := schema.Pipe[Frame](c.buffer)
	enc := &frameEncoder{
		id:      "chatcmpl-" + uuid.NewString(),
		model:   c.modelName,
		created: c.now().Unix(),
	}

	go func() {
		defer sw.Close()
		defer src.Close()

		finish := ""
		for {
			msg, err := src.Recv()
			if errors.Is(err, io.EOF) {
				if finish == "" {
					finish = defaultFinishReason
				}
				sw.Send(enc.frame("", finish))
				return
			}
			if err != nil {
				sw.Send(nil, apperr.Wrap(apperr.KindProvider, err, "completion stream interrupted"))
				return
			}
			if msg == nil {
				continue
			}
			if msg.ResponseMeta != nil && msg.ResponseMeta.FinishReason != "" {
				finish = msg.ResponseMeta.FinishReason
			}
			if msg.Content == "" {
				continue
			}
			if closed := sw.Send(enc.frame(msg.Content, "")); closed {
				return
			}
		}
	}()

	return sr, nil
}

// Tee fans src out to n readers. Every reader sees every frame once, in
// order. Readers buffer independently, so a slow reader never holds back a
// fast one, and closing one reader leaves the others running. src is
// consumed by Tee and closes after all returned readers are closed.
func Tee(src *schema.StreamReader[Frame], n int) []*schema.StreamReader[Frame] {
	return src.Copy(n)
}

type frameEncoder struct {
	id      string
	model   string
	created int64
}

// frame encodes one chunk. It returns the (frame, error) pair expected by
// StreamWriter.Send.
func (e *frameEncoder) frame(content, finish string) (Frame, error) {
	chunk := openai.ChatCompletionStreamResponse{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        openai.ChatCompletionStreamChoiceDelta{Content: content},
			FinishReason: openai.FinishReason(finish),
		}},
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("completion: encode frame: %w", err)
	}
	return append(b, '\n'), nil
}
