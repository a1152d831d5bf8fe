package completion

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"
)

// Reply is the result of draining a frame stream.
type Reply struct {
	// Text is the concatenation of every delta, in order.
	Text string
	// Finished is true when the end frame was seen. A false value means the
	// stream was truncated and Text is partial.
	Finished bool
	// FinishReason is the end frame's finish_reason.
	FinishReason string
	// Frames counts frames read, including malformed ones.
	Frames int
	// Malformed counts frames that were not valid JSON and were skipped.
	Malformed int
	// Err is the stream error that stopped reading early, if any.
	Err error
}

// Accumulate drains frames and closes it. It returns whatever text arrived
// before EOF, a stream error or ctx cancellation.
func Accumulate(ctx context.Context, frames *schema.StreamReader[Frame]) Reply {
	defer frames.Close()

	var (
		r Reply
		b strings.Builder
	)
	for {
		if err := ctx.Err(); err != nil {
			r.Err = err
			break
		}
		f, err := frames.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.Err = err
			break
		}
		r.Frames++
		if !gjson.ValidBytes(f) {
			r.Malformed++
			continue
		}
		b.WriteString(gjson.GetBytes(f, "choices.0.delta.content").String())
		if fr := gjson.GetBytes(f, "choices.0.finish_reason"); fr.Type == gjson.String && fr.Str != "" {
			r.Finished = true
			r.FinishReason = fr.Str
		}
	}
	r.Text = b.String()
	return r
}
