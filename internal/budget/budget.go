// Package budget estimates the token size of an assembled prompt. The chat
// backends use different tokenizers, so the estimate is a heuristic: ASCII
// text costs one token per 4 characters and every other rune (kana, kanji,
// emoji) costs one token on its own.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the ASCII character-to-token ratio.
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most APIs
	// add to every message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens fits 8k-context models with room for the reply.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	ascii, wide := 0, 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			wide++
		}
	}
	n := wide + ascii/charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count of msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Exceeds reports the estimated size of msgs and whether it is above
// maxTokens. A non-positive maxTokens disables the check.
func Exceeds(msgs []*schema.Message, maxTokens int) (int, bool) {
	n := EstimateMessages(msgs)
	return n, maxTokens > 0 && n > maxTokens
}
