package assistant

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with a tiktoken BPE encoding. The endpoint's own
// tokenizer may differ; cl100k_base is a close enough estimate for a budget.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Per-message and per-request framing overhead of the chat format.
const (
	messageOverhead = 4
	replyOverhead   = 3
)

func countMessages(c TokenCounter, system openai.ChatCompletionMessage, past []openai.ChatCompletionMessage, user openai.ChatCompletionMessage) int {
	n := replyOverhead
	count := func(m openai.ChatCompletionMessage) {
		n += messageOverhead + c.Count(m.Role) + c.Count(m.Content)
	}
	count(system)
	for _, m := range past {
		count(m)
	}
	count(user)
	return n
}
