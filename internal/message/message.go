// Package message defines the request and response bodies of the
// development control API.
package message

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/nadzzz/yasna/internal/conversation"
)

// MaxAskLength bounds typed input, in runes.
const MaxAskLength = 4000

// AskRequest feeds text straight to the assistant, skipping recognition.
type AskRequest struct {
	// Text is what the user "said".
	Text string `json:"text" example:"What is the weather like?"`
}

// Validate checks the request before it reaches the conversation.
func (r AskRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required, validation.RuneLength(1, MaxAskLength)),
	)
}

// AutoContinueRequest switches listening after a reply on or off.
type AutoContinueRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate requires the flag to be present.
func (r AutoContinueRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

// Accepted acknowledges a command that completes asynchronously. Poll
// GET /state for the outcome.
type Accepted struct {
	Status string `json:"status" example:"accepted"`
}

// SessionResponse carries the id of a freshly started session.
type SessionResponse struct {
	SessionID string `json:"session_id" example:"5f0c1d9e-2a4b-4c7e-9d1f-3b2a1c0e9f8d"`
}

// ErrorResponse is returned with every 4xx and 5xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// State mirrors conversation.State for API clients.
type State struct {
	Phase        string  `json:"phase" example:"idle"`
	Listening    bool    `json:"listening"`
	Partial      string  `json:"partial"`
	Final        string  `json:"final"`
	Assistant    string  `json:"assistant"`
	Error        string  `json:"error,omitempty"`
	AudioLevel   float64 `json:"audio_level"`
	Speaking     bool    `json:"speaking"`
	AutoContinue bool    `json:"auto_continue"`
	SessionID    string  `json:"session_id"`
	Locale       string  `json:"locale"`
}

// FromState converts a conversation snapshot.
func FromState(s conversation.State) State {
	return State{
		Phase:        s.Phase.String(),
		Listening:    s.Listening,
		Partial:      s.Partial,
		Final:        s.Final,
		Assistant:    s.Assistant,
		Error:        s.Error,
		AudioLevel:   s.AudioLevel,
		Speaking:     s.Speaking,
		AutoContinue: s.AutoContinue,
		SessionID:    s.SessionID,
		Locale:       s.Locale,
	}
}
