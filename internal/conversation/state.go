package conversation

import "fmt"

// Phase is the primary state of the turn-taking machine.
type Phase int

const (
	Idle       Phase = iota
	Listening        // a recognition stream is open
	Processing       // an assistant call is in flight
	Speaking         // a reply is being spoken
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase by name in JSON and logs.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is an immutable snapshot of the conversation. A new value is
// published on every transition; a snapshot is never modified afterwards.
type State struct {
	Phase        Phase   `json:"phase"`
	Listening    bool    `json:"listening"`
	Partial      string  `json:"partial"`
	Final        string  `json:"final"`
	Assistant    string  `json:"assistant"`
	Error        string  `json:"error,omitempty"`
	AudioLevel   float64 `json:"audio_level"` // dBFS of the latest input chunk
	Speaking     bool    `json:"speaking"`
	AutoContinue bool    `json:"auto_continue"`
	SessionID    string  `json:"session_id"`
	Locale       string  `json:"locale"`
}
