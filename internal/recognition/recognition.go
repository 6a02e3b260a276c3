// Package recognition defines the speech recognition event stream the
// conversation consumes, independent of how audio is captured or transcribed.
package recognition

import (
	"context"
	"fmt"
	"strings"
)

// Kind tags a recognition event.
type Kind int

const (
	Ready   Kind = iota // capture started
	Partial             // interim transcript
	Final               // final, non-blank transcript
	Rms                 // input level in dBFS
	Error               // recognition failed; End follows
	End                 // stream is done; the channel closes next
)

func (k Kind) String() string {
	switch k {
	case Ready:
		return "ready"
	case Partial:
		return "partial"
	case Final:
		return "final"
	case Rms:
		return "rms"
	case Error:
		return "error"
	case End:
		return "end"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one item of a recognition stream. Which fields are set depends on
// Kind: Text for Partial and Final, Level for Rms, Code and Message for Error.
type Event struct {
	Kind    Kind
	Text    string
	Level   float64
	Code    int
	Message string
}

// Source starts recognition streams.
//
// A stream delivers Ready, then any number of Partial and Rms events, then
// exactly one terminal sequence (Final then End, Error then End, or End
// alone) and is closed. Cancelling ctx stops capture, releases the recorder
// and closes the channel without a terminal event.
type Source interface {
	Listen(ctx context.Context, locale string) (<-chan Event, error)
}

// Error codes, numbered like the platform recognizers that popularised them.
const (
	ErrUnavailable             = -1
	ErrNetworkTimeout          = 1
	ErrNetwork                 = 2
	ErrAudio                   = 3
	ErrServer                  = 4
	ErrClient                  = 5
	ErrSpeechTimeout           = 6
	ErrNoMatch                 = 7
	ErrRecognizerBusy          = 8
	ErrInsufficientPermissions = 9
)

// ErrorMessage returns the user-facing text for an error code.
func ErrorMessage(code int) string {
	switch code {
	case ErrUnavailable:
		return "Recognition service unavailable"
	case ErrNetworkTimeout:
		return "Network timeout"
	case ErrNetwork:
		return "Network problem"
	case ErrAudio:
		return "Audio problem"
	case ErrServer:
		return "Server error"
	case ErrClient:
		return "Client error"
	case ErrSpeechTimeout:
		return "No speech"
	case ErrNoMatch:
		return "Could not recognize"
	case ErrRecognizerBusy:
		return "Recognizer busy"
	case ErrInsufficientPermissions:
		return "No permission"
	}
	return fmt.Sprintf("Unknown error (%d)", code)
}

// ErrorEvent builds an Error event with the standard message for code.
func ErrorEvent(code int) Event {
	return Event{Kind: Error, Code: code, Message: ErrorMessage(code)}
}

// Language returns the ISO-639-1 part of a BCP-47 locale: "ru-RU" and
// "ru_RU" give "ru".
func Language(locale string) string {
	lang, _, _ := strings.Cut(strings.ReplaceAll(locale, "_", "-"), "-")
	return strings.ToLower(lang)
}
