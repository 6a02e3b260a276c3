// Package conversation implements the turn-taking state machine: listen,
// ask the assistant, speak the reply, and optionally listen again.
//
// All transitions run on one goroutine (Run). Public methods post closures
// into that loop, recognition events and assistant results are funnelled
// through it too, and observers read copy-on-write snapshots.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nadzzz/yasna/internal/audio"
	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/recognition"
	"github.com/nadzzz/yasna/internal/sanitize"
	"github.com/nadzzz/yasna/internal/tts"
)

// Assistant answers one user utterance within a session.
type Assistant interface {
	Chat(ctx context.Context, sessionID, userText string) (string, error)
}

// History is the part of the history store the orchestrator manages
// directly.
type History interface {
	Clear(ctx context.Context, sessionID string) error
}

// opsBuffer absorbs bursts of posted work, such as a fast recognition
// stream, without blocking producers.
const opsBuffer = 64

// Orchestrator owns one conversation.
type Orchestrator struct {
	source    recognition.Source
	assistant Assistant
	speaker   tts.Speaker
	history   History
	cfg       config.ConversationConfig

	ops       chan func()
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	state atomic.Pointer[State]

	subMu      sync.Mutex
	subs       map[chan State]struct{}
	subsClosed bool

	// Owned by the loop goroutine.
	ctx         context.Context
	stopListen  context.CancelFunc
	generation  uint64
	speechToken uint64
	lastLocale  string
}

// New creates an orchestrator. history may be nil, in which case
// ClearSession only clears the screen.
func New(cfg config.ConversationConfig, source recognition.Source, assistant Assistant, speaker tts.Speaker, history History) *Orchestrator {
	if cfg.PartialLimit <= 0 {
		cfg.PartialLimit = 200
	}
	if cfg.Session == "" {
		cfg.Session = "default"
	}

	o := &Orchestrator{
		source:     source,
		assistant:  assistant,
		speaker:    speaker,
		history:    history,
		cfg:        cfg,
		ops:        make(chan func(), opsBuffer),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		subs:       make(map[chan State]struct{}),
		lastLocale: cfg.Locale,
	}
	o.state.Store(&State{
		Phase:        Idle,
		AudioLevel:   audio.SilenceDB,
		AutoContinue: cfg.AutoContinue,
		SessionID:    cfg.Session,
		Locale:       cfg.Locale,
	})
	return o
}

// Run processes transitions until ctx is cancelled or Close is called, then
// cancels recognition and any assistant call and closes the speaker.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.running.Store(true)
	ctx, cancel := context.WithCancel(ctx)
	o.ctx = ctx
	defer close(o.done)
	defer cancel()
	defer o.teardown()

	slog.Info("conversation started", "session", o.State().SessionID, "locale", o.lastLocale)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.closing:
			return nil
		case op := <-o.ops:
			op()
		}
	}
}

// Close stops the loop and waits for teardown.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() { close(o.closing) })
	if o.running.Load() {
		<-o.done
	}
	return nil
}

func (o *Orchestrator) teardown() {
	o.cancelStream()
	if err := o.speaker.Close(); err != nil {
		slog.Warn("closing speaker", "error", err)
	}

	o.subMu.Lock()
	o.subsClosed = true
	for ch := range o.subs {
		close(ch)
		delete(o.subs, ch)
	}
	o.subMu.Unlock()

	slog.Info("conversation stopped", "session", o.State().SessionID)
}

// post queues op for the loop. It reports false once the loop is shutting
// down.
func (o *Orchestrator) post(op func()) bool {
	select {
	case o.ops <- op:
		return true
	case <-o.closing:
		return false
	case <-o.done:
		return false
	}
}

// State returns the current snapshot.
func (o *Orchestrator) State() State {
	return *o.state.Load()
}

// Subscribe returns a channel that always holds the latest snapshot,
// starting with the current one. Slow readers skip intermediate snapshots.
// The channel is closed on unsubscribe or when the orchestrator stops.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	ch <- o.State()

	o.subMu.Lock()
	if o.subsClosed {
		close(ch)
	} else {
		o.subs[ch] = struct{}{}
	}
	o.subMu.Unlock()

	return ch, func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if _, ok := o.subs[ch]; ok {
			delete(o.subs, ch)
			close(ch)
		}
	}
}

// update applies fn to a copy of the current snapshot and publishes it.
func (o *Orchestrator) update(fn func(s *State)) {
	s := *o.state.Load()
	fn(&s)
	o.state.Store(&s)

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Toggle starts listening, or cancels listening if a stream is open. It is
// ignored while an assistant call is in flight. Toggling while a reply is
// being spoken interrupts it. An empty locale reuses the last one.
func (o *Orchestrator) Toggle(locale string) {
	o.post(func() {
		switch o.State().Phase {
		case Processing:
			slog.Debug("toggle ignored while processing")
		case Listening:
			o.cancelStream()
			o.update(func(s *State) {
				s.Phase = Idle
				s.Listening = false
			})
			slog.Info("listening cancelled")
		default:
			o.startListening(locale)
		}
	})
}

// Ask feeds text straight into processing, bypassing recognition. Blank
// text and calls while processing are ignored.
func (o *Orchestrator) Ask(text string) {
	o.post(func() {
		if strings.TrimSpace(text) == "" || o.State().Phase == Processing {
			return
		}
		o.cancelStream()
		o.stopSpeech()
		o.update(func(s *State) {
			s.Phase = Processing
			s.Listening = false
			s.Partial = ""
			s.Final = sanitize.ForDisplay(text)
			s.Assistant = ""
			s.Error = ""
		})
		o.process(text)
	})
}

// RepeatAssistant speaks the displayed assistant text again. It never
// triggers auto-continue.
func (o *Orchestrator) RepeatAssistant() {
	o.post(func() {
		text := o.State().Assistant
		if strings.TrimSpace(text) == "" {
			return
		}
		o.speak(sanitize.ForSpeech(text), false)
	})
}

// StopSpeaking halts synthesis in any phase.
func (o *Orchestrator) StopSpeaking() {
	o.post(o.stopSpeech)
}

// SetAutoContinue enables or disables listening again after a reply.
func (o *Orchestrator) SetAutoContinue(on bool) {
	o.post(func() {
		o.update(func(s *State) { s.AutoContinue = on })
	})
}

// NewSession switches to a fresh session and returns its id. Earlier
// sessions stay in history.
func (o *Orchestrator) NewSession() string {
	id := uuid.NewString()
	o.post(func() {
		o.update(func(s *State) {
			s.SessionID = id
			clearTexts(s)
		})
		slog.Info("new session", "session", id)
	})
	return id
}

// ClearSession deletes the current session's history and clears the screen.
func (o *Orchestrator) ClearSession() {
	o.post(func() {
		session := o.State().SessionID
		o.update(clearTexts)
		if o.history == nil {
			return
		}
		ctx := o.ctx
		go func() {
			err := o.history.Clear(ctx, session)
			if err == nil {
				slog.Info("session cleared", "session", session)
				return
			}
			slog.Error("clearing session failed", "session", session, "error", err)
			o.post(func() {
				o.update(func(s *State) { s.Error = "History error: " + err.Error() })
			})
		}()
	})
}

func clearTexts(s *State) {
	s.Partial = ""
	s.Final = ""
	s.Assistant = ""
	s.Error = ""
}

// startListening opens a new recognition stream, cancelling the previous
// one. Events carry the stream's generation so late events from a
// cancelled stream are dropped.
func (o *Orchestrator) startListening(locale string) {
	if locale == "" {
		locale = o.lastLocale
	}
	o.lastLocale = locale

	o.stopSpeech()
	o.cancelStream()
	o.generation++
	gen := o.generation

	ctx, cancel := context.WithCancel(o.ctx)
	o.stopListen = cancel

	o.update(func(s *State) {
		s.Phase = Listening
		s.Listening = true
		s.Partial = ""
		s.Error = ""
		s.Locale = locale
	})

	events, err := o.source.Listen(ctx, locale)
	if err != nil {
		cancel()
		o.stopListen = nil
		slog.Error("starting recognition failed", "error", err)
		o.update(func(s *State) {
			s.Phase = Idle
			s.Listening = false
			s.Error = recognition.ErrorMessage(recognition.ErrUnavailable) + ": " + err.Error()
		})
		return
	}

	slog.Info("listening", "locale", locale, "session", o.State().SessionID)

	go func() {
		for ev := range events {
			if !o.post(func() { o.onRecognition(gen, ev) }) {
				cancel()
				return
			}
		}
	}()
}

// cancelStream closes the open recognition stream, if any, and invalidates
// its pending events.
func (o *Orchestrator) cancelStream() {
	if o.stopListen != nil {
		o.stopListen()
		o.stopListen = nil
	}
	o.generation++
}

func (o *Orchestrator) onRecognition(gen uint64, ev recognition.Event) {
	if gen != o.generation || o.State().Phase != Listening {
		return
	}

	switch ev.Kind {
	case recognition.Ready:
		o.update(func(s *State) {
			s.Partial = ""
			s.AudioLevel = audio.SilenceDB
		})

	case recognition.Rms:
		o.update(func(s *State) { s.AudioLevel = ev.Level })

	case recognition.Partial:
		partial := sanitize.Truncate(sanitize.ForDisplay(ev.Text), o.cfg.PartialLimit)
		o.update(func(s *State) { s.Partial = partial })

	case recognition.Final:
		o.cancelStream()
		o.update(func(s *State) {
			s.Phase = Processing
			s.Listening = false
			s.Partial = ""
			s.Final = sanitize.ForDisplay(ev.Text)
			s.Error = ""
		})
		o.process(ev.Text)

	case recognition.Error:
		o.cancelStream()
		slog.Warn("recognition error", "code", ev.Code, "message", ev.Message)
		o.update(func(s *State) {
			s.Phase = Idle
			s.Listening = false
			s.Error = ev.Message
		})

	case recognition.End:
		o.cancelStream()
		o.update(func(s *State) {
			s.Phase = Idle
			s.Listening = false
		})
	}
}

// process sends the transcript to the assistant off the loop and posts the
// outcome back.
func (o *Orchestrator) process(text string) {
	session := o.State().SessionID
	ctx := o.ctx
	text = strings.TrimSpace(text)

	slog.Info("asking assistant", "session", session, "text_length", len(text))

	go func() {
		answer, err := o.assistant.Chat(ctx, session, text)
		o.post(func() { o.onAnswer(answer, err) })
	}()
}

func (o *Orchestrator) onAnswer(answer string, err error) {
	if o.State().Phase != Processing {
		return
	}
	if err != nil {
		slog.Error("assistant call failed", "error", err, "session", o.State().SessionID)
		o.update(func(s *State) {
			s.Phase = Idle
			s.Speaking = false
			s.Error = "Assistant error: " + err.Error()
		})
		return
	}

	display := sanitize.ForDisplay(answer)
	o.update(func(s *State) { s.Assistant = display })
	o.speak(sanitize.ForSpeech(answer), true)
}

// speak stops any utterance in progress and starts text under a fresh
// speech token. Only the completion carrying the current token counts.
// Replies from the main flow own the Speaking phase and may auto-continue;
// repeats only take the phase when idle.
func (o *Orchestrator) speak(text string, reply bool) {
	o.speaker.Stop()
	o.speechToken++
	token := o.speechToken

	o.update(func(s *State) {
		s.Speaking = true
		if reply || s.Phase == Idle {
			s.Phase = Speaking
		}
	})

	if text == "" {
		o.onSpeechDone(token, reply)
		return
	}
	o.speaker.Speak(text, func() {
		o.post(func() { o.onSpeechDone(token, reply) })
	})
}

func (o *Orchestrator) onSpeechDone(token uint64, reply bool) {
	if token != o.speechToken {
		return
	}
	st := o.State()
	if reply && st.AutoContinue && st.Phase == Speaking {
		o.update(func(s *State) { s.Speaking = false })
		o.startListening(o.lastLocale)
		return
	}
	o.update(func(s *State) {
		s.Speaking = false
		if s.Phase == Speaking {
			s.Phase = Idle
		}
	})
}

// stopSpeech silences the speaker and retires the current token so a late
// completion of the stopped utterance is ignored.
func (o *Orchestrator) stopSpeech() {
	o.speaker.Stop()
	o.speechToken++
	if st := o.State(); st.Speaking || st.Phase == Speaking {
		o.update(func(s *State) {
			s.Speaking = false
			if s.Phase == Speaking {
				s.Phase = Idle
			}
		})
	}
}

// flush waits until every operation posted before it has run.
func (o *Orchestrator) flush() {
	done := make(chan struct{})
	if o.post(func() { close(done) }) {
		select {
		case <-done:
		case <-o.done:
		}
	}
}
