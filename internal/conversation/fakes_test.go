package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/recognition"
)

// fakeStream is one recognition stream whose events the test feeds by hand.
// It ignores cancellation on purpose so stale events can reach the loop.
type fakeStream struct {
	locale string
	ctx    context.Context
	ch     chan recognition.Event
	once   sync.Once
}

func (s *fakeStream) send(evs ...recognition.Event) {
	for _, ev := range evs {
		s.ch <- ev
	}
}

func (s *fakeStream) close() { s.once.Do(func() { close(s.ch) }) }

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
}

func (f *fakeSource) Listen(ctx context.Context, locale string) (<-chan recognition.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeStream{locale: locale, ctx: ctx, ch: make(chan recognition.Event, 16)}
	f.streams = append(f.streams, s)
	return s.ch, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeSource) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeSource) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.streams {
		s.close()
	}
}

type chatCall struct {
	session string
	text    string
}

type chatResult struct {
	answer string
	err    error
}

// fakeAssistant answers from results, blocking until the test provides one.
type fakeAssistant struct {
	mu      sync.Mutex
	calls   []chatCall
	results chan chatResult
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{results: make(chan chatResult, 8)}
}

func (f *fakeAssistant) Chat(ctx context.Context, sessionID, userText string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chatCall{session: sessionID, text: userText})
	f.mu.Unlock()

	select {
	case r := <-f.results:
		return r.answer, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeAssistant) reply(answer string) { f.results <- chatResult{answer: answer} }
func (f *fakeAssistant) fail(err error)      { f.results <- chatResult{err: err} }

func (f *fakeAssistant) callList() []chatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatCall(nil), f.calls...)
}

// fakeSpeaker records utterances and completes one only when told to.
type fakeSpeaker struct {
	mu     sync.Mutex
	texts  []string
	dones  []func()
	stops  int
	closed bool
}

func (f *fakeSpeaker) Speak(text string, onDone func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.dones = append(f.dones, onDone)
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSpeaker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// finish fires the completion callback of the i-th utterance.
func (f *fakeSpeaker) finish(i int) {
	f.mu.Lock()
	done := f.dones[i]
	f.mu.Unlock()
	done()
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeSpeaker) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeHistory struct {
	mu      sync.Mutex
	cleared []string
	err     error
}

func (f *fakeHistory) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	return f.err
}

func (f *fakeHistory) clearedList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

var errBoom = errors.New("boom")

type harness struct {
	o    *Orchestrator
	src  *fakeSource
	chat *fakeAssistant
	spk  *fakeSpeaker
	hist *fakeHistory
}

func testConfig() config.ConversationConfig {
	return config.ConversationConfig{
		Locale:       "ru-RU",
		Session:      "default",
		PartialLimit: 200,
	}
}

func newHarness(t *testing.T, cfg config.ConversationConfig) *harness {
	t.Helper()
	h := &harness{
		src:  &fakeSource{},
		chat: newFakeAssistant(),
		spk:  &fakeSpeaker{},
		hist: &fakeHistory{},
	}
	h.o = New(cfg, h.src, h.chat, h.spk, h.hist)

	go h.o.Run(context.Background())
	t.Cleanup(func() {
		h.o.Close()
		h.src.closeAll()
	})
	return h
}

// waitFor polls the snapshot until cond holds.
func waitFor(t *testing.T, o *Orchestrator, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := o.State()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; state = %+v", what, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func phaseIs(p Phase) func(State) bool {
	return func(s State) bool { return s.Phase == p }
}
