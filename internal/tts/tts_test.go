package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestHelperPlayer stands in for the audio player process when
// YASNA_HELPER_PLAYER is set.
func TestHelperPlayer(t *testing.T) {
	switch os.Getenv("YASNA_HELPER_PLAYER") {
	case "":
		return
	case "record":
		data, _ := io.ReadAll(os.Stdin)
		_ = os.WriteFile(os.Getenv("YASNA_HELPER_PLAYER_OUT"), data, 0o600)
	case "fail":
		io.Copy(io.Discard, os.Stdin)
		os.Exit(2)
	}
	os.Exit(0)
}

func helperCommand(t *testing.T, mode string) string {
	t.Helper()
	t.Setenv("YASNA_HELPER_PLAYER", mode)
	return os.Args[0] + " -test.run=^TestHelperPlayer$"
}

type fakeSynth struct {
	mu        sync.Mutex
	languages []string
	err       error
	closed    bool
	cancelled atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error) {
	f.mu.Lock()
	f.languages = append(f.languages, opts.Language)
	err := f.err
	f.mu.Unlock()

	if text == "block" {
		<-ctx.Done()
		f.cancelled.Add(1)
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &SynthesizeResult{Audio: []byte("RIFF" + text), ContentType: "audio/wav", SampleRate: 22050, Channels: 1}, nil
}

func (f *fakeSynth) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("onDone not called")
	}
}

func notDone(t *testing.T, done <-chan struct{}, wait time.Duration) {
	t.Helper()
	select {
	case <-done:
		t.Fatal("onDone called for a replaced or stopped utterance")
	case <-time.After(wait):
	}
}

func TestPlayerSpeak(t *testing.T) {
	out := filepath.Join(t.TempDir(), "played.wav")
	cmd := helperCommand(t, "record")
	t.Setenv("YASNA_HELPER_PLAYER_OUT", out)

	synth := &fakeSynth{}
	p := NewPlayer(synth, cmd, "ru")
	defer p.Close()

	done := make(chan struct{})
	p.Speak("Привет.", func() { close(done) })
	waitDone(t, done)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read played audio: %v", err)
	}
	if !bytes.Equal(data, []byte("RIFFПривет.")) {
		t.Errorf("played %q", data)
	}
	if synth.languages[0] != "ru" {
		t.Errorf("language = %q, want ru", synth.languages[0])
	}
}

func TestPlayerReplace(t *testing.T) {
	synth := &fakeSynth{}
	p := NewPlayer(synth, helperCommand(t, "ok"), "ru")
	defer p.Close()

	first := make(chan struct{})
	second := make(chan struct{})
	p.Speak("block", func() { close(first) })
	p.Speak("next", func() { close(second) })

	waitDone(t, second)
	notDone(t, first, 200*time.Millisecond)

	// The replaced synthesis has had time to observe its cancellation.
	if synth.cancelled.Load() != 1 {
		t.Errorf("first synthesis was not cancelled")
	}
}

func TestPlayerStop(t *testing.T) {
	synth := &fakeSynth{}
	p := NewPlayer(synth, helperCommand(t, "ok"), "ru")
	defer p.Close()

	done := make(chan struct{})
	p.Speak("block", func() { close(done) })
	p.Stop()

	notDone(t, done, 200*time.Millisecond)
}

func TestPlayerFailuresStillComplete(t *testing.T) {
	t.Run("synthesis", func(t *testing.T) {
		p := NewPlayer(&fakeSynth{err: errors.New("piper down")}, helperCommand(t, "ok"), "ru")
		defer p.Close()

		done := make(chan struct{})
		p.Speak("hello", func() { close(done) })
		waitDone(t, done)
	})

	t.Run("player", func(t *testing.T) {
		p := NewPlayer(&fakeSynth{}, helperCommand(t, "fail"), "ru")
		defer p.Close()

		done := make(chan struct{})
		p.Speak("hello", func() { close(done) })
		waitDone(t, done)
	})
}

func TestPlayerClose(t *testing.T) {
	synth := &fakeSynth{}
	p := NewPlayer(synth, helperCommand(t, "ok"), "ru")

	p.Speak("block", nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !synth.closed {
		t.Error("synthesizer not closed")
	}

	called := make(chan struct{})
	p.Speak("after close", func() { close(called) })
	notDone(t, called, 100*time.Millisecond)
}

func TestSilent(t *testing.T) {
	s := NewSilent(time.Millisecond)
	defer s.Close()

	start := time.Now()
	done := make(chan struct{})
	s.Speak("hello", func() { close(done) })
	waitDone(t, done)
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("completed after %v, want at least the minimum duration", elapsed)
	}
}

func TestSilentReplaceAndStop(t *testing.T) {
	s := NewSilent(10 * time.Millisecond)
	defer s.Close()

	first := make(chan struct{})
	second := make(chan struct{})
	s.Speak("first utterance", func() { close(first) })
	s.Speak("second", func() { close(second) })
	waitDone(t, second)
	notDone(t, first, 300*time.Millisecond)

	stopped := make(chan struct{})
	s.Speak("stopped", func() { close(stopped) })
	s.Stop()
	notDone(t, stopped, 300*time.Millisecond)
}

func TestSilentDuration(t *testing.T) {
	s := NewSilent(10 * time.Millisecond)
	tests := map[string]time.Duration{
		"":                         50 * time.Millisecond,
		"привет мир":               100 * time.Millisecond,
		string(make([]byte, 1000)): 2 * time.Second,
	}
	for text, want := range tests {
		if got := s.duration(text); got != want {
			t.Errorf("duration(%d runes) = %v, want %v", len([]rune(text)), got, want)
		}
	}
}
