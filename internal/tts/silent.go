package tts

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

// Silent is a Speaker without audio. It logs each utterance and completes
// after roughly the time it would take to read it aloud, so turn-taking
// behaves as it would with a real voice.
type Silent struct {
	perRune time.Duration
	min     time.Duration
	max     time.Duration

	mu    sync.Mutex
	seq   uint64
	timer *time.Timer
}

// NewSilent creates a speaker that takes perRune per character, clamped to
// [perRune*5, perRune*200].
func NewSilent(perRune time.Duration) *Silent {
	return &Silent{perRune: perRune, min: 5 * perRune, max: 200 * perRune}
}

func (s *Silent) duration(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * s.perRune
	return min(max(d, s.min), s.max)
}

// Speak replaces any pending utterance.
func (s *Silent) Speak(text string, onDone func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	id := s.seq
	d := s.duration(text)

	slog.Info("speaking", "text", text, "duration", d)

	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		current := id == s.seq
		if current {
			s.timer = nil
		}
		s.mu.Unlock()
		if current && onDone != nil {
			onDone()
		}
	})
}

// Stop drops the pending utterance without completing it.
func (s *Silent) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close stops speaking.
func (s *Silent) Close() error {
	s.Stop()
	return nil
}
