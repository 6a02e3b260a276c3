package tts

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Player is a Speaker that synthesizes each utterance and pipes the WAV into
// an external player command such as "aplay -q -" or "paplay".
type Player struct {
	synth    Synthesizer
	command  []string
	language string

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewPlayer creates a player speaking in language (ISO-639-1).
func NewPlayer(synth Synthesizer, playerCommand, language string) *Player {
	return &Player{
		synth:    synth,
		command:  strings.Fields(playerCommand),
		language: language,
	}
}

// Speak cancels the utterance in progress and starts a new one.
func (p *Player) Speak(text string, onDone func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.seq++
	id := p.seq
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer cancel()

		p.play(ctx, text)

		p.mu.Lock()
		current := id == p.seq && ctx.Err() == nil
		if current {
			p.cancel = nil
		}
		p.mu.Unlock()

		if current && onDone != nil {
			onDone()
		}
	}()
}

func (p *Player) play(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	res, err := p.synth.Synthesize(ctx, text, SynthesizeOpts{Language: p.language})
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("speech synthesis failed", "error", err, "text_length", len(text))
		}
		return
	}
	if len(p.command) == 0 {
		slog.Warn("no player command configured, dropping audio", "audio_bytes", len(res.Audio))
		return
	}

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = bytes.NewReader(res.Audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("audio player failed", "error", err, "stderr", strings.TrimSpace(stderr.String()))
			return
		}
		slog.Error("starting audio player failed", "command", p.command[0], "error", err)
	}
}

// Stop cancels synthesis or playback in progress.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Close stops playback, waits for the player process to exit and closes the
// synthesizer.
func (p *Player) Close() error {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
	return p.synth.Close()
}
