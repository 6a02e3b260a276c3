// Package whisper implements recognition.Source with an external recorder
// process and a Whisper-compatible transcription endpoint.
//
// The recorder (sox "rec" by default) writes raw PCM until it detects the end
// of the utterance. Input level is reported per chunk while it runs; the
// captured audio is then wrapped as WAV and transcribed in one request, so
// the stream carries no partial transcripts.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/nadzzz/yasna/internal/audio"
	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/recognition"
)

// chunkSize is 100 ms of 16 kHz mono 16-bit audio.
const chunkSize = audio.SampleRate * audio.BytesPerSample / 10

// Transcriber turns a WAV recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}

// Source records one utterance per Listen call and transcribes it.
type Source struct {
	command      []string
	transcriber  Transcriber
	maxUtterance time.Duration
}

// New creates a source from config.
func New(cfg config.RecognitionConfig, t Transcriber) *Source {
	return &Source{
		command:      strings.Fields(cfg.RecorderCommand),
		transcriber:  t,
		maxUtterance: cfg.MaxUtterance,
	}
}

// Listen starts the recorder and returns the event stream.
func (s *Source) Listen(ctx context.Context, locale string) (<-chan recognition.Event, error) {
	if len(s.command) == 0 {
		return nil, errors.New("no recorder command configured")
	}

	var (
		recCtx    context.Context
		cancelRec context.CancelFunc
	)
	if s.maxUtterance > 0 {
		recCtx, cancelRec = context.WithTimeout(ctx, s.maxUtterance)
	} else {
		recCtx, cancelRec = context.WithCancel(ctx)
	}

	events := make(chan recognition.Event, 16)
	st := &stream{
		ctx:      ctx,
		recCtx:   recCtx,
		events:   events,
		language: recognition.Language(locale),
	}

	cmd := exec.CommandContext(recCtx, s.command[0], s.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		cancelRec()
		slog.Error("starting recorder failed", "command", s.command[0], "error", err)
		go func() {
			defer close(events)
			st.send(recognition.ErrorEvent(recognition.ErrUnavailable))
			st.send(recognition.Event{Kind: recognition.End})
		}()
		return events, nil
	}

	slog.Debug("recorder started", "command", s.command[0], "language", st.language)

	go func() {
		defer close(events)
		defer cancelRec()
		s.run(st, cmd, stdout)
	}()
	return events, nil
}

type stream struct {
	ctx      context.Context // cancels the whole stream
	recCtx   context.Context // also expires after max utterance
	events   chan<- recognition.Event
	language string
}

// send delivers ev unless the stream was cancelled.
func (st *stream) send(ev recognition.Event) bool {
	select {
	case st.events <- ev:
		return true
	case <-st.ctx.Done():
		return false
	}
}

func (st *stream) fail(code int) {
	if st.send(recognition.ErrorEvent(code)) {
		st.send(recognition.Event{Kind: recognition.End})
	}
}

func (s *Source) run(st *stream, cmd *exec.Cmd, stdout io.Reader) {
	if !st.send(recognition.Event{Kind: recognition.Ready}) {
		_ = cmd.Wait()
		return
	}

	var pcm bytes.Buffer
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			pcm.Write(buf[:n])
			st.send(recognition.Event{Kind: recognition.Rms, Level: audio.RMSdB(buf[:n])})
		}
		if err != nil {
			break
		}
	}
	waitErr := cmd.Wait()

	if st.ctx.Err() != nil {
		return
	}
	truncated := errors.Is(st.recCtx.Err(), context.DeadlineExceeded)
	if waitErr != nil && !truncated {
		slog.Warn("recorder failed", "error", waitErr, "pcm_bytes", pcm.Len())
		st.fail(recognition.ErrAudio)
		return
	}
	if truncated {
		slog.Info("utterance cut at max length", "max_utterance", s.maxUtterance)
	}
	if pcm.Len() == 0 {
		st.fail(recognition.ErrSpeechTimeout)
		return
	}

	wav := audio.WAV(pcm.Bytes(), audio.SampleRate, audio.Channels, audio.BytesPerSample)
	text, err := s.transcriber.Transcribe(st.ctx, wav, st.language)
	if err != nil {
		if st.ctx.Err() != nil {
			return
		}
		slog.Error("transcription failed", "error", err, "wav_bytes", len(wav))
		st.fail(errorCode(err))
		return
	}

	text = strings.TrimSpace(text)
	slog.Debug("transcription complete", "text_length", len(text), "language", st.language)
	if text != "" && !st.send(recognition.Event{Kind: recognition.Final, Text: text}) {
		return
	}
	st.send(recognition.Event{Kind: recognition.End})
}

// errorCode maps a transcription failure onto a recognition error code.
func errorCode(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return recognition.ErrNetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return recognition.ErrNetworkTimeout
		}
		return recognition.ErrNetwork
	}
	return recognition.ErrServer
}
