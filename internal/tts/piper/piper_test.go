package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/tts"
)

// fakePiper serves one Wyoming connection at a time and records the last
// synthesize request.
type fakePiper struct {
	ln      net.Listener
	reqs    chan *event
	respond func(w *bufio.Writer)
}

func startFakePiper(t *testing.T, respond func(w *bufio.Writer)) *fakePiper {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakePiper{ln: ln, reqs: make(chan *event, 4), respond: respond}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	return f
}

func (f *fakePiper) serve(conn net.Conn) {
	defer conn.Close()
	evt, _, err := readEvent(bufio.NewReader(conn))
	if err != nil {
		return
	}
	f.reqs <- evt
	w := bufio.NewWriter(conn)
	f.respond(w)
	w.Flush()
}

func (f *fakePiper) addr() string { return f.ln.Addr().String() }

func audioResponse(chunks ...[]byte) func(w *bufio.Writer) {
	return func(w *bufio.Writer) {
		_ = writeEvent(w, event{Type: "audio-start", Data: map[string]any{"rate": 16000, "width": 2, "channels": 1}}, nil)
		for _, c := range chunks {
			_ = writeEvent(w, event{Type: "audio-chunk", Data: map[string]any{"rate": 16000, "width": 2, "channels": 1}}, c)
		}
		_ = writeEvent(w, event{Type: "audio-stop"}, nil)
	}
}

func TestSynthesize(t *testing.T) {
	f := startFakePiper(t, audioResponse([]byte{1, 2, 3, 4}, []byte{5, 6}))
	s := New(config.PiperConfig{Endpoint: "tcp://" + f.addr()})

	res, err := s.Synthesize(context.Background(), "Привет.", tts.SynthesizeOpts{Language: "ru"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	req := <-f.reqs
	if req.Type != "synthesize" {
		t.Errorf("type = %q, want synthesize", req.Type)
	}
	if got := req.Data["text"]; got != "Привет." {
		t.Errorf("text = %v", got)
	}
	voice, _ := req.Data["voice"].(map[string]any)
	if voice["name"] != "ru_RU-irina-medium" {
		t.Errorf("voice = %v, want ru_RU-irina-medium", voice["name"])
	}

	if res.SampleRate != 16000 || res.Channels != 1 || res.ContentType != "audio/wav" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Audio) != 44+6 {
		t.Fatalf("audio length = %d, want 50", len(res.Audio))
	}
	if !bytes.Equal(res.Audio[44:], []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("pcm = %v", res.Audio[44:])
	}
	if rate := binary.LittleEndian.Uint32(res.Audio[24:28]); rate != 16000 {
		t.Errorf("wav rate = %d, want 16000", rate)
	}
}

func TestSynthesizeErrorEvent(t *testing.T) {
	f := startFakePiper(t, func(w *bufio.Writer) {
		_ = writeEvent(w, event{Type: "error", Data: map[string]any{"text": "voice not found"}}, nil)
	})
	s := New(config.PiperConfig{Endpoint: f.addr()})

	_, err := s.Synthesize(context.Background(), "hi", tts.SynthesizeOpts{Language: "en"})
	if err == nil || !strings.Contains(err.Error(), "voice not found") {
		t.Errorf("got %v, want piper error", err)
	}
}

func TestRouting(t *testing.T) {
	s := New(config.PiperConfig{
		Endpoint:  "default:10200",
		Endpoints: map[string]string{"en": "tcp://english:10200"},
		Voices:    map[string]string{"ru": "ru_RU-denis-medium"},
	})

	tests := []struct {
		opts         tts.SynthesizeOpts
		wantVoice    string
		wantEndpoint string
	}{
		{tts.SynthesizeOpts{Language: "ru"}, "ru_RU-denis-medium", "default:10200"},
		{tts.SynthesizeOpts{Language: "en"}, "en_US-lessac-medium", "english:10200"},
		{tts.SynthesizeOpts{Language: "xx"}, "ru_RU-denis-medium", "default:10200"},
		{tts.SynthesizeOpts{Language: "en", Voice: "custom"}, "custom", "english:10200"},
	}
	for _, tt := range tests {
		voice, endpoint := s.route(tt.opts)
		if voice != tt.wantVoice || endpoint != tt.wantEndpoint {
			t.Errorf("route(%+v) = %q, %q; want %q, %q", tt.opts, voice, endpoint, tt.wantVoice, tt.wantEndpoint)
		}
	}
}

func TestSynthesizeNoEndpoint(t *testing.T) {
	s := New(config.PiperConfig{})
	if _, err := s.Synthesize(context.Background(), "hi", tts.SynthesizeOpts{Language: "ru"}); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := s.Synthesize(context.Background(), "", tts.SynthesizeOpts{}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestSynthesizeCancel(t *testing.T) {
	// The server never answers.
	f := startFakePiper(t, func(w *bufio.Writer) { time.Sleep(5 * time.Second) })
	s := New(config.PiperConfig{Endpoint: f.addr()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.reqs
		cancel()
	}()

	start := time.Now()
	_, err := s.Synthesize(ctx, "hi", tts.SynthesizeOpts{})
	if err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("cancellation did not interrupt the read")
	}
}

func TestEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := event{Type: "audio-chunk", Data: map[string]any{"rate": 22050}}
	if err := writeEvent(&buf, in, []byte("pcm")); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}

	first, _, _ := strings.Cut(buf.String(), "\n")
	if !strings.Contains(first, `"data_length":`) || !strings.Contains(first, `"payload_length":3`) {
		t.Errorf("header = %s", first)
	}

	out, payload, err := readEvent(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readEvent: %v", err)
	}
	if out.Type != "audio-chunk" || out.intData("rate", 0) != 22050 || string(payload) != "pcm" {
		t.Errorf("got %+v %q", out, payload)
	}
}

func TestReadEventInlineData(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"type":"error","data":{"text":"old server"}}` + "\n"))
	evt, _, err := readEvent(r)
	if err != nil {
		t.Fatalf("readEvent: %v", err)
	}
	if evt.Data["text"] != "old server" {
		t.Errorf("data = %v", evt.Data)
	}
}
