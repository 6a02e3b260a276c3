// Yasna is a voice-driven conversational assistant: it listens, sends what
// it heard to an OpenAI-compatible chat endpoint, and speaks the answer.
//
// Usage:
//
//	yasna [flags]
//	yasna --config /path/to/yasna.yaml
//	yasna --headless   # no terminal screen; drive it over the HTTP API
//
// @title       yasna control API
// @version     1.0
// @description Development control API for the yasna voice assistant.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nadzzz/yasna/internal/app"
	"github.com/nadzzz/yasna/internal/assistant"
	"github.com/nadzzz/yasna/internal/config"
	"github.com/nadzzz/yasna/internal/conversation"
	"github.com/nadzzz/yasna/internal/health"
	"github.com/nadzzz/yasna/internal/history"
	boltbackend "github.com/nadzzz/yasna/internal/history/bolt"
	sqlitebackend "github.com/nadzzz/yasna/internal/history/sqlite"
	"github.com/nadzzz/yasna/internal/recognition"
	"github.com/nadzzz/yasna/internal/recognition/whisper"
	"github.com/nadzzz/yasna/internal/transport"
	grpctransport "github.com/nadzzz/yasna/internal/transport/grpc"
	httptransport "github.com/nadzzz/yasna/internal/transport/http"
	"github.com/nadzzz/yasna/internal/tts"
	"github.com/nadzzz/yasna/internal/tts/piper"

	tea "github.com/charmbracelet/bubbletea"
)

// version is set at build time via ldflags.
var version = "dev"

// silentPerRune approximates reading speed for the silent speaker.
const silentPerRune = 60 * time.Millisecond

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/yasna.local.yaml)")
	headless := flag.Bool("headless", false, "run without the terminal screen")
	flag.Parse()

	if *showVersion {
		fmt.Printf("yasna %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// The screen owns the terminal, so logs go to a file while it runs.
	withScreen := cfg.UI.Enabled && !*headless
	var logOut io.Writer = os.Stderr
	if withScreen {
		f, err := config.SetupLogFile(cfg.Logging.Dir, cfg.Logging.MaxFiles)
		if err != nil {
			slog.Error("failed to open log file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	config.SetupLogging(cfg.Logging, logOut)
	slog.Info("yasna starting", "version", version, "screen", withScreen)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// History.
	store, err := openHistory(cfg.History)
	if err != nil {
		slog.Error("failed to open history", "backend", cfg.History.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Assistant.
	var counter assistant.TokenCounter
	if cfg.Assistant.MaxContextTokens > 0 {
		tc, err := assistant.NewTiktokenCounter(cfg.Assistant.TokenizerEncoding)
		if err != nil {
			slog.Warn("token budget disabled", "encoding", cfg.Assistant.TokenizerEncoding, "error", err)
		} else {
			counter = tc
		}
	}
	asst := assistant.New(cfg.Assistant, store, counter)
	slog.Info("using assistant",
		"base_url", cfg.Assistant.BaseURL,
		"model", cfg.Assistant.Model,
		"history_tail", cfg.Assistant.HistoryTail)

	// Recognition.
	source := whisper.New(cfg.Recognition, whisper.NewTranscriber(cfg.Recognition))
	slog.Info("using recognition",
		"transcriber", cfg.Recognition.Transcriber,
		"endpoint", cfg.Recognition.Endpoint)

	// Speech.
	speaker := newSpeaker(cfg.TTS, cfg.Conversation.Locale)

	conv := conversation.New(cfg.Conversation, source, asst, speaker, store)

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, func() (string, string) {
		st := conv.State()
		return st.Phase.String(), st.SessionID
	})
	if cfg.Server.HealthPort > 0 {
		go func() {
			if err := healthServer.ListenAndServe(ctx); err != nil {
				slog.Error("health server failed", "error", err)
			}
		}()
	}

	convDone := make(chan struct{})
	go func() {
		defer close(convDone)
		if err := conv.Run(ctx); err != nil {
			slog.Error("conversation failed", "error", err)
		}
	}()

	// Initialize enabled transports.
	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port, healthServer))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, healthServer))
	}

	if !withScreen && len(transports) == 0 {
		slog.Warn("headless with no transports enabled; nothing can drive the conversation")
	}

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, conv); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("yasna ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"session", conv.State().SessionID)

	if withScreen {
		p := tea.NewProgram(app.New(conv, cfg.Conversation.Locale), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("screen failed", "error", err)
		}
		cancel()
	} else {
		<-ctx.Done()
	}
	slog.Info("shutting down, draining...")
	healthServer.SetReady(false)

	if err := conv.Close(); err != nil {
		slog.Error("conversation close error", "error", err)
	}
	<-convDone

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("yasna stopped")
}

// openHistory opens the configured history backend.
func openHistory(cfg config.HistoryConfig) (*history.Store, error) {
	var backend history.Backend
	switch cfg.Backend {
	case "bolt":
		b, err := boltbackend.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		b, err := sqlitebackend.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	slog.Info("using history", "backend", cfg.Backend, "path", cfg.Path, "max_per_session", cfg.MaxPerSession)
	return history.New(backend, cfg.MaxPerSession), nil
}

// newSpeaker builds the configured speaker. Piper voices are chosen by the
// language of the conversation locale.
func newSpeaker(cfg config.TTSConfig, locale string) tts.Speaker {
	if cfg.Backend == "silent" {
		slog.Info("using silent speaker")
		return tts.NewSilent(silentPerRune)
	}
	lang := recognition.Language(locale)
	slog.Info("using piper speaker", "language", lang, "player", cfg.PlayerCommand)
	return tts.NewPlayer(piper.New(cfg.Piper), cfg.PlayerCommand, lang)
}
