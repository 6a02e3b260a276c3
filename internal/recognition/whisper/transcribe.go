package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nadzzz/yasna/internal/config"
)

// NewTranscriber picks the transcriber named by cfg.Transcriber.
func NewTranscriber(cfg config.RecognitionConfig) Transcriber {
	if cfg.Transcriber == "asr" {
		return NewASRTranscriber(cfg)
	}
	return NewOpenAITranscriber(cfg)
}

// OpenAITranscriber calls an OpenAI-compatible /audio/transcriptions
// endpoint (OpenAI, Groq, faster-whisper-server, whisper.cpp server).
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber creates a transcriber for cfg.Endpoint, the API base
// URL (e.g. "http://localhost:8000/v1").
func NewOpenAITranscriber(cfg config.RecognitionConfig) *OpenAITranscriber {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}
}

// Transcribe uploads the recording and returns its text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return resp.Text, nil
}

// ASRTranscriber calls ahmetoner/whisper-asr-webservice.
// API: POST /asr?task=transcribe&language=ru&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file".
type ASRTranscriber struct {
	endpoint  string
	vadFilter bool
	client    *http.Client
}

// NewASRTranscriber creates a transcriber for cfg.Endpoint, the full /asr URL.
func NewASRTranscriber(cfg config.RecognitionConfig) *ASRTranscriber {
	return &ASRTranscriber{
		endpoint:  cfg.Endpoint,
		vadFilter: cfg.VADFilter,
		client:    &http.Client{},
	}
}

// Transcribe uploads the recording and returns its text.
func (t *ASRTranscriber) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio_file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if language != "" {
		q.Set("language", language)
	}
	if t.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := t.endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	slog.Debug("whisper-asr request", "url", reqURL, "wav_bytes", len(wav))

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("asr transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("asr transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding asr response: %w", err)
	}
	return result.Text, nil
}
