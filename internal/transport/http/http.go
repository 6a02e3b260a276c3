// Package http implements the HTTP control API for yasna.
//
// The API mirrors the conversation screen's keys so the assistant can be
// driven and inspected without a terminal: typed questions, listening
// toggles, speech control, sessions and the current state snapshot. Every
// command is asynchronous; clients poll GET /state for the outcome.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/nadzzz/yasna/docs" // registers the Swagger spec
	"github.com/nadzzz/yasna/internal/health"
	"github.com/nadzzz/yasna/internal/message"
	"github.com/nadzzz/yasna/internal/transport"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port   int
	health *health.Server
	server *http.Server
}

// New creates a new HTTP transport on the given port. When hs is non-nil its
// /healthz and /readyz endpoints are served as well.
func New(port int, hs *health.Server) *Transport {
	return &Transport{port: port, health: hs}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler builds the API routes for ctrl.
func (t *Transport) Handler(ctrl transport.Controller) http.Handler {
	mux := http.NewServeMux()
	a := &api{ctrl: ctrl}

	mux.HandleFunc("POST /ask", a.handleAsk)
	mux.HandleFunc("POST /toggle", a.handleToggle)
	mux.HandleFunc("POST /repeat", a.handleRepeat)
	mux.HandleFunc("POST /stop", a.handleStop)
	mux.HandleFunc("PUT /auto-continue", a.handleAutoContinue)
	mux.HandleFunc("POST /session", a.handleNewSession)
	mux.HandleFunc("DELETE /session", a.handleClearSession)
	mux.HandleFunc("GET /state", a.handleState)

	if t.health != nil {
		hh := t.health.Handler()
		mux.Handle("GET /healthz", hh)
		mux.Handle("GET /readyz", hh)
	}

	// Swagger UI — serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen starts the HTTP server and forwards requests to ctrl.
func (t *Transport) Listen(ctx context.Context, ctrl transport.Controller) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(ctrl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

type api struct {
	ctrl transport.Controller
}

// handleAsk processes a POST /ask request.
//
// @Summary     Ask the assistant in text
// @Description Sends text to the assistant as if it had been recognized from
// @Description speech. Ignored while a previous question is being processed.
// @Tags        conversation
// @Accept      json
// @Produce     json
// @Param       request  body      message.AskRequest     true  "Question"
// @Success     202      {object}  message.Accepted
// @Failure     400      {object}  message.ErrorResponse  "Invalid body"
// @Router      /ask [post]
func (a *api) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req message.AskRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.ctrl.Ask(req.Text)
	accepted(w)
}

// handleToggle processes a POST /toggle request.
//
// @Summary     Start or stop listening
// @Description Starts a recognition stream, or cancels the open one.
// @Tags        conversation
// @Produce     json
// @Param       locale  query     string  false  "BCP-47 locale, e.g. ru-RU. Defaults to the last one used."
// @Success     202     {object}  message.Accepted
// @Router      /toggle [post]
func (a *api) handleToggle(w http.ResponseWriter, r *http.Request) {
	a.ctrl.Toggle(r.URL.Query().Get("locale"))
	accepted(w)
}

// handleRepeat processes a POST /repeat request.
//
// @Summary     Repeat the last answer
// @Tags        speech
// @Produce     json
// @Success     202  {object}  message.Accepted
// @Router      /repeat [post]
func (a *api) handleRepeat(w http.ResponseWriter, r *http.Request) {
	a.ctrl.RepeatAssistant()
	accepted(w)
}

// handleStop processes a POST /stop request.
//
// @Summary     Stop speaking
// @Tags        speech
// @Produce     json
// @Success     202  {object}  message.Accepted
// @Router      /stop [post]
func (a *api) handleStop(w http.ResponseWriter, r *http.Request) {
	a.ctrl.StopSpeaking()
	accepted(w)
}

// handleAutoContinue processes a PUT /auto-continue request.
//
// @Summary     Toggle listening after each answer
// @Tags        conversation
// @Accept      json
// @Produce     json
// @Param       request  body      message.AutoContinueRequest  true  "Setting"
// @Success     202      {object}  message.Accepted
// @Failure     400      {object}  message.ErrorResponse  "Invalid body"
// @Router      /auto-continue [put]
func (a *api) handleAutoContinue(w http.ResponseWriter, r *http.Request) {
	var req message.AutoContinueRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.ctrl.SetAutoContinue(*req.Enabled)
	accepted(w)
}

// handleNewSession processes a POST /session request.
//
// @Summary     Start a new session
// @Description Switches to a fresh session id. Earlier sessions stay in history.
// @Tags        session
// @Produce     json
// @Success     201  {object}  message.SessionResponse
// @Router      /session [post]
func (a *api) handleNewSession(w http.ResponseWriter, r *http.Request) {
	id := a.ctrl.NewSession()
	writeJSON(w, http.StatusCreated, message.SessionResponse{SessionID: id})
}

// handleClearSession processes a DELETE /session request.
//
// @Summary     Clear the current session
// @Description Deletes the current session's history and clears the screen.
// @Tags        session
// @Produce     json
// @Success     202  {object}  message.Accepted
// @Router      /session [delete]
func (a *api) handleClearSession(w http.ResponseWriter, r *http.Request) {
	a.ctrl.ClearSession()
	accepted(w)
}

// handleState processes a GET /state request.
//
// @Summary     Current conversation state
// @Tags        conversation
// @Produce     json
// @Success     200  {object}  message.State
// @Router      /state [get]
func (a *api) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, message.FromState(a.ctrl.State()))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, message.Accepted{Status: "accepted"})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, message.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
