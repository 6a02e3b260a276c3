// Package transport defines the interface for the development control
// transports.
//
// Each transport (HTTP, gRPC) exposes the running conversation to local
// tooling. Transports never own conversation state; they forward commands to
// a Controller and report what it publishes.
package transport

import (
	"context"

	"github.com/nadzzz/yasna/internal/conversation"
)

// Controller is the conversation surface transports drive.
type Controller interface {
	Toggle(locale string)
	Ask(text string)
	RepeatAssistant()
	StopSpeaking()
	SetAutoContinue(on bool)
	NewSession() string
	ClearSession()
	State() conversation.State
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts serving and forwards commands to ctrl.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, ctrl Controller) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
