// Package history persists conversation turns per session and keeps each
// session trimmed to a fixed number of recent turns.
package history

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultCap is the number of turns kept per session when none is configured.
const DefaultCap = 200

// MaxSessionLength bounds session identifiers.
const MaxSessionLength = 128

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one stored message.
type Turn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields a backend relies on. Content may be empty: a
// model can legitimately answer with nothing.
func (t Turn) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.SessionID, validation.Required, validation.Length(1, MaxSessionLength)),
		validation.Field(&t.Role, validation.Required, validation.In(RoleUser, RoleAssistant, RoleSystem)),
	)
}

// Backend is the persistence engine behind a Store.
type Backend interface {
	// Insert stores turns in order within one transaction: either all of
	// them land or none do.
	Insert(ctx context.Context, turns ...Turn) error

	// Latest returns up to limit turns of a session, newest first, ordered
	// by timestamp and then id.
	Latest(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Prune deletes all but the keep most recent turns of a session.
	Prune(ctx context.Context, sessionID string, keep int) error

	// Delete removes every turn of a session.
	Delete(ctx context.Context, sessionID string) error

	Close() error
}

// Store is the history API used by the assistant client and orchestrator.
type Store struct {
	backend Backend
	cap     int
	now     func() time.Time
}

// New wraps a backend. A non-positive cap selects DefaultCap.
func New(backend Backend, cap int) *Store {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Store{backend: backend, cap: cap, now: time.Now}
}

// Cap returns the per-session retention limit.
func (s *Store) Cap() int { return s.cap }

// Append records a turn stamped with the current time and prunes the session
// back to the retention cap. Other sessions are untouched.
func (s *Store) Append(ctx context.Context, sessionID string, role Role, content string) error {
	t := Turn{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid turn: %w", err)
	}

	if err := s.backend.Insert(ctx, t); err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return s.prune(ctx, sessionID)
}

// AppendExchange records a user turn and the assistant's answer as one unit.
// If the write fails neither turn is stored.
func (s *Store) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	now := s.now()
	turns := []Turn{
		{SessionID: sessionID, Role: RoleUser, Content: question, CreatedAt: now},
		{SessionID: sessionID, Role: RoleAssistant, Content: answer, CreatedAt: now},
	}
	for _, t := range turns {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid turn: %w", err)
		}
	}

	if err := s.backend.Insert(ctx, turns...); err != nil {
		return fmt.Errorf("inserting exchange: %w", err)
	}
	return s.prune(ctx, sessionID)
}

func (s *Store) prune(ctx context.Context, sessionID string) error {
	if err := s.backend.Prune(ctx, sessionID, s.cap); err != nil {
		return fmt.Errorf("pruning session %q: %w", sessionID, err)
	}
	return nil
}

// Tail returns up to limit most recent turns of a session, oldest first.
func (s *Store) Tail(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	turns, err := s.backend.Latest(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Clear deletes every turn of a session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.backend.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing session %q: %w", sessionID, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
