package app

import "github.com/nadzzz/yasna/internal/conversation"

// StateMsg carries a new conversation snapshot.
type StateMsg struct {
	State conversation.State
}

// ClosedMsg is sent when the conversation stops publishing snapshots.
type ClosedMsg struct{}
