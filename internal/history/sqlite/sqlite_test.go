package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nadzzz/yasna/internal/history"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()

	b, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := history.New(b, history.DefaultCap)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 205; i++ {
		if err := s.Append(ctx, "default", history.RoleUser, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	turns, err := s.Tail(ctx, "default", 1000)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(turns) != 200 {
		t.Fatalf("len = %d, want 200", len(turns))
	}
	if got := turns[0].Content; got != "msg-5" {
		t.Errorf("oldest = %q, want %q", got, "msg-5")
	}
	if got := turns[199].Content; got != "msg-204" {
		t.Errorf("newest = %q, want %q", got, "msg-204")
	}
}

func TestRetentionIsPerSession(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := history.New(b, 2)
	defer s.Close()
	ctx := context.Background()

	_ = s.Append(ctx, "other", history.RoleUser, "keep me")
	for i := 0; i < 4; i++ {
		_ = s.Append(ctx, "default", history.RoleUser, fmt.Sprintf("msg-%d", i))
	}

	if turns, _ := s.Tail(ctx, "default", 10); len(turns) != 2 {
		t.Errorf("default len = %d, want 2", len(turns))
	}
	turns, _ := s.Tail(ctx, "other", 10)
	if len(turns) != 1 || turns[0].Content != "keep me" {
		t.Errorf("other session = %+v, want one turn", turns)
	}
}

func TestTailOrderAndRoles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Append(ctx, "default", history.RoleUser, "question")
	_ = s.Append(ctx, "default", history.RoleAssistant, "answer")
	_ = s.Append(ctx, "default", history.RoleUser, "follow-up")

	turns, err := s.Tail(ctx, "default", 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Role != history.RoleAssistant || turns[0].Content != "answer" {
		t.Errorf("turns[0] = %+v, want assistant answer", turns[0])
	}
	if turns[1].Role != history.RoleUser || turns[1].Content != "follow-up" {
		t.Errorf("turns[1] = %+v, want user follow-up", turns[1])
	}
	if turns[0].ID >= turns[1].ID {
		t.Errorf("ids not ascending: %d, %d", turns[0].ID, turns[1].ID)
	}
	if turns[1].CreatedAt.IsZero() {
		t.Error("CreatedAt not restored")
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Append(ctx, "default", history.RoleUser, "hi")
	_ = s.Append(ctx, "other", history.RoleUser, "hi")

	if err := s.Clear(ctx, "default"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if turns, _ := s.Tail(ctx, "default", 10); len(turns) != 0 {
		t.Errorf("len = %d after clear, want 0", len(turns))
	}
	if turns, _ := s.Tail(ctx, "other", 10); len(turns) != 1 {
		t.Errorf("other len = %d, want 1", len(turns))
	}
}

func TestOpenFileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	b, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := history.New(b, 0)
	if err := s.Append(ctx, "default", history.RoleUser, "persisted"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	b, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s = history.New(b, 0)
	defer s.Close()

	turns, err := s.Tail(ctx, "default", 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "persisted" {
		t.Errorf("got %+v, want the persisted turn", turns)
	}
}

func TestAppendExchange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendExchange(ctx, "default", "question", "answer"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	turns, err := s.Tail(ctx, "default", 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Role != history.RoleUser || turns[1].Role != history.RoleAssistant {
		t.Errorf("roles = %q, %q, want user then assistant", turns[0].Role, turns[1].Role)
	}
}

func TestAppendExchangeCancelled(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.AppendExchange(ctx, "default", "question", "answer"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	turns, err := s.Tail(context.Background(), "default", 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("stored %d turns, want 0", len(turns))
	}
}
