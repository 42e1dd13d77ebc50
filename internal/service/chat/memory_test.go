package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
)

func TestMemoryService_UpdateAndGet(t *testing.T) {
	users := newMemUserRepo()
	users.users["u1"] = &chatModels.User{ID: "u1"}
	svc := NewMemoryService(users, testLogger())

	blob := "Prefers metric units"
	if err := svc.UpdateMemory(context.Background(), "u1", &blob, true); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	user, err := svc.GetMemory(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if user.Memory == nil || *user.Memory != blob {
		t.Errorf("memory = %v, want %q", user.Memory, blob)
	}
	if !user.MemoryEnabled {
		t.Error("memory should be enabled")
	}
}

func TestMemoryService_DisableKeepsBlob(t *testing.T) {
	users := newMemUserRepo()
	blob := "Works in healthcare"
	users.users["u1"] = &chatModels.User{ID: "u1", Memory: &blob, MemoryEnabled: true}
	svc := NewMemoryService(users, testLogger())

	if err := svc.UpdateMemory(context.Background(), "u1", &blob, false); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}

	user, _ := svc.GetMemory(context.Background(), "u1")
	if user.MemoryEnabled {
		t.Error("memory should be disabled")
	}
	if user.Memory == nil || *user.Memory != blob {
		t.Error("blob should survive disabling")
	}
}

func TestMemoryService_RejectsOversizedBlob(t *testing.T) {
	users := newMemUserRepo()
	users.users["u1"] = &chatModels.User{ID: "u1"}
	svc := NewMemoryService(users, testLogger())

	huge := strings.Repeat("a", maxMemoryBytes+1)
	err := svc.UpdateMemory(context.Background(), "u1", &huge, true)
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestMemoryService_UnknownUser(t *testing.T) {
	svc := NewMemoryService(newMemUserRepo(), testLogger())

	if _, err := svc.GetMemory(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
