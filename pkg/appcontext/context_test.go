package appcontext

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestContextRequestID(t *testing.T) {
	testID := "req-1"
	ctx := WithRequestID(context.Background(), testID)

	id, ok := GetRequestID(ctx)
	if !ok || id != testID {
		t.Errorf("Failed to retrieve request id from context. Got: %s, want: %s", id, testID)
	}

	same, id2 := EnsureRequestID(ctx)
	if same != ctx || id2 != testID {
		t.Errorf("EnsureRequestID replaced an existing id: %s", id2)
	}
}

func TestEnsureRequestIDGenerates(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id is not a uuid: %v", err)
	}
	if got, ok := GetRequestID(ctx); !ok || got != id {
		t.Errorf("generated id not stored on context. Got: %s, want: %s", got, id)
	}
}
