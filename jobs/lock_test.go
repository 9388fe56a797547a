package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Obtain(ctx, "k", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Obtain(ctx, "k", time.Minute); !errors.Is(err, models.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if _, err := l.Obtain(ctx, "other", time.Minute); err != nil {
		t.Fatalf("independent keys must not contend: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	stale, err := l.Obtain(ctx, "k", time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := l.Obtain(ctx, "k", time.Minute); err != nil {
		t.Fatalf("expired lock should be reclaimable: %v", err)
	}
	// Releasing the stale handle must not drop the new holder's lock.
	_ = stale(ctx)
	if _, err := l.Obtain(ctx, "k", time.Minute); !errors.Is(err, models.ErrRunInProgress) {
		t.Fatalf("stale release freed a live lock: %v", err)
	}
}
