package bounce

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestShouldAutoPause_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		bounced int
		sent    int
		want    bool
	}{
		{"exactly at threshold does not pause", 3, 100, false},
		{"just above threshold pauses", 4, 100, true},
		{"below sample floor never pauses", 49, 49, false},
		{"high rate but tiny sample", 10, 20, false},
		{"at sample floor with bad rate", 10, 50, true},
		{"at sample floor with clean rate", 1, 50, false},
		{"zero sends", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAutoPause(tt.bounced, tt.sent); got != tt.want {
				t.Errorf("ShouldAutoPause(%d, %d) = %v, want %v", tt.bounced, tt.sent, got, tt.want)
			}
		})
	}
}

func setupInboxHealth(t *testing.T) *InboxHealth {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewInboxHealth(rdb)
}

func TestInboxHealth_PausesOnBadRate(t *testing.T) {
	ctx := context.Background()
	h := setupInboxHealth(t)

	for i := 0; i < 100; i++ {
		if err := h.RecordSent(ctx, "inbox-1"); err != nil {
			t.Fatalf("RecordSent: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := h.RecordBounce(ctx, "inbox-1"); err != nil {
			t.Fatalf("RecordBounce: %v", err)
		}
	}

	pause, err := h.ShouldPause(ctx, "inbox-1")
	if err != nil {
		t.Fatalf("ShouldPause: %v", err)
	}
	if !pause {
		t.Error("4/100 bounces should pause the inbox")
	}

	// Counters are per inbox.
	pause, err = h.ShouldPause(ctx, "inbox-2")
	if err != nil {
		t.Fatalf("ShouldPause: %v", err)
	}
	if pause {
		t.Error("untouched inbox should not pause")
	}
}

func TestInboxHealth_ResetClearsWindow(t *testing.T) {
	ctx := context.Background()
	h := setupInboxHealth(t)

	for i := 0; i < 100; i++ {
		h.RecordSent(ctx, "inbox-1")
	}
	for i := 0; i < 10; i++ {
		h.RecordBounce(ctx, "inbox-1")
	}

	if pause, _ := h.ShouldPause(ctx, "inbox-1"); !pause {
		t.Fatal("expected pause before reset")
	}
	if err := h.Reset(ctx, "inbox-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if pause, _ := h.ShouldPause(ctx, "inbox-1"); pause {
		t.Error("reset window should not pause")
	}
}
