package backoff

import (
	"testing"
	"time"

	"github.com/trek-e/stash2plex-sync/internal/classify"
)

func TestNextCapsAtMax(t *testing.T) {
	d := Next(classify.Transient, 20, nil)
	if d > 80*time.Second {
		t.Fatalf("delay %v exceeds configured max", d)
	}
}

func TestNextNotFoundUsesLongLadder(t *testing.T) {
	d := Next(classify.NotFound, 20, nil)
	if d > 600*time.Second {
		t.Fatalf("delay %v exceeds configured max", d)
	}
}

func TestMaxAttemptsForKnownKinds(t *testing.T) {
	if got := MaxAttemptsFor(classify.NotFound, nil); got != 12 {
		t.Fatalf("got %d, want 12", got)
	}
	if got := MaxAttemptsFor(classify.Transient, nil); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestNextPermanentIsZero(t *testing.T) {
	if d := Next(classify.Permanent, 3, nil); d != 0 {
		t.Fatalf("expected 0 delay for permanent errors, got %v", d)
	}
}

func TestNextZeroAttemptIsZero(t *testing.T) {
	if d := Next(classify.Transient, 0, nil); d != 0 {
		t.Fatalf("expected 0 delay for attempt 0, got %v", d)
	}
}
