package pathpriv

import "testing"

func TestPathIsDeterministicWithinSession(t *testing.T) {
	o := New()
	a := o.Path("/data/scenes/studio-name/scene.mp4")
	b := o.Path("/data/scenes/studio-name/scene.mp4")
	if a != b {
		t.Fatalf("expected stable obfuscation, got %q then %q", a, b)
	}
}

func TestPathPreservesExtension(t *testing.T) {
	o := New()
	got := o.Path("/data/scenes/scene.mp4")
	if got[len(got)-4:] != ".mp4" {
		t.Fatalf("expected extension preserved, got %q", got)
	}
}

func TestPathDifferentSegmentsUsuallyDiffer(t *testing.T) {
	o := New()
	a := o.Path("/data/aaa/file.mp4")
	b := o.Path("/data/bbb/file.mp4")
	if a == b {
		t.Fatalf("expected distinct segments to usually map differently: %q vs %q", a, b)
	}
}

func TestFreshObfuscatorHasNoCrossInvocationState(t *testing.T) {
	o1 := New()
	o1.Path("/data/aaa/file.mp4")
	o2 := New()
	// o2 starts clean; this just verifies it doesn't panic on empty state
	// and produces output for a never-before-seen segment.
	got := o2.Path("/data/aaa/file.mp4")
	if got == "" {
		t.Fatal("expected non-empty obfuscated path")
	}
}
