package classifier

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("We talk of Christ, we rejoice in Christ.")
	b := Fingerprint("We talk of Christ, we rejoice in Christ.")
	if a != b {
		t.Errorf("same content produced different fingerprints: %q vs %q", a, b)
	}

	c := Fingerprint("Faith without works is dead.")
	if a == c {
		t.Error("different content produced the same fingerprint")
	}
}

func TestFingerprintUsesPrefixOnly(t *testing.T) {
	prefix := strings.Repeat("grace ", 200)
	a := Fingerprint(prefix + "first ending")
	b := Fingerprint(prefix + "second ending")
	if a != b {
		t.Error("content differing only past the prefix should share a fingerprint")
	}

	short := Fingerprint("grace")
	if short == a {
		t.Error("short content should not collide with the long prefix")
	}
}

func TestCache(t *testing.T) {
	cache := NewCache()
	key := Fingerprint("talk text")

	if _, ok := cache.Get(key); ok {
		t.Error("empty cache reported a hit")
	}

	want := Result{Score: 2, Explanation: "works focus", KeyPhrases: []string{"commandments"}, Model: "m"}
	cache.Set(key, want)

	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	if got.Score != 2 || got.Explanation != "works focus" {
		t.Errorf("got %+v", got)
	}
	if cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1", cache.Size())
	}
}

func TestRateGateSpacing(t *testing.T) {
	gate := NewRateGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("first Wait slept %v, want no delay", elapsed)
	}

	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second Wait returned after %v, want at least the interval", elapsed)
	}
}

func TestRateGateDisabled(t *testing.T) {
	gate := NewRateGate(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("disabled gate slept %v", elapsed)
	}
}

func TestRateGateContextCancellation(t *testing.T) {
	gate := NewRateGate(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancel()
	if err := gate.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}
