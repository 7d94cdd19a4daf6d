package rates

import (
	"testing"
	"time"
)

func TestWindowAllow(t *testing.T) {
	w := Window{Span: time.Second, Max: 2}
	t0 := time.UnixMilli(1_000)
	for i := 0; i < 2; i++ {
		if ok, _ := w.Allow(t0); !ok {
			t.Fatalf("event %d should pass", i)
		}
	}
	ok, retry := w.Allow(t0.Add(300 * time.Millisecond))
	if ok || retry != 700*time.Millisecond {
		t.Fatalf("third event: ok=%v retry=%v", ok, retry)
	}
	if ok, _ := w.Allow(t0.Add(time.Second)); !ok {
		t.Fatalf("window should reset")
	}
}

func TestWindowDisabled(t *testing.T) {
	var w Window
	for i := 0; i < 100; i++ {
		if ok, _ := w.Allow(time.Now()); !ok {
			t.Fatalf("zero window must not limit")
		}
	}
}
