package lang

import (
	"strings"
	"testing"

	"timbercraft.ai/internal/sim/tuning"
)

func TestBundlesForEveryLanguage(t *testing.T) {
	for _, l := range tuning.Languages {
		b, err := Load(l)
		if err != nil {
			t.Fatalf("Load(%s): %v", l, err)
		}
		if b.Language() != l {
			t.Fatalf("language mismatch: %s", b.Language())
		}
		if strings.HasPrefix(b.Get("structure-protected"), "missing message") {
			t.Fatalf("%s: missing structure-protected", l)
		}
	}
}

func TestFormatAndFallback(t *testing.T) {
	b := MustLoad("de")
	got := b.Format("debug-reason-min-logs", "count", "1", "min", "3")
	if !strings.Contains(got, "1/3") {
		t.Fatalf("placeholders not replaced: %q", got)
	}
	// de has no region-denied debug line; English fills in.
	en := MustLoad("en")
	if b.Get("debug-region-denied") != en.Get("debug-region-denied") {
		t.Fatalf("expected english fallback, got %q", b.Get("debug-region-denied"))
	}
	if !strings.HasPrefix(en.Prefixed("enabled"), "[Timber] ") {
		t.Fatalf("prefix missing: %q", en.Prefixed("enabled"))
	}
	if !strings.HasPrefix(en.Debug("debug-passed"), "[Debug] ") {
		t.Fatalf("debug prefix missing: %q", en.Debug("debug-passed"))
	}
	if !strings.HasPrefix(en.Get("nope"), "missing message") {
		t.Fatalf("unknown key should be flagged")
	}
}

func TestLoadUnknownLanguage(t *testing.T) {
	if _, err := Load("xx"); err == nil {
		t.Fatalf("expected error for unknown language")
	}
}
