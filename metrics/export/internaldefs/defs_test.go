package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterDefsUniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "donorguard_") || !strings.HasSuffix(def.Name, "_total") {
			t.Errorf("bad counter name %q", def.Name)
		}
		if seen[def.Name] {
			t.Errorf("duplicate counter name %q", def.Name)
		}
		seen[def.Name] = true
	}
}

func TestBoundsAlign(t *testing.T) {
	if len(HistogramBounds) != len(HistogramUpperBounds)+1 {
		t.Fatalf("bounds mismatch: %d labels vs %d limits", len(HistogramBounds), len(HistogramUpperBounds))
	}
	if HistogramBounds[len(HistogramBounds)-1] != "+Inf" {
		t.Fatal("last bound must be +Inf")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestApproxSum(t *testing.T) {
	got := ApproxSum([8]uint64{2, 0, 0, 0, 1, 0, 0, 1})
	if got != 0.1+1+10 {
		t.Fatalf("unexpected sum %v", got)
	}
}
