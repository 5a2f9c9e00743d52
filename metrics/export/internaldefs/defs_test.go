package internaldefs

import (
	"strings"
	"testing"

	authcore "github.com/authcore-io/authcore"
)

func TestCounterDefsAreWellFormed(t *testing.T) {
	seenIDs := make(map[authcore.MetricID]bool)
	seenNames := make(map[string]bool)

	for _, def := range CounterDefs {
		if seenIDs[def.ID] {
			t.Fatalf("duplicate metric id for %s", def.Name)
		}
		seenIDs[def.ID] = true

		if seenNames[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seenNames[def.Name] = true

		if !strings.HasPrefix(def.Name, "authcore_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s does not follow the naming convention", def.Name)
		}
		if def.Help == "" {
			t.Fatalf("counter %s has no help text", def.Name)
		}
	}
}

func TestHistogramBoundsAlignWithSuffixes(t *testing.T) {
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatalf("expected 8 bounds and suffixes, got %d and %d", len(HistogramBounds), len(HistogramBoundSuffix))
	}
	if HistogramBounds[len(HistogramBounds)-1] != "+Inf" {
		t.Fatalf("expected terminal +Inf bound, got %s", HistogramBounds[len(HistogramBounds)-1])
	}
	if HistogramBoundSuffix[len(HistogramBoundSuffix)-1] != "inf" {
		t.Fatalf("expected terminal inf suffix, got %s", HistogramBoundSuffix[len(HistogramBoundSuffix)-1])
	}
}

func TestNormalizeBuckets(t *testing.T) {
	out := NormalizeBuckets([]uint64{1, 2, 3})
	if out != [8]uint64{1, 2, 3, 0, 0, 0, 0, 0} {
		t.Fatalf("expected short input zero-padded, got %v", out)
	}

	out = NormalizeBuckets([]uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if out != [8]uint64{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Fatalf("expected long input truncated, got %v", out)
	}

	out = NormalizeBuckets(nil)
	if out != [8]uint64{} {
		t.Fatalf("expected nil input to yield zeros, got %v", out)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	out := CumulativeBuckets([8]uint64{5, 2, 0, 1, 0, 0, 0, 4})
	if out != [8]uint64{5, 7, 7, 8, 8, 8, 8, 12} {
		t.Fatalf("unexpected cumulative buckets: %v", out)
	}
}
