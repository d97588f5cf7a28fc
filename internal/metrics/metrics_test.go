package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeAction(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"stage a", "start_stage_a", "start_stage_a"},
		{"stage b", "start_stage_b", "start_stage_b"},
		{"cleanup", "cleanup", "cleanup"},
		{"case differs", "Cleanup", "unknown"},
		{"garbage", "drop table", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeAction(tc.input); got != tc.expected {
				t.Errorf("SanitizeAction(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		bridgeSubmissionsTotal == nil || bridgeAttachedStreams == nil || bridgeAdmissionDelaySeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveSubmission(t *testing.T) {
	Init()
	counter := bridgeSubmissionsTotal.WithLabelValues("unknown", "rejected")
	before := testutil.ToFloat64(counter)
	ObserveSubmission("bogus", "rejected")
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("expected unknown/rejected to increase by 1, got %f -> %f", before, got)
	}
}

func TestAttachedStreamsGauge(t *testing.T) {
	IncAttachedStreams()
	before := testutil.ToFloat64(bridgeAttachedStreams)
	DecAttachedStreams()
	if got := testutil.ToFloat64(bridgeAttachedStreams); got != before-1 {
		t.Errorf("expected gauge to drop by 1, got %f -> %f", before, got)
	}
}

func TestObserveAdmissionDelay(t *testing.T) {
	ObserveAdmissionDelay("a", 15*time.Millisecond)
	if val := testutil.CollectAndCount(bridgeAdmissionDelaySeconds); val <= 0 {
		t.Errorf("expected admission delay to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeAction.
func FuzzSanitizeAction(f *testing.F) {
	for _, tc := range []string{"start_stage_a", "cleanup", "", "\x00"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeAction(orig) == "" {
			t.Errorf("SanitizeAction(%q) returned an empty string", orig)
		}
	})
}
