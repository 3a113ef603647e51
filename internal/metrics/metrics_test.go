package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordJob(t *testing.T) {
	before := testutil.ToFloat64(JobRuns.WithLabelValues("metrics-test", "sync_history", "failure"))
	RecordJob("metrics-test", "sync_history", time.Second, errors.New("boom"))
	after := testutil.ToFloat64(JobRuns.WithLabelValues("metrics-test", "sync_history", "failure"))

	if after-before != 1 {
		t.Errorf("expected failure counter to increase by 1, got %v", after-before)
	}
}

func TestRecordUsage(t *testing.T) {
	RecordUsage("metrics-test", 10, 5)

	if got := testutil.ToFloat64(GenerationTokens.WithLabelValues("metrics-test", "prompt")); got != 10 {
		t.Errorf("expected 10 prompt tokens, got %v", got)
	}
	if got := testutil.ToFloat64(GenerationTokens.WithLabelValues("metrics-test", "completion")); got != 5 {
		t.Errorf("expected 5 completion tokens, got %v", got)
	}
}
