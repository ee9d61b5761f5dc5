package logging_test

import (
	"testing"

	"parcel/internal/logging"
)

func TestProgressSamplerBuckets(t *testing.T) {
	sampler := logging.NewProgressSampler(25)

	steps := []struct {
		percent int
		status  string
		want    bool
	}{
		{0, "pending", true},
		{10, "pending", false},
		{25, "pending", true},
		{40, "pending", false},
		{50, "pending", true},
		{75, "processing", true},
		{90, "processing", false},
		{100, "completed", true},
		{100, "completed", false},
	}
	for i, step := range steps {
		if got := sampler.ShouldLog("job-a", step.percent, step.status); got != step.want {
			t.Fatalf("step %d (%d%% %s): got %v want %v", i, step.percent, step.status, got, step.want)
		}
	}
}

func TestProgressSamplerTracksJobsIndependently(t *testing.T) {
	sampler := logging.NewProgressSampler(0)

	if !sampler.ShouldLog("a", 50, "pending") {
		t.Fatal("expected first event for a to log")
	}
	if !sampler.ShouldLog("b", 10, "pending") {
		t.Fatal("expected first event for b to log")
	}
	if sampler.ShouldLog("a", 60, "pending") {
		t.Fatal("expected a to stay within bucket")
	}
	sampler.Forget("a")
	if !sampler.ShouldLog("a", 60, "pending") {
		t.Fatal("expected forgotten job to log again")
	}
}

func TestNilProgressSamplerAlwaysLogs(t *testing.T) {
	var sampler *logging.ProgressSampler
	if !sampler.ShouldLog("x", 1, "pending") {
		t.Fatal("nil sampler should always log")
	}
	sampler.Forget("x")
}
