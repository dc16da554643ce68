package benchmark

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/prime"
)

func TestCalculateStatistics(t *testing.T) {
	timings := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		150 * time.Millisecond,
		180 * time.Millisecond,
		170 * time.Millisecond,
	}

	avg := calculateAverage(timings)
	expectedAvg := 160 * time.Millisecond
	if avg != expectedAvg {
		t.Errorf("Expected average %v, got %v", expectedAvg, avg)
	}

	min := calculateMin(timings)
	if min != 100*time.Millisecond {
		t.Errorf("Expected min %v, got %v", 100*time.Millisecond, min)
	}

	max := calculateMax(timings)
	if max != 200*time.Millisecond {
		t.Errorf("Expected max %v, got %v", 200*time.Millisecond, max)
	}

	stdDev := calculateStdDev(timings, avg)
	// sample stddev is ~37.4ms
	if stdDev < 35*time.Millisecond || stdDev > 40*time.Millisecond {
		t.Errorf("Expected stdDev around 37ms, got %v", stdDev)
	}

	if calculateStdDev(timings[:1], avg) != 0 || calculateAverage(nil) != 0 {
		t.Error("degenerate inputs should give zero")
	}
}

func TestOperations(t *testing.T) {
	bridge := interchange.NewBridge(nil)

	for _, name := range DefaultOperations {
		op, err := getOperation(name, bridge)
		if err != nil {
			t.Fatalf("getOperation(%q): %v", name, err)
		}

		g := prime.NewGenerator(lcg.New(42))
		bits, err := op.Run(context.Background(), g)
		if err != nil {
			t.Errorf("%s: %v", op.Name(), err)
			continue
		}
		if bits < 17 {
			t.Errorf("%s produced %d bits", op.Name(), bits)
		}
	}

	if _, err := getOperation("ecdsa", bridge); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestRunnerBasic(t *testing.T) {
	config := Config{
		Operations:  []string{"keygen"},
		Iterations:  2,
		Parallel:    2,
		Seed:        42,
		MaxAttempts: prime.DefaultMaxAttempts,
		Timeout:     30,
	}

	runner, err := NewRunner(config)
	if err != nil {
		t.Fatal(err)
	}
	results, err := runner.Run()
	if err != nil {
		t.Fatalf("Runner failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.Operation != "KeyGen" {
		t.Errorf("Expected KeyGen operation, got %s", r.Operation)
	}
	if r.Iterations != 2 || r.Parallel != 2 {
		t.Errorf("Expected 2x2, got %dx%d", r.Iterations, r.Parallel)
	}
	if r.Errors != 0 {
		t.Errorf("Expected 0 errors, got %d", r.Errors)
	}
	if r.Seed != 42 {
		t.Errorf("Expected seed 42, got %d", r.Seed)
	}
	// every key needs at least two accepted draws
	if r.AverageAttempts < 2 {
		t.Errorf("Average attempts %f below 2", r.AverageAttempts)
	}
	if r.KeysPerSecond <= 0 || r.MinTime > r.MaxTime {
		t.Errorf("Implausible timings: %+v", r)
	}
}

func TestRunnerDefaultsAllOperations(t *testing.T) {
	runner, err := NewRunner(Config{Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	results, err := runner.Run()
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, r := range results {
		names = append(names, r.Operation)
	}
	if got := strings.Join(names, ","); got != "Prime,KeyGen,RoundTrip,Export" {
		t.Errorf("operations run: %s", got)
	}
}

type failingOp struct{}

func (failingOp) Name() string { return "Failing" }

func (failingOp) Run(context.Context, *prime.Generator) (int, error) {
	return 0, errors.New("boom")
}

func TestRunnerCountsErrors(t *testing.T) {
	runner, err := NewRunner(Config{Iterations: 3, Parallel: 2, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	result, err := runner.runSingleBenchmark(failingOp{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Errors != 6 {
		t.Errorf("Errors = %d, want 6", result.Errors)
	}
	if result.KeysPerSecond != 0 || result.AverageAttempts != 0 {
		t.Errorf("failed runs leaked into statistics: %+v", result)
	}
}

func TestRunnerRejectsUnknownInput(t *testing.T) {
	if _, err := NewRunner(Config{Provider: "openssl"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	runner, err := NewRunner(Config{Operations: []string{"dsa"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(); err == nil {
		t.Error("expected error for unknown operation")
	}
}
