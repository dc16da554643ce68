package benchmark

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/prime"
)

type Runner struct {
	config Config
	bridge *interchange.Bridge
}

func NewRunner(config Config) (*Runner, error) {
	if config.Iterations < 1 {
		config.Iterations = 1
	}
	if config.Parallel < 1 {
		config.Parallel = 1
	}
	if len(config.Operations) == 0 {
		config.Operations = DefaultOperations
	}

	provider, err := interchange.NewProvider(config.Provider)
	if err != nil {
		return nil, err
	}
	return &Runner{config: config, bridge: interchange.NewBridge(provider)}, nil
}

func (r *Runner) Run() ([]Result, error) {
	var results []Result

	seed := r.config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixMilli())
	}

	for _, name := range r.config.Operations {
		op, err := getOperation(name, r.bridge)
		if err != nil {
			return nil, err
		}

		if r.config.Verbose {
			fmt.Printf("Running %s: %d iterations x %d workers, seed %d\n",
				op.Name(), r.config.Iterations, r.config.Parallel, seed)
		}

		result, err := r.runSingleBenchmark(op, seed)
		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	return results, nil
}

// runSingleBenchmark gives every worker its own generator seeded with
// seed+worker, so a run is reproducible for a fixed seed and worker count.
func (r *Runner) runSingleBenchmark(op Operation, seed uint64) (Result, error) {
	result := Result{
		Operation:  op.Name(),
		Iterations: r.config.Iterations,
		Parallel:   r.config.Parallel,
		Seed:       seed,
	}

	totalIterations := r.config.Iterations * r.config.Parallel
	var progress *progressbar.ProgressBar

	if r.config.ShowProgress {
		progress = progressbar.NewOptions(totalIterations,
			progressbar.OptionSetDescription(fmt.Sprintf("[%s]", op.Name())),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)
	}

	initialCPU, _ := cpu.Percent(100*time.Millisecond, false)
	initialMem, _ := mem.VirtualMemory()

	ctx := context.Background()
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.config.Timeout)*time.Second)
		defer cancel()
	}

	var (
		timings  []time.Duration
		attempts int
		bits     int
		errors   int
		mu       sync.Mutex
	)

	startTime := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < r.config.Parallel; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			var drawn int
			opts := []prime.Option{
				prime.WithRounds(r.config.Rounds),
				prime.WithMaxAttempts(r.config.MaxAttempts),
				prime.WithProgress(func(prime.Attempt) { drawn++ }),
			}
			g := prime.NewGenerator(lcg.New(seed+uint64(worker)), opts...)

			for j := 0; j < r.config.Iterations; j++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				before := drawn
				iterStart := time.Now()
				n, err := op.Run(ctx, g)
				elapsed := time.Since(iterStart)

				mu.Lock()
				if err != nil {
					errors++
					if r.config.Verbose {
						fmt.Printf("%s worker %d: %v\n", op.Name(), worker, err)
					}
				} else {
					timings = append(timings, elapsed)
					attempts += drawn - before
					if n > bits {
						bits = n
					}
				}
				mu.Unlock()

				if progress != nil {
					progress.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()

	result.TotalTime = time.Since(startTime)
	result.Errors = errors
	result.Bits = bits
	result.CompletedAt = time.Now()

	if len(timings) > 0 {
		result.AverageTime = calculateAverage(timings)
		result.MinTime = calculateMin(timings)
		result.MaxTime = calculateMax(timings)
		result.StdDev = calculateStdDev(timings, result.AverageTime)
		result.KeysPerSecond = float64(len(timings)) / result.TotalTime.Seconds()
		result.AverageAttempts = float64(attempts) / float64(len(timings))
	}

	finalCPU, _ := cpu.Percent(100*time.Millisecond, false)
	finalMem, _ := mem.VirtualMemory()

	if len(initialCPU) > 0 && len(finalCPU) > 0 {
		result.CPUUsage = finalCPU[0] - initialCPU[0]
	}

	if initialMem != nil && finalMem != nil && finalMem.Used > initialMem.Used {
		result.MemoryUsed = finalMem.Used - initialMem.Used
	}

	runtime.GC()

	return result, nil
}

func calculateAverage(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}

	var sum time.Duration
	for _, t := range timings {
		sum += t
	}
	return sum / time.Duration(len(timings))
}

func calculateMin(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}

	min := timings[0]
	for _, t := range timings[1:] {
		if t < min {
			min = t
		}
	}
	return min
}

func calculateMax(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}

	max := timings[0]
	for _, t := range timings[1:] {
		if t > max {
			max = t
		}
	}
	return max
}

// calculateStdDev returns the sample standard deviation.
func calculateStdDev(timings []time.Duration, avg time.Duration) time.Duration {
	if len(timings) <= 1 {
		return 0
	}

	var sum float64
	avgFloat := float64(avg)

	for _, t := range timings {
		diff := float64(t) - avgFloat
		sum += diff * diff
	}

	variance := sum / float64(len(timings)-1)
	return time.Duration(math.Sqrt(variance))
}
