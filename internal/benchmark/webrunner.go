package benchmark

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
	"github.com/user/lcgrsa/internal/storage"
)

// JobConfig describes a batch of key pairs generated for one server job.
type JobConfig struct {
	Count       int    `json:"count"`
	Seed        uint64 `json:"seed"`
	Rounds      int    `json:"rounds,omitempty"`
	MaxAttempts int    `json:"max_attempts"`
	WriteFiles  bool   `json:"write_files,omitempty"`
}

type WebResult struct {
	Result
	JobID  string   `json:"job_id"`
	KeyIDs []string `json:"key_ids"`
}

type ProgressUpdate struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Attempts   int     `json:"attempts"`
	Percentage float64 `json:"percentage"`
	Rate       float64 `json:"rate"`
	Status     string  `json:"status"`
	Completed  bool    `json:"completed"`
	KeyID      string  `json:"key_id,omitempty"`
}

// WebRunner derives a batch of key pairs from one LCG stream and stores them.
type WebRunner struct {
	config       JobConfig
	store        storage.Store
	fileStorage  *storage.FileStorage
	bridge       *interchange.Bridge
	progressChan chan ProgressUpdate
}

func NewWebRunner(config JobConfig, store storage.Store, bridge *interchange.Bridge) *WebRunner {
	if config.Count < 1 {
		config.Count = 1
	}
	if bridge == nil {
		bridge = interchange.NewBridge(nil)
	}
	return &WebRunner{
		config: config,
		store:  store,
		bridge: bridge,
	}
}

func (w *WebRunner) SetProgressChannel(ch chan ProgressUpdate) {
	w.progressChan = ch
}

// SetFileStorage makes the runner also write every pair to disk.
func (w *WebRunner) SetFileStorage(fs *storage.FileStorage) {
	w.fileStorage = fs
}

// RunWithProgress generates the batch. Each stored key records the generator
// state it was derived from, so lcg.New(key.Seed) reproduces it. On
// cancellation the keys finished so far stay stored and are reported.
func (w *WebRunner) RunWithProgress(ctx context.Context, jobID string) (WebResult, error) {
	seed := w.config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixMilli())
	}

	result := WebResult{
		Result: Result{
			Operation:  "KeyGen",
			Iterations: w.config.Count,
			Parallel:   1,
			Seed:       seed,
		},
		JobID:  jobID,
		KeyIDs: make([]string, 0, w.config.Count),
	}

	var attempts int
	source := lcg.New(seed)
	g := prime.NewGenerator(source,
		prime.WithRounds(w.config.Rounds),
		prime.WithMaxAttempts(w.config.MaxAttempts),
		prime.WithProgress(func(prime.Attempt) { attempts++ }),
	)

	var timings []time.Duration
	startTime := time.Now()

	log.Printf("Job %s: generating %d key pairs from seed %d", jobID, w.config.Count, seed)

	for i := 0; i < w.config.Count; i++ {
		state := source.Seed()

		iterStart := time.Now()
		keys, err := rsakey.Generate(ctx, g)
		if err != nil {
			w.finish(&result, timings, attempts, startTime)
			return result, fmt.Errorf("key %d of %d: %w", i+1, w.config.Count, err)
		}
		timings = append(timings, time.Since(iterStart))

		stored, err := w.storeKey(keys, state, jobID)
		if err != nil {
			w.finish(&result, timings, attempts, startTime)
			return result, err
		}
		result.KeyIDs = append(result.KeyIDs, stored.ID)
		if keys.Bits() > result.Bits {
			result.Bits = keys.Bits()
		}

		w.send(ProgressUpdate{
			Current:    i + 1,
			Total:      w.config.Count,
			Attempts:   attempts,
			Percentage: float64(i+1) / float64(w.config.Count) * 100,
			Rate:       float64(i+1) / time.Since(startTime).Seconds(),
			Status:     "running",
			KeyID:      stored.ID,
		})
	}

	w.finish(&result, timings, attempts, startTime)
	return result, nil
}

func (w *WebRunner) storeKey(keys *rsakey.Keys, seed uint64, jobID string) (*storage.StoredKey, error) {
	pair, err := w.bridge.Export(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}

	stored := storage.NewStoredKey(pair, seed, keys.Bits(), jobID)
	if w.fileStorage != nil && w.config.WriteFiles {
		if _, err := w.fileStorage.SavePair(stored); err != nil {
			return nil, fmt.Errorf("failed to write key files: %w", err)
		}
	}
	if err := w.store.Save(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (w *WebRunner) finish(result *WebResult, timings []time.Duration, attempts int, startTime time.Time) {
	result.TotalTime = time.Since(startTime)
	result.CompletedAt = time.Now()
	result.Errors = w.config.Count - len(timings)

	if len(timings) > 0 {
		result.AverageTime = calculateAverage(timings)
		result.MinTime = calculateMin(timings)
		result.MaxTime = calculateMax(timings)
		result.StdDev = calculateStdDev(timings, result.AverageTime)
		result.KeysPerSecond = float64(len(timings)) / result.TotalTime.Seconds()
		result.AverageAttempts = float64(attempts) / float64(len(timings))
	}
}

func (w *WebRunner) send(update ProgressUpdate) {
	if w.progressChan == nil {
		return
	}
	select {
	case w.progressChan <- update:
	default:
	}
}
