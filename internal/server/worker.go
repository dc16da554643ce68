package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/user/lcgrsa/internal/benchmark"
	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/storage"
)

const (
	StatusQueued     = "queued"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTerminated = "terminated"
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrShuttingDown = errors.New("worker pool is shutting down")
)

func isFinal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusTerminated
}

type WorkerPool struct {
	workers     int
	jobQueue    chan *Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	jobStore    *JobStore
	store       storage.Store
	fileStorage *storage.FileStorage
	bridge      *interchange.Bridge
	activeJobs  map[string]context.CancelFunc
	mu          sync.Mutex
	stopOnce    sync.Once
}

// NewWorkerPool creates a pool of workers. A queueSize of zero gives a
// queue twice the worker count.
func NewWorkerPool(numWorkers, queueSize int, jobStore *JobStore, store storage.Store, fileStorage *storage.FileStorage, bridge *interchange.Bridge) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:     numWorkers,
		jobQueue:    make(chan *Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		jobStore:    jobStore,
		store:       store,
		fileStorage: fileStorage,
		bridge:      bridge,
		activeJobs:  make(map[string]context.CancelFunc),
	}
}

func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		log.Println("Stopping worker pool...")
		wp.cancel()
		wp.wg.Wait()
		log.Println("Worker pool stopped")
	})
}

func (wp *WorkerPool) Submit(job *Job) error {
	select {
	case <-wp.ctx.Done():
		return ErrShuttingDown
	default:
	}

	select {
	case wp.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case job := <-wp.jobQueue:
			log.Printf("Worker %d processing job %s", id, job.ID)
			wp.processJob(job)

		case <-wp.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		}
	}
}

func (wp *WorkerPool) TerminateJob(jobID string) {
	wp.mu.Lock()
	if cancel, exists := wp.activeJobs[jobID]; exists {
		cancel()
		delete(wp.activeJobs, jobID)
	}
	wp.mu.Unlock()
}

func (wp *WorkerPool) processJob(job *Job) {
	jobCtx, jobCancel := context.WithCancel(wp.ctx)

	wp.mu.Lock()
	wp.activeJobs[job.ID] = jobCancel
	wp.mu.Unlock()

	defer func() {
		wp.mu.Lock()
		delete(wp.activeJobs, job.ID)
		wp.mu.Unlock()
		jobCancel()
	}()

	// terminated while queued
	if current, ok := wp.jobStore.Get(job.ID); ok && current.Status == StatusTerminated {
		wp.jobStore.CompleteJob(job.ID, nil, errTerminated)
		return
	}

	wp.jobStore.UpdateStatus(job.ID, StatusRunning)

	runner := benchmark.NewWebRunner(job.Config, wp.store, wp.bridge)
	if wp.fileStorage != nil {
		runner.SetFileStorage(wp.fileStorage)
	}

	progress := make(chan benchmark.ProgressUpdate, 100)
	runner.SetProgressChannel(progress)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for update := range progress {
			wp.jobStore.SetProgress(job.ID, update)
		}
	}()

	result, err := runner.RunWithProgress(jobCtx, job.ID)
	close(progress)
	<-drained

	if err != nil && errors.Is(err, context.Canceled) {
		err = errTerminated
	}
	wp.jobStore.CompleteJob(job.ID, &result, err)

	if err != nil {
		log.Printf("Job %s stopped after %d keys: %v", job.ID, len(result.KeyIDs), err)
	} else {
		log.Printf("Job %s completed with %d keys", job.ID, len(result.KeyIDs))
	}
}

var errTerminated = errors.New("job terminated by user")

func (js *JobStore) Add(job *Job) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobs[job.ID] = job
}

// Get returns a snapshot of the job.
func (js *JobStore) Get(jobID string) (Job, bool) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

func (js *JobStore) List() []Job {
	js.mu.RLock()
	jobs := make([]Job, 0, len(js.jobs))
	for _, job := range js.jobs {
		jobs = append(jobs, *job)
	}
	js.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})
	return jobs
}

func (js *JobStore) UpdateStatus(jobID, status string) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[jobID]; exists {
		// a terminated job stays terminated
		if job.Status == StatusTerminated && status == StatusRunning {
			return
		}
		job.Status = status
		job.UpdatedAt = time.Now()
	}
}

func (js *JobStore) SetProgress(jobID string, update benchmark.ProgressUpdate) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[jobID]; exists {
		job.Progress = update
		job.UpdatedAt = time.Now()
	}
}

func (js *JobStore) CompleteJob(jobID string, result *benchmark.WebResult, err error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return
	}

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	job.UpdatedAt = completedAt
	job.Result = result

	switch {
	case errors.Is(err, errTerminated) || job.Status == StatusTerminated:
		job.Status = StatusTerminated
		if err != nil {
			job.Error = err.Error()
		}
	case err != nil:
		job.Status = StatusFailed
		job.Error = fmt.Sprint(err)
	default:
		job.Status = StatusCompleted
	}
}
