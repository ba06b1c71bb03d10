package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Sentinel errors returned by Submit, Resume and Subscribe.
var (
	ErrNotFound   = errors.New("job not found")
	ErrStemActive = errors.New("a job for this input is already active")
	ErrNotFailed  = errors.New("only failed jobs can be resumed")
)

// subscriberBuffer is the per-observer channel capacity. A slower observer
// loses intermediate events, never the latest snapshot or the terminal one.
const subscriberBuffer = 16

// Processor executes the full pipeline for one job. The emit callback
// reports stage progress; the returned path is the final document.
type Processor interface {
	Process(ctx context.Context, job Job, emit EmitFunc) (outputPath string, err error)
}

// EmitFunc reports one unit of stage progress.
type EmitFunc func(status Status, message string, percent int)

// Options configures a Manager.
type Options struct {
	Workers   int
	Retention time.Duration // how long finished jobs stay queryable
	// ValidateInput rejects unsupported inputs before a job is created.
	ValidateInput func(path string) error
	Logger        *slog.Logger
}

// Manager owns the set of jobs. It is the single writer of job state; all
// reads are snapshot copies.
type Manager struct {
	processor Processor
	opts      Options
	workers   *semaphore.Weighted

	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[string][]chan Event
	activeStems map[string]string // stem -> job id

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a manager dispatching at most opts.Workers concurrent
// processor executions.
func NewManager(processor Processor, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		processor:   processor,
		opts:        opts,
		workers:     semaphore.NewWeighted(int64(opts.Workers)),
		jobs:        make(map[string]*Job),
		subscribers: make(map[string][]chan Event),
		activeStems: make(map[string]string),
		baseCtx:     ctx,
		cancel:      cancel,
	}

	m.wg.Add(1)
	go m.janitor()
	return m
}

// Close stops dispatching and waits for running jobs to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Submit creates a job for an input file and schedules it. Unsupported
// inputs are rejected before a job exists. A second submission for a stem
// that is still active returns ErrStemActive.
func (m *Manager) Submit(sourcePath, filename string) (string, error) {
	if m.opts.ValidateInput != nil {
		if err := m.opts.ValidateInput(sourcePath); err != nil {
			return "", err
		}
	}

	stem := Stem(sourcePath)
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Filename:   filename,
		SourcePath: sourcePath,
		Stem:       stem,
		Status:     StatusQueued,
		Message:    "waiting for a worker",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	if active, ok := m.activeStems[stem]; ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w (job %s)", ErrStemActive, active)
	}
	m.jobs[job.ID] = job
	m.activeStems[stem] = job.ID
	m.mu.Unlock()

	m.opts.Logger.Info("job submitted", "job_id", job.ID, "file", filename, "stem", stem)
	m.dispatch(job.ID)
	return job.ID, nil
}

// Resume re-dispatches a failed job. The stage runners skip everything the
// failed run already checkpointed. Active or done jobs are rejected.
func (m *Manager) Resume(jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if job.Status != StatusFailed {
		m.mu.Unlock()
		return fmt.Errorf("%w: job is %s", ErrNotFailed, job.Status)
	}
	if active, ok := m.activeStems[job.Stem]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w (job %s)", ErrStemActive, active)
	}
	job.Status = StatusQueued
	job.Error = ""
	job.Message = "resuming"
	job.UpdatedAt = time.Now()
	m.activeStems[job.Stem] = job.ID
	m.mu.Unlock()

	m.opts.Logger.Info("job resumed", "job_id", jobID)
	m.publish(jobID, StatusQueued, "resuming", 0, "", "")
	m.dispatch(jobID)
	return nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all jobs, most recent first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Subscribe returns a live event stream for the job. The current snapshot
// is delivered first; the stream is closed after a terminal event. cancel
// detaches the observer without affecting the job.
func (m *Manager) Subscribe(jobID string) (<-chan Event, func(), error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrNotFound
	}

	ch := make(chan Event, subscriberBuffer)
	ch <- job.event() // catch the late observer up
	if job.Status.Terminal() {
		close(ch)
		m.mu.Unlock()
		return ch, func() {}, nil
	}
	m.subscribers[jobID] = append(m.subscribers[jobID], ch)
	m.mu.Unlock()

	cancel := func() { m.unsubscribe(jobID, ch) }
	return ch, cancel, nil
}

func (m *Manager) unsubscribe(jobID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[jobID]
	for i, c := range subs {
		if c == ch {
			m.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// dispatch schedules the processor execution on the worker pool.
func (m *Manager) dispatch(jobID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if err := m.workers.Acquire(m.baseCtx, 1); err != nil {
			m.finish(jobID, "", fmt.Errorf("shutting down: %w", err))
			return
		}
		defer m.workers.Release(1)

		m.mu.RLock()
		job, ok := m.jobs[jobID]
		var snapshot Job
		if ok {
			snapshot = *job
		}
		m.mu.RUnlock()
		if !ok {
			return
		}

		emit := func(status Status, message string, percent int) {
			m.publish(jobID, status, message, percent, "", "")
		}

		outputPath, err := m.processor.Process(m.baseCtx, snapshot, emit)
		m.finish(jobID, outputPath, err)
	}()
}

// finish records the terminal state and emits the terminal event.
func (m *Manager) finish(jobID, outputPath string, err error) {
	if err != nil {
		m.opts.Logger.Error("job failed", "job_id", jobID, "error", err)
		m.publish(jobID, StatusFailed, "processing failed", 0, "", err.Error())
	} else {
		m.opts.Logger.Info("job done", "job_id", jobID, "output", outputPath)
		m.publish(jobID, StatusDone, "conversion complete", 100, outputPath, "")
	}
}

// publish updates the retained snapshot and pushes to every observer.
// Delivery is best-effort: a full observer channel is skipped, never
// blocked on, so a slow consumer cannot stall the pipeline. The sends
// happen under m.mu so concurrent emitters cannot reorder events; every
// send is non-blocking, so the lock is never held on a stalled channel.
func (m *Manager) publish(jobID string, status Status, message string, percent int, outputPath, errDetail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return
	}

	// Percent is monotonic within a stage; a stage transition resets it.
	if status == job.Status && percent < job.Percent {
		percent = job.Percent
	}
	job.Status = status
	job.Message = message
	job.Percent = percent
	if outputPath != "" {
		job.OutputPath = outputPath
	}
	if errDetail != "" {
		job.Error = errDetail
	}
	job.UpdatedAt = time.Now()

	ev := job.event()
	subs := m.subscribers[jobID]
	if status.Terminal() {
		delete(m.subscribers, jobID)
		// Free the stem together with the terminal state so an observer of
		// the failed event can resume without racing ErrStemActive.
		delete(m.activeStems, job.Stem)
	}

	for _, ch := range subs {
		if status.Terminal() {
			// The terminal event must arrive: evict the oldest buffered
			// event until there is room (latest-wins).
			for {
				select {
				case ch <- ev:
				default:
					select {
					case <-ch:
					default:
					}
					continue
				}
				break
			}
			close(ch)
			continue
		}

		select {
		case ch <- ev:
		default: // observer is behind; it catches up from the next event
		}
	}
}

// janitor drops finished jobs after the retention window once no observer
// holds a subscription.
func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-m.opts.Retention)
		m.mu.Lock()
		for id, job := range m.jobs {
			if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) && len(m.subscribers[id]) == 0 {
				delete(m.jobs, id)
			}
		}
		m.mu.Unlock()
	}
}
