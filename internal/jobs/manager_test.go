package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor lets tests script the pipeline outcome per run.
type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	run     func(ctx context.Context, job Job, emit EmitFunc) (string, error)
	started chan string
	release chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, job Job, emit EmitFunc) (string, error) {
	p.mu.Lock()
	p.calls++
	run := p.run
	p.mu.Unlock()

	if p.started != nil {
		p.started <- job.ID
	}
	if p.release != nil {
		<-p.release
	}
	if run != nil {
		return run(ctx, job, emit)
	}
	return "/out/" + job.Stem + ".md", nil
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := m.Get(id); ok && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := m.Get(id)
	t.Fatalf("job %s never reached %s, last state %s", id, want, job.Status)
	return Job{}
}

func TestManager_SubmitRunsToCompletion(t *testing.T) {
	proc := &fakeProcessor{}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job := waitForStatus(t, m, id, StatusDone)
	assert.Equal(t, 100, job.Percent)
	assert.Equal(t, "/out/talk.md", job.OutputPath)
	assert.Empty(t, job.Error)
}

func TestManager_ValidateInputRejectsBeforeJobExists(t *testing.T) {
	proc := &fakeProcessor{}
	m := NewManager(proc, Options{
		ValidateInput: func(path string) error { return errors.New("unsupported format") },
	})
	defer m.Close()

	_, err := m.Submit("/in/notes.txt", "notes.txt")
	require.Error(t, err)
	assert.Empty(t, m.List(), "rejected input must not create a job")
	assert.Equal(t, 0, proc.callCount())
}

func TestManager_DuplicateStemRejectedWhileActive(t *testing.T) {
	proc := &fakeProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	m := NewManager(proc, Options{Workers: 2})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	<-proc.started

	_, err = m.Submit("/other/talk.mp3", "talk.mp3")
	assert.ErrorIs(t, err, ErrStemActive)

	close(proc.release)
	waitForStatus(t, m, id, StatusDone)

	// After completion the stem is free again.
	id2, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	waitForStatus(t, m, id2, StatusDone)
}

func TestManager_FailureCarriesError(t *testing.T) {
	proc := &fakeProcessor{
		run: func(ctx context.Context, job Job, emit EmitFunc) (string, error) {
			emit(StatusTranscribing, "transcribing", 40)
			return "", errors.New("stt engine exploded")
		},
	}
	m := NewManager(proc, Options{})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)

	job := waitForStatus(t, m, id, StatusFailed)
	assert.Contains(t, job.Error, "stt engine exploded")
}

func TestManager_ResumeOnlyFailedJobs(t *testing.T) {
	var attempts int
	proc := &fakeProcessor{
		run: func(ctx context.Context, job Job, emit EmitFunc) (string, error) {
			attempts++
			if attempts == 1 {
				return "", errors.New("transient outage")
			}
			return "/out/talk.md", nil
		},
	}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusFailed)

	require.NoError(t, m.Resume(id))
	job := waitForStatus(t, m, id, StatusDone)
	assert.Empty(t, job.Error, "resume must clear the previous error")

	// Done jobs cannot be resumed again.
	assert.ErrorIs(t, m.Resume(id), ErrNotFailed)
	assert.ErrorIs(t, m.Resume("no-such-job"), ErrNotFound)
}

func TestManager_SubscribeReceivesSnapshotAndTerminal(t *testing.T) {
	proc := &fakeProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
		run: func(ctx context.Context, job Job, emit EmitFunc) (string, error) {
			emit(StatusTranscribing, "transcribing 0:30 / 1:00", 50)
			return "/out/talk.md", nil
		},
	}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	<-proc.started

	events, cancel, err := m.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	// The catch-up snapshot arrives before any live event.
	first := <-events
	assert.Equal(t, id, first.JobID)

	close(proc.release)

	var last Event
	sawTerminal := false
	for ev := range events {
		last = ev
		if ev.Status.Terminal() {
			sawTerminal = true
		}
	}
	require.True(t, sawTerminal, "stream must end with a terminal event")
	assert.Equal(t, StatusDone, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, "/out/talk.md", last.OutputPath)
}

func TestManager_SubscribeToFinishedJob(t *testing.T) {
	proc := &fakeProcessor{}
	m := NewManager(proc, Options{})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusDone)

	events, cancel, err := m.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	ev, ok := <-events
	require.True(t, ok, "late subscriber gets the final snapshot")
	assert.Equal(t, StatusDone, ev.Status)

	_, ok = <-events
	assert.False(t, ok, "stream closes right after the snapshot")
}

func TestManager_SubscribeUnknownJob(t *testing.T) {
	m := NewManager(&fakeProcessor{}, Options{})
	defer m.Close()

	_, _, err := m.Subscribe("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_SlowObserverDoesNotBlockJob(t *testing.T) {
	proc := &fakeProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
		run: func(ctx context.Context, job Job, emit EmitFunc) (string, error) {
			// Far more events than the subscriber buffer holds.
			for i := 0; i < subscriberBuffer*4; i++ {
				emit(StatusCleaning, fmt.Sprintf("chunk %d", i), i%100)
			}
			return "/out/talk.md", nil
		},
	}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	<-proc.started

	events, cancel, err := m.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	// Do not read until the job has finished; excess events are dropped.
	close(proc.release)
	waitForStatus(t, m, id, StatusDone)

	var last Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, StatusDone, last.Status, "terminal event survives a full buffer")
}

func TestManager_ConcurrentEmitsDeliverMonotonicPercent(t *testing.T) {
	// Chunk stages emit from several goroutines at once; an observer must
	// still see percent rise within the stage no matter the interleaving.
	const emitters = 8
	proc := &fakeProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
		run: func(ctx context.Context, job Job, emit EmitFunc) (string, error) {
			var mu sync.Mutex
			done := 0
			var wg sync.WaitGroup
			for g := 0; g < emitters; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 12; i++ {
						mu.Lock()
						done++
						pct := done
						mu.Unlock()
						emit(StatusCleaning, "cleaning", pct)
					}
				}()
			}
			wg.Wait()
			return "/out/" + job.Stem + ".md", nil
		},
	}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	<-proc.started

	events, cancel, err := m.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	close(proc.release)

	last := -1
	for ev := range events {
		if ev.Status != StatusCleaning {
			last = -1 // stage transition resets the floor
			continue
		}
		require.GreaterOrEqual(t, ev.Percent, last,
			"percent went backwards within a stage")
		last = ev.Percent
	}
}

func TestManager_ResumeImmediatelyAfterFailedEvent(t *testing.T) {
	proc := &fakeProcessor{}
	proc.run = func(ctx context.Context, job Job, emit EmitFunc) (string, error) {
		if proc.callCount() == 1 {
			return "", errors.New("whisper crashed")
		}
		return "/out/" + job.Stem + ".md", nil
	}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)

	events, cancel, err := m.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	// The moment the failed event is observable the stem must be free;
	// resuming right away must not be rejected as still active.
	for ev := range events {
		if ev.Status == StatusFailed {
			require.NoError(t, m.Resume(id))
			break
		}
	}

	job := waitForStatus(t, m, id, StatusDone)
	assert.Equal(t, "/out/talk.md", job.OutputPath)
}

func TestManager_CancelDetachesWithoutStoppingJob(t *testing.T) {
	proc := &fakeProcessor{
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit("/in/talk.mp3", "talk.mp3")
	require.NoError(t, err)
	<-proc.started

	_, cancel, err := m.Subscribe(id)
	require.NoError(t, err)
	cancel()

	close(proc.release)
	waitForStatus(t, m, id, StatusDone)
}

func TestManager_ListNewestFirst(t *testing.T) {
	proc := &fakeProcessor{}
	m := NewManager(proc, Options{Workers: 1})
	defer m.Close()

	first, err := m.Submit("/in/a.mp3", "a.mp3")
	require.NoError(t, err)
	waitForStatus(t, m, first, StatusDone)
	time.Sleep(5 * time.Millisecond)

	second, err := m.Submit("/in/b.mp3", "b.mp3")
	require.NoError(t, err)
	waitForStatus(t, m, second, StatusDone)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
}

func TestStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/input/meeting.mp3", "meeting"},
		{"interview.m4a", "interview"},
		{"/a/b/no_extension", "no_extension"},
		{"/a/b/archive.tar.gz", "archive.tar"},
	}
	for _, tt := range tests {
		if got := Stem(tt.path); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusCleaning.Terminal())
	assert.True(t, StatusQueued.Active())
	assert.True(t, StatusStructuring.Active())
	assert.False(t, StatusDone.Active())
}
