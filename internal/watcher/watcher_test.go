package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/scribe-go/internal/jobs"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	paths  []string
	reject map[string]error
}

func (s *fakeSubmitter) Submit(sourcePath, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.reject[filename]; ok {
		return "", err
	}
	s.paths = append(s.paths, sourcePath)
	return uuid.NewString(), nil
}

func (s *fakeSubmitter) submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func waitForSubmissions(t *testing.T, s *fakeSubmitter, want int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * settleDelay + 3*time.Second)
	for time.Now().Before(deadline) {
		if got := s.submitted(); len(got) >= want {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("saw %d submissions, want %d", len(s.submitted()), want)
	return nil
}

func TestWatcher_SubmitsExistingFilesAtStartup(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "a.wav", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	sub := &fakeSubmitter{}
	w := New(dir, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	got := waitForSubmissions(t, sub, 2)
	if len(got) != 2 {
		t.Fatalf("submitted %v, want the two audio files", got)
	}
	// Deterministic startup order.
	if filepath.Base(got[0]) != "a.wav" || filepath.Base(got[1]) != "b.mp3" {
		t.Errorf("startup order = %v, want sorted", got)
	}
}

func TestWatcher_SubmitsNewFileAfterSettling(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	w := New(dir, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(dir, "dropped.mp3")
	if err := os.WriteFile(path, []byte("part one"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := waitForSubmissions(t, sub, 1)
	if filepath.Base(got[0]) != "dropped.mp3" {
		t.Errorf("submitted %v, want dropped.mp3", got)
	}
}

func TestWatcher_IgnoresNonAudioEvents(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	w := New(dir, sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(2*settleDelay + 500*time.Millisecond)
	if got := sub.submitted(); len(got) != 0 {
		t.Errorf("submitted %v, want nothing", got)
	}
}

func TestWatcher_ActiveStemRejectionIsSilent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "talk.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	sub := &fakeSubmitter{reject: map[string]error{"talk.mp3": jobs.ErrStemActive}}
	w := New(dir, sub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Run must not error out on an active-stem rejection.
	if err := w.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("Run() = %v, want context deadline", err)
	}
	if got := sub.submitted(); len(got) != 0 {
		t.Errorf("submitted %v, want nothing", got)
	}
}
