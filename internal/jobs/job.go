// Package jobs owns the job registry: submission, dispatch on a bounded
// worker pool, progress event fan-out to observers, and resume of failed
// jobs.
package jobs

import (
	"path/filepath"
	"strings"
	"time"
)

// Status is the job lifecycle state. The active states correspond to the
// three pipeline stages.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusTranscribing Status = "transcribing"
	StatusCleaning     Status = "cleaning"
	StatusStructuring  Status = "structuring"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions are possible without an
// explicit resume.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Active reports whether a processor execution currently owns the job.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusTranscribing || s == StatusCleaning || s == StatusStructuring
}

// Job is the persistent record of one input file's pipeline state. Fields
// are mutated only by the owning Manager; callers receive snapshot copies.
type Job struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	SourcePath string    `json:"-"`
	Stem       string    `json:"-"`
	Status     Status    `json:"status"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message"`
	Error      string    `json:"error,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event is the progress snapshot pushed to observers.
type Event struct {
	JobID      string `json:"job_id"`
	Status     Status `json:"status"`
	Message    string `json:"message"`
	Percent    int    `json:"percent"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// event builds the Event matching the job's current state.
func (j *Job) event() Event {
	return Event{
		JobID:      j.ID,
		Status:     j.Status,
		Message:    j.Message,
		Percent:    j.Percent,
		OutputPath: j.OutputPath,
		Error:      j.Error,
	}
}

// Stem derives the checkpoint-artifact base name from an input file path.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
