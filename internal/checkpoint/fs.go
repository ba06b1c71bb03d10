package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Artifact layout under the intermediate directory:
//
//	<stem>.transcript.log    append-only "end\ttext" lines, one per segment
//	<stem>.transcript.done   marker: transcript is complete
//	<stem>.clean_chunks/     NNNN.txt per committed cleanup chunk
//	<stem>.struct_chunks/    NNNN.txt per committed structuring chunk
//
// Chunk numbering is zero-padded and contiguous for a finished stage.

var chunkFilePattern = regexp.MustCompile(`^(\d{4})\.txt$`)

// FSStore implements Store on the local filesystem.
type FSStore struct {
	dir string
}

// NewFSStore creates a store rooted at dir. The directory is created if it
// does not exist.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) transcriptPath(stem string) string {
	return filepath.Join(s.dir, stem+".transcript.log")
}

func (s *FSStore) donePath(stem string) string {
	return filepath.Join(s.dir, stem+".transcript.done")
}

func (s *FSStore) chunkDir(stem string, stage Stage) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s_chunks", stem, stage))
}

func (s *FSStore) chunkPath(stem string, stage Stage, index int) string {
	return filepath.Join(s.chunkDir(stem, stage), fmt.Sprintf("%04d.txt", index))
}

// HasTranscript reports whether the done marker exists.
func (s *FSStore) HasTranscript(_ context.Context, stem string) (bool, error) {
	_, err := os.Stat(s.donePath(stem))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat transcript marker: %w", err)
}

// ReadTranscript joins all durably flushed segment texts with spaces. A
// missing log reads as empty: zero-length audio finishes without ever
// appending a segment.
func (s *FSStore) ReadTranscript(_ context.Context, stem string) (string, error) {
	segs, err := s.readSegments(stem)
	if err != nil {
		if err == ErrNotFound {
			return "", nil
		}
		return "", err
	}
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " "), nil
}

// TranscriptOffset returns the end timestamp of the last complete line.
func (s *FSStore) TranscriptOffset(_ context.Context, stem string) (float64, error) {
	segs, err := s.readSegments(stem)
	if err != nil {
		if err == ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(segs) == 0 {
		return 0, nil
	}
	return segs[len(segs)-1].End, nil
}

// readSegments parses the transcript log, skipping a torn trailing line that
// a crash mid-append may have left without its newline terminator.
func (s *FSStore) readSegments(stem string) ([]Segment, error) {
	data, err := os.ReadFile(s.transcriptPath(stem))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var segs []Segment
	for line := range strings.Lines(string(data)) {
		if !strings.HasSuffix(line, "\n") {
			break // torn tail from an interrupted append
		}
		end, text, ok := strings.Cut(strings.TrimSuffix(line, "\n"), "\t")
		if !ok {
			continue
		}
		endSec, err := strconv.ParseFloat(end, 64)
		if err != nil {
			continue
		}
		segs = append(segs, Segment{End: endSec, Text: text})
	}
	return segs, nil
}

// AppendSegment appends one "end\ttext" line and fsyncs before returning.
func (s *FSStore) AppendSegment(_ context.Context, stem string, seg Segment) error {
	f, err := os.OpenFile(s.transcriptPath(stem), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	// Segment text is single-line by construction; newlines would corrupt
	// the log format.
	text := strings.ReplaceAll(seg.Text, "\n", " ")
	if _, err := fmt.Fprintf(f, "%.3f\t%s\n", seg.End, text); err != nil {
		return fmt.Errorf("append segment: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync transcript: %w", err)
	}
	return nil
}

// FinishTranscript atomically creates the done marker.
func (s *FSStore) FinishTranscript(_ context.Context, stem string) error {
	if err := writeFileAtomic(s.donePath(stem), nil); err != nil {
		return fmt.Errorf("write transcript marker: %w", err)
	}
	return nil
}

// ListCompletedChunks scans the stage's chunk directory.
func (s *FSStore) ListCompletedChunks(_ context.Context, stem string, stage Stage) (map[int]bool, error) {
	entries, err := os.ReadDir(s.chunkDir(stem, stage))
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]bool{}, nil
		}
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	done := make(map[int]bool, len(entries))
	for _, e := range entries {
		m := chunkFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		done[idx] = true
	}
	return done, nil
}

// ReadChunk returns the committed content of one chunk file.
func (s *FSStore) ReadChunk(_ context.Context, stem string, stage Stage, index int) (string, error) {
	data, err := os.ReadFile(s.chunkPath(stem, stage, index))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read chunk %d: %w", index, err)
	}
	return string(data), nil
}

// WriteChunk commits one chunk via write-to-temp plus rename. An existing
// complete chunk is left untouched.
func (s *FSStore) WriteChunk(_ context.Context, stem string, stage Stage, index int, text string) error {
	path := s.chunkPath(stem, stage, index)
	if _, err := os.Stat(path); err == nil {
		return nil // already committed by an earlier run
	}

	if err := os.MkdirAll(s.chunkDir(stem, stage), 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return fmt.Errorf("write chunk %d: %w", index, err)
	}
	return nil
}

// WriteFileAtomic writes data to path with all-or-nothing semantics. Used by
// the processor for the final document as well.
func WriteFileAtomic(path string, data []byte) error {
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
