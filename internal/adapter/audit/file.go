// Package audit keeps an append-only JSONL trail of announced mission changes.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/tracer"
)

// FileTrail implements domain.AuditTrail as a JSONL file. When maxSize is
// set and an append pushes the file past it, the oldest lines are dropped
// until the file is back under half the cap.
type FileTrail struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64 // bytes; 0 = unbounded
}

var _ domain.AuditTrail = (*FileTrail)(nil)

// NewFileTrail opens path for appending, creating it with 0600 permissions.
func NewFileTrail(path string, maxSize int64) (*FileTrail, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit trail: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat audit trail: %w", err)
	}
	return &FileTrail{file: f, path: path, size: info.Size(), maxSize: maxSize}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// Record appends entry as a single JSON line.
func (t *FileTrail) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return domain.NewDomainError("FileTrail.Record", domain.ErrAuditWrite, err.Error())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.file.Write(append(data, '\n'))
	t.size += int64(n)
	if err != nil {
		return domain.NewDomainError("FileTrail.Record", domain.ErrAuditWrite, err.Error())
	}
	if t.maxSize > 0 && t.size > t.maxSize {
		if err := t.compact(); err != nil {
			return domain.NewDomainError("FileTrail.Record", domain.ErrAuditWrite, err.Error())
		}
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("audit."+string(entry.Event), trace.WithAttributes(
			tracer.MissionAttr(entry.MissionID),
			tracer.AgentAttr(entry.AgentID),
		))
	}
	return nil
}

// Entries returns the recorded entries for missionID, or all of them when
// missionID is empty, oldest first.
func (t *FileTrail) Entries(missionID string) ([]domain.AuditEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines, err := readLines(t.path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditEntry, 0, len(lines))
	for _, line := range lines {
		var e domain.AuditEntry
		if json.Unmarshal(line, &e) != nil {
			continue
		}
		if missionID == "" || e.MissionID == missionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Size returns the current trail size in bytes.
func (t *FileTrail) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Close closes the underlying file.
func (t *FileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// compact drops the oldest lines until the trail fits in half of maxSize.
// Caller holds t.mu.
func (t *FileTrail) compact() error {
	lines, err := readLines(t.path)
	if err != nil {
		return err
	}
	var size int64
	for _, line := range lines {
		size += int64(len(line)) + 1
	}
	for len(lines) > 1 && size > t.maxSize/2 {
		size -= int64(len(lines[0])) + 1
		lines = lines[1:]
	}
	if err := t.rewrite(lines); err != nil {
		return err
	}
	t.size = size
	return nil
}

// rewrite swaps the trail for kept via a temp file. Caller holds t.mu.
func (t *FileTrail) rewrite(kept [][]byte) error {
	tmpPath := t.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp trail: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, line := range kept {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp trail: %w", err)
	}
	tmp.Close()

	if err := t.file.Close(); err != nil {
		return fmt.Errorf("close trail: %w", err)
	}
	renameErr := os.Rename(tmpPath, t.path)
	if renameErr != nil {
		os.Remove(tmpPath)
	}
	// Reopen either way so Record keeps working.
	f, err := openAppend(t.path)
	if err != nil {
		return fmt.Errorf("reopen trail: %w", err)
	}
	t.file = f
	if renameErr != nil {
		return fmt.Errorf("replace trail: %w", renameErr)
	}
	return nil
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trail: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trail: %w", err)
	}
	return lines, nil
}

// ParseSize parses a human-readable size such as "10MB" or "512KB".
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	multiplier := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.mult
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return n * multiplier, nil
}
