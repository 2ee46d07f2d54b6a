// Package store implements the three append-only stores described in §3/§4.2:
// the event log (JSONL), the memory store (markdown sections by kind), and
// the task store (JSONL queue). All three share the teacher's single-writer,
// atomic-write discipline (internal/devops/process's PID-file writer,
// generalized here to append-only logs).
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"hatchet/internal/core/coreerr"
	"hatchet/internal/core/events"
)

// EventLog is an append-only JSONL sequence of Events. The writer is single
// (one live loop per working directory, enforced by the directory lock);
// readers tolerate a torn trailing line.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog opens (creating if absent) the event log at path.
func NewEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, coreerr.New(coreerr.StorageIO, "open event log", err)
	}
	_ = f.Close()
	return &EventLog{path: path}, nil
}

// Append flush-writes one event as a line. iteration must already be set on
// evt by the caller; Append does not mutate its argument.
func (l *EventLog) Append(evt events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(evt)
	if err != nil {
		return coreerr.New(coreerr.StorageIO, "marshal event", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return coreerr.New(coreerr.StorageIO, "open event log for append", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return coreerr.New(coreerr.StorageIO, "write event", err)
	}
	return f.Sync()
}

// IterFrom reads events starting at the given byte offset, in order. A
// malformed or incomplete trailing line is silently ignored (tolerates a
// torn final write).
func (l *EventLog) IterFrom(offset int64) ([]events.Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, coreerr.New(coreerr.StorageIO, "open event log", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, coreerr.New(coreerr.StorageIO, "seek event log", err)
		}
	}

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt events.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			// Torn trailing line or corrupt entry: ignore rather than fail.
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

// Tail returns (up to) the last n events by reading the whole log and
// taking its suffix. The log is expected to be modest in size for a single
// agent run; this keeps the implementation simple and matches the spec's
// "reads backward, decoding" semantics without requiring reverse-line
// scanning.
func (l *EventLog) Tail(n int) ([]events.Event, error) {
	all, err := l.IterFrom(0)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Size returns the current byte length of the log file.
func (l *EventLog) Size() (int64, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0, fmt.Errorf("stat event log: %w", err)
	}
	return info.Size(), nil
}
