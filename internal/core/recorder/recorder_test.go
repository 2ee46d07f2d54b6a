package recorder

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hatchet/internal/core/events"
)

func TestRecorderWritesPublishedEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	r, err := New(path, 10)
	require.NoError(t, err)

	r.Publish(events.New("build.done", "ok", "hat1", 1))
	r.Publish(events.New("task.start", nil, "hat2", 2))
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	require.Equal(t, 2, count)
}

func TestRecorderPublishDoesNotBlockOnOverflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	r, err := New(path, 1)
	require.NoError(t, err)
	defer r.Close()

	// Fill the queue without letting the background writer drain it by
	// publishing synchronously under the lock via direct field access is
	// not exported, so instead assert the non-blocking contract: Publish
	// must return promptly even under sustained overflow.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			r.Publish(events.New("spam.event", i, "hat", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish did not return promptly under overflow")
	}
}

func TestRecorderNeverDropsReservedOnReservedOverflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	r, err := New(path, 1)
	require.NoError(t, err)
	r.Publish(events.New(events.ReservedPrefix+"terminal", "info", "loop", 1))
	r.Publish(events.New("ordinary.topic", "data", "hat", 2))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"topic":"_meta.terminal"`)
}
