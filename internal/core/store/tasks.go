package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"hatchet/internal/core/coreerr"
)

// TaskStatus is one of the task lifecycle states from §3. Tasks move
// through states monotonically except for open<->pending.
type TaskStatus string

const (
	TaskOpen    TaskStatus = "open"
	TaskRunning TaskStatus = "running"
	TaskClosed  TaskStatus = "closed"
	TaskFailed  TaskStatus = "failed"
	TaskPending TaskStatus = "pending"
)

// Task is a single entry in the task queue.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Priority  int        `json:"priority"`
	Status    TaskStatus `json:"status"`
	BlockedBy string     `json:"blocked_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TaskStore is an ordered JSONL list of tasks, one per line, rewritten
// wholesale on mutation (matches the teacher's atomic-write idiom used for
// its PID-state files).
type TaskStore struct {
	path  string
	mu    sync.Mutex
	tasks []Task
}

// NewTaskStore loads (or creates) the task store at path.
func NewTaskStore(path string) (*TaskStore, error) {
	s := &TaskStore{path: path}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, coreerr.New(coreerr.StorageIO, "stat task store", err)
	}
	return s, nil
}

// Add inserts a new task after validating its priority and rejecting a
// cyclic BlockedBy chain.
func (s *TaskStore) Add(title string, priority int, blockedBy string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if priority < 1 || priority > 5 {
		return Task{}, coreerr.New(coreerr.ConfigInvalid, fmt.Sprintf("priority %d out of range 1-5", priority), nil)
	}

	t := Task{
		ID:        uuid.NewString(),
		Title:     title,
		Priority:  priority,
		Status:    TaskOpen,
		BlockedBy: blockedBy,
		CreatedAt: time.Now().UTC(),
	}

	if blockedBy != "" {
		if s.wouldCycle(t.ID, blockedBy) {
			return Task{}, coreerr.New(coreerr.TaskCycle, fmt.Sprintf("task %q would cycle through %q", t.ID, blockedBy), nil)
		}
	}

	s.tasks = append(s.tasks, t)
	if err := s.persist(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// wouldCycle walks the blocked_by chain starting at blockerID, looking for
// newID. Since newID has not been inserted yet, any chain that loops back
// to newID (impossible before insertion) instead signals a cycle by
// detecting a chain that never terminates among existing tasks, i.e. visits
// an id twice.
func (s *TaskStore) wouldCycle(newID, blockerID string) bool {
	if blockerID == newID {
		return true
	}
	visited := map[string]bool{newID: true}
	cur := blockerID
	for cur != "" {
		if visited[cur] {
			return true
		}
		visited[cur] = true
		next := ""
		for _, t := range s.tasks {
			if t.ID == cur {
				next = t.BlockedBy
				break
			}
		}
		cur = next
	}
	return false
}

// Close transitions a task to closed.
func (s *TaskStore) Close(id string) error {
	return s.setStatus(id, TaskClosed)
}

func (s *TaskStore) setStatus(id string, status TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("task %q not found", id)
	}
	return s.persist()
}

// ListReady returns open tasks whose blocker is unset or closed.
func (s *TaskStore) ListReady() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]Task, len(s.tasks))
	for _, t := range s.tasks {
		byID[t.ID] = t
	}

	var out []Task
	for _, t := range s.tasks {
		if t.Status != TaskOpen {
			continue
		}
		if t.BlockedBy == "" {
			out = append(out, t)
			continue
		}
		if blocker, ok := byID[t.BlockedBy]; ok && blocker.Status == TaskClosed {
			out = append(out, t)
		}
	}
	return out
}

// ListAll returns all tasks, optionally filtered by status.
func (s *TaskStore) ListAll(status TaskStatus) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == "" {
		return append([]Task(nil), s.tasks...)
	}
	var out []Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (s *TaskStore) persist() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return coreerr.New(coreerr.StorageIO, "create task store tmp", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, t := range s.tasks {
		if err := enc.Encode(t); err != nil {
			f.Close()
			return coreerr.New(coreerr.StorageIO, "encode task", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return coreerr.New(coreerr.StorageIO, "flush task store", err)
	}
	if err := f.Close(); err != nil {
		return coreerr.New(coreerr.StorageIO, "close task store tmp", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return coreerr.New(coreerr.StorageIO, "rename task store", err)
	}
	return nil
}

func (s *TaskStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return coreerr.New(coreerr.StorageIO, "open task store", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Task
		if err := json.Unmarshal(line, &t); err != nil {
			continue
		}
		s.tasks = append(s.tasks, t)
	}
	return nil
}
