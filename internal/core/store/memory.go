package store

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"hatchet/internal/core/coreerr"
)

// MemoryKind is one of the four memory-entry kinds from §3.
type MemoryKind string

const (
	KindPattern  MemoryKind = "pattern"
	KindDecision MemoryKind = "decision"
	KindFix      MemoryKind = "fix"
	KindContext  MemoryKind = "context"
)

var memoryKindOrder = []MemoryKind{KindPattern, KindDecision, KindFix, KindContext}

// MemoryEntry is a single immutable (until deleted) memory record.
type MemoryEntry struct {
	ID        string
	Kind      MemoryKind
	Body      string
	Tags      []string
	CreatedAt time.Time
}

// MemoryStore persists entries as markdown sections grouped by kind.
// Entries are immutable once added. Reads share a read lock; Add and
// Delete take the write lock and rewrite the backing file under it.
type MemoryStore struct {
	path string
	mu   sync.RWMutex

	entries []MemoryEntry
	seq     int64

	// searchCache memoizes recent Search() results keyed by a signature of
	// (query, kind, tags); invalidated wholesale on any mutation. Grounds
	// the teacher's hashicorp/golang-lru dependency in a read-heavy path.
	searchCache *lru.Cache[string, []MemoryEntry]
}

// NewMemoryStore loads (or creates) the memory store at path.
func NewMemoryStore(path string) (*MemoryStore, error) {
	cache, _ := lru.New[string, []MemoryEntry](64)
	s := &MemoryStore{path: path, searchCache: cache}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, coreerr.New(coreerr.StorageIO, "stat memory store", err)
	}
	return s, nil
}

// Add appends a new immutable entry and persists the store.
func (s *MemoryStore) Add(kind MemoryKind, body string, tags []string) (MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry := MemoryEntry{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixNano(), s.seq),
		Kind:      kind,
		Body:      body,
		Tags:      append([]string(nil), tags...),
		CreatedAt: time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	s.searchCache.Purge()
	if err := s.persist(); err != nil {
		return MemoryEntry{}, err
	}
	return entry, nil
}

// Delete removes the entry with the given id.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, e := range s.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.searchCache.Purge()
	return s.persist()
}

// List returns entries optionally filtered by kind, most recent first, up
// to limit (0 = unlimited).
func (s *MemoryStore) List(kind MemoryKind, limit int) []MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []MemoryEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Search does a substring match on body and tag equality, ordered per §4.2:
// (explicit tag filter match) > (recent within N days) > (reverse
// chronological); ties broken by id.
func (s *MemoryStore) Search(query string, kind MemoryKind, tags []string) []MemoryEntry {
	key := searchCacheKey(query, kind, tags)
	if cached, ok := s.searchCache.Get(key); ok {
		return cached
	}

	s.mu.RLock()
	candidates := make([]MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Body), strings.ToLower(query)) {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(e.Tags, tags) {
			continue
		}
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	now := time.Now()
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aTag, bTag := hasAnyTag(a.Tags, tags), hasAnyTag(b.Tags, tags)
		if aTag != bTag {
			return aTag
		}
		aRecent, bRecent := now.Sub(a.CreatedAt) <= 7*24*time.Hour, now.Sub(b.CreatedAt) <= 7*24*time.Hour
		if aRecent != bRecent {
			return aRecent
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	s.searchCache.Add(key, candidates)
	return candidates
}

func hasAnyTag(entryTags, want []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(entryTags))
	for _, t := range entryTags {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func searchCacheKey(query string, kind MemoryKind, tags []string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return strings.ToLower(query) + "|" + string(kind) + "|" + strings.Join(sorted, ",")
}

// persist rewrites the markdown file grouped by kind, in creation order.
func (s *MemoryStore) persist() error {
	var b strings.Builder
	b.WriteString("# Memory Store\n\n")
	for _, kind := range memoryKindOrder {
		b.WriteString(fmt.Sprintf("## %s\n\n", kind))
		for _, e := range s.entries {
			if e.Kind != kind {
				continue
			}
			b.WriteString(fmt.Sprintf("### %s\n", e.ID))
			b.WriteString(fmt.Sprintf("- created_at: %s\n", e.CreatedAt.Format(time.RFC3339)))
			b.WriteString(fmt.Sprintf("- tags: %s\n\n", strings.Join(e.Tags, ", ")))
			b.WriteString(e.Body)
			b.WriteString("\n\n")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return coreerr.New(coreerr.StorageIO, "write memory store", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return coreerr.New(coreerr.StorageIO, "rename memory store", err)
	}
	return nil
}

// load parses the markdown file back into entries.
func (s *MemoryStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return coreerr.New(coreerr.StorageIO, "open memory store", err)
	}
	defer f.Close()

	var (
		cur        *MemoryEntry
		curKind    MemoryKind
		bodyLines  []string
		maxSeq     int64
		flushEntry = func() {
			if cur == nil {
				return
			}
			cur.Body = strings.TrimRight(strings.Join(bodyLines, "\n"), "\n")
			s.entries = append(s.entries, *cur)
			cur = nil
			bodyLines = nil
		}
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "## "):
			flushEntry()
			curKind = MemoryKind(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		case strings.HasPrefix(line, "### "):
			flushEntry()
			id := strings.TrimSpace(strings.TrimPrefix(line, "### "))
			cur = &MemoryEntry{ID: id, Kind: curKind}
			if parts := strings.SplitN(id, "-", 2); len(parts) == 2 {
				if seq, err := strconv.ParseInt(parts[1], 10, 64); err == nil && seq > maxSeq {
					maxSeq = seq
				}
			}
		case strings.HasPrefix(line, "- created_at: ") && cur != nil:
			ts, _ := time.Parse(time.RFC3339, strings.TrimPrefix(line, "- created_at: "))
			cur.CreatedAt = ts
		case strings.HasPrefix(line, "- tags: ") && cur != nil:
			raw := strings.TrimPrefix(line, "- tags: ")
			if raw != "" {
				for _, t := range strings.Split(raw, ",") {
					if t = strings.TrimSpace(t); t != "" {
						cur.Tags = append(cur.Tags, t)
					}
				}
			}
		case strings.HasPrefix(line, "# Memory Store"):
			// title line, ignore
		default:
			if cur != nil {
				bodyLines = append(bodyLines, line)
			}
		}
	}
	flushEntry()
	s.seq = maxSeq
	return nil
}
