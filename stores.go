package authstate

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// MemoryCookieStore is an expiry-aware in-process CookieStore. It stands in
// for a browser cookie jar in server-side and test scenarios.
type MemoryCookieStore struct {
	mu      sync.Mutex
	entries map[string]cookieEntry
	now     func() time.Time
}

type cookieEntry struct {
	value   string
	expires time.Time
}

// NewMemoryCookieStore creates an empty in-memory cookie store.
func NewMemoryCookieStore() *MemoryCookieStore {
	return &MemoryCookieStore{
		entries: map[string]cookieEntry{},
		now:     time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (s *MemoryCookieStore) WithClock(clock func() time.Time) *MemoryCookieStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *MemoryCookieStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return "", nil
	}
	if s.now().After(entry.expires) {
		delete(s.entries, name)
		return "", nil
	}
	return entry.value, nil
}

func (s *MemoryCookieStore) Set(name, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[name] = cookieEntry{
		value:   value,
		expires: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryCookieStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, name)
	return nil
}

// MemoryStore is a trivial in-process DurableStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryStore creates an empty in-memory durable store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]string{}}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// FileStore is a DurableStore backed by a single JSON file, the process
// equivalent of a browser's durable key-value storage.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a durable store writing to the given path. The file
// is created lazily on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}
	return entries[key], nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		entries = map[string]string{}
	}
	entries[key] = value
	return s.save(entries)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.save(entries)
}

func (s *FileStore) load() (map[string]string, error) {
	entries := map[string]string{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FileStore) save(entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
