package broadcast

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Announcement is one published payload together with its topic and the
// time it was published.
type Announcement struct {
	Topic  string    `json:"topic" cbor:"topic"`
	Fields Fields    `json:"fields" cbor:"fields"`
	Time   time.Time `json:"time" cbor:"time"`
}

// Store retains the latest announcement per topic.
type Store interface {
	// Load returns the last saved announcement for topic.
	Load(topic string) (Announcement, bool, error)

	// Save replaces the announcement for its topic.
	Save(a Announcement) error
}

// MemoryStore is an in-memory Store; data is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	last map[string]Announcement
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		last: make(map[string]Announcement),
	}
}

// Load returns the retained announcement for topic.
func (m *MemoryStore) Load(topic string) (Announcement, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.last[topic]
	if ok {
		a.Fields = a.Fields.Clone()
	}
	return a, ok, nil
}

// Save stores a copy of a.
func (m *MemoryStore) Save(a Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Fields = a.Fields.Clone()
	m.last[a.Topic] = a
	return nil
}

// FileStore persists retained announcements as a JSON document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store. The directory containing path
// is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the announcement for topic from the file.
func (f *FileStore) Load(topic string) (Announcement, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readAll()
	if err != nil {
		if os.IsNotExist(err) {
			return Announcement{}, false, nil
		}
		return Announcement{}, false, err
	}
	a, ok := data[topic]
	return a, ok, nil
}

// Save writes a into the file, replacing the previous entry for its topic.
func (f *FileStore) Save(a Announcement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readAll()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if data == nil {
		data = make(map[string]Announcement)
	}
	data[a.Topic] = a

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) readAll() (map[string]Announcement, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var data map[string]Announcement
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}
