package watermark

import (
	"fmt"
	"sort"
)

// MemArchive is an in-memory Archive keyed by entry name. It counts calls
// so tests can assert that no-op rules never touch the archive.
type MemArchive struct {
	names   []string
	entries map[string][]byte

	Reads   int
	Writes  int
	Deletes int

	// WriteErr, when set, is returned by every Write.
	WriteErr error
}

// NewMemArchive returns an empty archive.
func NewMemArchive() *MemArchive {
	return &MemArchive{entries: map[string][]byte{}}
}

// MemArchiveFromMap builds an archive from a map, ordering names
// lexically so directory entries precede their children.
func MemArchiveFromMap(files map[string]string) *MemArchive {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	m := NewMemArchive()
	for _, name := range names {
		m.Add(name, files[name])
	}
	return m
}

// Add appends an entry without counting it as a write.
func (m *MemArchive) Add(name, content string) *MemArchive {
	if _, ok := m.entries[name]; !ok {
		m.names = append(m.names, name)
	}
	m.entries[name] = []byte(content)
	return m
}

func (m *MemArchive) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

func (m *MemArchive) Read(name string) ([]byte, error) {
	m.Reads++
	data, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemArchive) Write(name string, data []byte) error {
	m.Writes++
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if _, ok := m.entries[name]; !ok {
		m.names = append(m.names, name)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.entries[name] = buf
	return nil
}

func (m *MemArchive) Delete(name string) error {
	m.Deletes++
	if _, ok := m.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	delete(m.entries, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i], m.names[i+1:]...)
			break
		}
	}
	return nil
}

// Content returns the current content of name as a string.
func (m *MemArchive) Content(name string) (string, bool) {
	data, ok := m.entries[name]
	return string(data), ok
}

// Len returns the number of entries.
func (m *MemArchive) Len() int {
	return len(m.names)
}
