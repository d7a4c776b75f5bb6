package watermark

import "errors"

// ErrEntryNotFound is returned by Archive.Read and Archive.Delete when no
// entry carries the exact name.
var ErrEntryNotFound = errors.New("watermark: archive entry not found")

// Archive is the minimal view of a zip archive the engine mutates. Callers
// own its lifecycle and must not share it across goroutines during a run.
type Archive interface {
	// Names lists entry names in archive order.
	Names() []string
	Read(name string) ([]byte, error)
	// Write creates the entry or overwrites an existing one.
	Write(name string, data []byte) error
	Delete(name string) error
}

// PathCache maps a full archive path to the content most recently read or
// written during one run. Once an entry is cached the archive is never
// re-read for it. A nil PathCache caches nothing.
type PathCache map[string][]byte

func (c PathCache) get(path string) ([]byte, bool) {
	data, ok := c[path]
	return data, ok
}

func (c PathCache) put(path string, data []byte) {
	if c == nil {
		return
	}
	c[path] = data
}
