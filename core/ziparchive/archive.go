// Package ziparchive is the production watermark.Archive backed by
// archive/zip. Entries are loaded lazily, rewritten in place and streamed
// back out with untouched entries copied raw.
package ziparchive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cordum/zipmark/core/watermark"
)

var errClosed = errors.New("ziparchive: archive closed")

type entry struct {
	header zip.FileHeader
	// file is the source entry; nil once rewritten or for new entries.
	file    *zip.File
	data    []byte
	loaded  bool
	deleted bool
	// shadowed marks a later entry with an already indexed name. It is
	// not addressable and is copied out unchanged.
	shadowed bool
}

func (e *entry) dirty() bool {
	return e.file == nil
}

// Archive is a mutable view of one zip file. It is not safe for
// concurrent use.
type Archive struct {
	entries []*entry
	index   map[string]*entry
	comment string
	closer  io.Closer
	closed  bool
	now     func() time.Time
}

var _ watermark.Archive = (*Archive)(nil)

// New returns an empty archive.
func New() *Archive {
	return &Archive{index: map[string]*entry{}, now: time.Now}
}

// Open reads the central directory of the zip at path. Close releases the
// file handle.
func Open(path string) (*Archive, error) {
	// #nosec G304 -- archive path comes from the dispatcher's staging area.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	a, err := Load(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// Load reads an archive from r. r must stay readable until the archive is
// written out.
func Load(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read zip: %w", err)
	}
	a := New()
	a.comment = zr.Comment
	for _, f := range zr.File {
		e := &entry{header: f.FileHeader, file: f}
		a.entries = append(a.entries, e)
		if _, dup := a.index[f.Name]; dup {
			e.shadowed = true
			continue
		}
		a.index[f.Name] = e
	}
	return a, nil
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Comment returns the archive comment.
func (a *Archive) Comment() string {
	return a.comment
}

// Names lists live entries in archive order. A duplicated name is listed
// once.
func (a *Archive) Names() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		if !e.deleted && !e.shadowed {
			out = append(out, e.header.Name)
		}
	}
	return out
}

func (a *Archive) Read(name string) ([]byte, error) {
	e, ok := a.index[name]
	if !ok || e.deleted {
		return nil, fmt.Errorf("%w: %s", watermark.ErrEntryNotFound, name)
	}
	if e.loaded {
		return e.data, nil
	}
	if a.closed {
		return nil, errClosed
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	e.data = data
	e.loaded = true
	return data, nil
}

// Write replaces the content of name. A deleted or existing entry keeps its
// position and header metadata; a new entry is appended and deflated.
func (a *Archive) Write(name string, data []byte) error {
	if a.closed {
		return errClosed
	}
	if name == "" {
		return fmt.Errorf("ziparchive: empty entry name")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	if e, ok := a.index[name]; ok {
		e.file = nil
		e.data = buf
		e.loaded = true
		e.deleted = false
		e.header.Modified = a.now()
		return nil
	}
	e := &entry{
		header: zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: a.now(),
		},
		data:   buf,
		loaded: true,
	}
	e.header.SetMode(0o644)
	a.entries = append(a.entries, e)
	a.index[name] = e
	return nil
}

// Delete removes name. The slot is kept so a following Write of the same
// name lands where the entry used to be.
func (a *Archive) Delete(name string) error {
	if a.closed {
		return errClosed
	}
	e, ok := a.index[name]
	if !ok || e.deleted {
		return fmt.Errorf("%w: %s", watermark.ErrEntryNotFound, name)
	}
	e.deleted = true
	e.file = nil
	e.data = nil
	e.loaded = true
	return nil
}

// WriteTo streams the archive to w.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	if a.comment != "" {
		if err := zw.SetComment(a.comment); err != nil {
			return cw.n, fmt.Errorf("set comment: %w", err)
		}
	}
	for _, e := range a.entries {
		if e.deleted {
			continue
		}
		if err := a.writeEntry(zw, e); err != nil {
			return cw.n, err
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finish zip: %w", err)
	}
	return cw.n, nil
}

func (a *Archive) writeEntry(zw *zip.Writer, e *entry) error {
	if !e.dirty() {
		if a.closed {
			return errClosed
		}
		if err := zw.Copy(e.file); err != nil {
			return fmt.Errorf("copy entry %s: %w", e.header.Name, err)
		}
		return nil
	}
	hdr := e.header
	hdr.Extra = nil
	hdr.CRC32 = 0
	hdr.CompressedSize64 = 0
	hdr.UncompressedSize64 = 0
	if hdr.Method != zip.Store && hdr.Method != zip.Deflate {
		hdr.Method = zip.Deflate
	}
	fw, err := zw.CreateHeader(&hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", hdr.Name, err)
	}
	if len(e.data) > 0 {
		if _, err := fw.Write(e.data); err != nil {
			return fmt.Errorf("write entry %s: %w", hdr.Name, err)
		}
	}
	return nil
}

// Save writes the archive to a temp file next to path and renames it over
// path, so readers never observe a half-written zip.
func (a *Archive) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".zipmark-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := a.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
