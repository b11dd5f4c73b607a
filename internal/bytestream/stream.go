// Package bytestream implements L1 of the capture storage engine: an
// append-only, unbounded sequence of bytes backed by a temp file plus one
// in-memory tail buffer, with cloneable random-access readers backed by a
// per-reader mmap cache. See spec §3-4.1.
//
// Grounded on the teacher's internal/backend/local (temp-file lifecycle,
// os.CreateTemp as an overridable var) and internal/bloblru (a
// hashicorp/golang-lru-backed bounded cache with an eviction hook), the
// two restic packages whose concerns this layer combines.
package bytestream

import (
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/greatscottgadgets/packetry-sub001/internal/engerrors"
)

// tempFile is overridable by tests, mirroring the teacher's
// `var tempFile = os.CreateTemp` in internal/backend/local/local.go.
var tempFile = func() (*os.File, error) {
	return os.CreateTemp("", "packetry-capture-*.bin")
}

// Range is a half-open byte range [Start, End) into the stream.
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes covered by r.
func (r Range) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// state is shared by a Writer and all of its Readers; it outlives any
// individual handle and is destroyed (via GC) only once the last handle
// referencing it is dropped.
type state struct {
	length   atomic.Uint64
	current  atomic.Pointer[buffer]
	readFile *os.File // shared read-only handle used by every reader for mmap
}

// New creates a byte stream, returning its unique Writer and an initial
// Reader. Per spec §9's open question, the first buffer is allocated
// before any shared state is published; if that allocation fails, nothing
// has been created yet and there is nothing to clean up.
func New() (*Writer, *Reader, error) {
	first, err := newBuffer(0)
	if err != nil {
		return nil, nil, err
	}

	f, err := tempFile()
	if err != nil {
		return nil, nil, engerrors.Wrap(engerrors.TempFile, err.Error())
	}

	readFile, err := os.Open(f.Name())
	if err != nil {
		_ = f.Close()
		return nil, nil, engerrors.Wrap(engerrors.CloneFile, err.Error())
	}

	st := &state{readFile: readFile}
	st.current.Store(first)

	w := &Writer{
		state: st,
		file:  f,
		buf:   first,
	}
	r := newReader(st)

	return w, r, nil
}

func newReaderLRU() *lru.Cache[uint64, mmap.MMap] {
	onEvict := func(_ uint64, m mmap.MMap) {
		_ = m.Unmap()
	}
	c, err := lru.NewWithEvict[uint64, mmap.MMap](readerLRUSize, onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, which readerLRUSize
		// never is.
		panic(err)
	}
	return c
}

// readerLRUSize is the per-reader cap on cached mmap'd blocks (spec §6):
// 4 blocks * 2 MiB = 8 MiB of mappings per reader.
const readerLRUSize = 4
