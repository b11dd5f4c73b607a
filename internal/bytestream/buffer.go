package bytestream

import (
	"sync/atomic"

	"github.com/greatscottgadgets/packetry-sub001/internal/engerrors"
)

// BlockSize is B from spec §3: the unit of file I/O, mmap and the current
// buffer. It is a multiple of every relevant OS page size.
const BlockSize = 2 << 20 // 2 MiB

// buffer owns a BlockSize-byte allocation representing the not-yet-flushed
// tail of the byte stream. blockBase is the file offset the block would
// occupy once flushed; it is written only at construction and at
// spare-reuse time, both of which happen while the writer holds the sole
// reference to buf (refs == 0, i.e. no reader has an outstanding lease on
// it) per spec §5's safety condition.
type buffer struct {
	blockBase uint64
	data      []byte
	refs      atomic.Int32
}

// newBuffer allocates a fresh, zeroed block for base. Allocation failure
// (practically only an out-of-memory panic in Go) is converted to
// engerrors.Alloc so callers get the explicit error path spec §9 asks for,
// rather than a process crash.
func newBuffer(base uint64) (buf *buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = engerrors.Wrap(engerrors.Alloc, "allocate block buffer")
		}
	}()
	return &buffer{blockBase: base, data: make([]byte, BlockSize)}, nil
}

// acquire increments the reader refcount, returning buf for chaining.
func (b *buffer) acquire() *buffer {
	b.refs.Add(1)
	return b
}

// release decrements the reader refcount.
func (b *buffer) release() {
	b.refs.Add(-1)
}

// unique reports whether no reader currently holds a lease on b, i.e. it
// is safe for the writer to reuse as a spare.
func (b *buffer) unique() bool {
	return b.refs.Load() == 0
}
