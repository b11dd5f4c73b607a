package bytestream

import (
	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/greatscottgadgets/packetry-sub001/internal/engerrors"
)

// Lease dereferences to the bytes returned by one Access call — at most
// one block's worth — and must be released once the caller is done
// reading them.
type Lease interface {
	Bytes() []byte
	Release()
}

// Reader is a clonable, random-access handle onto a byte stream. Each
// clone owns its own LRU of mapped blocks; none of the state is shared
// between clones except the stream's underlying shared state.
type Reader struct {
	state *state
	lru   *lru.Cache[uint64, mmap.MMap]
}

func newReader(st *state) *Reader {
	return &Reader{state: st, lru: newReaderLRU()}
}

// Clone returns an independent Reader over the same stream, with its own
// fresh mmap LRU.
func (r *Reader) Clone() *Reader {
	return newReader(r.state)
}

// Len returns the stream's currently-published length.
func (r *Reader) Len() uint64 {
	return r.state.length.Load()
}

// Access returns a Lease over [range.Start, min(range.End, block end)),
// i.e. at most one block's worth of data. Callers that need more than one
// block loop, advancing range.Start past what the returned Lease covered.
func (r *Reader) Access(rng Range) (Lease, error) {
	length := r.state.length.Load()
	if rng.End > length {
		return nil, engerrors.ReadPastEndf(rng.Start, rng.End, length)
	}
	if rng.Start >= rng.End {
		return emptyLease{}, nil
	}

	blockBase := rng.Start &^ (BlockSize - 1)
	subStart := rng.Start - blockBase
	absEnd := blockBase + BlockSize
	if rng.End < absEnd {
		absEnd = rng.End
	}
	subEnd := absEnd - blockBase

	cur := r.state.current.Load()
	if cur.blockBase == blockBase {
		cur.acquire()
		return &bufferedLease{buf: cur, start: subStart, end: subEnd}, nil
	}

	return r.accessMapped(blockBase, subStart, subEnd)
}

func (r *Reader) accessMapped(blockBase, subStart, subEnd uint64) (Lease, error) {
	if m, ok := r.lru.Get(blockBase); ok {
		return &mappedLease{m: m, start: subStart, end: subEnd}, nil
	}

	m, err := mmap.MapRegion(r.state.readFile, BlockSize, mmap.RDONLY, 0, int64(blockBase))
	if err != nil {
		return nil, engerrors.Wrap(engerrors.MapFile, err.Error())
	}
	r.lru.Add(blockBase, m)

	return &mappedLease{m: m, start: subStart, end: subEnd}, nil
}

type bufferedLease struct {
	buf        *buffer
	start, end uint64
}

func (l *bufferedLease) Bytes() []byte { return l.buf.data[l.start:l.end] }
func (l *bufferedLease) Release()      { l.buf.release() }

type mappedLease struct {
	m          mmap.MMap
	start, end uint64
}

func (l *mappedLease) Bytes() []byte { return l.m[l.start:l.end] }
func (l *mappedLease) Release()      {} // the LRU owns the mapping's lifetime

type emptyLease struct{}

func (emptyLease) Bytes() []byte { return nil }
func (emptyLease) Release()      {}
