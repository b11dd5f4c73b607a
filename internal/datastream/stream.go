// Package datastream implements L2 of the capture storage engine: a
// typed view of a byte stream as a sequence of fixed-size records,
// generalizing bytestream's raw bytes into entities addressed by
// captureid.Id[T]. See spec §3, §4.2.
package datastream

import (
	"unsafe"

	"github.com/greatscottgadgets/packetry-sub001/internal/bytestream"
	"github.com/greatscottgadgets/packetry-sub001/internal/captureid"
	"github.com/greatscottgadgets/packetry-sub001/internal/engerrors"
)

// recordSize returns the size in bytes of T and validates spec §4.2's
// constraint that it must divide the block size.
func recordSize[T any]() (uint64, error) {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	if size == 0 || bytestream.BlockSize%size != 0 {
		return 0, engerrors.Errorf("record size %d does not divide block size %d", size, bytestream.BlockSize)
	}
	return size, nil
}

// Writer appends fixed-size records of T onto an underlying byte stream.
type Writer[T any] struct {
	bw     *bytestream.Writer
	size   uint64
	length uint64
}

// Reader provides random access to the records a Writer[T] has appended.
type Reader[T any] struct {
	br   *bytestream.Reader
	size uint64
}

// New creates a data stream of records of type T, returning its writer and
// an initial reader.
func New[T any]() (*Writer[T], *Reader[T], error) {
	size, err := recordSize[T]()
	if err != nil {
		return nil, nil, err
	}
	bw, br, err := bytestream.New()
	if err != nil {
		return nil, nil, err
	}
	return &Writer[T]{bw: bw, size: size}, &Reader[T]{br: br, size: size}, nil
}

// Len returns the number of records appended so far.
func (w *Writer[T]) Len() uint64 { return w.length }

// Close releases the writer's underlying file handle.
func (w *Writer[T]) Close() error { return w.bw.Close() }

// Push appends one record and returns its identifier.
func (w *Writer[T]) Push(v *T) (captureid.Id[T], error) {
	id := captureid.New[T](w.length)
	b := unsafe.Slice((*byte)(unsafe.Pointer(v)), w.size)
	if _, err := w.bw.Append(b); err != nil {
		return 0, err
	}
	w.length++
	return id, nil
}

// Append appends many records at once and returns the identifier range
// they were assigned.
func (w *Writer[T]) Append(vs []T) (captureid.Range[T], error) {
	start := w.length
	if len(vs) == 0 {
		return captureid.NewRange[T](start, start), nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&vs[0])), w.size*uint64(len(vs)))
	if _, err := w.bw.Append(b); err != nil {
		return captureid.Range[T]{}, err
	}
	w.length += uint64(len(vs))
	return captureid.NewRange[T](start, w.length), nil
}

// Len returns the reader's view of the currently-published record count.
func (r *Reader[T]) Len() uint64 {
	return r.br.Len() / r.size
}

// Clone returns an independent reader sharing the same underlying stream.
func (r *Reader[T]) Clone() *Reader[T] {
	return &Reader[T]{br: r.br.Clone(), size: r.size}
}

// Get returns the value of record id.
func (r *Reader[T]) Get(id captureid.Id[T]) (T, error) {
	var out T
	b := unsafe.Slice((*byte)(unsafe.Pointer(&out)), r.size)
	start := id.Uint64() * r.size
	if err := r.readExact(start, b); err != nil {
		return out, err
	}
	return out, nil
}

// GetRange returns the values in rng as a contiguous slice.
func (r *Reader[T]) GetRange(rng captureid.Range[T]) ([]T, error) {
	n := rng.Len()
	if n == 0 {
		return nil, nil
	}
	out := make([]T, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), r.size*n)
	start := rng.Start.Uint64() * r.size
	if err := r.readExact(start, b); err != nil {
		return nil, err
	}
	return out, nil
}

// readExact fills dst by looping bytestream.Access, which returns at most
// one block's worth of data per call.
func (r *Reader[T]) readExact(start uint64, dst []byte) error {
	end := start + uint64(len(dst))
	got := 0
	for uint64(got) < uint64(len(dst)) {
		lease, err := r.br.Access(bytestream.Range{Start: start + uint64(got), End: end})
		if err != nil {
			return err
		}
		n := copy(dst[got:], lease.Bytes())
		lease.Release()
		if n == 0 {
			return engerrors.Errorf("datastream: access returned no bytes for range [%d, %d)", start+uint64(got), end)
		}
		got += n
	}
	return nil
}

// Access returns a Lease over at most one block's worth of records
// starting at rng.Start, the typed analogue of bytestream.Reader.Access.
func (r *Reader[T]) Access(rng captureid.Range[T]) (Lease[T], error) {
	byteRange := bytestream.Range{
		Start: rng.Start.Uint64() * r.size,
		End:   rng.End.Uint64() * r.size,
	}
	lease, err := r.br.Access(byteRange)
	if err != nil {
		return nil, err
	}
	return &lease_[T]{inner: lease, size: r.size}, nil
}

// Lease dereferences to a (possibly short) slice of T and must be
// released once the caller is done with it.
type Lease[T any] interface {
	Values() []T
	Release()
}

type lease_[T any] struct {
	inner bytestream.Lease
	size  uint64
}

func (l *lease_[T]) Values() []T {
	b := l.inner.Bytes()
	n := uint64(len(b)) / l.size
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

func (l *lease_[T]) Release() { l.inner.Release() }
