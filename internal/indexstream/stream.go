// Package indexstream implements L3 of the capture storage engine: a data
// stream of uint64 positions into a sibling ("target") stream, re-typed as
// a Position→Value mapping, with the block-aware binary search described
// in spec §4.3. Monotonicity of the stored values is a caller contract,
// not something this layer enforces structurally.
package indexstream

import (
	"github.com/greatscottgadgets/packetry-sub001/internal/captureid"
	"github.com/greatscottgadgets/packetry-sub001/internal/datastream"
)

// blockLength is the number of uint64 entries per bytestream block,
// the unit bisection operates on.
const blockLength = 262144 // 2 MiB / 8 bytes

// Writer appends Position→Value entries, where Value is itself a
// uint64-convertible identifier into some other stream.
type Writer[Position, Value any] struct {
	inner *datastream.Writer[uint64]
}

// Reader provides get/bisect access to the entries a Writer has appended.
type Reader[Position, Value any] struct {
	inner *datastream.Reader[uint64]
}

// New creates an index stream.
func New[Position, Value any]() (*Writer[Position, Value], *Reader[Position, Value], error) {
	iw, ir, err := datastream.New[uint64]()
	if err != nil {
		return nil, nil, err
	}
	return &Writer[Position, Value]{inner: iw}, &Reader[Position, Value]{inner: ir}, nil
}

// Len returns the number of entries appended so far.
func (w *Writer[Position, Value]) Len() uint64 { return w.inner.Len() }

// Close releases the writer's underlying resources.
func (w *Writer[Position, Value]) Close() error { return w.inner.Close() }

// Push appends one value and returns the position it was assigned.
func (w *Writer[Position, Value]) Push(v captureid.Id[Value]) (captureid.Id[Position], error) {
	raw := v.Uint64()
	id, err := w.inner.Push(&raw)
	return captureid.New[Position](id.Uint64()), err
}

// Len returns the currently-published entry count.
func (r *Reader[Position, Value]) Len() uint64 { return r.inner.Len() }

// Clone returns an independent reader over the same stream.
func (r *Reader[Position, Value]) Clone() *Reader[Position, Value] {
	return &Reader[Position, Value]{inner: r.inner.Clone()}
}

// Get returns the value stored at pos.
func (r *Reader[Position, Value]) Get(pos captureid.Id[Position]) (captureid.Id[Value], error) {
	raw, err := r.inner.Get(captureid.New[uint64](pos.Uint64()))
	return captureid.New[Value](raw), err
}

// GetRange returns the values stored in rng.
func (r *Reader[Position, Value]) GetRange(rng captureid.Range[Position]) ([]captureid.Id[Value], error) {
	raws, err := r.inner.GetRange(captureid.NewRange[uint64](rng.Start.Uint64(), rng.End.Uint64()))
	if err != nil {
		return nil, err
	}
	out := make([]captureid.Id[Value], len(raws))
	for i, raw := range raws {
		out[i] = captureid.New[Value](raw)
	}
	return out, nil
}

// TargetRange returns [value(pos), value(pos+1)) if pos+1 is a published
// entry, else [value(pos), targetLength): the subrange of the target
// stream that entry pos refers to.
func (r *Reader[Position, Value]) TargetRange(pos captureid.Id[Position], targetLength captureid.Id[Value]) (captureid.Range[Value], error) {
	start, err := r.Get(pos)
	if err != nil {
		return captureid.Range[Value]{}, err
	}
	next := pos.Add(1)
	if next.Uint64() < r.Len() {
		end, err := r.Get(next)
		if err != nil {
			return captureid.Range[Value]{}, err
		}
		return captureid.Range[Value]{Start: start, End: end}, nil
	}
	return captureid.Range[Value]{Start: start, End: targetLength}, nil
}

// BisectLeft returns the smallest position i in rng with value(i) >= v,
// or rng.End if no such position exists.
func (r *Reader[Position, Value]) BisectLeft(rng captureid.Range[Position], v captureid.Id[Value]) (captureid.Id[Position], error) {
	return r.bisect(rng, v, false)
}

// BisectRight returns the smallest position i in rng with value(i) > v,
// or rng.End if no such position exists.
func (r *Reader[Position, Value]) BisectRight(rng captureid.Range[Position], v captureid.Id[Value]) (captureid.Id[Position], error) {
	return r.bisect(rng, v, true)
}

// BisectRangeLeft is BisectLeft over the whole published stream.
func (r *Reader[Position, Value]) BisectRangeLeft(v captureid.Id[Value]) (captureid.Id[Position], error) {
	return r.BisectLeft(captureid.NewRange[Position](0, r.Len()), v)
}

// BisectRangeRight is BisectRight over the whole published stream.
func (r *Reader[Position, Value]) BisectRangeRight(v captureid.Id[Value]) (captureid.Id[Position], error) {
	return r.BisectRight(captureid.NewRange[Position](0, r.Len()), v)
}

// bisect implements the block-aware algorithm of spec §4.3. right selects
// the tie-break: false = left-variant (>=), true = right-variant (>).
func (r *Reader[Position, Value]) bisect(rng captureid.Range[Position], v captureid.Id[Value], right bool) (captureid.Id[Position], error) {
	searchStart, searchEnd := rng.Start.Uint64(), rng.End.Uint64()
	if searchStart >= searchEnd {
		return rng.Start, nil
	}

	for {
		if searchStart >= searchEnd {
			return captureid.New[Position](searchStart), nil
		}
		mid := searchStart + (searchEnd-searchStart)/2
		blockStart := (mid / blockLength) * blockLength
		if blockStart < searchStart {
			blockStart = searchStart
		}
		blockEnd := blockStart + blockLength
		if blockEnd > searchEnd {
			blockEnd = searchEnd
		}

		values, err := r.GetRange(captureid.NewRange[Position](blockStart, blockEnd))
		if err != nil {
			return 0, err
		}
		first := values[0]
		last := values[len(values)-1]

		crossesLeft := first.Uint64() >= v.Uint64()
		if right {
			crossesLeft = first.Uint64() > v.Uint64()
		}
		if crossesLeft {
			if blockStart == searchStart {
				return captureid.New[Position](searchStart), nil
			}
			searchEnd = blockStart
			continue
		}

		crossesRight := last.Uint64() < v.Uint64()
		if right {
			crossesRight = last.Uint64() <= v.Uint64()
		}
		if crossesRight {
			searchStart = blockEnd
			continue
		}

		// the crossing point is inside this block: ordinary in-block search.
		lo, hi := 0, len(values)
		for lo < hi {
			m := lo + (hi-lo)/2
			var less bool
			if right {
				less = values[m].Uint64() <= v.Uint64()
			} else {
				less = values[m].Uint64() < v.Uint64()
			}
			if less {
				lo = m + 1
			} else {
				hi = m
			}
		}
		return captureid.New[Position](blockStart + uint64(lo)), nil
	}
}
