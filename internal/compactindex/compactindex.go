// Package compactindex implements L4 of the capture storage engine: an
// append-only sequence of monotonically non-decreasing values stored as
// segments of (base value, variable-width deltas), per spec §3-4.4. It is
// built directly on indexstream (L3) for the two substreams that need
// binary search (segment_start, segment_base) and on datastream/bytestream
// for the rest, the way the teacher's internal/pack builds a compact
// on-disk representation out of simpler typed streams.
package compactindex

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/greatscottgadgets/packetry-sub001/internal/bytestream"
	"github.com/greatscottgadgets/packetry-sub001/internal/captureid"
	"github.com/greatscottgadgets/packetry-sub001/internal/datastream"
	"github.com/greatscottgadgets/packetry-sub001/internal/engerrors"
	"github.com/greatscottgadgets/packetry-sub001/internal/indexstream"
)

// segmentIdx tags identifiers into the segment_start/segment_base/
// segment_offset/segment_width substreams; it never escapes this package.
type segmentIdx struct{}

// Writer appends Position→Value entries, where Value is monotonically
// non-decreasing in Position. minWidth enforces spec §3's MIN_WIDTH knob:
// every stored delta is at least this many bytes wide, trading size for
// per-segment overhead on sparsely-growing streams.
type Writer[Position, Value any] struct {
	start  *indexstream.Writer[segmentIdx, Position]
	base   *indexstream.Writer[segmentIdx, Value]
	offset *datastream.Writer[uint64]
	width  *datastream.Writer[uint8]
	deltas *bytestream.Writer

	minWidth   uint8
	dataOffset uint64

	haveSegment  bool
	currentBase  uint64
	haveWidth    bool
	currentWidth uint8

	length    uint64
	published *atomic.Uint64
}

// Reader provides Get/GetRange/bisect access to a compact index.
type Reader[Position, Value any] struct {
	start  *indexstream.Reader[segmentIdx, Position]
	base   *indexstream.Reader[segmentIdx, Value]
	offset *datastream.Reader[uint64]
	width  *datastream.Reader[uint8]
	deltas *bytestream.Reader

	published *atomic.Uint64
}

// New creates a compact index with the given MIN_WIDTH (spec default: 1).
func New[Position, Value any](minWidth uint8) (*Writer[Position, Value], *Reader[Position, Value], error) {
	if minWidth < 1 {
		minWidth = 1
	}

	startW, startR, err := indexstream.New[segmentIdx, Position]()
	if err != nil {
		return nil, nil, err
	}
	baseW, baseR, err := indexstream.New[segmentIdx, Value]()
	if err != nil {
		return nil, nil, err
	}
	offsetW, offsetR, err := datastream.New[uint64]()
	if err != nil {
		return nil, nil, err
	}
	widthW, widthR, err := datastream.New[uint8]()
	if err != nil {
		return nil, nil, err
	}
	deltasW, deltasR, err := bytestream.New()
	if err != nil {
		return nil, nil, err
	}

	published := &atomic.Uint64{}

	w := &Writer[Position, Value]{
		start: startW, base: baseW, offset: offsetW, width: widthW, deltas: deltasW,
		minWidth: minWidth, published: published,
	}
	r := &Reader[Position, Value]{
		start: startR, base: baseR, offset: offsetR, width: widthR, deltas: deltasR,
		published: published,
	}
	return w, r, nil
}

// Close releases the writer's underlying resources.
func (w *Writer[Position, Value]) Close() error {
	if err := w.start.Close(); err != nil {
		return err
	}
	if err := w.base.Close(); err != nil {
		return err
	}
	if err := w.offset.Close(); err != nil {
		return err
	}
	if err := w.width.Close(); err != nil {
		return err
	}
	return w.deltas.Close()
}

// Len returns the number of values pushed so far.
func (w *Writer[Position, Value]) Len() uint64 { return w.length }

// byteWidth returns the minimum number of bytes needed to represent delta,
// with byte_width(0) == 1 per spec §4.4.
func byteWidth(delta uint64) uint8 {
	if delta == 0 {
		return 1
	}
	var w uint8
	for delta > 0 {
		w++
		delta >>= 8
	}
	return w
}

// Push appends value, returning the position it was assigned. value must
// be >= the previous pushed value (monotonicity is the caller's contract,
// per spec §9). A value below the current segment's base produces an error
// here rather than silently underflowing the delta, a conservative
// deviation noted in DESIGN.md; a decrease that stays at or above the
// segment's base is not detected.
func (w *Writer[Position, Value]) Push(value captureid.Id[Value]) (captureid.Id[Position], error) {
	v := value.Uint64()
	pos := w.length

	switch {
	case !w.haveSegment:
		if err := w.startSegment(pos, v); err != nil {
			return 0, err
		}

	default:
		if v < w.currentBase {
			return 0, engerrors.Errorf("compactindex: value %d is less than segment base %d at position %d (monotonicity violated)", v, w.currentBase, pos)
		}
		delta := v - w.currentBase
		width := byteWidth(delta)
		if width < w.minWidth {
			width = w.minWidth
		}

		switch {
		case !w.haveWidth:
			if _, err := w.width.Push(&width); err != nil {
				return 0, err
			}
			if err := w.appendDelta(delta, width); err != nil {
				return 0, err
			}
			w.currentWidth = width
			w.haveWidth = true

		case width > w.currentWidth:
			if err := w.startSegment(pos, v); err != nil {
				return 0, err
			}

		default:
			if err := w.appendDelta(delta, w.currentWidth); err != nil {
				return 0, err
			}
		}
	}

	w.length++
	w.published.Store(w.length)
	return captureid.New[Position](pos), nil
}

func (w *Writer[Position, Value]) startSegment(pos, v uint64) error {
	if _, err := w.start.Push(captureid.New[Position](pos)); err != nil {
		return err
	}
	if _, err := w.base.Push(captureid.New[Value](v)); err != nil {
		return err
	}
	if _, err := w.offset.Push(&w.dataOffset); err != nil {
		return err
	}
	w.haveSegment = true
	w.currentBase = v
	w.haveWidth = false
	w.currentWidth = 0
	return nil
}

func (w *Writer[Position, Value]) appendDelta(delta uint64, width uint8) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], delta)
	if _, err := w.deltas.Append(buf[:width]); err != nil {
		return err
	}
	w.dataOffset += uint64(width)
	return nil
}

// Len returns the currently-published number of values.
func (r *Reader[Position, Value]) Len() uint64 { return r.published.Load() }

// Clone returns an independent reader over the same compact index.
func (r *Reader[Position, Value]) Clone() *Reader[Position, Value] {
	return &Reader[Position, Value]{
		start: r.start.Clone(), base: r.base.Clone(),
		offset: r.offset.Clone(), width: r.width.Clone(), deltas: r.deltas.Clone(),
		published: r.published,
	}
}

// locatedSegment bundles what Get/GetRange/bisect need about the segment
// that owns a given position.
type locatedSegment struct {
	idx      uint64
	segStart uint64
	base     uint64
}

// locateSegment finds the segment owning pos via segment_start.bisect_right(pos)-1,
// per spec §4.4.
func (r *Reader[Position, Value]) locateSegment(pos uint64) (locatedSegment, error) {
	numSegments := r.start.Len()
	s, err := r.start.BisectRight(captureid.NewRange[segmentIdx](0, numSegments), captureid.New[Position](pos))
	if err != nil {
		return locatedSegment{}, err
	}
	if s.Uint64() == 0 {
		return locatedSegment{}, engerrors.Errorf("compactindex: position %d precedes the first segment", pos)
	}
	idx := s.Uint64() - 1

	segStartID, err := r.start.Get(captureid.New[segmentIdx](idx))
	if err != nil {
		return locatedSegment{}, err
	}
	baseID, err := r.base.Get(captureid.New[segmentIdx](idx))
	if err != nil {
		return locatedSegment{}, err
	}
	return locatedSegment{idx: idx, segStart: segStartID.Uint64(), base: baseID.Uint64()}, nil
}

// Get returns the value stored at position.
func (r *Reader[Position, Value]) Get(position captureid.Id[Position]) (captureid.Id[Value], error) {
	pos := position.Uint64()
	length := r.published.Load()
	if pos >= length {
		return 0, engerrors.OutOfRangef(pos, length)
	}

	seg, err := r.locateSegment(pos)
	if err != nil {
		return 0, err
	}
	if pos == seg.segStart {
		return captureid.New[Value](seg.base), nil
	}

	width, err := r.width.Get(captureid.New[uint8](seg.idx))
	if err != nil {
		return 0, err
	}
	offsetID, err := r.offset.Get(captureid.New[uint64](seg.idx))
	if err != nil {
		return 0, err
	}

	k := pos - seg.segStart - 1
	var b8 [8]byte
	if err := r.readDeltaBytes(offsetID+k*uint64(width), b8[:width]); err != nil {
		return 0, err
	}
	delta := binary.LittleEndian.Uint64(b8[:])
	return captureid.New[Value](seg.base + delta), nil
}

// nextSegmentStart returns the position at which segment idx+1 begins, or
// the published length if idx is the last segment.
func (r *Reader[Position, Value]) nextSegmentStart(idx uint64) (uint64, error) {
	if idx+1 < r.start.Len() {
		v, err := r.start.Get(captureid.New[segmentIdx](idx + 1))
		if err != nil {
			return 0, err
		}
		return v.Uint64(), nil
	}
	return r.published.Load(), nil
}

// GetRange returns the values in rng as a contiguous slice, decoding each
// covered segment's deltas in a tight loop per spec §4.4.
func (r *Reader[Position, Value]) GetRange(rng captureid.Range[Position]) ([]captureid.Id[Value], error) {
	n := rng.Len()
	if n == 0 {
		return nil, nil
	}
	length := r.published.Load()
	if rng.End.Uint64() > length {
		return nil, engerrors.OutOfRangef(rng.End.Uint64(), length)
	}

	out := make([]captureid.Id[Value], 0, n)
	pos := rng.Start.Uint64()
	for pos < rng.End.Uint64() {
		seg, err := r.locateSegment(pos)
		if err != nil {
			return nil, err
		}
		segEndAll, err := r.nextSegmentStart(seg.idx)
		if err != nil {
			return nil, err
		}
		segEnd := segEndAll
		if rng.End.Uint64() < segEnd {
			segEnd = rng.End.Uint64()
		}

		if pos == seg.segStart {
			out = append(out, captureid.New[Value](seg.base))
			pos++
			if pos >= segEnd {
				continue
			}
		}

		width, err := r.width.Get(captureid.New[uint8](seg.idx))
		if err != nil {
			return nil, err
		}
		offsetID, err := r.offset.Get(captureid.New[uint64](seg.idx))
		if err != nil {
			return nil, err
		}

		k0 := pos - seg.segStart - 1
		count := segEnd - pos
		buf := make([]byte, count*uint64(width))
		if err := r.readDeltaBytes(offsetID+k0*uint64(width), buf); err != nil {
			return nil, err
		}
		for i := uint64(0); i < count; i++ {
			var b8 [8]byte
			copy(b8[:width], buf[i*uint64(width):(i+1)*uint64(width)])
			delta := binary.LittleEndian.Uint64(b8[:])
			out = append(out, captureid.New[Value](seg.base+delta))
		}
		pos = segEnd
	}

	if uint64(len(out)) != n {
		return nil, engerrors.Errorf("compactindex: get_range produced %d values, expected %d", len(out), n)
	}
	return out, nil
}

// readDeltaBytes fills dst starting at byte offset within delta_bytes,
// looping bytestream.Access the way datastream.readExact does.
func (r *Reader[Position, Value]) readDeltaBytes(offset uint64, dst []byte) error {
	end := offset + uint64(len(dst))
	got := uint64(0)
	for got < uint64(len(dst)) {
		lease, err := r.deltas.Access(bytestream.Range{Start: offset + got, End: end})
		if err != nil {
			return err
		}
		n := copy(dst[got:], lease.Bytes())
		lease.Release()
		if n == 0 {
			return engerrors.Errorf("compactindex: delta read returned no bytes at offset %d", offset+got)
		}
		got += uint64(n)
	}
	return nil
}

// segmentValues decodes every value belonging to segment idx (base plus
// any deltas recorded so far), in ascending order.
func (r *Reader[Position, Value]) segmentValues(idx uint64) (segStart uint64, values []uint64, err error) {
	segStartID, err := r.start.Get(captureid.New[segmentIdx](idx))
	if err != nil {
		return 0, nil, err
	}
	baseID, err := r.base.Get(captureid.New[segmentIdx](idx))
	if err != nil {
		return 0, nil, err
	}
	segStart = segStartID.Uint64()
	base := baseID.Uint64()

	if idx >= r.width.Len() {
		// only the base has been recorded for this segment so far.
		return segStart, []uint64{base}, nil
	}

	width, err := r.width.Get(captureid.New[uint8](idx))
	if err != nil {
		return 0, nil, err
	}
	offsetID, err := r.offset.Get(captureid.New[uint64](idx))
	if err != nil {
		return 0, nil, err
	}
	nextStart, err := r.nextSegmentStart(idx)
	if err != nil {
		return 0, nil, err
	}
	count := nextStart - segStart - 1

	buf := make([]byte, count*uint64(width))
	if err := r.readDeltaBytes(offsetID, buf); err != nil {
		return 0, nil, err
	}

	values = make([]uint64, count+1)
	values[0] = base
	for i := uint64(0); i < count; i++ {
		var b8 [8]byte
		copy(b8[:width], buf[i*uint64(width):(i+1)*uint64(width)])
		delta := binary.LittleEndian.Uint64(b8[:])
		values[i+1] = base + delta
	}
	return segStart, values, nil
}

// BisectRangeLeft returns the smallest position i with value(i) >= v, or
// the stream's length if no such position exists. It locates the owning
// segment via segment_base.bisect_right(v)-1 (spec §4.4) and then binary
// searches the segment's decoded values.
func (r *Reader[Position, Value]) BisectRangeLeft(v captureid.Id[Value]) (captureid.Id[Position], error) {
	return r.bisectRange(v, false)
}

// BisectRangeRight returns the smallest position i with value(i) > v, or
// the stream's length if no such position exists.
func (r *Reader[Position, Value]) BisectRangeRight(v captureid.Id[Value]) (captureid.Id[Position], error) {
	return r.bisectRange(v, true)
}

func (r *Reader[Position, Value]) bisectRange(value captureid.Id[Value], right bool) (captureid.Id[Position], error) {
	numSegments := r.base.Len()
	if numSegments == 0 {
		return captureid.New[Position](0), nil
	}

	s, err := r.base.BisectRight(captureid.NewRange[segmentIdx](0, numSegments), value)
	if err != nil {
		return 0, err
	}
	if s.Uint64() == 0 {
		// value is smaller than every base ever recorded: nothing precedes
		// position 0.
		return captureid.New[Position](0), nil
	}
	idx := s.Uint64() - 1

	segStart, values, err := r.segmentValues(idx)
	if err != nil {
		return 0, err
	}

	v := value.Uint64()
	lo, hi := 0, len(values)
	for lo < hi {
		m := lo + (hi-lo)/2
		var less bool
		if right {
			less = values[m] <= v
		} else {
			less = values[m] < v
		}
		if less {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return captureid.New[Position](segStart + uint64(lo)), nil
}

// BisectLeft and BisectRight restrict BisectRangeLeft/Right's result to
// rng, for callers that already know the search need not cross rng's
// bounds. The search itself still runs over the whole index and is then
// clamped; see DESIGN.md for why a fully range-restricted segment walk
// was not worth the added complexity given this engine's access patterns.
func (r *Reader[Position, Value]) BisectLeft(rng captureid.Range[Position], v captureid.Id[Value]) (captureid.Id[Position], error) {
	pos, err := r.BisectRangeLeft(v)
	if err != nil {
		return 0, err
	}
	return clamp(pos, rng), nil
}

func (r *Reader[Position, Value]) BisectRight(rng captureid.Range[Position], v captureid.Id[Value]) (captureid.Id[Position], error) {
	pos, err := r.BisectRangeRight(v)
	if err != nil {
		return 0, err
	}
	return clamp(pos, rng), nil
}

func clamp[T any](pos captureid.Id[T], rng captureid.Range[T]) captureid.Id[T] {
	if pos.Less(rng.Start) {
		return rng.Start
	}
	if rng.End.Less(pos) {
		return rng.End
	}
	return pos
}
