// Package capture is the narrow façade a USB decoder thread and a UI
// consumer actually see: constructors for each storage layer and the
// read-only handle types built from them. The storage layers
// (bytestream, datastream, indexstream, compactindex) are internal
// packages constructed through this package; the cmd/ tools inside this
// module also import some internal packages directly. This mirrors how
// restic's top-level repository package is the only thing its callers import even though it is backed
// by internal/pack, internal/index and internal/backend underneath.
package capture

import (
	"github.com/greatscottgadgets/packetry-sub001/internal/bytestream"
	"github.com/greatscottgadgets/packetry-sub001/internal/compactindex"
	"github.com/greatscottgadgets/packetry-sub001/internal/datastream"
	"github.com/greatscottgadgets/packetry-sub001/internal/indexstream"
)

// BlockSize is the fixed block size B used throughout the engine (spec §3).
const BlockSize = bytestream.BlockSize

// ByteStream creates a raw append-only byte stream: L1 of the engine.
func ByteStream() (*bytestream.Writer, *bytestream.Reader, error) {
	return bytestream.New()
}

// DataStream creates a typed stream of fixed-size records of T: L2.
func DataStream[T any]() (*datastream.Writer[T], *datastream.Reader[T], error) {
	return datastream.New[T]()
}

// IndexStream creates a Position→Value stream of positions into a sibling
// stream, with block-aware binary search: L3.
func IndexStream[Position, Value any]() (*indexstream.Writer[Position, Value], *indexstream.Reader[Position, Value], error) {
	return indexstream.New[Position, Value]()
}

// CompactIndex creates a compact, delta-encoded Position→Value mapping
// for monotonically non-decreasing values: L4. minWidth is the MIN_WIDTH
// tuning knob from spec §3 (pass 1 for the spec's default).
func CompactIndex[Position, Value any](minWidth uint8) (*compactindex.Writer[Position, Value], *compactindex.Reader[Position, Value], error) {
	return compactindex.New[Position, Value](minWidth)
}
