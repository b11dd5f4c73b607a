// Package sparsemap implements a dense-backed sparse map keyed by small
// unsigned identifiers (USB endpoint/device addresses, expected to stay
// under a couple hundred), used to hold per-endpoint substructures such as
// a compact index per endpoint. This generalizes the per-pack-file and
// per-blob bookkeeping maps the teacher keeps in internal/index into a
// slice-backed structure suited to densely-packed small keys.
package sparsemap

// Map is a sparse map from a small unsigned key to V. Unset slots cost one
// zero-valued entry (a set flag plus a zero V) each; Set grows the backing
// slice as needed.
type Map[V any] struct {
	entries []entry[V]
}

type entry[V any] struct {
	set   bool
	value V
}

// Set assigns v to key k, growing the backing slice if necessary.
func (m *Map[V]) Set(k uint, v V) {
	if int(k) >= len(m.entries) {
		grown := make([]entry[V], k+1)
		copy(grown, m.entries)
		m.entries = grown
	}
	m.entries[k] = entry[V]{set: true, value: v}
}

// Get returns the value at k and whether it was set.
func (m *Map[V]) Get(k uint) (V, bool) {
	if int(k) >= len(m.entries) {
		var zero V
		return zero, false
	}
	e := m.entries[k]
	return e.value, e.set
}

// Delete clears the slot at k, if any.
func (m *Map[V]) Delete(k uint) {
	if int(k) < len(m.entries) {
		m.entries[k] = entry[V]{}
	}
}

// Len returns the number of set slots.
func (m *Map[V]) Len() int {
	n := 0
	for _, e := range m.entries {
		if e.set {
			n++
		}
	}
	return n
}

// Each iterates set slots in key order, skipping empty ones, stopping
// early if fn returns false.
func (m *Map[V]) Each(fn func(k uint, v V) bool) {
	for k, e := range m.entries {
		if !e.set {
			continue
		}
		if !fn(uint(k), e.value) {
			return
		}
	}
}
