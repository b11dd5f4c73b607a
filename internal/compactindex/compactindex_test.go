package compactindex

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/greatscottgadgets/packetry-sub001/internal/captureid"
)

type position struct{}
type value struct{}

func buildSequence(t *testing.T, minWidth uint8, n int) (*Reader[position, value], []uint64) {
	t.Helper()
	w, r, err := New[position, value](minWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	values := make([]uint64, n)
	acc := uint64(10)
	for i := 0; i < n; i++ {
		acc += 1 + uint64(i%3)
		values[i] = acc
		if _, err := w.Push(captureid.New[value](acc)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	return r, values
}

func TestGetMatchesInput(t *testing.T) {
	const n = 4321
	r, values := buildSequence(t, 1, n)

	for i := 0; i < n; i++ {
		got, err := r.Get(captureid.New[position](uint64(i)))
		if err != nil {
			t.Fatalf("get(%d): %v", i, err)
		}
		if got.Uint64() != values[i] {
			t.Fatalf("get(%d): got %d, want %d", i, got.Uint64(), values[i])
		}
	}
}

func TestGetRangeMatchesInput(t *testing.T) {
	const n = 4321
	r, values := buildSequence(t, 1, n)

	got, err := r.GetRange(captureid.NewRange[position](0, n))
	if err != nil {
		t.Fatalf("get_range: %v", err)
	}
	gotRaw := make([]uint64, len(got))
	for i, v := range got {
		gotRaw[i] = v.Uint64()
	}
	if diff := cmp.Diff(values, gotRaw); diff != "" {
		t.Fatalf("get_range mismatch (-want +got):\n%s", diff)
	}
}

func TestBisectLeftMatchesEveryValue(t *testing.T) {
	const n = 4321
	r, values := buildSequence(t, 1, n)

	for i, v := range values {
		pos, err := r.BisectRangeLeft(captureid.New[value](v))
		if err != nil {
			t.Fatalf("bisect_left(%d): %v", i, err)
		}
		if pos.Uint64() != uint64(i) {
			t.Fatalf("bisect_left(v[%d]=%d): got %d, want %d", i, v, pos.Uint64(), i)
		}
	}

	last := values[n-1]
	pos, err := r.BisectRangeLeft(captureid.New[value](last + 1))
	if err != nil {
		t.Fatalf("bisect_left(last+1): %v", err)
	}
	if pos.Uint64() != uint64(n) {
		t.Fatalf("bisect_left(last+1): got %d, want %d", pos.Uint64(), n)
	}
}

func TestByteWidthBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		want uint8
	}{
		{0, 1}, {1, 1}, {0xFF, 1},
		{0x100, 2}, {0x101, 2}, {0xFFFF, 2},
		{0x10000, 3}, {0x10001, 3}, {0xFFFFFF, 3},
	}
	for _, c := range cases {
		if got := byteWidth(c.v); got != c.want {
			t.Errorf("byteWidth(0x%x) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestSegmentsSplitOnWidthGrowth(t *testing.T) {
	w, r, err := New[position, value](1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// base=0, then small deltas (width 1), then a delta that needs width 2:
	// this must start a new segment rather than growing the old one.
	pushed := []uint64{0, 1, 2, 3, 1000}
	for _, v := range pushed {
		if _, err := w.Push(captureid.New[value](v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	got, err := r.GetRange(captureid.NewRange[position](0, uint64(len(pushed))))
	if err != nil {
		t.Fatalf("get_range: %v", err)
	}
	for i, v := range pushed {
		if got[i].Uint64() != v {
			t.Fatalf("value %d: got %d, want %d", i, got[i].Uint64(), v)
		}
	}
	if segs := r.start.Len(); segs != 2 {
		t.Fatalf("segments: got %d, want 2", segs)
	}
}

func TestMinWidthForcesMinimumDeltaSize(t *testing.T) {
	w, r, err := New[position, value](2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pushed := []uint64{5, 6, 7, 8}
	for _, v := range pushed {
		if _, err := w.Push(captureid.New[value](v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	for i, v := range pushed {
		got, err := r.Get(captureid.New[position](uint64(i)))
		if err != nil {
			t.Fatalf("get(%d): %v", i, err)
		}
		if got.Uint64() != v {
			t.Fatalf("get(%d): got %d, want %d", i, got.Uint64(), v)
		}
	}
	// three one-byte deltas, each stored two bytes wide.
	if n := r.deltas.Len(); n != 6 {
		t.Fatalf("delta bytes: got %d, want 6", n)
	}
}

func TestGetRangeEmptyRequiresNoIO(t *testing.T) {
	_, r, err := New[position, value](1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.GetRange(captureid.NewRange[position](3, 3))
	if err != nil {
		t.Fatalf("get_range: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("expected empty result for an empty range")
	}
}
