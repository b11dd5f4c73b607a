package indexstream

import (
	"testing"

	"github.com/greatscottgadgets/packetry-sub001/internal/captureid"
)

type position struct{}
type target struct{}

func buildSequence(t *testing.T, n int) (*Reader[position, target], []uint64) {
	t.Helper()
	w, r, err := New[position, target]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	values := make([]uint64, n)
	acc := uint64(10)
	for i := 0; i < n; i++ {
		acc += 1 + uint64(i%3)
		values[i] = acc
		if _, err := w.Push(captureid.New[target](acc)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	return r, values
}

func TestIndexStreamGetAndBisect(t *testing.T) {
	const n = 4321
	r, values := buildSequence(t, n)

	for i := 0; i < n; i++ {
		got, err := r.Get(captureid.New[position](uint64(i)))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got.Uint64() != values[i] {
			t.Fatalf("get(%d): got %d, want %d", i, got.Uint64(), values[i])
		}
	}

	for i, v := range values {
		pos, err := r.BisectRangeLeft(captureid.New[target](v))
		if err != nil {
			t.Fatalf("bisect_left %d: %v", i, err)
		}
		if pos.Uint64() != uint64(i) {
			t.Fatalf("bisect_left(v[%d]=%d): got %d, want %d", i, v, pos.Uint64(), i)
		}

		posRight, err := r.BisectRangeRight(captureid.New[target](v))
		if err != nil {
			t.Fatalf("bisect_right %d: %v", i, err)
		}
		if posRight.Uint64() != uint64(i+1) {
			t.Fatalf("bisect_right(v[%d]=%d): got %d, want %d", i, v, posRight.Uint64(), i+1)
		}
	}

	last := values[n-1]
	pos, err := r.BisectRangeLeft(captureid.New[target](last + 1))
	if err != nil {
		t.Fatalf("bisect_left past end: %v", err)
	}
	if pos.Uint64() != uint64(n) {
		t.Fatalf("bisect_left(last+1): got %d, want %d", pos.Uint64(), n)
	}
}

func TestTargetRange(t *testing.T) {
	const n = 200
	r, values := buildSequence(t, n)
	const targetLength = 100_000

	for i := 0; i < n-1; i++ {
		rng, err := r.TargetRange(captureid.New[position](uint64(i)), captureid.New[target](targetLength))
		if err != nil {
			t.Fatalf("target_range %d: %v", i, err)
		}
		if rng.Start.Uint64() != values[i] || rng.End.Uint64() != values[i+1] {
			t.Fatalf("target_range(%d): got [%d,%d), want [%d,%d)", i, rng.Start.Uint64(), rng.End.Uint64(), values[i], values[i+1])
		}
	}

	rng, err := r.TargetRange(captureid.New[position](uint64(n-1)), captureid.New[target](targetLength))
	if err != nil {
		t.Fatalf("target_range last: %v", err)
	}
	if rng.Start.Uint64() != values[n-1] || rng.End.Uint64() != targetLength {
		t.Fatalf("target_range(last): got [%d,%d), want [%d,%d)", rng.Start.Uint64(), rng.End.Uint64(), values[n-1], targetLength)
	}
}

func TestBisectOnEmptyRangeReturnsStart(t *testing.T) {
	_, r, err := New[position, target]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := captureid.NewRange[position](5, 5)
	pos, err := r.BisectLeft(rng, captureid.New[target](123))
	if err != nil {
		t.Fatalf("bisect_left: %v", err)
	}
	if pos.Uint64() != 5 {
		t.Fatalf("expected range start 5, got %d", pos.Uint64())
	}
}
