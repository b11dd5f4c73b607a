package datastream

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/greatscottgadgets/packetry-sub001/internal/captureid"
)

type record struct {
	Bar uint32
	Baz uint32
}

func TestPushGetRoundTrip(t *testing.T) {
	w, r, err := New[record]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	want := make([]record, 100)
	for i := range want {
		want[i] = record{Bar: uint32(i), Baz: uint32(i)}
		if _, err := w.Push(&want[i]); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i, rec := range want {
		got, err := r.Get(captureid.New[record](uint64(i)))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got != rec {
			t.Fatalf("record %d: got %+v, want %+v", i, got, rec)
		}
	}

	gotAll, err := r.GetRange(captureid.NewRange[record](0, 100))
	if err != nil {
		t.Fatalf("get_range: %v", err)
	}
	if diff := cmp.Diff(want, gotAll); diff != "" {
		t.Fatalf("get_range mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendBulk(t *testing.T) {
	w, r, err := New[record]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	batch := make([]record, 50)
	for i := range batch {
		batch[i] = record{Bar: uint32(i * 2), Baz: uint32(i * 3)}
	}
	rng, err := w.Append(batch)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if rng.Start.Uint64() != 0 || rng.End.Uint64() != 50 {
		t.Fatalf("unexpected id range: %+v", rng)
	}

	got, err := r.GetRange(rng)
	if err != nil {
		t.Fatalf("get_range: %v", err)
	}
	if diff := cmp.Diff(batch, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyRangeNoIO(t *testing.T) {
	w, r, err := New[record]()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	got, err := r.GetRange(captureid.NewRange[record](3, 3))
	if err != nil {
		t.Fatalf("get_range: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("expected an empty result for an empty range")
	}
}
