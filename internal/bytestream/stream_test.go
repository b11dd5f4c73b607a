package bytestream

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
)

// readAll drains [0, length) from r one block-lease at a time.
func readAll(t *testing.T, r *Reader, length uint64) []byte {
	t.Helper()
	out := make([]byte, 0, length)
	for uint64(len(out)) < length {
		lease, err := r.Access(Range{Start: uint64(len(out)), End: length})
		if err != nil {
			t.Fatalf("access: %v", err)
		}
		out = append(out, lease.Bytes()...)
		lease.Release()
	}
	return out
}

func TestAppendAndReadBackExact(t *testing.T) {
	w, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	rng := rand.New(rand.NewSource(42))
	const total = 6 * BlockSize / 4 // spans two blocks, not block-aligned
	want := make([]byte, total)
	rng.Read(want)

	pos := 0
	for pos < total {
		n := 1 + rng.Intn(4096)
		if pos+n > total {
			n = total - pos
		}
		if _, err := w.Append(want[pos : pos+n]); err != nil {
			t.Fatalf("append: %v", err)
		}
		pos += n
	}

	got := readAll(t, r, uint64(total))
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestAppendExactlyOneBlockTriggersFlushThenReadable(t *testing.T) {
	w, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	data := make([]byte, BlockSize)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := w.Append(data); err != nil {
		t.Fatalf("append: %v", err)
	}

	got := readAll(t, r, BlockSize)
	if !bytes.Equal(got, data) {
		t.Fatal("boundary-flushed block did not read back correctly via the file mapping")
	}
}

func TestAppendLargerThanBlockWrittenDirectly(t *testing.T) {
	w, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	data := make([]byte, BlockSize*3+1234)
	rand.New(rand.NewSource(7)).Read(data)
	if _, err := w.Append(data); err != nil {
		t.Fatalf("append: %v", err)
	}

	got := readAll(t, r, uint64(len(data)))
	if !bytes.Equal(got, data) {
		t.Fatal("multi-block direct append did not read back correctly")
	}
}

func TestAccessEmptyRangeNoIO(t *testing.T) {
	w, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if _, err := w.Append([]byte("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	lease, err := r.Access(Range{Start: 2, End: 2})
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if len(lease.Bytes()) != 0 {
		t.Fatal("expected empty lease for an empty range")
	}
}

func TestAccessPastEndFails(t *testing.T) {
	w, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if _, err := w.Append([]byte("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := r.Access(Range{Start: 0, End: 100}); err == nil {
		t.Fatal("expected a read-past-end error")
	}
}

// TestConcurrentReaders exercises scenario 1 of spec §8 at a reduced scale:
// a single writer appends randomly-sized chunks while several reader
// clones continuously read random published sub-ranges and compare them
// against a reference buffer.
func TestConcurrentReaders(t *testing.T) {
	w, r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	const total = 400_000
	rng := rand.New(rand.NewSource(42))
	want := make([]byte, total)
	rng.Read(want)

	var stop = make(chan struct{})
	var wg sync.WaitGroup
	mismatch := make(chan string, 1)

	for i := 0; i < 10; i++ {
		reader := r.Clone()
		wg.Add(1)
		go func(reader *Reader) {
			defer wg.Done()
			rr := rand.New(rand.NewSource(int64(i) + 1))
			for {
				select {
				case <-stop:
					return
				default:
				}
				length := reader.Len()
				if length == 0 {
					continue
				}
				start := uint64(rr.Int63n(int64(length)))
				end := start + uint64(rr.Int63n(int64(length-start)))+1
				if end > length {
					end = length
				}
				got := readAll(t, reader, end)[start:]
				if !bytes.Equal(got, want[start:end]) {
					select {
					case mismatch <- "mismatch detected":
					default:
					}
					return
				}
			}
		}(reader)
	}

	pos := 0
	for pos < total {
		n := 1 + rng.Intn(12_344)
		if pos+n > total {
			n = total - pos
		}
		if _, err := w.Append(want[pos : pos+n]); err != nil {
			t.Fatalf("append: %v", err)
		}
		pos += n
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-mismatch:
		t.Fatal(msg)
	default:
	}
}
