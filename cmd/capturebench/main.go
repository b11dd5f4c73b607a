// Command capturebench is a load generator and consistency checker for
// the capture storage engine: it appends a large pseudo-random byte
// stream from one writer while several reader goroutines continuously
// verify published sub-ranges, the Go analogue of spec §8 scenario 1.
// Styled after the teacher's cmd/restic entry point: a single cobra root
// command with flags for the knobs that scenario exposes.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/cobra"

	"github.com/greatscottgadgets/packetry-sub001/capture"
	"github.com/greatscottgadgets/packetry-sub001/internal/bytestream"
	"github.com/greatscottgadgets/packetry-sub001/internal/humanize"
)

type options struct {
	TotalBytes int
	Readers    int
	Seed       int64
	MaxChunk   int
}

var opts = options{
	TotalBytes: 8_012_345,
	Readers:    10,
	Seed:       42,
	MaxChunk:   12_344,
}

var cmdRoot = &cobra.Command{
	Use:           "capturebench",
	Short:         "Stress the capture storage engine with one writer and concurrent readers",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	fs := cmdRoot.Flags()
	fs.IntVar(&opts.TotalBytes, "total-bytes", opts.TotalBytes, "total bytes to append")
	fs.IntVar(&opts.Readers, "readers", opts.Readers, "number of concurrent reader goroutines")
	fs.Int64Var(&opts.Seed, "seed", opts.Seed, "PRNG seed for the generated data")
	fs.IntVar(&opts.MaxChunk, "max-chunk", opts.MaxChunk, "maximum append chunk size")
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	w, r, err := capture.ByteStream()
	if err != nil {
		return err
	}
	defer w.Close()

	rng := rand.New(rand.NewSource(opts.Seed))
	want := make([]byte, opts.TotalBytes)
	rng.Read(want)

	// mismatchCounts is a concurrent per-reader tally: many reader
	// goroutines increment their own slot while the main goroutine reads
	// the snapshot after stopping, the read-mostly-after-writes shape
	// xsync.MapOf is built for (the teacher's go.mod already depends on
	// puzpuzpuz/xsync/v3).
	mismatchCounts := xsync.NewMapOf[int, *int64]()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < opts.Readers; i++ {
		reader := r.Clone()
		id := i
		var count int64
		mismatchCounts.Store(id, &count)
		wg.Add(1)
		go func() {
			defer wg.Done()
			readerLoop(reader, want, rand.New(rand.NewSource(opts.Seed+int64(id)+1)), stop, &count)
		}()
	}

	pos := 0
	for pos < opts.TotalBytes {
		n := 1 + rng.Intn(opts.MaxChunk)
		if pos+n > opts.TotalBytes {
			n = opts.TotalBytes - pos
		}
		if _, err := w.Append(want[pos : pos+n]); err != nil {
			return err
		}
		pos += n
	}
	close(stop)
	wg.Wait()

	var totalMismatches int64
	mismatchCounts.Range(func(_ int, count *int64) bool {
		totalMismatches += *count
		return true
	})

	fmt.Printf("appended %s across %s bytes total, %d readers, %d mismatches\n",
		humanize.Bytes(uint64(opts.TotalBytes)), humanize.Comma(int64(opts.TotalBytes)), opts.Readers, totalMismatches)
	if totalMismatches > 0 {
		return fmt.Errorf("%d read mismatches detected", totalMismatches)
	}
	return nil
}

func readerLoop(r *bytestream.Reader, want []byte, rng *rand.Rand, stop <-chan struct{}, mismatches *int64) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		length := r.Len()
		if length == 0 {
			continue
		}
		start := uint64(rng.Int63n(int64(length)))
		end := start + uint64(rng.Int63n(int64(length-start))) + 1
		if end > length {
			end = length
		}
		if !verifyRange(r, want, start, end) {
			*mismatches++
		}
	}
}

func verifyRange(r *bytestream.Reader, want []byte, start, end uint64) bool {
	pos := start
	for pos < end {
		lease, err := r.Access(bytestream.Range{Start: pos, End: end})
		if err != nil {
			return false
		}
		b := lease.Bytes()
		for i, c := range b {
			if want[pos+uint64(i)] != c {
				lease.Release()
				return false
			}
		}
		pos += uint64(len(b))
		lease.Release()
	}
	return true
}
