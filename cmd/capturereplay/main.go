// Command capturereplay feeds a recorded byte-stream fixture through the
// capture engine's byte stream and data stream layers, the way a decoder
// thread would feed freshly captured USB traffic, and reports the
// resulting record count. Opening the source fixture retries with a
// backoff, grounded on the teacher's internal/backend/retry use of
// backoff.RetryNotify around operations that can transiently fail.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/greatscottgadgets/packetry-sub001/capture"
	"github.com/greatscottgadgets/packetry-sub001/internal/humanize"
)

// packetRecord locates one replayed frame's payload in the byte stream:
// the stream offset where the payload starts and its length in bytes. It
// stands in for whatever POD record a real USB decoder would define over
// the raw capture bytes.
type packetRecord struct {
	Offset uint64
	Length uint64
}

type options struct {
	Source     string
	MaxRetries uint64
}

var opts = options{
	MaxRetries: 5,
}

var cmdRoot = &cobra.Command{
	Use:           "capturereplay",
	Short:         "Replay a recorded byte stream fixture through the capture engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          run,
}

func init() {
	fs := cmdRoot.Flags()
	fs.StringVar(&opts.Source, "source", "", "path to the length-prefixed fixture file to replay")
	fs.Uint64Var(&opts.MaxRetries, "max-retries", opts.MaxRetries, "maximum retries after the first failed attempt to open the source fixture")
	_ = cmdRoot.MarkFlagRequired("source")
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	f, err := openSourceWithRetry(opts.Source, opts.MaxRetries)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer f.Close()

	bw, _, err := capture.ByteStream()
	if err != nil {
		return errors.Wrap(err, "byte stream")
	}
	defer bw.Close()

	dw, _, err := capture.DataStream[packetRecord]()
	if err != nil {
		return errors.Wrap(err, "data stream")
	}

	var lenBuf [4]byte
	var records uint64
	var totalBytes uint64
	for {
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "read frame length")
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(f, payload); err != nil {
			return errors.Wrap(err, "read frame payload")
		}
		end, err := bw.Append(payload)
		if err != nil {
			return errors.Wrap(err, "append payload")
		}
		if _, err := dw.Push(&packetRecord{Offset: end - uint64(n), Length: uint64(n)}); err != nil {
			return errors.Wrap(err, "push record")
		}
		records++
		totalBytes += uint64(n)
	}

	fmt.Printf("replayed %d records, %s of payload\n", records, humanize.Bytes(totalBytes))
	return nil
}

// openSourceWithRetry opens path with an exponential backoff, retrying
// only on errors that look transient (the fixture being written
// concurrently by another process, a momentarily unavailable mount). A
// missing file or permission error is marked permanent so it fails fast
// instead of waiting out the whole backoff budget.
func openSourceWithRetry(path string, maxRetries uint64) (*os.File, error) {
	var f *os.File
	operation := func() error {
		var err error
		f, err = os.Open(path)
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	err := backoff.RetryNotify(operation, backoff.WithMaxRetries(b, maxRetries), func(err error, wait time.Duration) {
		fmt.Fprintf(os.Stderr, "retrying open of %s in %s: %v\n", path, wait, err)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
