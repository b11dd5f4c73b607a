package bytestream

import (
	"os"

	"github.com/greatscottgadgets/packetry-sub001/internal/engdebug"
	"github.com/greatscottgadgets/packetry-sub001/internal/engerrors"
)

// Writer is the unique, non-clonable append handle for a byte stream.
type Writer struct {
	state  *state
	file   *os.File
	length uint64
	buf    *buffer
	spare  *buffer
}

// Len returns the number of bytes appended so far.
func (w *Writer) Len() uint64 { return w.length }

// Close releases the writer's file handle. It does not affect readers,
// which hold their own shared handle.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Append copies data onto the end of the stream, per the protocol in
// spec §4.1, and publishes the new length with a release store so
// concurrently-running readers observe a consistent view. It returns the
// stream's length after the append.
func (w *Writer) Append(data []byte) (uint64, error) {
	for len(data) > 0 {
		buffered := w.length % BlockSize
		room := uint64(BlockSize) - buffered

		if uint64(len(data)) <= room {
			copy(w.buf.data[buffered:], data)
			w.length += uint64(len(data))
			data = nil

			if w.length%BlockSize == 0 {
				if err := w.flush(); err != nil {
					return 0, err
				}
			}
			continue
		}

		if buffered > 0 {
			copy(w.buf.data[buffered:], data[:room])
			data = data[room:]
			w.length += room
			if err := w.flush(); err != nil {
				return 0, err
			}
		}

		for uint64(len(data)) >= BlockSize {
			if err := w.writeDirect(data[:BlockSize], w.length); err != nil {
				return 0, err
			}
			data = data[BlockSize:]
			w.length += BlockSize
			if err := w.rebase(w.length); err != nil {
				return 0, err
			}
		}
		// any remaining tail (< BlockSize) loops back through the first
		// branch above, now against an empty, freshly-rebased buffer.
	}

	w.state.length.Store(w.length)
	return w.length, nil
}

// writeDirect writes a whole, aligned block straight to the file,
// bypassing the current buffer entirely (spec §4.1 step 3b).
func (w *Writer) writeDirect(block []byte, offset uint64) error {
	if _, err := w.file.WriteAt(block, int64(offset)); err != nil {
		return engerrors.Wrap(engerrors.WriteFile, err.Error())
	}
	return nil
}

// flush persists the (guaranteed full) current buffer to the file, then
// swaps in a replacement buffer positioned at the new tail.
func (w *Writer) flush() error {
	engdebug.Log("flush block_base=%d", w.buf.blockBase)
	if _, err := w.file.WriteAt(w.buf.data, int64(w.buf.blockBase)); err != nil {
		return engerrors.Wrap(engerrors.WriteFile, err.Error())
	}
	return w.advance(w.length)
}

// rebase swaps in a replacement buffer positioned at newBase without
// writing anything, used after a direct full-block write left the
// current buffer empty but logically behind the new tail.
func (w *Writer) rebase(newBase uint64) error {
	return w.advance(newBase)
}

// advance obtains the next buffer (reusing the spare if no reader still
// references it, per spec §4.1 step 2) and atomically publishes it as the
// new current buffer.
func (w *Writer) advance(base uint64) error {
	next, err := w.nextBuffer(base)
	if err != nil {
		return err
	}
	w.state.current.Store(next)
	w.spare = w.buf
	w.buf = next
	return nil
}

func (w *Writer) nextBuffer(base uint64) (*buffer, error) {
	if w.spare != nil && w.spare.unique() {
		w.spare.blockBase = base
		b := w.spare
		w.spare = nil
		return b, nil
	}
	return newBuffer(base)
}
