// Package humanize formats engine counters (stream lengths, segment
// counts, buffer sizes) for diagnostics and the capturebench/capturereplay
// command-line tools. It wraps github.com/dustin/go-humanize, the same
// dependency the teacher repo carries for its own progress and UI output.
package humanize

import "github.com/dustin/go-humanize"

// Bytes renders n using binary units (KiB, MiB, ...), special-casing
// exactly 1 byte per spec §4.5.
func Bytes(n uint64) string {
	if n == 1 {
		return "1 byte"
	}
	return humanize.IBytes(n)
}

// Comma renders n with thousands separators, for entry/segment counts.
func Comma(n int64) string {
	return humanize.Comma(n)
}
