// Package segment enumerates the ways a packet of unknown layout can be split
// into contiguous fields.
//
// A packet of N bytes is cut at break positions 0 < b1 < ... < bk < N. A cut
// is valid when every resulting field is between 1 and W bytes long, where W
// is the maximum field width. Every valid cut is decoded as a list of unsigned
// big-endian integers, one per field, and handed back to the caller as a
// Decoding.
//
// The search walks the packet left to right and never tries a field longer
// than W, so invalid cuts are pruned before they are built:
//
//	p=0: [1] -> p=1: [1] -> p=2 ... emit
//	             [2] -> p=3 ... emit
//	     [2] -> p=2 ...
//
// Results are produced lazily through an iter.Seq. The number of valid cuts
// grows exponentially with N (see Count), so callers are expected to range
// over the sequence and break out when they have seen enough.
package segment
