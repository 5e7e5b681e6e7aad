// Package sink consumes the candidate decodings produced for each packet.
package sink

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/banshee-data/fieldscan/internal/segment"
)

// MaxCountedLength is the longest packet for which PacketInfo.Expected
// reports a count.
const MaxCountedLength = 1 << 14

// PacketInfo identifies the packet a candidate belongs to.
type PacketInfo struct {
	// Index is the zero-based position of the packet in its source.
	Index  int
	Packet segment.Packet
	// Width is the maximum field width of the search.
	Width int

	expected *lazyCount
}

type lazyCount struct {
	once sync.Once
	n    *big.Int
}

// NewPacketInfo returns a PacketInfo whose copies share one Expected result.
func NewPacketInfo(index int, p segment.Packet, width int) PacketInfo {
	return PacketInfo{Index: index, Packet: p, Width: width, expected: &lazyCount{}}
}

// Expected returns the number of valid segmentations for the packet length
// and width, whether or not all of them are emitted. It is computed on first
// use and is nil for packets longer than MaxCountedLength.
func (p PacketInfo) Expected() *big.Int {
	if p.Packet.Len() > MaxCountedLength {
		return nil
	}
	if p.expected == nil {
		return segment.Count(p.Packet.Len(), p.Width)
	}
	p.expected.once.Do(func() {
		p.expected.n = segment.Count(p.Packet.Len(), p.Width)
	})
	return p.expected.n
}

// expectedString formats Expected, or "unknown" when it is not counted.
func expectedString(p PacketInfo) string {
	if n := p.Expected(); n != nil {
		return n.String()
	}
	return "unknown"
}

// Candidate is one decoding of a packet after interpretation.
type Candidate struct {
	// Ordinal is the zero-based position of the candidate within its packet.
	Ordinal  int
	Decoding segment.Decoding
	Values   []*big.Int
}

// Stop reasons reported in Summary.Reason.
const (
	ReasonComplete  = "complete"
	ReasonLimit     = "limit"
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
)

// Summary describes how the search for one packet ended.
type Summary struct {
	Emitted   int
	Truncated bool
	Reason    string
	Elapsed   time.Duration
}

// Sink receives candidates. For every packet the runner calls Begin once, then
// Candidate for each decoding, then End. Close is called once at the end of
// the run.
type Sink interface {
	Begin(PacketInfo) error
	Candidate(PacketInfo, Candidate) error
	End(PacketInfo, Summary) error
	Close() error
}

// Multi fans out to several sinks. Every sink sees every call; errors are
// joined.
type Multi []Sink

func (m Multi) Begin(p PacketInfo) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Begin(p))
	}
	return errors.Join(errs...)
}

func (m Multi) Candidate(p PacketInfo, c Candidate) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Candidate(p, c))
	}
	return errors.Join(errs...)
}

func (m Multi) End(p PacketInfo, sum Summary) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.End(p, sum))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
