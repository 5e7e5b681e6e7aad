// Package scan drives the segmentation search over a stream of packets and
// hands every candidate decoding to a sink.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/fieldscan/internal/interpret"
	"github.com/banshee-data/fieldscan/internal/monitoring"
	"github.com/banshee-data/fieldscan/internal/segment"
	"github.com/banshee-data/fieldscan/internal/sink"
	"github.com/banshee-data/fieldscan/internal/source"
	"github.com/banshee-data/fieldscan/internal/timeutil"
)

// ErrIncompleteRunner is returned by Run when a required collaborator is nil.
var ErrIncompleteRunner = errors.New("scan: runner needs a source, an enumerator and a sink")

// Runner reads packets from Source until it is exhausted and enumerates the
// decodings of each one. Source and Sink are owned by the caller.
type Runner struct {
	Source      source.Source
	Enumerator  *segment.Enumerator
	Interpreter *interpret.Interpreter
	Sink        sink.Sink

	// MaxCandidates caps the decodings emitted per packet. Zero means no cap.
	MaxCandidates int
	// PacketTimeout bounds the time spent on one packet. Zero means no bound.
	PacketTimeout time.Duration
	// Strict makes a malformed record fatal instead of skipping it.
	Strict bool

	Clock timeutil.Clock
}

// Stats summarises a run.
type Stats struct {
	Packets    int
	Malformed  int
	Candidates int
	Truncated  int
	Elapsed    time.Duration
}

// Run processes packets until the source returns io.EOF, ctx is cancelled or
// a sink fails. The returned Stats cover everything processed so far, also
// when an error is returned.
func (r *Runner) Run(ctx context.Context) (stats Stats, err error) {
	if r.Source == nil || r.Enumerator == nil || r.Sink == nil {
		return stats, ErrIncompleteRunner
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	in := r.Interpreter
	if in == nil {
		if in, err = interpret.New(interpret.Options{}); err != nil {
			return stats, err
		}
	}

	start := clock.Now()
	defer func() { stats.Elapsed = clock.Now().Sub(start) }()

	for index := 0; ; {
		p, err := r.Source.Next(ctx)
		switch {
		case err == io.EOF:
			return stats, nil
		case errors.Is(err, source.ErrMalformedPacketSource) && !r.Strict:
			stats.Malformed++
			monitoring.Logf("skipping record: %v", err)
			continue
		case err != nil:
			return stats, err
		}

		info := sink.NewPacketInfo(index, p, r.Enumerator.Width())
		index++
		stats.Packets++

		sum, err := r.scanPacket(ctx, clock, in, info)
		stats.Candidates += sum.Emitted
		if sum.Truncated {
			stats.Truncated++
		}
		if err != nil {
			return stats, err
		}
	}
}

func (r *Runner) scanPacket(ctx context.Context, clock timeutil.Clock, in *interpret.Interpreter, info sink.PacketInfo) (sink.Summary, error) {
	sum := sink.Summary{Reason: sink.ReasonComplete}
	if err := r.Sink.Begin(info); err != nil {
		return sum, fmt.Errorf("begin packet %d: %w", info.Index, err)
	}

	start := clock.Now()
	var sinkErr error
	for d := range r.Enumerator.All(info.Packet) {
		if ctx.Err() != nil {
			sum.Reason = sink.ReasonCancelled
			break
		}
		if r.MaxCandidates > 0 && sum.Emitted >= r.MaxCandidates {
			sum.Reason = sink.ReasonLimit
			break
		}
		if r.PacketTimeout > 0 && clock.Now().Sub(start) >= r.PacketTimeout {
			sum.Reason = sink.ReasonTimeout
			break
		}
		c := sink.Candidate{Ordinal: sum.Emitted, Decoding: d, Values: in.Values(d)}
		if sinkErr = r.Sink.Candidate(info, c); sinkErr != nil {
			break
		}
		sum.Emitted++
	}
	sum.Truncated = sum.Reason != sink.ReasonComplete
	sum.Elapsed = clock.Now().Sub(start)

	if sinkErr != nil {
		return sum, fmt.Errorf("candidate %d of packet %d: %w", sum.Emitted, info.Index, sinkErr)
	}
	if sum.Truncated {
		monitoring.Debugf("packet %d: stopped after %d candidates (%s)", info.Index, sum.Emitted, sum.Reason)
	}
	if err := r.Sink.End(info, sum); err != nil {
		return sum, fmt.Errorf("end packet %d: %w", info.Index, err)
	}
	if sum.Reason == sink.ReasonCancelled {
		return sum, ctx.Err()
	}
	return sum, nil
}
