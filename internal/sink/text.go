package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/fieldscan/internal/interpret"
)

// Text prints one "Possible partition: [a, b, ...]" line per candidate. With
// Detailed set it also prints a header per packet and the field lengths of
// every candidate.
type Text struct {
	w        *bufio.Writer
	Detailed bool
}

// NewText writes to w.
func NewText(w io.Writer) *Text {
	return &Text{w: bufio.NewWriter(w)}
}

func (t *Text) Begin(p PacketInfo) error {
	if !t.Detailed {
		return nil
	}
	_, err := fmt.Fprintf(t.w, "# packet %d: %d bytes, %s candidates: %s\n", p.Index, p.Packet.Len(), expectedString(p), p.Packet)
	return err
}

func (t *Text) Candidate(p PacketInfo, c Candidate) error {
	vals := strings.Join(interpret.Strings(c.Values), ", ")
	if !t.Detailed {
		_, err := fmt.Fprintf(t.w, "Possible partition: [%s]\n", vals)
		return err
	}
	_, err := fmt.Fprintf(t.w, "Possible partition: [%s] lengths=%v\n", vals, c.Decoding.Lengths())
	return err
}

func (t *Text) End(p PacketInfo, sum Summary) error {
	if t.Detailed && sum.Truncated {
		if _, err := fmt.Fprintf(t.w, "# packet %d: stopped after %d of %s candidates (%s)\n", p.Index, sum.Emitted, expectedString(p), sum.Reason); err != nil {
			return err
		}
	}
	return t.w.Flush()
}

func (t *Text) Close() error {
	return t.w.Flush()
}

// JSON writes one JSON object per candidate.
type JSON struct {
	w   *bufio.Writer
	enc *json.Encoder
}

type jsonCandidate struct {
	Packet  int           `json:"packet"`
	Ordinal int           `json:"ordinal"`
	Breaks  []int         `json:"breaks"`
	Lengths []int         `json:"lengths"`
	Values  []json.Number `json:"values"`
}

// NewJSON writes JSON lines to w.
func NewJSON(w io.Writer) *JSON {
	bw := bufio.NewWriter(w)
	return &JSON{w: bw, enc: json.NewEncoder(bw)}
}

func (j *JSON) Begin(PacketInfo) error { return nil }

func (j *JSON) Candidate(p PacketInfo, c Candidate) error {
	vals := make([]json.Number, len(c.Values))
	for i, v := range c.Values {
		vals[i] = json.Number(v.String())
	}
	return j.enc.Encode(jsonCandidate{
		Packet:  p.Index,
		Ordinal: c.Ordinal,
		Breaks:  c.Decoding.Breaks,
		Lengths: c.Decoding.Lengths(),
		Values:  vals,
	})
}

func (j *JSON) End(PacketInfo, Summary) error { return j.w.Flush() }

func (j *JSON) Close() error { return j.w.Flush() }
