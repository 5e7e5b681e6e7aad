package sink

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fieldscan/internal/interpret"
	"github.com/banshee-data/fieldscan/internal/segment"
)

func feed(t *testing.T, s Sink, data []byte, width int) {
	t.Helper()
	in, err := interpret.New(interpret.Options{})
	require.NoError(t, err)
	seq, err := segment.Enumerate(segment.NewPacket(data), width)
	require.NoError(t, err)

	p := NewPacketInfo(0, segment.NewPacket(data), width)
	require.NoError(t, s.Begin(p))
	n := 0
	for d := range seq {
		require.NoError(t, s.Candidate(p, Candidate{Ordinal: n, Decoding: d, Values: in.Values(d)}))
		n++
	}
	require.NoError(t, s.End(p, Summary{Emitted: n, Reason: ReasonComplete}))
}

func TestText_MatchesLegacyOutput(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	feed(t, s, []byte{10, 20}, 2)
	require.NoError(t, s.Close())

	assert.Equal(t, "Possible partition: [10, 20]\nPossible partition: [2580]\n", buf.String())
}

func TestText_Detailed(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	s.Detailed = true
	feed(t, s, []byte{10, 20}, 2)

	p := NewPacketInfo(1, segment.NewPacket([]byte{1, 2, 3}), 2)
	require.NoError(t, s.End(p, Summary{Emitted: 1, Truncated: true, Reason: ReasonLimit}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"# packet 0: 2 bytes, 2 candidates: 0a14",
		"Possible partition: [10, 20] lengths=[1 1]",
		"Possible partition: [2580] lengths=[2]",
		"# packet 1: stopped after 1 of 3 candidates (limit)",
	}, lines)
}

func TestPacketInfo_Expected(t *testing.T) {
	p := NewPacketInfo(0, segment.NewPacket([]byte{1, 2, 3, 4}), 2)
	cp := p
	assert.Equal(t, "5", p.Expected().String())
	assert.Same(t, p.Expected(), cp.Expected(), "copies share the count")

	bare := PacketInfo{Packet: segment.NewPacket([]byte{1, 2, 3}), Width: 2}
	assert.Equal(t, "3", bare.Expected().String())

	long := NewPacketInfo(0, segment.NewPacket(make([]byte, MaxCountedLength+1)), 2)
	assert.Nil(t, long.Expected())
}

func TestText_DetailedUncounted(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	s.Detailed = true

	p := NewPacketInfo(3, segment.NewPacket(make([]byte, MaxCountedLength+1)), 2)
	require.NoError(t, s.End(p, Summary{Emitted: 1, Truncated: true, Reason: ReasonLimit}))
	assert.Equal(t, "# packet 3: stopped after 1 of unknown candidates (limit)\n", buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSON(&buf)
	feed(t, s, []byte{10, 20}, 2)
	require.NoError(t, s.Close())

	assert.Equal(t,
		`{"packet":0,"ordinal":0,"breaks":[1],"lengths":[1,1],"values":[10,20]}`+"\n"+
			`{"packet":0,"ordinal":1,"breaks":[],"lengths":[2],"values":[2580]}`+"\n",
		buf.String())
}

type recordingSink struct {
	calls []string
	err   error
}

func (r *recordingSink) Begin(PacketInfo) error { r.calls = append(r.calls, "begin"); return r.err }
func (r *recordingSink) Candidate(PacketInfo, Candidate) error {
	r.calls = append(r.calls, "candidate")
	return r.err
}
func (r *recordingSink) End(PacketInfo, Summary) error { r.calls = append(r.calls, "end"); return r.err }
func (r *recordingSink) Close() error                  { r.calls = append(r.calls, "close"); return r.err }

func TestMulti(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("disk full")}
	m := Multi{a, b}

	feed2 := func() error {
		p := NewPacketInfo(0, segment.NewPacket(nil), 1)
		return errors.Join(m.Begin(p), m.Candidate(p, Candidate{}), m.End(p, Summary{}), m.Close())
	}
	err := feed2()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"begin", "candidate", "end", "close"}, a.calls)
	assert.Equal(t, a.calls, b.calls)
}
