package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/fieldscan/internal/monitoring"
	"github.com/banshee-data/fieldscan/internal/segment"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Capture yields the UDP payloads of a pcap or pcapng file. Frames that carry
// no UDP layer are skipped. When Port is non-zero only datagrams with that
// source or destination port are kept.
type Capture struct {
	file    *os.File
	packets *gopacket.PacketSource
	port    layers.UDPPort

	// Skipped counts frames dropped by the UDP and port filters.
	Skipped int
}

// OpenCapture opens a capture file. The pcap/pcapng format is detected from
// the file magic.
func OpenCapture(path string, udpPort int) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	c, err := NewCapture(f, udpPort)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	c.file = f
	return c, nil
}

// NewCapture reads a capture from r.
func NewCapture(r io.Reader, udpPort int) (*Capture, error) {
	if udpPort < 0 || udpPort > 65535 {
		return nil, fmt.Errorf("invalid UDP port %d", udpPort)
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var (
		data     gopacket.PacketDataSource
		linkType layers.LinkType
	)
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		data, linkType = ng, ng.LinkType()
	} else {
		rd, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, err
		}
		data, linkType = rd, rd.LinkType()
	}

	ps := gopacket.NewPacketSource(data, linkType)
	ps.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	return &Capture{packets: ps, port: layers.UDPPort(udpPort)}, nil
}

func (c *Capture) Next(ctx context.Context) (segment.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return segment.Packet{}, err
		}
		pkt, err := c.packets.NextPacket()
		if err == io.EOF {
			return segment.Packet{}, io.EOF
		}
		if err != nil {
			return segment.Packet{}, fmt.Errorf("read capture frame: %w", err)
		}

		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			c.Skipped++
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if c.port != 0 && udp.SrcPort != c.port && udp.DstPort != c.port {
			c.Skipped++
			continue
		}
		monitoring.Debugf("capture: %d byte payload %v -> %v", len(udp.Payload), udp.SrcPort, udp.DstPort)
		return segment.NewPacket(udp.Payload), nil
	}
}

func (c *Capture) Close() error {
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}
