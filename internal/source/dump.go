package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/banshee-data/fieldscan/internal/segment"
)

var ErrInvalidRecordSize = errors.New("source: record size must be at least 1")

// Dump splits a raw binary file into fixed-size records. The file is mapped
// read-only so large captures are not copied into memory up front. A trailing
// partial record is yielded as a shorter packet.
type Dump struct {
	file *os.File
	data mmap.MMap
	size int
	off  int
}

// OpenDump maps path and yields records of recordSize bytes.
func OpenDump(path string, recordSize int) (*Dump, error) {
	if recordSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRecordSize, recordSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat dump file: %w", err)
	}

	d := &Dump{file: f, size: recordSize}
	// mmap rejects zero-length mappings; an empty file is simply empty.
	if info.Size() == 0 {
		return d, nil
	}
	d.data, err = mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map dump file: %w", err)
	}
	return d, nil
}

func (d *Dump) Next(ctx context.Context) (segment.Packet, error) {
	if err := ctx.Err(); err != nil {
		return segment.Packet{}, err
	}
	if d.off >= len(d.data) {
		return segment.Packet{}, io.EOF
	}
	end := min(d.off+d.size, len(d.data))
	p := segment.NewPacket(d.data[d.off:end])
	d.off = end
	return p, nil
}

func (d *Dump) Close() error {
	var err error
	if d.data != nil {
		err = d.data.Unmap()
		d.data = nil
	}
	return errors.Join(err, d.file.Close())
}
