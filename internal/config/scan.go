// Package config loads scan settings from JSON or TOML files. Every field is a
// pointer so that an omitted key keeps its default and command-line flags can
// tell "unset" from "zero".
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/fieldscan/internal/fsutil"
	"github.com/banshee-data/fieldscan/internal/interpret"
	"github.com/banshee-data/fieldscan/internal/serialmux"
	"github.com/banshee-data/fieldscan/internal/source"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults applied by the getters.
const (
	DefaultWidth            = 1
	DefaultFormat           = FormatLines
	DefaultReportMaxLayouts = 8
)

// Input formats.
const (
	FormatLines  = "lines"
	FormatHex    = "hex"
	FormatPcap   = "pcap"
	FormatDump   = "dump"
	FormatSerial = "serial"
)

// ProfilePulseOx selects the framing and interpretation of the pulse oximeter
// waveform notifications: five one-byte samples whose top bit marks an R-wave.
const ProfilePulseOx = "pulseox"

// FramingConfig mirrors source.Framing with the prefix written as hex.
type FramingConfig struct {
	Prefix    *string `json:"prefix,omitempty" toml:"prefix"`
	MinLength *int    `json:"min_length,omitempty" toml:"min_length"`
	Offset    *int    `json:"offset,omitempty" toml:"offset"`
	Length    *int    `json:"length,omitempty" toml:"length"`
}

// ScanConfig is the root of a scan configuration file.
type ScanConfig struct {
	Width   *int           `json:"width,omitempty" toml:"width"`
	Format  *string        `json:"format,omitempty" toml:"format"`
	Profile *string        `json:"profile,omitempty" toml:"profile"`
	Framing *FramingConfig `json:"framing,omitempty" toml:"framing"`

	// Interpretation
	Endian     *string `json:"endian,omitempty" toml:"endian"`
	Signed     *bool   `json:"signed,omitempty" toml:"signed"`
	MaskTopBit *bool   `json:"mask_top_bit,omitempty" toml:"mask_top_bit"`

	// Search limits
	MaxCandidates *int    `json:"max_candidates,omitempty" toml:"max_candidates"`
	PacketTimeout *string `json:"packet_timeout,omitempty" toml:"packet_timeout"` // duration string like "2s"
	Strict        *bool   `json:"strict,omitempty" toml:"strict"`

	// Source specific
	UDPPort    *int                   `json:"udp_port,omitempty" toml:"udp_port"`
	RecordSize *int                   `json:"record_size,omitempty" toml:"record_size"`
	Port       *string                `json:"port,omitempty" toml:"port"`
	Serial     *serialmux.PortOptions `json:"serial,omitempty" toml:"serial"`

	// Outputs
	DBPath           *string `json:"db,omitempty" toml:"db"`
	ReportPath       *string `json:"report,omitempty" toml:"report"`
	ReportMaxLayouts *int    `json:"report_max_layouts,omitempty" toml:"report_max_layouts"`
}

// Int, String and Bool return pointers for building a ScanConfig in code.
func Int(v int) *int          { return &v }
func String(v string) *string { return &v }
func Bool(v bool) *bool       { return &v }

// LoadScanConfig loads a ScanConfig from a .json or .toml file on fsys.
// Unknown keys are rejected so that typos do not silently fall back to
// defaults.
func LoadScanConfig(fsys fsutil.FileSystem, path string) (*ScanConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ScanConfig{}
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse config TOML: unknown key %q", undecoded[0].String())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge copies every field set in o over c.
func (c *ScanConfig) Merge(o *ScanConfig) {
	if o == nil {
		return
	}
	if o.Width != nil {
		c.Width = o.Width
	}
	if o.Format != nil {
		c.Format = o.Format
	}
	if o.Profile != nil {
		c.Profile = o.Profile
	}
	if o.Framing != nil {
		if c.Framing == nil {
			c.Framing = &FramingConfig{}
		}
		if o.Framing.Prefix != nil {
			c.Framing.Prefix = o.Framing.Prefix
		}
		if o.Framing.MinLength != nil {
			c.Framing.MinLength = o.Framing.MinLength
		}
		if o.Framing.Offset != nil {
			c.Framing.Offset = o.Framing.Offset
		}
		if o.Framing.Length != nil {
			c.Framing.Length = o.Framing.Length
		}
	}
	if o.Endian != nil {
		c.Endian = o.Endian
	}
	if o.Signed != nil {
		c.Signed = o.Signed
	}
	if o.MaskTopBit != nil {
		c.MaskTopBit = o.MaskTopBit
	}
	if o.MaxCandidates != nil {
		c.MaxCandidates = o.MaxCandidates
	}
	if o.PacketTimeout != nil {
		c.PacketTimeout = o.PacketTimeout
	}
	if o.Strict != nil {
		c.Strict = o.Strict
	}
	if o.UDPPort != nil {
		c.UDPPort = o.UDPPort
	}
	if o.RecordSize != nil {
		c.RecordSize = o.RecordSize
	}
	if o.Port != nil {
		c.Port = o.Port
	}
	if o.Serial != nil {
		merged := serialmux.PortOptions{}
		if c.Serial != nil {
			merged = *c.Serial
		}
		if o.Serial.BaudRate != 0 {
			merged.BaudRate = o.Serial.BaudRate
		}
		if o.Serial.DataBits != 0 {
			merged.DataBits = o.Serial.DataBits
		}
		if o.Serial.StopBits != 0 {
			merged.StopBits = o.Serial.StopBits
		}
		if o.Serial.Parity != "" {
			merged.Parity = o.Serial.Parity
		}
		c.Serial = &merged
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.ReportPath != nil {
		c.ReportPath = o.ReportPath
	}
	if o.ReportMaxLayouts != nil {
		c.ReportMaxLayouts = o.ReportMaxLayouts
	}
}

// Validate checks that the configuration values are valid.
func (c *ScanConfig) Validate() error {
	if c.Width != nil && *c.Width < 1 {
		return fmt.Errorf("%w: width must be at least 1, got %d", ErrInvalidConfig, *c.Width)
	}
	if c.Format != nil {
		switch *c.Format {
		case FormatLines, FormatHex, FormatPcap, FormatDump, FormatSerial:
		default:
			return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, *c.Format)
		}
	}
	if c.Profile != nil && *c.Profile != "" && *c.Profile != ProfilePulseOx {
		return fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, *c.Profile)
	}
	if _, err := c.GetFraming(); err != nil {
		return err
	}
	if _, err := c.GetInterpretOptions(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxCandidates != nil && *c.MaxCandidates < 0 {
		return fmt.Errorf("%w: max_candidates must be non-negative, got %d", ErrInvalidConfig, *c.MaxCandidates)
	}
	if c.PacketTimeout != nil && *c.PacketTimeout != "" {
		d, err := time.ParseDuration(*c.PacketTimeout)
		if err != nil {
			return fmt.Errorf("%w: invalid packet_timeout '%s': %v", ErrInvalidConfig, *c.PacketTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: packet_timeout must be non-negative, got %s", ErrInvalidConfig, d)
		}
	}
	if c.UDPPort != nil && (*c.UDPPort < 0 || *c.UDPPort > 65535) {
		return fmt.Errorf("%w: udp_port out of range: %d", ErrInvalidConfig, *c.UDPPort)
	}
	if c.RecordSize != nil && *c.RecordSize < 1 {
		return fmt.Errorf("%w: record_size must be at least 1, got %d", ErrInvalidConfig, *c.RecordSize)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("%w: serial: %v", ErrInvalidConfig, err)
		}
	}
	if c.ReportMaxLayouts != nil && *c.ReportMaxLayouts < 1 {
		return fmt.Errorf("%w: report_max_layouts must be at least 1, got %d", ErrInvalidConfig, *c.ReportMaxLayouts)
	}
	return nil
}

func (c *ScanConfig) isPulseOx() bool {
	return c.Profile != nil && *c.Profile == ProfilePulseOx
}

// GetWidth returns the maximum field width or the default.
func (c *ScanConfig) GetWidth() int {
	if c.Width == nil {
		return DefaultWidth
	}
	return *c.Width
}

// GetFormat returns the input format or the default.
func (c *ScanConfig) GetFormat() string {
	if c.Format == nil {
		return DefaultFormat
	}
	return *c.Format
}

// GetFraming returns the framing to apply to every packet. Explicit framing
// fields override those of the profile.
func (c *ScanConfig) GetFraming() (source.Framing, error) {
	var f source.Framing
	if c.isPulseOx() {
		f = source.PulseOxFraming
	}
	if c.Framing != nil {
		if c.Framing.Prefix != nil {
			prefix, err := source.DecodeHex(*c.Framing.Prefix)
			if err != nil {
				return f, fmt.Errorf("%w: framing prefix: %v", ErrInvalidConfig, err)
			}
			f.Prefix = prefix
		}
		if c.Framing.MinLength != nil {
			f.MinLength = *c.Framing.MinLength
		}
		if c.Framing.Offset != nil {
			f.Offset = *c.Framing.Offset
		}
		if c.Framing.Length != nil {
			f.Length = *c.Framing.Length
		}
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return f, nil
}

// GetInterpretOptions resolves the interpretation settings. The pulse
// oximeter profile masks the top bit unless told otherwise.
func (c *ScanConfig) GetInterpretOptions() (interpret.Options, error) {
	var opts interpret.Options
	if c.Endian != nil && *c.Endian != "" {
		e, err := interpret.ParseEndian(*c.Endian)
		if err != nil {
			return opts, err
		}
		opts.Endian = e
	}
	if c.Signed != nil {
		opts.Signed = *c.Signed
	}
	opts.MaskTopBit = c.isPulseOx()
	if c.MaskTopBit != nil {
		opts.MaskTopBit = *c.MaskTopBit
	}
	if opts.Signed && opts.MaskTopBit {
		return opts, interpret.ErrConflictingOptions
	}
	return opts, nil
}

// GetMaxCandidates returns the per-packet candidate cap; 0 means unlimited.
func (c *ScanConfig) GetMaxCandidates() int {
	if c.MaxCandidates == nil {
		return 0
	}
	return *c.MaxCandidates
}

// GetPacketTimeout parses and returns the PacketTimeout as a time.Duration.
// 0 means unlimited.
func (c *ScanConfig) GetPacketTimeout() time.Duration {
	if c.PacketTimeout == nil || *c.PacketTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.PacketTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetStrict returns the strict value or the default.
func (c *ScanConfig) GetStrict() bool {
	return c.Strict != nil && *c.Strict
}

// GetUDPPort returns the capture port filter; 0 accepts every port.
func (c *ScanConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return 0
	}
	return *c.UDPPort
}

// GetRecordSize returns the dump record size, or 0 when none is set. Dump
// input has no natural record boundary, so there is no default.
func (c *ScanConfig) GetRecordSize() int {
	if c.RecordSize == nil {
		return 0
	}
	return *c.RecordSize
}

// CheckInput reports settings the selected input format cannot run without.
// It applies to the final, merged configuration; a config file may leave
// them to command-line flags.
func (c *ScanConfig) CheckInput() error {
	switch c.GetFormat() {
	case FormatDump:
		if c.GetRecordSize() == 0 {
			return fmt.Errorf("%w: dump input needs record_size", ErrInvalidConfig)
		}
	case FormatSerial:
		if c.GetPort() == "" {
			return fmt.Errorf("%w: serial input needs port", ErrInvalidConfig)
		}
	}
	return nil
}

// GetPort returns the serial device path.
func (c *ScanConfig) GetPort() string {
	if c.Port == nil {
		return ""
	}
	return *c.Port
}

// GetSerialOptions returns the normalised serial options.
func (c *ScanConfig) GetSerialOptions() (serialmux.PortOptions, error) {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	return opts.Normalize()
}

// GetDBPath returns the database path; empty disables persistence.
func (c *ScanConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetReportPath returns the report path; empty disables the report.
func (c *ScanConfig) GetReportPath() string {
	if c.ReportPath == nil {
		return ""
	}
	return *c.ReportPath
}

// GetReportMaxLayouts returns the number of layouts to chart or the default.
func (c *ScanConfig) GetReportMaxLayouts() int {
	if c.ReportMaxLayouts == nil {
		return DefaultReportMaxLayouts
	}
	return *c.ReportMaxLayouts
}
