// Command fieldscan enumerates every way each captured packet could be split
// into fields of at most -width bytes and prints the decoded values, to help
// work out the layout of an undocumented binary protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/banshee-data/fieldscan/internal/config"
	"github.com/banshee-data/fieldscan/internal/db"
	"github.com/banshee-data/fieldscan/internal/fsutil"
	"github.com/banshee-data/fieldscan/internal/interpret"
	"github.com/banshee-data/fieldscan/internal/monitoring"
	"github.com/banshee-data/fieldscan/internal/report"
	"github.com/banshee-data/fieldscan/internal/scan"
	"github.com/banshee-data/fieldscan/internal/segment"
	"github.com/banshee-data/fieldscan/internal/serialmux"
	"github.com/banshee-data/fieldscan/internal/sink"
	"github.com/banshee-data/fieldscan/internal/source"
	"github.com/banshee-data/fieldscan/internal/version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flags holds the raw command-line values. Only the flags the user actually
// set are copied into the configuration, so a config file value survives an
// unset flag.
type flags struct {
	input         string
	format        string
	width         int
	configPath    string
	profile       string
	endian        string
	signed        bool
	maskTopBit    bool
	maxCandidates int
	packetTimeout string
	strict        bool
	udpPort       int
	recordSize    int
	port          string
	baud          int
	serialInit    string
	json          bool
	dbPath        string
	reportPath    string
	reportLayouts int
	quiet         bool
	verbose       bool
	version       bool
}

func newFlagSet(f *flags, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("fieldscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.input, "input", "-", "Packet file to read; - reads lines from stdin")
	fs.StringVar(&f.format, "format", config.DefaultFormat, "Input format: lines, hex, pcap, dump or serial")
	fs.IntVar(&f.width, "width", config.DefaultWidth, "Maximum field width in bytes")
	fs.StringVar(&f.configPath, "config", "", "Path to a .json or .toml scan configuration")
	fs.StringVar(&f.profile, "profile", "", "Device profile (pulseox)")
	fs.StringVar(&f.endian, "endian", "big", "Byte order of multi-byte fields: big or little")
	fs.BoolVar(&f.signed, "signed", false, "Read fields as two's complement integers")
	fs.BoolVar(&f.maskTopBit, "mask-top-bit", false, "Clear the most significant bit of every field")
	fs.IntVar(&f.maxCandidates, "max-candidates", 0, "Stop after this many candidates per packet (0 = all)")
	fs.StringVar(&f.packetTimeout, "packet-timeout", "", "Time budget per packet, e.g. 2s (empty = none)")
	fs.BoolVar(&f.strict, "strict", false, "Abort on the first malformed record instead of skipping it")
	fs.IntVar(&f.udpPort, "udp-port", 0, "Only read UDP payloads to or from this port (pcap)")
	fs.IntVar(&f.recordSize, "record-size", 0, "Record size in bytes (dump, required)")
	fs.StringVar(&f.port, "port", "", "Serial device to read lines from (serial)")
	fs.IntVar(&f.baud, "baud", serialmux.DefaultBaudRate, "Serial baud rate")
	fs.StringVar(&f.serialInit, "serial-init", "", "Semicolon separated commands sent to the serial device on start")
	fs.BoolVar(&f.json, "json", false, "Print candidates as JSON lines")
	fs.StringVar(&f.dbPath, "db", "", "Record the run in this SQLite database")
	fs.StringVar(&f.reportPath, "report", "", "Write a layout report (.html or .png)")
	fs.IntVar(&f.reportLayouts, "report-layouts", config.DefaultReportMaxLayouts, "Number of layouts in the report")
	fs.BoolVar(&f.quiet, "quiet", false, "Suppress log output")
	fs.BoolVar(&f.verbose, "verbose", false, "Log per-packet detail and annotate text output")
	fs.BoolVar(&f.version, "version", false, "Print version information and exit")
	return fs
}

// overrides converts the flags that were set on the command line into a
// ScanConfig layered over the file configuration.
func (f *flags) overrides(fs *flag.FlagSet) *config.ScanConfig {
	cfg := &config.ScanConfig{}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "format":
			cfg.Format = config.String(f.format)
		case "width":
			cfg.Width = config.Int(f.width)
		case "profile":
			cfg.Profile = config.String(f.profile)
		case "endian":
			cfg.Endian = config.String(f.endian)
		case "signed":
			cfg.Signed = config.Bool(f.signed)
		case "mask-top-bit":
			cfg.MaskTopBit = config.Bool(f.maskTopBit)
		case "max-candidates":
			cfg.MaxCandidates = config.Int(f.maxCandidates)
		case "packet-timeout":
			cfg.PacketTimeout = config.String(f.packetTimeout)
		case "strict":
			cfg.Strict = config.Bool(f.strict)
		case "udp-port":
			cfg.UDPPort = config.Int(f.udpPort)
		case "record-size":
			cfg.RecordSize = config.Int(f.recordSize)
		case "port":
			cfg.Port = config.String(f.port)
		case "baud":
			cfg.Serial = &serialmux.PortOptions{BaudRate: f.baud}
		case "db":
			cfg.DBPath = config.String(f.dbPath)
		case "report":
			cfg.ReportPath = config.String(f.reportPath)
		case "report-layouts":
			cfg.ReportMaxLayouts = config.Int(f.reportLayouts)
		}
	})
	return cfg
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var f flags
	fs := newFlagSet(&f, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}

	if f.version {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}

	logger := log.New(stderr, "fieldscan: ", log.LstdFlags)
	monitoring.SetLogger(logger.Printf)
	monitoring.SetVerbose(f.verbose)
	if f.quiet {
		monitoring.SetLogger(nil)
	}
	defer func() {
		monitoring.SetLogger(log.Printf)
		monitoring.SetVerbose(false)
	}()

	cfg := &config.ScanConfig{}
	if f.configPath != "" {
		fileCfg, err := config.LoadScanConfig(fsutil.OSFileSystem{}, f.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "fieldscan: %v\n", err)
			return exitUsage
		}
		cfg = fileCfg
	}
	cfg.Merge(f.overrides(fs))
	if err := errors.Join(cfg.Validate(), cfg.CheckInput()); err != nil {
		fmt.Fprintf(stderr, "fieldscan: %v\n", err)
		return exitUsage
	}

	if err := scanWith(ctx, cfg, &f, stdin, stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			monitoring.Logf("interrupted")
			return exitOK
		}
		if errors.Is(err, segment.ErrInvalidConfiguration) || errors.Is(err, config.ErrInvalidConfig) {
			fmt.Fprintf(stderr, "fieldscan: %v\n", err)
			return exitUsage
		}
		logger.Printf("%v", err)
		return exitError
	}
	return exitOK
}

func scanWith(ctx context.Context, cfg *config.ScanConfig, f *flags, stdin io.Reader, stdout io.Writer) (err error) {
	enum, err := segment.New(cfg.GetWidth())
	if err != nil {
		return err
	}
	opts, err := cfg.GetInterpretOptions()
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	in, err := interpret.New(opts)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	src, label, err := openSource(ctx, cfg, f, stdin, &wg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, src.Close())
		cancel()
		wg.Wait()
	}()

	framing, err := cfg.GetFraming()
	if err != nil {
		return err
	}
	if !framing.IsZero() {
		framer, err := source.NewFramer(src, framing)
		if err != nil {
			return err
		}
		src = framer
		defer func() {
			if framer.Rejected > 0 {
				monitoring.Logf("framing rejected %d packets", framer.Rejected)
			}
		}()
	}

	var sinks sink.Multi
	if f.json {
		sinks = append(sinks, sink.NewJSON(stdout))
	} else {
		text := sink.NewText(stdout)
		text.Detailed = f.verbose
		sinks = append(sinks, text)
	}

	if path := cfg.GetDBPath(); path != "" {
		database, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		store, err := database.StartRun(cfg.GetWidth(), label, describeOptions(opts), nil)
		if err != nil {
			return err
		}
		monitoring.Logf("recording run %s in %s", store.RunID(), path)
		sinks = append(sinks, store)
	}

	if path := cfg.GetReportPath(); path != "" {
		builder, err := report.NewBuilder(fsutil.OSFileSystem{}, path, report.Options{
			MaxLayouts: cfg.GetReportMaxLayouts(),
			Title:      fmt.Sprintf("fieldscan %s (width %d)", label, cfg.GetWidth()),
		})
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		sinks = append(sinks, builder)
	}

	runner := &scan.Runner{
		Source:        src,
		Enumerator:    enum,
		Interpreter:   in,
		Sink:          sinks,
		MaxCandidates: cfg.GetMaxCandidates(),
		PacketTimeout: cfg.GetPacketTimeout(),
		Strict:        cfg.GetStrict(),
	}
	stats, runErr := runner.Run(ctx)
	closeErr := sinks.Close()

	monitoring.Logf("%d packets, %d candidates, %d truncated, %d malformed in %s",
		stats.Packets, stats.Candidates, stats.Truncated, stats.Malformed, stats.Elapsed)
	return errors.Join(runErr, closeErr)
}

// openSource opens the configured packet source and returns it with a short
// description for the run record. Background readers are tracked by wg.
func openSource(ctx context.Context, cfg *config.ScanConfig, f *flags, stdin io.Reader, wg *sync.WaitGroup) (source.Source, string, error) {
	input := f.input
	switch format := cfg.GetFormat(); format {
	case config.FormatLines, config.FormatHex:
		enc := source.Escaped
		if format == config.FormatHex {
			enc = source.Hex
		}
		if input == "-" {
			return source.NewLines(io.NopCloser(stdin), enc), "stdin", nil
		}
		src, err := source.OpenLines(input, enc)
		return src, input, err

	case config.FormatPcap:
		src, err := source.OpenCapture(input, cfg.GetUDPPort())
		return src, input, err

	case config.FormatDump:
		src, err := source.OpenDump(input, cfg.GetRecordSize())
		return src, input, err

	case config.FormatSerial:
		path := cfg.GetPort()
		portOpts, err := cfg.GetSerialOptions()
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		mux, err := serialmux.NewRealSerialMux(path, portOpts)
		if err != nil {
			return nil, "", err
		}
		return startSerial(ctx, mux, f.serialInit, wg), path, nil

	default:
		return nil, "", fmt.Errorf("%w: unknown format %q", config.ErrInvalidConfig, format)
	}
}

// startSerial subscribes to mux, sends the init commands and runs the read
// loop until ctx is done or the port closes. The multiplexer is closed when
// the loop ends, which ends the returned source.
func startSerial(ctx context.Context, mux serialmux.SerialMuxInterface, initScript string, wg *sync.WaitGroup) source.Source {
	src := source.NewSerial(mux, source.Escaped)

	var commands []string
	for _, c := range strings.Split(initScript, ";") {
		if c = strings.TrimSpace(c); c != "" {
			commands = append(commands, c)
		}
	}
	if len(commands) > 0 {
		if err := mux.Initialize(commands...); err != nil {
			monitoring.Logf("serial init failed: %v", err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("serial monitor stopped: %v", err)
		}
		if err := mux.Close(); err != nil {
			monitoring.Debugf("serial close: %v", err)
		}
	}()
	return src
}

func describeOptions(o interpret.Options) string {
	parts := []string{"endian=" + o.Endian.String()}
	if o.Signed {
		parts = append(parts, "signed")
	}
	if o.MaskTopBit {
		parts = append(parts, "mask_top_bit")
	}
	return strings.Join(parts, " ")
}
