// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WriteFile writes data to name inside a fresh temporary directory and
// returns the full path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	AssertNoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WriteLines writes one packet per line to a temporary file.
func WriteLines(t testing.TB, name string, lines ...string) string {
	t.Helper()
	return WriteFile(t, name, []byte(strings.Join(lines, "\n")+"\n"))
}

// PulseOxHeader starts every pleth notification of the Wellue pulse oximeter.
var PulseOxHeader = []byte{0xaa, 0x55, 0x0f, 0x07, 0x02}

// PulseOxFrame builds an 11-byte pleth notification carrying five samples.
// The trailing byte stands in for the checksum, which is never verified.
func PulseOxFrame(samples [5]byte) []byte {
	frame := make([]byte, 0, 11)
	frame = append(frame, PulseOxHeader...)
	frame = append(frame, samples[:]...)
	return append(frame, 0x00)
}

// EscapeBytes renders b the way Python prints the body of a bytes literal,
// which is the line format the escaped packet reader expects.
func EscapeBytes(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '\'':
			sb.WriteString(`\'`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			sb.WriteString(`\x`)
			sb.WriteByte("0123456789abcdef"[c>>4])
			sb.WriteByte("0123456789abcdef"[c&0x0f])
		}
	}
	return sb.String()
}
