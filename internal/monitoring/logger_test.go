package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	originalLogf, originalDebugf := Logf, Debugf
	defer func() { Logf, Debugf = originalLogf, originalDebugf }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("packet %d", 3)

	if len(got) != 1 || got[0] != "packet 3" {
		t.Fatalf("Logf output = %q, want [\"packet 3\"]", got)
	}

	SetLogger(nil)
	Logf("dropped")
	Debugf("dropped")
	if len(got) != 1 {
		t.Errorf("muted logger should not record, got %q", got)
	}
}

func TestSetVerbose(t *testing.T) {
	originalLogf, originalDebugf := Logf, Debugf
	defer func() { Logf, Debugf = originalLogf, originalDebugf }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	Debugf("hidden")
	if len(got) != 0 {
		t.Fatalf("Debugf should be silent by default, got %q", got)
	}

	SetVerbose(true)
	Debugf("candidate %s", "[10 20]")
	if len(got) != 1 || got[0] != "[debug] candidate [10 20]" {
		t.Errorf("Debugf output = %q", got)
	}

	SetVerbose(false)
	Debugf("hidden again")
	if len(got) != 1 {
		t.Errorf("Debugf should be silent after SetVerbose(false), got %q", got)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("test message: %s", "value")
}
