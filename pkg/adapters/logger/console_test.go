package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/pedvoc/pkg/ports"
)

func TestConsoleLogger_Levels(t *testing.T) {
	var out, errOut bytes.Buffer
	log := NewWriter(ports.LevelInfo, &out, &errOut)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	log.Warn("warned %d", 3)
	log.Error("failed %d", 4)

	if strings.Contains(out.String(), "hidden") {
		t.Errorf("debug message should be filtered, got %q", out.String())
	}
	if !strings.Contains(out.String(), "shown 2") {
		t.Errorf("expected info on stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "warned 3") || !strings.Contains(errOut.String(), "failed 4") {
		t.Errorf("expected warn and error on stderr, got %q", errOut.String())
	}
}

func TestConsoleLogger_Quiet(t *testing.T) {
	var out, errOut bytes.Buffer
	log := NewWriter(ports.LevelQuiet, &out, &errOut)

	log.Error("nothing")
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("expected no output in quiet mode, got %q / %q", out.String(), errOut.String())
	}
}

func TestConsoleLogger_WithComponent(t *testing.T) {
	var out bytes.Buffer
	log := NewWriter(ports.LevelDebug, &out, &out)

	log.WithComponent("extract").Info("plain")
	if got := out.String(); got != "[extract] plain\n" {
		t.Errorf("expected component prefix, got %q", got)
	}
}

func TestNoopLogger(t *testing.T) {
	var log ports.Logger = NewNoop()
	log.Info("ignored")
	if log.WithComponent("x") != log {
		t.Error("expected WithComponent to return the same logger")
	}
}
