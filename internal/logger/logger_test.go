package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_VerboseSelectsDebugLevel(t *testing.T) {
	Init(true)
	if Logger.GetLevel().String() != "debug" {
		t.Errorf("level = %s, want debug", Logger.GetLevel())
	}
}

func TestInit_DefaultSelectsInfoLevel(t *testing.T) {
	Init(false)
	if Logger.GetLevel().String() != "info" {
		t.Errorf("level = %s, want info", Logger.GetLevel())
	}
}

func TestWithComponent_AddsComponentField(t *testing.T) {
	Init(false)
	child := WithComponent("pki")
	if child.GetLevel() != Logger.GetLevel() {
		t.Errorf("child logger level diverged from parent")
	}

	var buf bytes.Buffer
	Logger = zerolog.New(&buf)
	WithComponent("pki").Info().Msg("x")
	if !strings.Contains(buf.String(), `"component":"pki"`) {
		t.Errorf("log line = %q, want component field pki", buf.String())
	}
}

func TestWithEndpoint_ChainsOntoComponentLogger(t *testing.T) {
	Init(false)
	base := WithComponent("fleet")
	withEndpoint := WithEndpoint(base, "server1")
	if withEndpoint.GetLevel() != base.GetLevel() {
		t.Errorf("endpoint logger level diverged from component logger")
	}

	var buf bytes.Buffer
	Logger = zerolog.New(&buf)
	WithEndpoint(WithComponent("fleet"), "server1").Info().Msg("x")
	line := buf.String()
	if !strings.Contains(line, `"component":"fleet"`) || !strings.Contains(line, `"endpoint":"server1"`) {
		t.Errorf("log line = %q, want component fleet and endpoint server1 fields", line)
	}
}
