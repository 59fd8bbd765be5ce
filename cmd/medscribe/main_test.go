package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kbukum/medscribe/version"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version.Get().String() {
		t.Errorf("version output = %q", got)
	}
}

func TestMissingConfigFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "--config", "/nonexistent/medscribe.yml"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for a missing config file")
	}
}
