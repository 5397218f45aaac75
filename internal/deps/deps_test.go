package deps

import (
	"os"
	"path/filepath"
	"testing"

	"podsift/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("present binary reported %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("missing binary reported %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unset command reported %#v", results[2])
	}
}

func TestRequirementsDefaultsWhisperBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.WhisperBinary = ""

	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("requirement count = %d, want 3", len(reqs))
	}
	for _, req := range reqs {
		if req.Name == "whisper" && req.Command != "whisper-cli" {
			t.Fatalf("whisper command = %q, want default whisper-cli", req.Command)
		}
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "a", Available: true},
		{Name: "b", Available: false},
		{Name: "c", Available: false, Optional: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "b" {
		t.Fatalf("missing = %v, want [b]", missing)
	}
}
