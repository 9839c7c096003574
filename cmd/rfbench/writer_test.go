package main

import (
	"os"
	"path/filepath"
	"testing"

	"rfbench/internal/report"
)

func TestNewWritersDefault(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	stream, final, cleanup, err := newWriters(nil, false, "", false, false)
	if err != nil {
		t.Fatalf("newWriters() returned error: %v", err)
	}
	defer cleanup()

	if len(stream) != 1 {
		t.Fatalf("got %d stream writers, want 1", len(stream))
	}
	if _, ok := stream[0].(*report.StdoutWriter); !ok {
		t.Errorf("default writer is %T, want StdoutWriter", stream[0])
	}
	if final == nil {
		t.Fatal("no report writer returned")
	}
}

func TestNewWritersColor(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	stream, _, cleanup, err := newWriters(nil, false, "", true, false)
	if err != nil {
		t.Fatalf("newWriters() returned error: %v", err)
	}
	defer cleanup()
	if _, ok := stream[0].(*report.ColorWriter); !ok {
		t.Errorf("writer is %T, want ColorWriter", stream[0])
	}
}

func TestNewWritersWithLogFile(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	logFile := filepath.Join(t.TempDir(), "run.jsonl")
	stream, _, cleanup, err := newWriters(nil, false, logFile, false, false)
	if err != nil {
		t.Fatalf("newWriters() returned error: %v", err)
	}
	if len(stream) != 2 {
		t.Fatalf("got %d stream writers, want stdout plus file", len(stream))
	}
	cleanup()
	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestNewWritersBadLogFile(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	if _, _, _, err := newWriters(nil, false, filepath.Join(t.TempDir(), "no", "dir", "run.jsonl"), false, false); err == nil {
		t.Fatal("expected error for unwritable log file")
	}
}

func TestBuildRegistrySimEndpoints(t *testing.T) {
	cfg := testSimCampaign(t)
	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry() returned error: %v", err)
	}
	roles := reg.Roles()
	if len(roles) != 2 {
		t.Fatalf("Roles() = %v, want 2 roles", roles)
	}
	if _, ok := reg.Lookup("power-supply"); !ok {
		t.Error("power-supply not registered")
	}
}

func TestBuildRegistryBadEndpoint(t *testing.T) {
	cfg := testSimCampaign(t)
	cfg.Instruments[0].Endpoint = "gpib://7"
	if _, err := buildRegistry(cfg); err == nil {
		t.Fatal("expected error for unsupported endpoint scheme")
	}
}
