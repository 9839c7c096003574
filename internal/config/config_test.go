package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validCampaign = `
bench: rf-frontend-28g
instruments:
  - role: power-supply
    endpoint: tcp://10.0.0.12:5025
    models: [NGP814]
  - role: signal-analyzer
    endpoint: tcp://10.0.0.51:5025
steps:
  - name: psu-voltage
    instruments: [power-supply]
    payload:
      - { param: voltage, value: "1.1", unit: V, command: "SOUR1:VOLT {value}" }
    settle: { query: "MEAS:VOLT? (@1)", expect: "1.1", tolerance: 0.01 }
    timeout_s: 5
    retries: 1
  - name: evm-check
    instruments: [signal-analyzer]
    depends_on: [0]
    measure: true
    capture:
      metric: evm
      query: "CALC:MARK:FUNC:DDEM:STAT:EVM? AVG"
      unit: "%"
      count: 3
    timeout_s: 20
limits:
  evm: { min: 0, max: 8 }
`

func TestParse_Valid(t *testing.T) {
	c, err := Parse([]byte(validCampaign))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if c.Bench != "rf-frontend-28g" {
		t.Errorf("bench = %q", c.Bench)
	}
	if len(c.Instruments) != 2 || len(c.Steps) != 2 {
		t.Fatalf("unexpected counts: %d instruments, %d steps", len(c.Instruments), len(c.Steps))
	}
	if c.Steps[0].Settle == nil || c.Steps[0].Settle.Query != "MEAS:VOLT? (@1)" {
		t.Errorf("settle not parsed: %+v", c.Steps[0].Settle)
	}
	if c.Steps[1].Capture == nil || c.Steps[1].Capture.Metric != "evm" {
		t.Errorf("capture not parsed: %+v", c.Steps[1].Capture)
	}
	if l, ok := c.Limits["evm"]; !ok || l.Max != 8 {
		t.Errorf("limits not parsed: %+v", c.Limits)
	}
}

func TestParse_MissingBench(t *testing.T) {
	doc := `
instruments:
  - { role: psu, endpoint: sim://NGP800 }
steps:
  - { name: s, instruments: [psu], timeout_s: 1 }
`
	if _, err := Parse([]byte(doc)); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Parse() error = %v, want ErrConfiguration", err)
	}
}

func TestParse_DuplicateRole(t *testing.T) {
	doc := `
bench: b
instruments:
  - { role: psu, endpoint: sim://NGP800 }
  - { role: psu, endpoint: sim://NGP800 }
steps:
  - { name: s, instruments: [psu], timeout_s: 1 }
`
	if _, err := Parse([]byte(doc)); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Parse() error = %v, want ErrConfiguration", err)
	}
}

func TestParse_NoSteps(t *testing.T) {
	doc := `
bench: b
instruments:
  - { role: psu, endpoint: sim://NGP800 }
`
	if _, err := Parse([]byte(doc)); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Parse() error = %v, want ErrConfiguration", err)
	}
}

func TestParse_BadYAML(t *testing.T) {
	if _, err := Parse([]byte("bench: [")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Parse() error = %v, want ErrConfiguration", err)
	}
}

func TestLoad_WithSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	if err := os.WriteFile(path, []byte(validCampaign), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	c, err := Load(path, "../../schemas/campaign.cue")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if c.Bench != "rf-frontend-28g" {
		t.Errorf("bench = %q", c.Bench)
	}
}

func TestLoad_SchemaRejectsBadTimeout(t *testing.T) {
	doc := `
bench: b
instruments:
  - { role: psu, endpoint: sim://NGP800 }
steps:
  - { name: s, instruments: [psu], timeout_s: -3 }
`
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := Load(path, "../../schemas/campaign.cue"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Load() error = %v, want ErrConfiguration", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), ""); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Load() error = %v, want ErrConfiguration", err)
	}
}

func TestRole(t *testing.T) {
	c, err := Parse([]byte(validCampaign))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}
	if inst, ok := c.Role("power-supply"); !ok || inst.Endpoint != "tcp://10.0.0.12:5025" {
		t.Errorf("Role(power-supply) = %+v, %v", inst, ok)
	}
	if _, ok := c.Role("nope"); ok {
		t.Error("Role(nope) should not resolve")
	}
}

func TestShippedCampaignParses(t *testing.T) {
	c, err := Load("../../config/campaign.yaml", "../../schemas/campaign.cue")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(c.Steps) == 0 {
		t.Fatal("shipped campaign has no steps")
	}
}
