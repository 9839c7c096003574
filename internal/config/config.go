// Campaign config loader: YAML with CUE schema validation.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a malformed campaign document. It is always
// raised at load or compile time, before any hardware is touched.
var ErrConfiguration = errors.New("config: invalid campaign")

// Instrument describes one bench device to connect.
type Instrument struct {
	Role         string   `yaml:"role"`
	Endpoint     string   `yaml:"endpoint"`
	Models       []string `yaml:"models,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// PayloadEntry is one named parameter a step applies. Command is the
// opaque device command template; "{value}" and "{unit}" expand from
// the declared fields, keeping timing and values data-driven.
type PayloadEntry struct {
	Param   string `yaml:"param"`
	Value   string `yaml:"value"`
	Unit    string `yaml:"unit,omitempty"`
	Command string `yaml:"command"`
	// Role targets one of the step's instruments; defaults to the first.
	Role string `yaml:"role,omitempty"`
}

// Settle is the criterion marking a step's physical effect stable:
// either a fixed delay or a confirming query compared against Expect
// (numerically within Tolerance when Tolerance > 0).
type Settle struct {
	DelaySeconds float64 `yaml:"delay_s,omitempty"`
	Query        string  `yaml:"query,omitempty"`
	Expect       string  `yaml:"expect,omitempty"`
	Tolerance    float64 `yaml:"tolerance,omitempty"`
	Role         string  `yaml:"role,omitempty"`
}

// Capture configures the read sequence of a measurement step: Count
// readings of Query, Interval seconds apart, scaled into Unit.
type Capture struct {
	Metric          string  `yaml:"metric"`
	Query           string  `yaml:"query"`
	Unit            string  `yaml:"unit"`
	Scale           float64 `yaml:"scale,omitempty"`
	Count           int     `yaml:"count,omitempty"`
	IntervalSeconds float64 `yaml:"interval_s,omitempty"`
	Role            string  `yaml:"role,omitempty"`
	// RangeMin/RangeMax bound physically plausible readings; values
	// outside fail the capture rather than the limit check.
	RangeMin *float64 `yaml:"range_min,omitempty"`
	RangeMax *float64 `yaml:"range_max,omitempty"`
}

// Step is one declarative pipeline stage.
type Step struct {
	Name           string         `yaml:"name"`
	Instruments    []string       `yaml:"instruments"`
	Payload        []PayloadEntry `yaml:"payload,omitempty"`
	DependsOn      []int          `yaml:"depends_on,omitempty"`
	TimeoutSeconds float64        `yaml:"timeout_s"`
	Retries        int            `yaml:"retries,omitempty"`
	Idempotent     bool           `yaml:"idempotent,omitempty"`
	Measure        bool           `yaml:"measure,omitempty"`
	Settle         *Settle        `yaml:"settle,omitempty"`
	Capture        *Capture       `yaml:"capture,omitempty"`
}

// Limit is the pass band for one metric.
type Limit struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Campaign is the root configuration document.
type Campaign struct {
	Bench       string           `yaml:"bench"`
	Instruments []Instrument     `yaml:"instruments"`
	Steps       []Step           `yaml:"steps"`
	Limits      map[string]Limit `yaml:"limits,omitempty"`
}

// Load reads and validates a campaign. The CUE schema path may be empty
// to skip schema validation (tests, embedded configs).
func Load(configPath, cueSchemaPath string) (*Campaign, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return Parse(data)
}

// Parse unmarshals a campaign document and applies structural checks.
func Parse(data []byte) (*Campaign, error) {
	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := c.check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &c, nil
}

func (c *Campaign) check() error {
	if c.Bench == "" {
		return errors.New("bench name is required")
	}
	if len(c.Instruments) == 0 {
		return errors.New("at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Role == "" || inst.Endpoint == "" {
			return fmt.Errorf("instrument %q needs role and endpoint", inst.Role)
		}
		if seen[inst.Role] {
			return fmt.Errorf("duplicate instrument role %q", inst.Role)
		}
		seen[inst.Role] = true
	}
	if len(c.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	return nil
}

// Role returns the configured instrument for a role, if present.
func (c *Campaign) Role(role string) (Instrument, bool) {
	for _, inst := range c.Instruments {
		if inst.Role == role {
			return inst, true
		}
	}
	return Instrument{}, false
}
