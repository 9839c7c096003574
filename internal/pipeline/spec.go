// Pipeline step compilation and orchestration.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"rfbench/internal/config"
	"rfbench/internal/measure"
)

// Command is one rendered device command bound to an instrument role.
type Command struct {
	Role    string
	Param   string
	Value   string
	Unit    string
	Command string
}

// SettlePolicy is the compiled settle condition: either a fixed delay
// or a confirming query polled until it matches.
type SettlePolicy struct {
	Delay     time.Duration
	Role      string
	Query     string
	Expect    string
	Tolerance float64
}

// StepSpec is one immutable, compiled pipeline stage.
type StepSpec struct {
	Index       int
	Name        string
	Roles       []string
	Commands    []Command
	DependsOn   []int
	Timeout     time.Duration
	Retries     int
	Idempotent  bool
	Measure     bool
	Settle      SettlePolicy
	Capture     *measure.CaptureSpec
	CaptureRole string
}

// PayloadState returns the param→value snapshot this step applies, used
// to tag samples with the instrument state active at capture time.
func (s StepSpec) PayloadState() map[string]string {
	if len(s.Commands) == 0 {
		return nil
	}
	state := make(map[string]string, len(s.Commands))
	for _, c := range s.Commands {
		v := c.Value
		if c.Unit != "" {
			v += " " + c.Unit
		}
		state[c.Param] = v
	}
	return state
}

// renderCommand expands the {value} and {unit} placeholders of a
// payload entry's command template.
func renderCommand(e config.PayloadEntry) string {
	r := strings.NewReplacer("{value}", e.Value, "{unit}", e.Unit)
	return r.Replace(e.Command)
}

// Compile turns a loaded campaign into immutable step specs, rejecting
// structural faults before any hardware is touched: forward or self
// dependencies (which also rules out cycles), unknown instrument
// roles, measurement steps without a capture, and missing timeouts.
func Compile(c *config.Campaign) ([]StepSpec, map[string]measure.Limit, error) {
	specs := make([]StepSpec, 0, len(c.Steps))
	for i, st := range c.Steps {
		spec, err := compileStep(c, i, st)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: step %d (%s): %v", config.ErrConfiguration, i, st.Name, err)
		}
		specs = append(specs, spec)
	}
	limits := make(map[string]measure.Limit, len(c.Limits))
	for metric, l := range c.Limits {
		if l.Min > l.Max {
			return nil, nil, fmt.Errorf("%w: limit %s: min %g above max %g", config.ErrConfiguration, metric, l.Min, l.Max)
		}
		limits[metric] = measure.Limit{Min: l.Min, Max: l.Max}
	}
	return specs, limits, nil
}

func compileStep(c *config.Campaign, i int, st config.Step) (StepSpec, error) {
	if st.Name == "" {
		return StepSpec{}, fmt.Errorf("name is required")
	}
	if len(st.Instruments) == 0 {
		return StepSpec{}, fmt.Errorf("at least one instrument role is required")
	}
	for _, role := range st.Instruments {
		if _, ok := c.Role(role); !ok {
			return StepSpec{}, fmt.Errorf("unknown instrument role %q", role)
		}
	}
	for _, d := range st.DependsOn {
		if d < 0 || d >= i {
			return StepSpec{}, fmt.Errorf("dependency %d must reference an earlier step (0..%d)", d, i-1)
		}
	}
	if st.TimeoutSeconds <= 0 {
		return StepSpec{}, fmt.Errorf("timeout_s must be positive")
	}
	if st.Retries < 0 {
		return StepSpec{}, fmt.Errorf("retries must not be negative")
	}

	spec := StepSpec{
		Index:      i,
		Name:       st.Name,
		Roles:      append([]string(nil), st.Instruments...),
		DependsOn:  append([]int(nil), st.DependsOn...),
		Timeout:    time.Duration(st.TimeoutSeconds * float64(time.Second)),
		Retries:    st.Retries,
		Idempotent: st.Idempotent,
		Measure:    st.Measure,
	}

	for _, e := range st.Payload {
		role := e.Role
		if role == "" {
			role = st.Instruments[0]
		} else if !containsRole(st.Instruments, role) {
			return StepSpec{}, fmt.Errorf("payload param %q targets role %q not used by this step", e.Param, role)
		}
		if e.Command == "" {
			return StepSpec{}, fmt.Errorf("payload param %q has no command", e.Param)
		}
		spec.Commands = append(spec.Commands, Command{
			Role:    role,
			Param:   e.Param,
			Value:   e.Value,
			Unit:    e.Unit,
			Command: renderCommand(e),
		})
	}

	if st.Settle != nil {
		sp := SettlePolicy{
			Delay:     time.Duration(st.Settle.DelaySeconds * float64(time.Second)),
			Query:     st.Settle.Query,
			Expect:    st.Settle.Expect,
			Tolerance: st.Settle.Tolerance,
			Role:      st.Settle.Role,
		}
		if sp.Query != "" && sp.Delay > 0 {
			return StepSpec{}, fmt.Errorf("settle condition must be a delay or a query, not both")
		}
		if sp.Query != "" && sp.Expect == "" {
			return StepSpec{}, fmt.Errorf("settle query needs an expected value")
		}
		if sp.Role == "" {
			sp.Role = st.Instruments[0]
		} else if !containsRole(st.Instruments, sp.Role) {
			return StepSpec{}, fmt.Errorf("settle targets role %q not used by this step", sp.Role)
		}
		spec.Settle = sp
	}

	if st.Measure {
		if st.Capture == nil {
			return StepSpec{}, fmt.Errorf("measurement step needs a capture block")
		}
		cap := st.Capture
		if cap.Metric == "" || cap.Query == "" {
			return StepSpec{}, fmt.Errorf("capture needs metric and query")
		}
		role := cap.Role
		if role == "" {
			role = st.Instruments[0]
		} else if !containsRole(st.Instruments, role) {
			return StepSpec{}, fmt.Errorf("capture targets role %q not used by this step", role)
		}
		spec.Capture = &measure.CaptureSpec{
			Metric:   cap.Metric,
			Query:    cap.Query,
			Unit:     cap.Unit,
			Scale:    cap.Scale,
			Count:    cap.Count,
			Interval: time.Duration(cap.IntervalSeconds * float64(time.Second)),
			RangeMin: cap.RangeMin,
			RangeMax: cap.RangeMax,
		}
		spec.CaptureRole = role
	} else if st.Capture != nil {
		return StepSpec{}, fmt.Errorf("capture block on a step without the measure flag")
	}

	return spec, nil
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
