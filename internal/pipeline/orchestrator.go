package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"rfbench/internal/instrument"
	"rfbench/internal/logging"
	"rfbench/internal/measure"
)

// settlePollInterval is how often a confirming settle query is retried
// within the step's timeout window.
const settlePollInterval = 250 * time.Millisecond

// Recorder receives step results, samples, and verdicts as they are
// produced. Implementations must be safe for concurrent use; steps on
// independent instruments run in parallel.
type Recorder interface {
	RecordResult(StepResult)
	RecordSamples([]measure.Sample)
	RecordVerdict(stepIndex int, v measure.Verdict)
}

// Capturer is the measurement bridge seam, satisfied by
// measure.Bridge.
type Capturer interface {
	Capture(ctx context.Context, spec measure.CaptureSpec, sess *instrument.Session, stepIndex int, state map[string]string) ([]measure.Sample, error)
}

// Orchestrator drives a compiled step sequence across the bench's
// instrument sessions. A single Run call owns all mutable run state;
// nothing is shared between runs.
type Orchestrator struct {
	registry *instrument.Registry
	bridge   Capturer
	analyzer measure.Analyzer
	recorder Recorder
	limits   map[string]measure.Limit
	now      func() time.Time
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithAnalyzer overrides the default limit analyzer.
func WithAnalyzer(a measure.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

// New builds an orchestrator over the given sessions and sinks.
func New(reg *instrument.Registry, bridge Capturer, rec Recorder, limits map[string]measure.Limit, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		bridge:   bridge,
		analyzer: measure.LimitAnalyzer{},
		recorder: rec,
		limits:   limits,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type stepDone struct {
	spec    StepSpec
	outcome Outcome
}

// Run executes the full sequence. Steps dispatch in declared order
// (which compilation guarantees is a valid topological order); steps
// with disjoint dependency paths and disjoint instruments overlap so
// settle waits run in parallel. Run returns only fatal dispatch errors;
// per-step failures land in the recorder.
func (o *Orchestrator) Run(ctx context.Context, specs []StepSpec) error {
	log := logging.FromContext(ctx)

	pending := make([]StepSpec, len(specs))
	copy(pending, specs)
	outcomes := make(map[int]Outcome, len(specs))
	busy := make(map[string]bool)
	results := make(chan stepDone)
	inflight := 0
	aborted := false
	abortReason := ""

	for len(pending) > 0 || inflight > 0 {
		if ctx.Err() != nil && !aborted {
			aborted = true
			abortReason = "run cancelled"
		}

		// Resolve everything resolvable without waiting: skip steps whose
		// dependencies can no longer all succeed, dispatch steps whose
		// dependencies are satisfied and whose instruments are free.
		progress := true
		for progress {
			progress = false
			remaining := pending[:0]
			for _, spec := range pending {
				switch {
				case aborted:
					o.recordSkip(spec, "run aborted: "+abortReason)
					outcomes[spec.Index] = OutcomeSkipped
					progress = true
				case o.depsDoomed(spec, outcomes):
					o.recordSkip(spec, "unmet dependency")
					outcomes[spec.Index] = OutcomeSkipped
					progress = true
				case o.depsSatisfied(spec, outcomes) && rolesFree(spec, busy):
					for _, role := range spec.Roles {
						busy[role] = true
					}
					inflight++
					progress = true
					go func(spec StepSpec) {
						results <- stepDone{spec: spec, outcome: o.runStep(ctx, spec)}
					}(spec)
				default:
					remaining = append(remaining, spec)
				}
			}
			pending = remaining
		}

		if inflight == 0 {
			continue
		}
		r := <-results
		inflight--
		outcomes[r.spec.Index] = r.outcome
		for _, role := range r.spec.Roles {
			busy[role] = false
		}
		if (r.outcome == OutcomeFailed || r.outcome == OutcomeTimedOut) && !r.spec.Idempotent && !aborted {
			aborted = true
			abortReason = fmt.Sprintf("step %d (%s) %s", r.spec.Index, r.spec.Name, r.outcome)
			log.Warn("aborting run", "step", r.spec.Name, "outcome", string(r.outcome))
		}
	}

	if aborted {
		log.Info("run finished after abort", "reason", abortReason)
	}
	return nil
}

// depsSatisfied reports whether every dependency succeeded.
func (o *Orchestrator) depsSatisfied(spec StepSpec, outcomes map[int]Outcome) bool {
	for _, d := range spec.DependsOn {
		if outcomes[d] != OutcomeSuccess {
			return false
		}
	}
	return true
}

// depsDoomed reports whether some dependency finished without success,
// which makes the step skippable immediately.
func (o *Orchestrator) depsDoomed(spec StepSpec, outcomes map[int]Outcome) bool {
	for _, d := range spec.DependsOn {
		if out, done := outcomes[d]; done && out != OutcomeSuccess {
			return true
		}
	}
	return false
}

func rolesFree(spec StepSpec, busy map[string]bool) bool {
	for _, role := range spec.Roles {
		if busy[role] {
			return false
		}
	}
	return true
}

func (o *Orchestrator) recordSkip(spec StepSpec, reason string) {
	o.recorder.RecordResult(StepResult{
		StepIndex: spec.Index,
		Name:      spec.Name,
		Outcome:   OutcomeSkipped,
		Started:   o.now().UTC(),
		Error:     reason,
	})
}

// runStep executes all permitted attempts of one step and returns the
// final outcome. The configuration payload is identical across
// attempts; each attempt gets a fresh timeout window.
func (o *Orchestrator) runStep(ctx context.Context, spec StepSpec) Outcome {
	log := logging.FromContext(ctx)
	for attempt := 0; ; attempt++ {
		res := o.attempt(ctx, spec, attempt)
		o.recorder.RecordResult(res)
		if res.Outcome == OutcomeSuccess {
			return OutcomeSuccess
		}
		log.Warn("step attempt failed",
			"step", spec.Name, "attempt", attempt, "outcome", string(res.Outcome), "err", res.Error)
		if ctx.Err() != nil {
			// Retrying after run cancellation would spin on dead sessions.
			return res.Outcome
		}
		if res.Final(spec) {
			return res.Outcome
		}
	}
}

// attempt performs one configuration pass: re-validate and acquire the
// sessions, apply the payload, wait for the settle condition, and for
// measurement steps hand off to the capture bridge.
func (o *Orchestrator) attempt(ctx context.Context, spec StepSpec, attempt int) StepResult {
	start := o.now()
	res := StepResult{
		StepIndex: spec.Index,
		Name:      spec.Name,
		Attempt:   attempt,
		Started:   start.UTC(),
	}
	fail := func(err error) StepResult {
		res.Elapsed = o.now().Sub(start)
		res.Error = err.Error()
		if errors.Is(err, instrument.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			res.Outcome = OutcomeTimedOut
		} else {
			res.Outcome = OutcomeFailed
		}
		return res
	}

	actx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	// Re-validate the sessions this attempt needs: one faulted by an
	// earlier attempt or step is re-identified before reuse. A failed
	// recover leaves it faulted; the instrument is lost for the run.
	for _, role := range spec.Roles {
		if sess, ok := o.registry.Lookup(role); ok && sess.State() == instrument.StateFaulted {
			if err := sess.Recover(actx); err != nil {
				return fail(err)
			}
		}
	}

	sessions, err := o.registry.Acquire(spec.Roles)
	if err != nil {
		return fail(err)
	}
	defer instrument.Release(sessions)

	byRole := make(map[string]*instrument.Session, len(sessions))
	for _, s := range sessions {
		byRole[s.Descriptor().Role] = s
	}

	for _, cmd := range spec.Commands {
		if err := byRole[cmd.Role].Send(actx, cmd.Command); err != nil {
			return fail(fmt.Errorf("apply %s: %w", cmd.Param, err))
		}
	}

	raw, err := o.waitSettle(actx, spec, byRole)
	res.Raw = append(res.Raw, raw...)
	if err != nil {
		return fail(fmt.Errorf("settle: %w", err))
	}

	if spec.Measure {
		samples, err := o.bridge.Capture(actx, *spec.Capture, byRole[spec.CaptureRole], spec.Index, spec.PayloadState())
		if err != nil {
			return fail(fmt.Errorf("capture: %w", err))
		}
		o.recorder.RecordSamples(samples)
		verdict, err := o.analyzer.Analyze(samples, o.limits)
		if err != nil {
			return fail(fmt.Errorf("analyze: %w", err))
		}
		o.recorder.RecordVerdict(spec.Index, verdict)
	}

	res.Elapsed = o.now().Sub(start)
	res.Outcome = OutcomeSuccess
	return res
}

// waitSettle blocks until the step's settle condition holds or the
// attempt window closes. Confirming queries are polled; their raw
// replies are returned for the step result.
func (o *Orchestrator) waitSettle(ctx context.Context, spec StepSpec, byRole map[string]*instrument.Session) ([]string, error) {
	s := spec.Settle
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Query == "" {
		return nil, nil
	}

	sess := byRole[s.Role]
	var raw []string
	for {
		reply, err := sess.Query(ctx, s.Query)
		if err != nil {
			return raw, err
		}
		raw = append(raw, reply)
		if settleMatches(reply, s.Expect, s.Tolerance) {
			return raw, nil
		}
		select {
		case <-time.After(settlePollInterval):
		case <-ctx.Done():
			return raw, fmt.Errorf("%w: %s never confirmed %q", instrument.ErrTimeout, s.Query, s.Expect)
		}
	}
}

// settleMatches compares a confirming reply against the expected value,
// numerically when both sides parse (within tolerance), textually
// otherwise.
func settleMatches(reply, expect string, tolerance float64) bool {
	r := strings.TrimSpace(reply)
	if fields := strings.Fields(r); len(fields) > 0 {
		r = fields[0]
	}
	got, errG := strconv.ParseFloat(r, 64)
	want, errW := strconv.ParseFloat(strings.TrimSpace(expect), 64)
	if errG == nil && errW == nil {
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		return diff <= tolerance
	}
	return strings.EqualFold(strings.TrimSpace(reply), strings.TrimSpace(expect))
}

// SortByIndex orders results by step index then attempt, for stable
// presentation of a finished run.
func SortByIndex(results []StepResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].StepIndex != results[j].StepIndex {
			return results[i].StepIndex < results[j].StepIndex
		}
		return results[i].Attempt < results[j].Attempt
	})
}
