package measure

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Analyzer is the external analysis collaborator: it judges a sample
// set against pass/fail limits and produces a verdict.
type Analyzer interface {
	Analyze(samples []Sample, limits map[string]Limit) (Verdict, error)
}

// LimitAnalyzer judges every sample of a metric against that metric's
// limit band. A metric with no configured limit passes vacuously and is
// noted in the summary.
type LimitAnalyzer struct{}

// Analyze groups samples by metric and checks min/max against limits.
func (LimitAnalyzer) Analyze(samples []Sample, limits map[string]Limit) (Verdict, error) {
	if len(samples) == 0 {
		return Verdict{}, fmt.Errorf("no samples to analyze")
	}
	byMetric := make(map[string][]float64)
	for _, s := range samples {
		byMetric[s.Metric] = append(byMetric[s.Metric], s.Value)
	}

	v := Verdict{Pass: true, Metrics: make(map[string]MetricVerdict, len(byMetric))}
	var notes []string
	metrics := make([]string, 0, len(byMetric))
	for m := range byMetric {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	for _, metric := range metrics {
		values := byMetric[metric]
		mean, std := stat.MeanStdDev(values, nil)
		if len(values) == 1 {
			std = 0
		}
		low, high := values[0], values[0]
		for _, x := range values[1:] {
			if x < low {
				low = x
			}
			if x > high {
				high = x
			}
		}
		mv := MetricVerdict{
			Metric: metric,
			N:      len(values),
			Mean:   mean,
			StdDev: std,
			Min:    low,
			Max:    high,
		}
		limit, ok := limits[metric]
		if !ok {
			mv.Pass = true
			notes = append(notes, fmt.Sprintf("%s: no limit configured", metric))
		} else {
			mv.Limit = limit
			mv.Pass = low >= limit.Min && high <= limit.Max
			if !mv.Pass {
				notes = append(notes, fmt.Sprintf("%s: [%g, %g] outside limits [%g, %g]",
					metric, low, high, limit.Min, limit.Max))
			}
		}
		if !mv.Pass {
			v.Pass = false
		}
		v.Metrics[metric] = mv
	}

	if v.Pass {
		v.Summary = fmt.Sprintf("%d metric(s) within limits", len(v.Metrics))
		if len(notes) > 0 {
			v.Summary += "; " + strings.Join(notes, "; ")
		}
	} else {
		v.Summary = strings.Join(notes, "; ")
	}
	return v, nil
}
