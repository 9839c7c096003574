package main

import (
	"os"

	"rfbench/internal/pipeline"
	"rfbench/internal/report"
)

// newWriters assembles the report sinks from flags and env vars. It
// returns stream writers for the aggregator, the writer for the
// finalized report, and a cleanup function to close resources.
func newWriters(specs []pipeline.StepSpec, printOnly bool, logFile string, color, tui bool) ([]report.StreamWriter, report.ReportWriter, func(), error) {
	var stream []report.StreamWriter
	var closers []func()

	switch {
	case tui:
		tw := report.NewTUIWriter(specs)
		stream = append(stream, tw)
		closers = append(closers, tw.Close)
	case color:
		stream = append(stream, report.NewColorWriter())
	default:
		stream = append(stream, report.NewStdoutWriter())
	}

	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" && !printOnly {
		gw, err := report.NewGreptimeWriter(endpoint, "public")
		if err != nil {
			return nil, nil, nil, err
		}
		stream = append(stream, gw)
	}

	if logFile != "" {
		fw, err := report.NewFileWriter(logFile, "")
		if err != nil {
			return nil, nil, nil, err
		}
		stream = append(stream, fw)
		closers = append(closers, func() { _ = fw.Close() })
	}

	mw := report.NewMultiWriter(stream...)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return stream, mw, cleanup, nil
}
