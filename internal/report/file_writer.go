package report

import (
	"encoding/json"
	"os"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

// FileWriter logs step results and samples to JSONL files. samplePath
// may be empty to keep everything in one file.
type FileWriter struct {
	resultFile *os.File
	sampleFile *os.File
	resultEnc  *json.Encoder
	sampleEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter.
func NewFileWriter(resultPath, samplePath string) (*FileWriter, error) {
	rf, err := os.Create(resultPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{resultFile: rf, resultEnc: json.NewEncoder(rf)}
	if samplePath != "" {
		sf, err := os.Create(samplePath)
		if err != nil {
			rf.Close()
			return nil, err
		}
		fw.sampleFile = sf
		fw.sampleEnc = json.NewEncoder(sf)
	} else {
		fw.sampleEnc = fw.resultEnc
	}
	return fw, nil
}

// WriteResult logs a step attempt result.
func (f *FileWriter) WriteResult(runID string, r pipeline.StepResult) error {
	return f.resultEnc.Encode(envelope{Kind: "step_result", RunID: runID, Data: r})
}

// WriteSample logs a measurement sample.
func (f *FileWriter) WriteSample(runID string, s measure.Sample) error {
	return f.sampleEnc.Encode(envelope{Kind: "sample", RunID: runID, Data: s})
}

// WriteSamples logs a sample batch.
func (f *FileWriter) WriteSamples(runID string, samples []measure.Sample) error {
	for _, s := range samples {
		if err := f.WriteSample(runID, s); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport logs the finalized run report.
func (f *FileWriter) WriteReport(r RunReport) error {
	return f.resultEnc.Encode(envelope{Kind: "run_report", RunID: r.RunID, Data: r})
}

// Close closes the underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.resultFile != nil {
		if e := f.resultFile.Close(); e != nil {
			err = e
		}
	}
	if f.sampleFile != nil {
		if e := f.sampleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
