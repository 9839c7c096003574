package report

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
)

// Default GreptimeDB table names; overridable via GREPTIMEDB_SAMPLE_TABLE
// and GREPTIMEDB_STEP_TABLE.
const (
	defaultSampleTable  = "bench_samples"
	defaultStepTable    = "bench_steps"
	defaultGreptimePort = 4001
)

// greptimeClient is the part of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter streams samples and step timings to GreptimeDB so a
// long campaign can be watched live. It carries no part of the run
// report; the finalized report stays with the aggregator.
type GreptimeWriter struct {
	client      greptimeClient
	sampleTable string
	stepTable   string
}

// NewGreptimeWriter dials the ingester's gRPC endpoint. Tables are
// created by the server on first ingest.
func NewGreptimeWriter(endpoint, database string) (*GreptimeWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeWriter{
		client:      client,
		sampleTable: envOr("GREPTIMEDB_SAMPLE_TABLE", defaultSampleTable),
		stepTable:   envOr("GREPTIMEDB_STEP_TABLE", defaultStepTable),
	}, nil
}

// splitEndpoint accepts "host:port" or a bare host, which gets the
// ingester's default gRPC port.
func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad GreptimeDB endpoint port %q: %w", portStr, err)
	}
	return host, port, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (w *GreptimeWriter) stepTbl() (*table.Table, error) {
	tbl, err := table.New(w.stepTable)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("run_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("step", types.STRING); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"step_index", types.INT64},
		{"attempt", types.INT64},
		{"outcome", types.STRING},
		{"elapsed_ms", types.FLOAT64},
		{"error", types.STRING},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

func (w *GreptimeWriter) sampleTbl() (*table.Table, error) {
	tbl, err := table.New(w.sampleTable)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("run_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("metric", types.STRING); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"step_index", types.INT64},
		{"value", types.FLOAT64},
		{"unit", types.STRING},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// WriteResult streams one step attempt row.
func (w *GreptimeWriter) WriteResult(runID string, r pipeline.StepResult) error {
	tbl, err := w.stepTbl()
	if err != nil {
		return err
	}
	if err := tbl.AddRow(runID, r.Name,
		int64(r.StepIndex), int64(r.Attempt), string(r.Outcome),
		float64(r.Elapsed.Milliseconds()), r.Error, r.Started); err != nil {
		return err
	}
	_, err = w.client.Write(context.Background(), tbl)
	return err
}

// WriteSample streams one sample row.
func (w *GreptimeWriter) WriteSample(runID string, s measure.Sample) error {
	return w.WriteSamples(runID, []measure.Sample{s})
}

// WriteSamples streams a sample batch.
func (w *GreptimeWriter) WriteSamples(runID string, samples []measure.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tbl, err := w.sampleTbl()
	if err != nil {
		return err
	}
	for _, s := range samples {
		if err := tbl.AddRow(runID, s.Metric,
			int64(s.StepIndex), s.Value, s.Unit, s.Timestamp); err != nil {
			return err
		}
	}
	_, err = w.client.Write(context.Background(), tbl)
	return err
}
