package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rfbench/internal/config"
	"rfbench/internal/instrument"
	"rfbench/internal/logging"
	"rfbench/internal/measure"
	"rfbench/internal/pipeline"
	"rfbench/internal/report"
)

var (
	runConfigPath string
	runSchemaPath string
	runPrintOnly  bool
	runLogFile    string
	runColor      bool
	runTUI        bool
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a measurement campaign",
	Long:  "run loads a campaign, connects every bench instrument, drives the step pipeline, and emits the finalized run report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		level := slog.LevelInfo
		if runVerbose {
			level = slog.LevelDebug
		}
		log := logging.New(level)

		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		specs, limits, err := pipeline.Compile(cfg)
		if err != nil {
			return err
		}

		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		stream, final, cleanup, err := newWriters(specs, runPrintOnly, runLogFile, runColor, runTUI)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		bench := benchName(cfg)
		log.Info("connecting instruments", "bench", bench, "count", len(cfg.Instruments))
		if err := reg.ConnectAll(ctx); err != nil {
			_ = reg.DisconnectAll()
			return err
		}
		defer func() {
			if err := reg.DisconnectAll(); err != nil {
				log.Warn("disconnect failed", "err", err)
			}
		}()
		for _, role := range reg.Roles() {
			s, _ := reg.Lookup(role)
			log.Info("instrument ready", "role", role, "identity", s.Identification().String())
		}

		agg := report.NewAggregator(bench, stream...)
		agg.OnStreamError(func(err error) {
			log.Warn("report stream write failed", "err", err)
		})

		orch := pipeline.New(reg, measure.NewBridge(), agg, limits)
		log.Info("starting campaign", "run_id", agg.RunID(), "steps", len(specs))
		if err := orch.Run(ctx, specs); err != nil {
			return err
		}

		rep := agg.Finalize(specs)
		if err := final.WriteReport(rep); err != nil {
			log.Warn("report write failed", "err", err)
		}
		log.Info("campaign finished", "summary", report.Overall(rep))
		if !rep.Pass {
			return errors.New("campaign failed")
		}
		return nil
	},
}

// benchName is the configured bench identifier, overridable with the
// BENCH_ID environment variable.
func benchName(cfg *config.Campaign) string {
	if v := os.Getenv("BENCH_ID"); v != "" {
		return v
	}
	return cfg.Bench
}

// buildRegistry dials a transport per configured instrument and wraps
// each in a session. Nothing connects until ConnectAll.
func buildRegistry(cfg *config.Campaign) (*instrument.Registry, error) {
	sessions := make([]*instrument.Session, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		tr, err := instrument.Dial(inst.Endpoint)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, instrument.NewSession(instrument.Descriptor{
			Role:         inst.Role,
			Endpoint:     inst.Endpoint,
			Models:       inst.Models,
			Capabilities: inst.Capabilities,
		}, tr))
	}
	return instrument.NewRegistry(sessions...)
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/campaign.yaml", "Path to campaign configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/campaign.cue", "Path to CUE schema file")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print events to STDOUT instead of streaming to GreptimeDB")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export step results and samples (JSONL)")
	runCmd.Flags().BoolVar(&runColor, "color", false, "Human-friendly colorized progress instead of JSON lines")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Live TUI with step table and event log")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Debug logging")
}
