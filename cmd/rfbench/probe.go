package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"rfbench/internal/config"
	"rfbench/internal/logging"
)

var (
	probeConfigPath string
	probeSchemaPath string
	probeTimeout    time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check connectivity and identity of every configured instrument",
	Long:  "probe connects each bench instrument in turn, prints the reported identity, and disconnects. No steps are executed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := logging.New(slog.LevelInfo)

		cfg, err := config.Load(probeConfigPath, probeSchemaPath)
		if err != nil {
			return err
		}
		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		ctx := logging.NewContext(context.Background(), log)
		failures := 0
		for _, role := range reg.Roles() {
			s, _ := reg.Lookup(role)
			cctx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := s.Connect(cctx)
			cancel()
			if err != nil {
				failures++
				log.Error("probe failed", "role", role, "endpoint", s.Descriptor().Endpoint, "err", err)
				continue
			}
			fmt.Printf("%-24s %s\n", role, s.Identification().String())
			if err := s.Disconnect(); err != nil {
				log.Warn("disconnect failed", "role", role, "err", err)
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d instrument(s) unreachable or misidentified", failures)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeConfigPath, "config", "config/campaign.yaml", "Path to campaign configuration YAML")
	probeCmd.Flags().StringVar(&probeSchemaPath, "schema", "schemas/campaign.cue", "Path to CUE schema file")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "Per-instrument connect timeout")
}
