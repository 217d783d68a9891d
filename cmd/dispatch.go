package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/core/metrics"
	"github.com/kilianp07/foundry/core/snapshot"
	"github.com/kilianp07/foundry/infra/logger"
	"github.com/kilianp07/foundry/pkg/export"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <snapshot>",
	Short: "Build line queues from a dispatch snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDispatch,
}

func init() {
	addOutputFlags(dispatchCmd)
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	in, err := snapshot.ReadDispatch(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	reg, closePins, err := openPins(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePins()

	m := dispatch.NewManager(cfg.Dispatch, metrics.NopSink{}, nil, logger.New("dispatch"))
	m.SetPinSource(reg)
	res, err := m.Dispatch(ctx, in)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", in.Process, err)
	}
	if format == "csv" {
		return output(cmd, func(w io.Writer) error { return export.WriteQueuesCSV(w, res.Result.Queues) })
	}
	return writeJSON(cmd, res)
}
