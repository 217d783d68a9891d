package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kilianp07/foundry/app/plugins"
	"github.com/kilianp07/foundry/config"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/pins"
	"github.com/kilianp07/foundry/infra/logger"
	"github.com/kilianp07/foundry/infra/postgres"
)

var (
	pinKey   model.PinKey
	pinLine  string
	pinQty   int
	pinSplit int
	pinTotal int
	pinLots  string
	// pinExpect below zero disables the version check.
	pinExpect int64
)

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage pinned work in the configured pin store",
}

var pinListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List pinned splits",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		splits, err := reg.List(ctx, pinKey.Process)
		if splits == nil {
			splits = []model.PinnedSplit{}
		}
		return splits, err
	}),
}

var pinGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the splits and version of one order position",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		splits, err := reg.Get(ctx, pinKey)
		if err != nil {
			return nil, err
		}
		return struct {
			Key     model.PinKey        `json:"key"`
			Version int64               `json:"version"`
			Splits  []model.PinnedSplit `json:"splits"`
		}{pinKey, pins.Version(splits), splits}, nil
	}),
}

var pinMarkCmd = &cobra.Command{
	Use:   "mark",
	Short: "Pin an order position to a line",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		return reg.Mark(ctx, pinKey, pinLine, pinQty)
	}),
}

var pinUnmarkCmd = &cobra.Command{
	Use:   "unmark",
	Short: "Remove every split of an order position",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		return map[string]string{"unmarked": pinKey.String()}, reg.Unmark(ctx, pinKey)
	}),
}

var pinMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Move one split to another line",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		return reg.Move(ctx, pinKey, pinSplit, pinLine)
	}),
}

var pinSplitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a pinned position evenly across its lines",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		return reg.CreateBalancedSplit(ctx, pinKey, pinTotal)
	}),
}

var pinLotsCmd = &cobra.Command{
	Use:   "lots",
	Short: "Distribute lots over the splits of a position",
	RunE: withPins(func(ctx context.Context, reg *pins.Service) (any, error) {
		return reg.SyncLots(ctx, pinKey, splitList(pinLots))
	}),
}

func init() {
	pinCmd.PersistentFlags().StringVar(&pinKey.Process, "process", "", "finishing process")
	for _, c := range []*cobra.Command{pinGetCmd, pinMarkCmd, pinUnmarkCmd, pinMoveCmd, pinSplitCmd, pinLotsCmd} {
		c.Flags().StringVar(&pinKey.OrderID, "order", "", "order id")
		c.Flags().StringVar(&pinKey.Position, "position", "", "order position")
		c.Flags().BoolVar(&pinKey.IsTest, "test", false, "test run")
		_ = c.MarkFlagRequired("order")
		_ = c.MarkFlagRequired("position")
	}
	for _, c := range []*cobra.Command{pinMarkCmd, pinUnmarkCmd, pinMoveCmd, pinSplitCmd, pinLotsCmd} {
		c.Flags().Int64Var(&pinExpect, "expect-version", -1, "fail unless the position is still at this version (see pin get)")
	}
	pinMarkCmd.Flags().StringVar(&pinLine, "line", "", "line id")
	pinMarkCmd.Flags().IntVar(&pinQty, "qty", 0, "quantity, 0 for the remainder")
	pinMoveCmd.Flags().StringVar(&pinLine, "line", "", "target line id")
	pinMoveCmd.Flags().IntVar(&pinSplit, "split", 1, "split id")
	pinSplitCmd.Flags().IntVar(&pinTotal, "total", 0, "quantity to split")
	pinLotsCmd.Flags().StringVar(&pinLots, "lots", "", "comma separated lots or a from-to serial range")

	pinCmd.AddCommand(pinListCmd, pinGetCmd, pinMarkCmd, pinUnmarkCmd, pinMoveCmd, pinSplitCmd, pinLotsCmd)
	rootCmd.AddCommand(pinCmd)
}

// splitList accepts "A1,A2" or a serial range such as "100-104".
func splitList(s string) []string {
	if r, err := model.ParseCorrelativo(s); err == nil && strings.Contains(s, "-") {
		if lots, err := r.Lots(); err == nil {
			return lots
		}
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withPins(fn func(context.Context, *pins.Service) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if pinExpect >= 0 {
			ctx = pins.WithExpectedVersion(ctx, pinExpect)
		}
		reg, closePins, err := openPins(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePins()
		v, err := fn(ctx, reg)
		if err != nil {
			return err
		}
		format = "json"
		return writeJSON(cmd, v)
	}
}

// openPins builds the pin registry selected by pins.backend.
func openPins(ctx context.Context, cfg *config.Config) (*pins.Service, func(), error) {
	var pool *pgxpool.Pool
	if cfg.Pins.Backend == "postgres" {
		var err error
		if pool, err = postgres.NewPool(ctx, cfg.Postgres); err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
	}
	f, ok := plugins.PinStores[cfg.Pins.Backend]
	if !ok {
		return nil, nil, fmt.Errorf("unknown pins backend %q", cfg.Pins.Backend)
	}
	store, closeStore, err := f(plugins.Deps{Config: cfg, Pool: pool})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}
	cleanup := func() {
		_ = closeStore()
		if pool != nil {
			pool.Close()
		}
	}
	reg, err := pins.NewService(store, logger.New("pins"), nil, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return reg, cleanup, nil
}
