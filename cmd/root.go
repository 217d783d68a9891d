package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/foundry/app"
	"github.com/kilianp07/foundry/config"
	"github.com/kilianp07/foundry/infra/logger"
	"github.com/kilianp07/foundry/pkg/export"
)

var (
	cfgPath string
	format  string
	outPath string
)

var rootCmd = &cobra.Command{
	Use:           "foundry",
	Short:         "Foundry dispatch scheduler and capacity planner",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          run,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the planner workers and scheduled re-planning",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration file. A missing default file yields the
// built-in defaults so one-shot commands work without any setup.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = &config.Config{}
		cfg.SetDefaults()
		return cfg, cfg.Validate()
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// addOutputFlags registers --format and --out on a command writing results.
func addOutputFlags(c *cobra.Command) {
	c.Flags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
	c.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
}

// output opens the destination chosen by --out and hands it to write.
func output(cmd *cobra.Command, write func(io.Writer) error) error {
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported format %q", format)
	}
	if outPath == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(cmd *cobra.Command, v any) error {
	return output(cmd, func(w io.Writer) error { return export.WriteJSON(w, v) })
}
