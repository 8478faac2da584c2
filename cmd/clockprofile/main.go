package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skobkin/amdgpu-clockprofile/internal/app"
	"github.com/skobkin/amdgpu-clockprofile/internal/config"
	"github.com/skobkin/amdgpu-clockprofile/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})

	cfg, err := config.Load()
	if err != nil {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
		slog.New(handler).Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, newRootCommand(&cfg)); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree and logs any error, including flag and
// argument errors cobra reports before a subcommand starts.
func run(ctx context.Context, cmd *cobra.Command) error {
	if err := cmd.ExecuteContext(ctx); err != nil {
		handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelError})
		slog.New(handler).Error("application error", "err", err)
		return err
	}
	return nil
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "clockprofile",
		Short: "Pick the most power-efficient GPU clock per workload",
		Long: `clockprofile loads per-device, per-service clock measurements
(requests per second and total active power at each clock) and reports the
clock with the highest requests per second per Watt above idle.

Settings are read from APP_* environment variables; flags override them.`,
		Version:       version.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("log-level") {
				level, err := config.ParseLogLevel(logLevel)
				if err != nil {
					return err
				}
				cfg.LogLevel = level
			}
			cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
			return cfg.Validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", cfg.LogLevel.String(), "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.SysfsRoot, "sysfs-root", cfg.SysfsRoot, "sysfs mount used for GPU discovery")
	flags.StringVarP(&cfg.OutputFormat, "output", "o", cfg.OutputFormat, "output format: table or json")

	recommend := &cobra.Command{
		Use:   "recommend [PROFILE_FILE]",
		Short: "Compute the optimal clock for every device/service pair",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.ProfileFile = args[0]
			}
			return runLogged(cmd, *cfg, app.Recommend)
		},
	}
	recommend.Flags().BoolVar(&cfg.Discover, "discover", cfg.Discover, "register GPUs found in sysfs before applying the profile file")
	recommend.Flags().Float64Var(&cfg.DefaultIdlePower, "idle-power", cfg.DefaultIdlePower, "idle power in Watts for discovered GPUs")
	recommend.Flags().BoolVar(&cfg.EmitMetrics, "metrics", cfg.EmitMetrics, "append Prometheus text exposition to the output")

	discover := &cobra.Command{
		Use:   "discover",
		Short: "List GPUs and their supported shader clocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogged(cmd, *cfg, app.Discover)
		},
	}

	root.AddCommand(recommend, discover)
	return root
}

type command func(ctx context.Context, logger *slog.Logger, cfg config.Config, w io.Writer) error

func runLogged(cmd *cobra.Command, cfg config.Config, fn command) error {
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler)

	return fn(cmd.Context(), logger.With("command", cmd.Name()), cfg, cmd.OutOrStdout())
}
