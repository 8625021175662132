package watchcmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/cli"
	"github.com/flarebyte/almsync/internal/logging"
	"github.com/flarebyte/almsync/internal/report"
	"github.com/flarebyte/almsync/internal/syncer"
	"github.com/flarebyte/almsync/internal/watch"
)

var (
	target      cli.TargetFlags
	flagJob     string
	flagPattern string
	flagSettle  time.Duration
)

// WatchCmd synchronizes every report dropped into a directory.
var WatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Publish each JUnit report written to a directory",
	Long: `Watch a directory and publish every matching report once it has stopped
changing. Reports are processed one at a time; a failed report is logged and
watching continues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJob == "" {
			return errors.New("--job is required: it names the ALM test set")
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cfg, settings, err := target.Resolve(ctx, cmd)
		if err != nil {
			return err
		}
		log, err := cli.Logger(cfg)
		if err != nil {
			return err
		}
		w, err := watch.New(args[0], flagPattern, flagSettle, Handler(flagJob, settings, logging.Subsystem(log, "Watch")), log)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

// Handler returns a watch.HandleFunc that synchronizes one report file.
func Handler(job string, settings syncer.Settings, log *slog.Logger) watch.HandleFunc {
	return func(ctx context.Context, path string) error {
		rep, err := report.ParseFile(path)
		if err != nil {
			return err
		}
		b := &syncer.StaticBuild{Results: rep, Log: log.With("file", path), Job: job}
		sum, err := syncer.Run(ctx, b, settings)
		if err != nil {
			return err
		}
		log.Info("report synchronized", "file", path, "runs", sum.Runs, "run_steps", sum.RunSteps)
		return nil
	}
}

func init() {
	target.Register(WatchCmd)
	WatchCmd.Flags().StringVar(&flagJob, "job", "", "CI job name, used as the ALM test set name")
	WatchCmd.Flags().StringVar(&flagPattern, "pattern", "*.xml", "Glob matched against file names")
	WatchCmd.Flags().DurationVar(&flagSettle, "settle", watch.DefaultSettle, "Quiet period before a file is read")
}
