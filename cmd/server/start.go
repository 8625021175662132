package srvcmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	watchcmd "github.com/flarebyte/almsync/cmd/watch"
	"github.com/flarebyte/almsync/internal/cli"
	cfgpkg "github.com/flarebyte/almsync/internal/config"
	"github.com/flarebyte/almsync/internal/http/results"
	"github.com/flarebyte/almsync/internal/logging"
	"github.com/flarebyte/almsync/internal/paths"
	srv "github.com/flarebyte/almsync/internal/server"
	"github.com/flarebyte/almsync/internal/syncer"
	vpkg "github.com/flarebyte/almsync/internal/vault"
	"github.com/flarebyte/almsync/internal/watch"
)

var (
	flagDetach   bool
	flagAddr     string
	flagWatchDir string
	flagWatchJob string
	flagPattern  string
	flagSettle   time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the webhook server",
	Long: `Start the webhook server. CI posts a JUnit XML report to
POST /v1/jobs/{job}/results?build=NAME&host=HOST and receives the
synchronization summary as JSON. Configuration and the ALM password are
re-read for every request.

With --watch-dir the server also publishes reports dropped into a directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagWatchDir != "" && flagWatchJob == "" {
			return fmt.Errorf("--watch-job is required with --watch-dir")
		}
		if flagDetach {
			return detach()
		}

		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		log, err := cli.Logger(cfg)
		if err != nil {
			return err
		}
		addr := flagAddr
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", srv.DefaultHost, cfg.Server.Port)
		}
		if _, err := paths.EnsureHome(); err != nil {
			return err
		}

		h := results.New(loadSettings, syncer.Run, logging.Subsystem(log, "Webhook"))
		var tasks []srv.Task
		if flagWatchDir != "" {
			s, err := loadSettings(context.Background())
			if err != nil {
				return err
			}
			wlog := logging.Subsystem(log, "Watch")
			w, err := watch.New(flagWatchDir, flagPattern, flagSettle, watchcmd.Handler(flagWatchJob, s, wlog), wlog)
			if err != nil {
				return err
			}
			tasks = append(tasks, w.Run)
		}
		return srv.RunForeground(context.Background(), addr, paths.PIDFile(), h.Router(), log, tasks...)
	},
}

// loadSettings reads config.yaml and the password for one synchronization.
func loadSettings(ctx context.Context) (syncer.Settings, error) {
	cfg, err := cfgpkg.Load()
	if err != nil {
		return syncer.Settings{}, err
	}
	if problems := cfg.Problems(); len(problems) > 0 {
		return syncer.Settings{}, fmt.Errorf("config: %s", problems[0])
	}
	pw, err := cfg.ResolvePassword(ctx, "", vpkg.GetSecret)
	if err != nil {
		return syncer.Settings{}, err
	}
	return syncer.FromConfig(cfg, pw), nil
}

// detach re-executes this binary in foreground mode with output going to the server log.
func detach() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"server", "start", "--no-detach"}
	if flagAddr != "" {
		args = append(args, "--addr", flagAddr)
	}
	if flagWatchDir != "" {
		args = append(args, "--watch-dir", flagWatchDir, "--watch-job", flagWatchJob,
			"--pattern", flagPattern, "--settle", flagSettle.String())
	}
	if cli.LogLevel != "" {
		args = append(args, "--log-level", cli.LogLevel)
	}
	child := exec.Command(exe, args...)
	if _, err := paths.EnsureHome(); err != nil {
		return err
	}
	lf, err := os.OpenFile(paths.ServerLog(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer lf.Close()
	child.Stdout = lf
	child.Stderr = lf
	if runtime.GOOS != "windows" {
		child.SysProcAttr = srv.DetachAttr()
	}
	if err := child.Start(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "server started in background (pid=%d, log=%s)\n", child.Process.Pid, paths.ServerLog())
	return nil
}

func init() {
	startCmd.Flags().BoolVar(&flagDetach, "detach", false, "Run in background")
	// Hidden internal flag to prevent loop when re-execing for detach
	startCmd.Flags().Bool("no-detach", false, "internal")
	_ = startCmd.Flags().MarkHidden("no-detach")
	startCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address override (defaults to 127.0.0.1:server.port)")
	startCmd.Flags().StringVar(&flagWatchDir, "watch-dir", "", "Also publish reports dropped into this directory")
	startCmd.Flags().StringVar(&flagWatchJob, "watch-job", "", "Test set name for reports picked up by --watch-dir")
	startCmd.Flags().StringVar(&flagPattern, "pattern", "*.xml", "Glob matched against file names in --watch-dir")
	startCmd.Flags().DurationVar(&flagSettle, "settle", watch.DefaultSettle, "Quiet period before a dropped file is read")
}
