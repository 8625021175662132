package cmd

import (
	almcmd "github.com/flarebyte/almsync/cmd/alm"
	configcmd "github.com/flarebyte/almsync/cmd/config"
	srvcmd "github.com/flarebyte/almsync/cmd/server"
	synccmd "github.com/flarebyte/almsync/cmd/sync"
	vaultcmd "github.com/flarebyte/almsync/cmd/vault"
	watchcmd "github.com/flarebyte/almsync/cmd/watch"
	"github.com/flarebyte/almsync/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "almsync",
	Short: "Publish JUnit test results to HP ALM Quality Center",
	Long: `almsync records CI test results in HP ALM Quality Center.

For every test class of a JUnit report it makes sure a test exists in the
test plan folder and an instance of it exists in the job's test set, then
records a run with one step per test case.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cli.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default log.level)")

	rootCmd.AddCommand(synccmd.SyncCmd)
	rootCmd.AddCommand(watchcmd.WatchCmd)
	rootCmd.AddCommand(almcmd.ALMCmd)
	rootCmd.AddCommand(configcmd.ConfigCmd)
	rootCmd.AddCommand(vaultcmd.VaultCmd)
	rootCmd.AddCommand(srvcmd.ServerCmd)
}
