package configcmd

import (
	"github.com/spf13/cobra"
)

// ConfigCmd is the root for `almsync config` commands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage global configuration (~/.almsync/config.yaml)",
}

func init() {
	ConfigCmd.AddCommand(initCmd)
	ConfigCmd.AddCommand(printCmd)
	ConfigCmd.AddCommand(checkCmd)
}
