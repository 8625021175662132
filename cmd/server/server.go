package srvcmd

import "github.com/spf13/cobra"

// ServerCmd is the root for `almsync server` commands.
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the webhook server that accepts JUnit results from CI",
}

func init() {
	ServerCmd.AddCommand(startCmd)
	ServerCmd.AddCommand(stopCmd)
	ServerCmd.AddCommand(statusCmd)
}
