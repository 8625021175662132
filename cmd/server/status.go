package srvcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/paths"
	srv "github.com/flarebyte/almsync/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current server state",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := srv.ReadPID(paths.PIDFile())
		if err != nil {
			fmt.Fprintln(os.Stderr, "server: not running (no pid)")
			return nil
		}
		if !srv.Alive(pid) {
			fmt.Fprintf(os.Stderr, "server: not running (pid=%d not alive)\n", pid)
			return nil
		}
		fmt.Fprintf(os.Stderr, "server: running (pid=%d)\n", pid)
		return nil
	},
}
