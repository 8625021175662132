package almcmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/cli"
)

var checkTarget cli.TargetFlags

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the ALM URL and credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		session, _, err := open(ctx, cmd, &checkTarget)
		if errors.Is(err, alm.ErrAuthenticationFailed) {
			fmt.Fprintln(os.Stderr, "Authentication failed!")
			return err
		}
		if err != nil {
			return fmt.Errorf("unable to connect to server: %w", err)
		}
		defer session.Logout(ctx)
		fmt.Fprintln(os.Stderr, "Authenticated with server successfully.")
		return nil
	},
}

func init() {
	checkTarget.Register(checkCmd)
}
