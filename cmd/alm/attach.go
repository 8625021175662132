package almcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/cli"
)

var (
	attachTarget   cli.TargetFlags
	flagResource   string
	flagEntityID   int
	flagAttachName string
)

var attachCmd = &cobra.Command{
	Use:   "attach <file>",
	Short: "Upload a file as an attachment of an existing entity",
	Example: `  almsync alm attach --resource runs --id 1042 target/surefire-reports/TEST-com.acme.FooTest.xml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagResource == "" || flagEntityID <= 0 {
			return errors.New("--resource and --id are required")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		name := flagAttachName
		if name == "" {
			name = filepath.Base(args[0])
		}

		ctx := context.Background()
		session, s, err := open(ctx, cmd, &attachTarget)
		if err != nil {
			return err
		}
		defer session.Logout(ctx)
		found, err := session.Query(s.Domain, s.Project).Resource(flagResource).Filter("id[{0}]", flagEntityID).Execute(ctx)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("%s %d not found", flagResource, flagEntityID)
		}
		if err := found[0].Attach(ctx, name, f); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "attached %q to %s/%d\n", name, flagResource, flagEntityID)
		return nil
	},
}

func init() {
	attachTarget.Register(attachCmd)
	attachCmd.Flags().StringVar(&flagResource, "resource", "", "Entity collection, e.g. runs or tests")
	attachCmd.Flags().IntVar(&flagEntityID, "id", 0, "Entity id")
	attachCmd.Flags().StringVar(&flagAttachName, "name", "", "Attachment name (default the file's base name)")
}
