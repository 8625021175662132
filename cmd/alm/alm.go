package almcmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/cli"
	"github.com/flarebyte/almsync/internal/syncer"
)

// ALMCmd groups direct calls against the ALM REST API.
var ALMCmd = &cobra.Command{
	Use:   "alm",
	Short: "Inspect the ALM server: credentials, domains, projects, folders",
}

// open resolves the target of cmd and logs in. The caller logs out.
func open(ctx context.Context, cmd *cobra.Command, f *cli.TargetFlags) (*alm.Session, syncer.Settings, error) {
	cfg, s, err := f.Resolve(ctx, cmd)
	if err != nil {
		return nil, s, err
	}
	if _, err := cli.Logger(cfg); err != nil {
		return nil, s, err
	}
	session, err := cli.Login(ctx, s)
	if err != nil {
		return nil, s, err
	}
	return session, s, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ALMCmd.AddCommand(checkCmd)
	ALMCmd.AddCommand(domainsCmd)
	ALMCmd.AddCommand(projectsCmd)
	ALMCmd.AddCommand(resolveCmd)
	ALMCmd.AddCommand(attachCmd)
}
