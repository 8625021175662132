package almcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/cli"
	"github.com/flarebyte/almsync/internal/syncer"
)

var (
	resolveTarget   cli.TargetFlags
	flagResolveJSON bool
)

type folderRow struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
	ID   string `json:"id"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the plan and lab folders to their ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		session, s, err := open(ctx, cmd, &resolveTarget)
		if err != nil {
			return err
		}
		defer session.Logout(ctx)
		f, err := syncer.ResolveFolders(ctx, session, s)
		if err != nil {
			return err
		}
		planID, err := f.Plan.ID()
		if err != nil {
			return err
		}
		labID, err := f.Lab.ID()
		if err != nil {
			return err
		}
		rows := []folderRow{
			{Kind: "plan", Path: s.PlanFolder, ID: planID},
			{Kind: "lab", Path: s.LabFolder, ID: labID},
		}
		if flagResolveJSON {
			return printJSON(rows)
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"KIND", "PATH", "ID"})
		for _, r := range rows {
			tw.Append([]string{r.Kind, r.Path, r.ID})
		}
		tw.Render()
		fmt.Fprintf(os.Stderr, "domain %s, project %s\n", s.Domain, s.Project)
		return nil
	},
}

func init() {
	resolveTarget.Register(resolveCmd)
	resolveCmd.Flags().BoolVar(&flagResolveJSON, "json", false, "Output as JSON")
}
