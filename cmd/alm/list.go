package almcmd

import (
	"context"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/cli"
)

var (
	domainsTarget  cli.TargetFlags
	projectsTarget cli.TargetFlags
	flagListJSON   bool
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List the domains visible to the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		session, _, err := open(ctx, cmd, &domainsTarget)
		if err != nil {
			return err
		}
		defer session.Logout(ctx)
		domains, err := session.Domains(ctx)
		if err != nil {
			return err
		}
		return printNames("DOMAIN", domains)
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects [domain]",
	Short: "List the projects of a domain (default target.domain)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		session, s, err := open(ctx, cmd, &projectsTarget)
		if err != nil {
			return err
		}
		defer session.Logout(ctx)
		domain := s.Domain
		if len(args) == 1 {
			domain = args[0]
		}
		projects, err := session.Projects(ctx, domain)
		if err != nil {
			return err
		}
		return printNames("PROJECT", projects)
	},
}

func printNames(header string, names []string) error {
	if flagListJSON {
		if names == nil {
			names = []string{}
		}
		return printJSON(names)
	}
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{header})
	for _, n := range names {
		tw.Append([]string{n})
	}
	tw.Render()
	return nil
}

func init() {
	domainsTarget.Register(domainsCmd)
	projectsTarget.Register(projectsCmd)
	for _, c := range []*cobra.Command{domainsCmd, projectsCmd} {
		c.Flags().BoolVar(&flagListJSON, "json", false, "Output as JSON")
	}
}
