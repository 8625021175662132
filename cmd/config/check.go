package configcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/cli"
	cfgpkg "github.com/flarebyte/almsync/internal/config"
	"github.com/flarebyte/almsync/internal/syncer"
	vpkg "github.com/flarebyte/almsync/internal/vault"
)

var (
	flagPasswords bool
	flagVerify    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and report issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		problems := cfg.Problems()
		if !syncer.ValidUserDefinedFields(cfg.Target.UserDefinedFields) {
			problems = append(problems, "target.user_defined_fields must look like key=value,key=value")
		}

		if flagPasswords {
			// presence only, never values
			fmt.Fprintln(os.Stderr, "Password sources (set=non-empty):")
			fmt.Fprintf(os.Stderr, "- %s: %v\n", cfgpkg.EnvPassword, os.Getenv(cfgpkg.EnvPassword) != "")
			fmt.Fprintf(os.Stderr, "- alm.password: %v\n", cfg.ALM.Password != "")
			if cfg.ALM.PasswordSecret != "" {
				set := false
				if dao, err := vpkg.NewVaultDAO(cfg.Vault.Backend); err == nil {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					md, err := dao.GetSecretMetadata(ctx, cfg.ALM.PasswordSecret)
					cancel()
					set = err == nil && md.IsSet
				}
				fmt.Fprintf(os.Stderr, "- vault %q (%s): %v\n", cfg.ALM.PasswordSecret, cfg.Vault.Backend, set)
			}
		}

		if flagVerify && len(problems) == 0 {
			if err := verify(cfg); err != nil {
				problems = append(problems, "verify: "+cli.DescribeError(err))
			}
		}

		if len(problems) > 0 {
			fmt.Fprintln(os.Stderr, "Configuration issues:")
			for _, p := range problems {
				fmt.Fprintf(os.Stderr, "- %s\n", p)
			}
			return errors.New(strings.Join(problems, "; "))
		}
		fmt.Fprintln(os.Stderr, "Configuration looks valid.")
		return nil
	},
}

// verify logs in and resolves both folders.
func verify(cfg cfgpkg.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pw, err := cfg.ResolvePassword(ctx, "", vpkg.GetSecret)
	if err != nil {
		return err
	}
	s := syncer.FromConfig(cfg, pw)
	session, err := cli.Login(ctx, s)
	if err != nil {
		return err
	}
	defer session.Logout(ctx)
	f, err := syncer.ResolveFolders(ctx, session, s)
	if err != nil {
		return err
	}
	planID, _ := f.Plan.ID()
	labID, _ := f.Lab.ID()
	fmt.Fprintf(os.Stderr, "verify: plan folder %q id=%s, lab folder %q id=%s\n", s.PlanFolder, planID, s.LabFolder, labID)
	return nil
}

func init() {
	checkCmd.Flags().BoolVar(&flagPasswords, "passwords", false, "Report which password sources are set")
	checkCmd.Flags().BoolVar(&flagVerify, "verify", false, "Log in to ALM and resolve the plan and lab folders")
}
