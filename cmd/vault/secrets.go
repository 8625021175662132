package vaultcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flarebyte/almsync/internal/cli"
	cfgpkg "github.com/flarebyte/almsync/internal/config"
	vpkg "github.com/flarebyte/almsync/internal/vault"
)

var flagShowJSON bool

var setCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Set or update a secret value in the vault",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		name := secretName(cfg, args)
		if name == "" {
			return errors.New("name must not be empty")
		}
		dao, err := vpkg.NewVaultDAO(cfg.Vault.Backend)
		if err != nil {
			return err
		}
		secret, err := cli.PromptSecret(fmt.Sprintf("Enter secret for %q: ", name))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dao.SetSecret(ctx, name, secret); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "secret %q stored in backend %q\n", name, backendName(cfg))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show metadata about a secret (never prints the value)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		dao, err := vpkg.NewVaultDAO(cfg.Vault.Backend)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		md, err := dao.GetSecretMetadata(ctx, secretName(cfg, args))
		if err != nil {
			return err
		}
		if md.Backend == "" {
			md.Backend = backendName(cfg)
		}
		if flagShowJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(md)
		}
		status := "unset"
		if md.IsSet {
			status = "set"
		}
		fmt.Fprintf(os.Stdout, "Name: %s\n", md.Name)
		fmt.Fprintf(os.Stdout, "Status: %s\n", status)
		fmt.Fprintf(os.Stdout, "Backend: %s\n", md.Backend)
		if md.UpdatedAt != nil {
			fmt.Fprintf(os.Stdout, "Last Updated: %s\n", md.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset [name]",
	Short: "Delete a secret from the vault",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		name := secretName(cfg, args)
		dao, err := vpkg.NewVaultDAO(cfg.Vault.Backend)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dao.UnsetSecret(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "secret %q deleted from backend %q\n", name, backendName(cfg))
		return nil
	},
}

func backendName(cfg cfgpkg.Config) string {
	if cfg.Vault.Backend == "" {
		return cfgpkg.DefaultBackend
	}
	return cfg.Vault.Backend
}

func init() {
	showCmd.Flags().BoolVar(&flagShowJSON, "json", false, "Output as JSON")
	VaultCmd.AddCommand(setCmd)
	VaultCmd.AddCommand(showCmd)
	VaultCmd.AddCommand(unsetCmd)
}
