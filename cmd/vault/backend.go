package vaultcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/flarebyte/almsync/internal/config"
	"github.com/flarebyte/almsync/internal/paths"
)

var backends = []struct {
	name, note string
}{
	{"keychain", "macOS Keychain, default"},
	{"env", "read-only, ALMSYNC_SECRET_<NAME>"},
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Manage the secret storage backend",
}

var backendCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the current backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, backendName(cfg))
		return nil
	},
}

var backendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := cfgpkg.Load()
		cur := backendName(cfg)
		for _, b := range backends {
			fmt.Fprintf(os.Stdout, "%s (%s)%s\n", b.name, b.note, markCurrent(cur == b.name))
		}
		return nil
	},
}

func markCurrent(is bool) string {
	if is {
		return "  [current]"
	}
	return ""
}

var backendSetCmd = &cobra.Command{
	Use:   "set <backend>",
	Short: "Set the active backend (keychain or env)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		be := args[0]
		known := false
		for _, b := range backends {
			known = known || b.name == be
		}
		if !known {
			return fmt.Errorf("backend not implemented: %s", be)
		}
		if _, err := paths.EnsureHome(); err != nil {
			return err
		}
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		cfg.Vault.Backend = be
		path := cfgpkg.Path()
		if err := cfgpkg.Save(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "backend set to %q in %s\n", be, path)
		return nil
	},
}

func init() {
	VaultCmd.AddCommand(backendCmd)
	backendCmd.AddCommand(backendCurrentCmd)
	backendCmd.AddCommand(backendListCmd)
	backendCmd.AddCommand(backendSetCmd)
}
