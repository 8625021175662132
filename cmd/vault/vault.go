package vaultcmd

import (
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/flarebyte/almsync/internal/config"
)

// VaultCmd is the root for `almsync vault` commands.
var VaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the ALM password in the local vault",
	Long: `Manage secrets in the local vault. The secret named by alm.password_secret
(default "alm") is used as the ALM password when neither --password nor
ALMSYNC_PASSWORD is given.`,
}

// secretName picks the explicit argument or the configured password secret.
func secretName(cfg cfgpkg.Config, args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(args[0])
	}
	return cfg.ALM.PasswordSecret
}
