package configcmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/flarebyte/almsync/internal/config"
)

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the merged configuration to stdout (password redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgpkg.Load()
		if err != nil {
			return err
		}
		b, err := yaml.Marshal(redact(cfg))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	},
}

func redact(cfg cfgpkg.Config) cfgpkg.Config {
	if cfg.ALM.Password != "" {
		cfg.ALM.Password = "********"
	}
	return cfg
}
