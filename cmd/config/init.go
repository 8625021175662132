package configcmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/flarebyte/almsync/internal/config"
	"github.com/flarebyte/almsync/internal/paths"
)

var (
	flagOverwrite bool
	flagDryRun    bool
	// ALM
	flagURL            string
	flagUsername       string
	flagPasswordSecret string
	flagInsecure       bool
	flagTimeout        time.Duration
	// Target
	flagDomain     string
	flagProject    string
	flagPlanFolder string
	flagLabFolder  string
	flagUserFields string
	flagFailEmpty  bool
	// Server
	flagServerPort int
	flagLogLevel   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or update the global config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := paths.EnsureHome(); err != nil {
			return err
		}
		path := cfgpkg.Path()
		if !flagOverwrite && !flagDryRun {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s (use --overwrite to replace)", path)
			}
		}

		// Start from the existing file so unrelated keys survive.
		cfg, _ := cfgpkg.Load()
		changed := cmd.Flags().Changed
		str := func(name string, dst *string, v string) {
			if changed(name) {
				*dst = v
			}
		}
		str("url", &cfg.ALM.URL, flagURL)
		str("username", &cfg.ALM.Username, flagUsername)
		str("password-secret", &cfg.ALM.PasswordSecret, flagPasswordSecret)
		str("domain", &cfg.Target.Domain, flagDomain)
		str("project", &cfg.Target.Project, flagProject)
		str("plan-folder", &cfg.Target.PlanFolder, flagPlanFolder)
		str("lab-folder", &cfg.Target.LabFolder, flagLabFolder)
		str("user-fields", &cfg.Target.UserDefinedFields, flagUserFields)
		str("log-level", &cfg.Log.Level, flagLogLevel)
		if changed("insecure") {
			cfg.ALM.InsecureSkipVerify = flagInsecure
		}
		if changed("timeout") {
			cfg.ALM.Timeout = flagTimeout
		}
		if changed("fail-on-no-results") {
			cfg.Target.FailOnNoTestResults = flagFailEmpty
		}
		if changed("server-port") {
			cfg.Server.Port = flagServerPort
		}

		if flagDryRun {
			b, err := yaml.Marshal(redact(cfg))
			if err != nil {
				return err
			}
			os.Stdout.Write(b)
			fmt.Fprintf(os.Stderr, "dry-run: not writing %s\n", path)
			return nil
		}
		if err := cfgpkg.Save(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote config to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Overwrite existing config.yaml if present")
	initCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print merged config to stdout without writing")

	initCmd.Flags().StringVar(&flagURL, "url", "", "ALM server URL, e.g. https://alm.example.com/qcbin")
	initCmd.Flags().StringVar(&flagUsername, "username", "", "ALM account")
	initCmd.Flags().StringVar(&flagPasswordSecret, "password-secret", "alm", "Vault entry holding the ALM password")
	initCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "Skip TLS verification (dev only)")
	initCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "HTTP timeout per request (0 = none)")

	initCmd.Flags().StringVar(&flagDomain, "domain", "", "ALM domain")
	initCmd.Flags().StringVar(&flagProject, "project", "", "ALM project")
	initCmd.Flags().StringVar(&flagPlanFolder, "plan-folder", "", "Test plan folder path, e.g. Subject/CI")
	initCmd.Flags().StringVar(&flagLabFolder, "lab-folder", "", "Test lab folder path, e.g. Root/CI")
	initCmd.Flags().StringVar(&flagUserFields, "user-fields", "", "key=value,key=value set on created tests")
	initCmd.Flags().BoolVar(&flagFailEmpty, "fail-on-no-results", true, "Fail when no test results are found")

	initCmd.Flags().IntVar(&flagServerPort, "server-port", cfgpkg.DefaultServerPort, "Server port")
	initCmd.Flags().StringVar(&flagLogLevel, "log-level", cfgpkg.DefaultLogLevel, "Log level: debug, info, warn, error")
}
