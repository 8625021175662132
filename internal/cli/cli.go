// Package cli holds what the almsync commands share: the target flags, the
// logger built from --log-level and the password resolution chain.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flarebyte/almsync/internal/alm"
	cfgpkg "github.com/flarebyte/almsync/internal/config"
	"github.com/flarebyte/almsync/internal/logging"
	"github.com/flarebyte/almsync/internal/syncer"
	vpkg "github.com/flarebyte/almsync/internal/vault"
)

// LogLevel is bound to the root --log-level flag; empty defers to log.level.
var LogLevel string

// Logger builds the stderr logger for a command.
func Logger(cfg cfgpkg.Config) (*slog.Logger, error) {
	level := LogLevel
	if level == "" {
		level = cfg.Log.Level
	}
	return logging.Init(os.Stderr, level)
}

// TargetFlags override the alm and target sections of config.yaml.
type TargetFlags struct {
	URL               string
	Username          string
	Password          string
	AskPassword       bool
	Domain            string
	Project           string
	PlanFolder        string
	LabFolder         string
	UserDefinedFields string
	FailOnNoResults   bool
	Insecure          bool
	Timeout           time.Duration
}

// Register adds the flags to cmd.
func (f *TargetFlags) Register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.URL, "url", "", "ALM server URL, e.g. https://alm.example.com/qcbin (default alm.url)")
	fs.StringVar(&f.Username, "username", "", "ALM account (default alm.username)")
	fs.StringVar(&f.Password, "password", "", "ALM password (prefer the vault or "+cfgpkg.EnvPassword+")")
	fs.BoolVar(&f.AskPassword, "ask-password", false, "Prompt for the ALM password")
	fs.StringVar(&f.Domain, "domain", "", "ALM domain (default target.domain)")
	fs.StringVar(&f.Project, "project", "", "ALM project (default target.project)")
	fs.StringVar(&f.PlanFolder, "plan-folder", "", "Test plan folder path (default target.plan_folder)")
	fs.StringVar(&f.LabFolder, "lab-folder", "", "Test lab folder path (default target.lab_folder)")
	fs.StringVar(&f.UserDefinedFields, "user-fields", "", "key=value,key=value set on created tests (default target.user_defined_fields)")
	fs.BoolVar(&f.FailOnNoResults, "fail-on-no-results", true, "Fail when no test results are found (default target.fail_on_no_test_results)")
	fs.BoolVar(&f.Insecure, "insecure", false, "Skip TLS verification (dev only)")
	fs.DurationVar(&f.Timeout, "timeout", 0, "HTTP timeout per request (default alm.timeout)")
}

// Apply copies the flags that were set onto cfg.
func (f *TargetFlags) Apply(cmd *cobra.Command, cfg *cfgpkg.Config) {
	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	set("url", &cfg.ALM.URL, f.URL)
	set("username", &cfg.ALM.Username, f.Username)
	set("domain", &cfg.Target.Domain, f.Domain)
	set("project", &cfg.Target.Project, f.Project)
	set("plan-folder", &cfg.Target.PlanFolder, f.PlanFolder)
	set("lab-folder", &cfg.Target.LabFolder, f.LabFolder)
	set("user-fields", &cfg.Target.UserDefinedFields, f.UserDefinedFields)
	if changed("fail-on-no-results") {
		cfg.Target.FailOnNoTestResults = f.FailOnNoResults
	}
	if changed("insecure") {
		cfg.ALM.InsecureSkipVerify = f.Insecure
	}
	if changed("timeout") {
		cfg.ALM.Timeout = f.Timeout
	}
}

// Resolve loads config.yaml, applies the flags and resolves the password.
func (f *TargetFlags) Resolve(ctx context.Context, cmd *cobra.Command) (cfgpkg.Config, syncer.Settings, error) {
	cfg, err := cfgpkg.Load()
	if err != nil {
		return cfg, syncer.Settings{}, err
	}
	f.Apply(cmd, &cfg)
	flag := f.Password
	if f.AskPassword && flag == "" {
		b, err := PromptSecret(fmt.Sprintf("ALM password for %s: ", cfg.ALM.Username))
		if err != nil {
			return cfg, syncer.Settings{}, err
		}
		flag = string(b)
	}
	pw, err := cfg.ResolvePassword(ctx, flag, vpkg.GetSecret)
	if err != nil {
		return cfg, syncer.Settings{}, err
	}
	return cfg, syncer.FromConfig(cfg, pw), nil
}

// Login opens a session with the settings' account.
func Login(ctx context.Context, s syncer.Settings) (*alm.Session, error) {
	c, err := alm.NewClient(s.URL, s.HTTP)
	if err != nil {
		return nil, err
	}
	return c.Login(ctx, s.Username, s.Password)
}

// PromptSecret reads a secret without echo from a terminal, or one line from
// piped stdin.
func PromptSecret(prompt string) ([]byte, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimRight(string(b), "\r\n")), nil
	}
	fmt.Fprintln(os.Stderr, "warning: reading secret from stdin; input will not be masked")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// DescribeError renders err for an operator, spelling out ALM exceptions.
func DescribeError(err error) string {
	var rerr *alm.RemoteServiceError
	if errors.As(err, &rerr) {
		return fmt.Sprintf("ALM error %s: %s\n%s", rerr.ID, rerr.Title, rerr.StackTrace)
	}
	return err.Error()
}
