package syncer

import (
	"log/slog"
	"os"

	"github.com/oklog/ulid/v2"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/config"
	"github.com/flarebyte/almsync/internal/report"
)

// StaticBuild is a Build assembled from values known up front, as on the
// command line or in a webhook request.
type StaticBuild struct {
	Results  *report.Report
	Log      *slog.Logger
	Job      string
	Display  string
	HostName string
}

func (b *StaticBuild) Report() *report.Report { return b.Results }
func (b *StaticBuild) Logger() *slog.Logger    { return b.Log }
func (b *StaticBuild) JobName() string         { return b.Job }

// DisplayName falls back to a generated "build-<ulid>" name.
func (b *StaticBuild) DisplayName() string {
	if b.Display == "" {
		b.Display = NewDisplayName()
	}
	return b.Display
}

// Host falls back to the local host name.
func (b *StaticBuild) Host() string {
	if b.HostName == "" {
		b.HostName, _ = os.Hostname()
	}
	return b.HostName
}

// NewDisplayName returns a unique, time-ordered run name.
func NewDisplayName() string {
	return "build-" + ulid.Make().String()
}

// FromConfig maps the configuration file onto Settings.
func FromConfig(cfg config.Config, password string) Settings {
	return Settings{
		URL:                 cfg.ALM.URL,
		Username:            cfg.ALM.Username,
		Password:            password,
		Domain:              cfg.Target.Domain,
		Project:             cfg.Target.Project,
		PlanFolder:          cfg.Target.PlanFolder,
		LabFolder:           cfg.Target.LabFolder,
		UserDefinedFields:   cfg.Target.UserDefinedFields,
		FailOnNoTestResults: cfg.Target.FailOnNoTestResults,
		HTTP: alm.Options{
			InsecureSkipVerify: cfg.ALM.InsecureSkipVerify,
			Timeout:            cfg.ALM.Timeout,
		},
	}
}
