package syncer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flarebyte/almsync/internal/config"
)

func TestStaticBuildDefaults(t *testing.T) {
	b := &StaticBuild{Job: "nightly"}
	name := b.DisplayName()
	assert.True(t, strings.HasPrefix(name, "build-"), name)
	assert.Len(t, name, len("build-")+26)
	assert.Equal(t, name, b.DisplayName(), "generated once")
	assert.NotEmpty(t, b.Host())

	named := &StaticBuild{Display: "#7", HostName: "agent"}
	assert.Equal(t, "#7", named.DisplayName())
	assert.Equal(t, "agent", named.Host())
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.ALM.URL = "https://alm/qcbin"
	cfg.ALM.Username = "ci"
	cfg.ALM.Timeout = time.Minute
	cfg.ALM.InsecureSkipVerify = true
	cfg.Target = config.TargetConfig{
		Domain: "D", Project: "P", PlanFolder: "Subject/CI", LabFolder: "Root/CI",
		UserDefinedFields: "a=1", FailOnNoTestResults: true,
	}
	s := FromConfig(cfg, "pw")
	assert.Equal(t, "pw", s.Password)
	assert.Equal(t, "Subject/CI", s.PlanFolder)
	assert.Equal(t, "a=1", s.UserDefinedFields)
	assert.True(t, s.FailOnNoTestResults)
	assert.Equal(t, time.Minute, s.HTTP.Timeout)
	assert.True(t, s.HTTP.InsecureSkipVerify)
}
