package paths

import (
	"os"
	"path/filepath"
)

const envHome = "ALMSYNC_HOME_DIR"

// Home returns the base directory for almsync configuration and state.
// Defaults to ~/.almsync, can be overridden via ALMSYNC_HOME_DIR.
func Home() string {
	if v := os.Getenv(envHome); v != "" {
		return v
	}
	hd, err := os.UserHomeDir()
	if err != nil || hd == "" {
		return ".almsync"
	}
	return filepath.Join(hd, ".almsync")
}

func EnsureHome() (string, error) {
	h := Home()
	if err := os.MkdirAll(h, 0o755); err != nil {
		return "", err
	}
	return h, nil
}

// PIDFile is where the webhook server records its process id.
func PIDFile() string {
	return filepath.Join(Home(), "server.pid")
}

// ServerLog receives the output of a detached webhook server.
func ServerLog() string {
	return filepath.Join(Home(), "server.log")
}
