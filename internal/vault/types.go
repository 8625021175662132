package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	cfgpkg "github.com/flarebyte/almsync/internal/config"
)

// ErrReadOnly is returned by backends that cannot store secrets.
var ErrReadOnly = errors.New("vault backend is read-only")

// VaultDAO stores named secrets, chiefly the ALM account password.
// No implementation logs or prints a value.
type VaultDAO interface {
	// GetSecretMetadata reports whether name is set. A missing secret is IsSet=false, not an error.
	GetSecretMetadata(ctx context.Context, name string) (SecretMetadata, error)
	SetSecret(ctx context.Context, name string, value []byte) error
	UnsetSecret(ctx context.Context, name string) error
	// GetSecretForInternalUse returns the value for building an ALM session only.
	GetSecretForInternalUse(ctx context.Context, name string) ([]byte, error)
}

// SecretMetadata describes a secret without its value.
type SecretMetadata struct {
	Name      string     `json:"name"`
	IsSet     bool       `json:"is_set"`
	Backend   string     `json:"backend"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

const (
	// ServiceName is the keychain service every almsync secret is filed under.
	ServiceName = "almsync"
)

// NewVaultDAO constructs a DAO for the selected backend.
func NewVaultDAO(backend string) (VaultDAO, error) {
	switch backend {
	case "", "keychain":
		return newKeychainVaultDAO()
	case "env":
		return newEnvVaultDAO(), nil
	default:
		return nil, fmt.Errorf("vault backend not implemented: %s", backend)
	}
}

var (
	cached struct {
		sync.Mutex
		dao VaultDAO
		be  string
	}
	// reads collapses concurrent lookups of the same secret into one backend call.
	reads singleflight.Group
)

// GetSecret reads name from the backend selected by vault.backend in config.yaml.
// The backend handle is kept until the configured backend changes.
func GetSecret(ctx context.Context, name string) ([]byte, error) {
	cfg, err := cfgpkg.Load()
	if err != nil {
		return nil, err
	}
	backend := cfg.Vault.Backend
	cached.Lock()
	if cached.dao == nil || cached.be != backend {
		dao, derr := NewVaultDAO(backend)
		if derr != nil {
			cached.Unlock()
			return nil, derr
		}
		cached.dao = dao
		cached.be = backend
	}
	dao := cached.dao
	cached.Unlock()
	v, err, _ := reads.Do(backend+"/"+name, func() (any, error) {
		return dao.GetSecretForInternalUse(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	b := v.([]byte)
	return append([]byte(nil), b...), nil
}
