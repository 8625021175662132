package vault

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvPrefix starts the variable holding a secret: ALMSYNC_SECRET_<NAME>.
const EnvPrefix = "ALMSYNC_SECRET_"

// EnvVaultDAO reads secrets from the process environment, for CI agents
// without a keychain. It cannot store secrets.
type EnvVaultDAO struct {
	lookup func(string) (string, bool)
}

func newEnvVaultDAO() *EnvVaultDAO { return &EnvVaultDAO{lookup: os.LookupEnv} }

// EnvName maps a secret name to its variable, e.g. "alm-prod" to ALMSYNC_SECRET_ALM_PROD.
func EnvName(name string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (d *EnvVaultDAO) GetSecretMetadata(ctx context.Context, name string) (SecretMetadata, error) {
	v, ok := d.lookup(EnvName(name))
	return SecretMetadata{Name: name, IsSet: ok && v != "", Backend: "env"}, nil
}

func (d *EnvVaultDAO) SetSecret(ctx context.Context, name string, value []byte) error {
	return fmt.Errorf("%w: export %s instead", ErrReadOnly, EnvName(name))
}

func (d *EnvVaultDAO) UnsetSecret(ctx context.Context, name string) error {
	return fmt.Errorf("%w: unset %s instead", ErrReadOnly, EnvName(name))
}

func (d *EnvVaultDAO) GetSecretForInternalUse(ctx context.Context, name string) ([]byte, error) {
	v, ok := d.lookup(EnvName(name))
	if !ok || v == "" {
		return nil, fmt.Errorf("secret not found: %s (%s unset)", name, EnvName(name))
	}
	return []byte(v), nil
}
