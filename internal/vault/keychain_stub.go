//go:build !darwin

package vault

import "errors"

var errNoKeychain = errors.New("keychain backend is only available on macOS; use vault.backend: env")

func newKeychainVaultDAO() (VaultDAO, error) { return nil, errNoKeychain }
