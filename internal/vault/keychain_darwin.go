//go:build darwin

package vault

import (
	"context"
	"errors"
	"fmt"

	keychain "github.com/keybase/go-keychain"
)

// KeychainVaultDAO implements VaultDAO backed by the macOS Keychain.
// Secrets are generic passwords under Service=almsync and Account=<name>.
type KeychainVaultDAO struct{}

func newKeychainVaultDAO() (VaultDAO, error) { return &KeychainVaultDAO{}, nil }

func item(name string) keychain.Item {
	it := keychain.NewItem()
	it.SetSecClass(keychain.SecClassGenericPassword)
	it.SetService(ServiceName)
	it.SetAccount(name)
	return it
}

func (d *KeychainVaultDAO) GetSecretMetadata(ctx context.Context, name string) (SecretMetadata, error) {
	md := SecretMetadata{Name: name, Backend: "keychain"}
	q := item(name)
	q.SetMatchLimit(keychain.MatchLimitOne)
	q.SetReturnAttributes(true)
	rr, err := keychain.QueryItem(q)
	if err != nil {
		return md, fmt.Errorf("keychain query: %w", err)
	}
	if len(rr) == 0 {
		return md, nil
	}
	md.IsSet = true
	if t := rr[0].ModificationDate; !t.IsZero() {
		md.UpdatedAt = &t
	}
	return md, nil
}

func (d *KeychainVaultDAO) SetSecret(ctx context.Context, name string, value []byte) error {
	it := item(name)
	it.SetLabel("almsync secret: " + name)
	it.SetData(value)
	it.SetAccessible(keychain.AccessibleAfterFirstUnlock)
	err := keychain.AddItem(it)
	if errors.Is(err, keychain.ErrorDuplicateItem) {
		err = keychain.UpdateItem(item(name), it)
	}
	if err != nil {
		return fmt.Errorf("keychain store: %w", err)
	}
	return nil
}

func (d *KeychainVaultDAO) UnsetSecret(ctx context.Context, name string) error {
	if err := keychain.DeleteItem(item(name)); err != nil && !errors.Is(err, keychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

func (d *KeychainVaultDAO) GetSecretForInternalUse(ctx context.Context, name string) ([]byte, error) {
	q := item(name)
	q.SetMatchLimit(keychain.MatchLimitOne)
	q.SetReturnData(true)
	rr, err := keychain.QueryItem(q)
	if err != nil {
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	if len(rr) == 0 || rr[0].Data == nil {
		return nil, fmt.Errorf("secret not found: %s", name)
	}
	return append([]byte(nil), rr[0].Data...), nil
}
