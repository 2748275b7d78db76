// Package security remembers SSH passwords of training hosts in the OS
// keyring so the connect form can be prefilled on the next run.
package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service every entry is filed under.
const Service = "train-wizard"

const checkAccount = "__train_wizard_check__"

// ErrKeyringUnavailable is returned by OpenKeyring when the platform has no
// usable secret store, as on headless Linux hosts without Secret Service.
var ErrKeyringUnavailable = errors.New("keyring not available")

// KeyringStore files one password per user@host:port. Passwords are base64
// encoded because some backends mangle non-ASCII secrets.
type KeyringStore struct{}

// OpenKeyring checks that the keyring accepts writes before handing out a
// store.
func OpenKeyring() (*KeyringStore, error) {
	if err := keyring.Set(Service, checkAccount, "check"); err != nil {
		slog.Debug("keyring write check failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	_ = keyring.Delete(Service, checkAccount)
	return &KeyringStore{}, nil
}

func account(host string, port int, user string) string {
	return fmt.Sprintf("server:%s@%s:%d", user, host, port)
}

// StorePassword saves password for user@host:port, replacing any earlier one.
func (KeyringStore) StorePassword(host string, port int, user, password string) error {
	enc := base64.StdEncoding.EncodeToString([]byte(password))
	if err := keyring.Set(Service, account(host, port, user), enc); err != nil {
		return fmt.Errorf("store password for %s@%s: %w", user, host, err)
	}
	slog.Debug("password saved to keyring", slog.String("user", user), slog.String("host", host))
	return nil
}

// Password returns the saved password, or "" when none is stored.
func (KeyringStore) Password(host string, port int, user string) (string, error) {
	enc, err := keyring.Get(Service, account(host, port, user))
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("read password for %s@%s: %w", user, host, err)
	}
	pw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("decode password for %s@%s: %w", user, host, err)
	}
	return string(pw), nil
}

// ForgetPassword removes the saved password. A missing entry is not an error.
func (KeyringStore) ForgetPassword(host string, port int, user string) error {
	err := keyring.Delete(Service, account(host, port, user))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("forget password for %s@%s: %w", user, host, err)
	}
	return nil
}
