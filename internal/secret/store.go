// Package secret keeps credentials such as the store password out of the
// configuration file.
package secret

import (
	"fmt"
	"os"
	"strings"
)

// SecretStore provides a pluggable interface for storing sensitive data
// such as the store password.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns nil and no error if the key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// EnvStore reads secrets from CANVAS_SECRET_<KEY> variables. Dashes and
// dots in the key become underscores.
type EnvStore struct{}

func EnvName(key string) string {
	return "CANVAS_SECRET_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

func (EnvStore) Set(key string, value []byte) error {
	return os.Setenv(EnvName(key), string(value))
}

func (EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(EnvName(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (EnvStore) Delete(key string) error {
	return os.Unsetenv(EnvName(key))
}

// Chain reads from each store in order and writes to the first.
type Chain []SecretStore

// Default looks in the environment first, then the keychain.
func Default() Chain {
	return Chain{EnvStore{}, NewKeychainStore()}
}

func (c Chain) Set(key string, value []byte) error {
	if len(c) == 0 {
		return fmt.Errorf("set secret %s: no store", key)
	}
	return c[0].Set(key, value)
}

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, fmt.Errorf("get secret %s: %w", key, err)
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c Chain) Delete(key string) error {
	for _, s := range c {
		if err := s.Delete(key); err != nil {
			return fmt.Errorf("delete secret %s: %w", key, err)
		}
	}
	return nil
}
