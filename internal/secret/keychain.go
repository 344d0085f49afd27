package secret

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	keychainService = "canvas-store"
	keychainTimeout = 5 * time.Second

	// exit status of `security` when the item does not exist
	keychainNotFound = 44
)

// KeychainStore implements SecretStore using the macOS Keychain via the
// `security` CLI tool. On other systems it holds nothing.
type KeychainStore struct {
	service string
}

// NewKeychainStore creates a new KeychainStore.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService}
}

func (k *KeychainStore) available() bool {
	return runtime.GOOS == "darwin"
}

func (k *KeychainStore) run(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), keychainTimeout)
	defer cancel()
	return exec.CommandContext(ctx, "security", args...).Output()
}

// Set stores a secret, replacing an existing one.
func (k *KeychainStore) Set(key string, value []byte) error {
	if !k.available() {
		return fmt.Errorf("keychain set %s: keychain needs macOS", key)
	}
	_, err := k.run("add-generic-password", "-a", key, "-s", k.service, "-w", string(value), "-U")
	if err != nil {
		return fmt.Errorf("keychain set %s: %s", key, stderr(err))
	}
	return nil
}

// Get returns nil without error when the item does not exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	if !k.available() {
		return nil, nil
	}
	out, err := k.run("find-generic-password", "-a", key, "-s", k.service, "-w")
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s: %s", key, stderr(err))
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

func (k *KeychainStore) Delete(key string) error {
	if !k.available() {
		return nil
	}
	_, err := k.run("delete-generic-password", "-a", key, "-s", k.service)
	if err != nil && !notFound(err) {
		return fmt.Errorf("keychain delete %s: %s", key, stderr(err))
	}
	return nil
}

func notFound(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == keychainNotFound
}

func stderr(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}
