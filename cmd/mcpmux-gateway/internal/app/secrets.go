package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mcpmux/gateway/internal/collab"
)

// fileSecretProvider implements collab.SecretProvider by reading raw key
// material from files under a directory, generating a fresh random value
// on first use. Standing in for the platform keychain collaborator named
// in internal/collab until a desktop shell exists to own one.
type fileSecretProvider struct {
	dir string
}

var _ collab.SecretProvider = (*fileSecretProvider)(nil)

func newFileSecretProvider(dir string) *fileSecretProvider {
	return &fileSecretProvider{dir: dir}
}

// Secret returns the named secret, generating and persisting 32 random
// bytes the first time it is requested.
func (p *fileSecretProvider) Secret(_ context.Context, name string) ([]byte, error) {
	path := filepath.Join(p.dir, name)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("secrets: read %s: %w", path, err)
	}

	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return nil, fmt.Errorf("secrets: create %s: %w", p.dir, err)
	}
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("secrets: generate %s: %w", name, err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return nil, fmt.Errorf("secrets: write %s: %w", path, err)
	}
	return buf, nil
}
