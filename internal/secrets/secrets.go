// Package secrets resolves the credential the transfer service requires,
// keyed by (service, client id) the way a system keyring stores them. The
// store itself is an external collaborator; the pipeline only needs a
// resolver it can ask once at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that a provider has no secret for the reference.
var ErrNotFound = errors.New("secret not found")

// Provider resolves one secret per (service, clientID) reference.
type Provider interface {
	// Resolve returns the secret value, or an error wrapping ErrNotFound.
	Resolve(ctx context.Context, service, clientID string) (string, error)

	// Name identifies the provider in logs ("env", "file", "static").
	Name() string
}

// Env resolves secrets from environment variables. The variable name is the
// uppercased service and client id joined with an underscore, with every
// non-alphanumeric rune folded to an underscore: service "globus_mpf" and
// client "abc-123" resolve from GLOBUS_MPF_ABC_123.
type Env struct{}

func (Env) Name() string { return "env" }

func (Env) Resolve(_ context.Context, service, clientID string) (string, error) {
	key := envKey(service, clientID)
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", fmt.Errorf("env %s: %w", key, ErrNotFound)
	}
	return val, nil
}

func envKey(service, clientID string) string {
	fold := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}
	return strings.Map(fold, service) + "_" + strings.Map(fold, clientID)
}

// File resolves secrets from a directory tree: the secret for (service, id)
// is the trimmed content of <root>/<service>/<id>.
type File struct {
	Root string
}

func (File) Name() string { return "file" }

func (f File) Resolve(_ context.Context, service, clientID string) (string, error) {
	path := filepath.Join(f.Root, service, clientID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("file %s is empty: %w", path, ErrNotFound)
	}
	return secret, nil
}

// Static serves secrets from a fixed map, for tests and development. Keys
// are "service/clientID".
type Static map[string]string

func (Static) Name() string { return "static" }

func (s Static) Resolve(_ context.Context, service, clientID string) (string, error) {
	val, ok := s[service+"/"+clientID]
	if !ok {
		return "", fmt.Errorf("static %s/%s: %w", service, clientID, ErrNotFound)
	}
	return val, nil
}

// Chain tries each provider in order and returns the first hit. Only when
// every provider misses does it report ErrNotFound.
type Chain []Provider

func (Chain) Name() string { return "chain" }

func (c Chain) Resolve(ctx context.Context, service, clientID string) (string, error) {
	for _, p := range c {
		val, err := p.Resolve(ctx, service, clientID)
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("no provider holds %s/%s: %w", service, clientID, ErrNotFound)
}
