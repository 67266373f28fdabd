package secrets_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwilfong/globus-transfer/internal/secrets"
)

func TestEnv_Resolve(t *testing.T) {
	t.Setenv("GLOBUS_MPF_ABC_123", "s3cret")

	val, err := secrets.Env{}.Resolve(context.Background(), "globus_mpf", "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", val)
}

func TestEnv_Missing(t *testing.T) {
	t.Setenv("NOPE_X", "")

	_, err := secrets.Env{}.Resolve(context.Background(), "nope", "x")
	require.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestFile_Resolve(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "transfer")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client-1"), []byte("tok\n"), 0o600))

	f := secrets.File{Root: root}
	val, err := f.Resolve(context.Background(), "transfer", "client-1")
	require.NoError(t, err)
	assert.Equal(t, "tok", val, "trailing newline trimmed")
}

func TestFile_MissingAndEmpty(t *testing.T) {
	root := t.TempDir()
	f := secrets.File{Root: root}

	_, err := f.Resolve(context.Background(), "svc", "id")
	require.ErrorIs(t, err, secrets.ErrNotFound)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "svc"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "svc", "id"), []byte("  \n"), 0o600))
	_, err = f.Resolve(context.Background(), "svc", "id")
	require.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestStatic_Resolve(t *testing.T) {
	t.Parallel()

	s := secrets.Static{"svc/id": "value"}
	val, err := s.Resolve(context.Background(), "svc", "id")
	require.NoError(t, err)
	assert.Equal(t, "value", val)

	_, err = s.Resolve(context.Background(), "svc", "other")
	require.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestChain_FirstHitWins(t *testing.T) {
	t.Parallel()

	chain := secrets.Chain{
		secrets.Static{},
		secrets.Static{"svc/id": "from-second"},
		secrets.Static{"svc/id": "from-third"},
	}

	val, err := chain.Resolve(context.Background(), "svc", "id")
	require.NoError(t, err)
	assert.Equal(t, "from-second", val)
}

func TestChain_AllMiss(t *testing.T) {
	t.Parallel()

	chain := secrets.Chain{secrets.Static{}, secrets.Static{}}
	_, err := chain.Resolve(context.Background(), "svc", "id")
	require.ErrorIs(t, err, secrets.ErrNotFound)
}
