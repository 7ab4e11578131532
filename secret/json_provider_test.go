package secret

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costwatch/costwatch-dashboard/cwerr"
)

func writeSecrets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestJsonProviderFileConfig(t *testing.T) {
	path := writeSecrets(t, `{"upstream/token": "abc", "nested": {"a": 1}}`)

	p, err := NewJsonProvider(map[string]any{"path": path})
	require.NoError(t, err)

	got, err := p.Get(context.Background(), KeyUpstreamToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	got, err = p.Get(context.Background(), "nested")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, got)

	_, err = p.Get(context.Background(), "missing")
	assert.Equal(t, cwerr.CodeNotFound, cwerr.CodeOf(err))
}

func TestJsonProviderMissingPath(t *testing.T) {
	_, err := NewJsonProvider(map[string]any{"foo": "bar"})
	assert.Error(t, err)

	_, err = NewJsonProvider(map[string]any{"path": filepath.Join(t.TempDir(), "absent.json")})
	assert.Error(t, err)
}

func TestJsonProviderPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	p, err := NewJsonProvider(map[string]any{"path": path, "persist": true})
	require.NoError(t, err)
	require.NoError(t, p.Put(context.Background(), KeySourceConfig, `{"provider":"mock"}`))

	reloaded, err := NewJsonProvider(map[string]any{"path": path})
	require.NoError(t, err)
	got, err := reloaded.Get(context.Background(), KeySourceConfig)
	require.NoError(t, err)
	assert.Equal(t, `{"provider":"mock"}`, got)
}

func TestJsonProviderRegistration(t *testing.T) {
	ctor, ok := LookupProvider("json")
	require.True(t, ok)

	p, err := ctor(map[string]any{"path": writeSecrets(t, `{"k":"v"}`)})
	require.NoError(t, err)
	val, err := p.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("COSTWATCH_SECRET_UPSTREAM_TOKEN", "from-env")

	p, err := NewEnvProvider(nil)
	require.NoError(t, err)

	got, err := p.Get(context.Background(), KeyUpstreamToken)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	require.NoError(t, p.Put(context.Background(), KeyUpstreamToken, "override"))
	got, _ = p.Get(context.Background(), KeyUpstreamToken)
	assert.Equal(t, "override", got)

	_, err = p.Get(context.Background(), "nope")
	assert.Equal(t, cwerr.CodeNotFound, cwerr.CodeOf(err))
}
