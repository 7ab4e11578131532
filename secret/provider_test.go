package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	ctor := func(cfg map[string]any) (Provider, error) { return nil, nil }
	if err := RegisterProvider("vault", ctor); err != nil {
		require.EqualError(t, err, "registry: secret vault already registered")
	}
	got, ok := LookupProvider("Vault")
	require.True(t, ok)
	assert.NotNil(t, got)
}

func TestProvidersList(t *testing.T) {
	ctor := func(cfg map[string]any) (Provider, error) { return nil, nil }
	_ = RegisterProvider("aws-kms", ctor)
	assert.Contains(t, Providers(), "aws-kms")
	assert.Contains(t, Providers(), "json")
	assert.Contains(t, Providers(), "env")
}

func TestEmptyNameRejected(t *testing.T) {
	ctor := func(cfg map[string]any) (Provider, error) { return nil, nil }
	assert.Error(t, RegisterProvider("", ctor))
}
