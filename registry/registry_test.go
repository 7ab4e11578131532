package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLookupCaseInsensitive(t *testing.T) {
	r := New[func() int]("source")
	require.NoError(t, r.Register("Mock", func() int { return 1 }))

	got, ok := r.Get("MOCK")
	require.True(t, ok)
	assert.Equal(t, 1, got())
}

func TestDuplicateRejected(t *testing.T) {
	r := New[int]("source")
	require.NoError(t, r.Register("http", 1))

	err := r.Register(" HTTP ", 2)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, "registry: source http already registered", err.Error())
}

func TestEmptyNameRejected(t *testing.T) {
	r := New[int]("secret")
	assert.Error(t, r.Register("  ", 1))
}

func TestNamesSorted(t *testing.T) {
	r := New[int]("source")
	for _, n := range []string{"plugin", "http", "mock"} {
		require.NoError(t, r.Register(n, 0))
	}
	assert.Equal(t, []string{"http", "mock", "plugin"}, r.Names())
}
