package cwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "bad_request: missing service", New(CodeBadRequest, "missing service", nil).Error())

	wrapped := New(CodeUpstream, "Request failed 500", errors.New("boom"))
	assert.Equal(t, "upstream_error: Request failed 500: boom", wrapped.Error())
}

func TestAsValueAndPointer(t *testing.T) {
	base := errors.New("io")
	err := fmt.Errorf("fetch usage: %w", New(CodeUpstream, "down", base))

	ce, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeUpstream, ce.Code)
	assert.ErrorIs(t, err, base)

	ptr := &CostWatchError{Code: CodeNotFound, Message: "missing"}
	ce, ok = As(fmt.Errorf("wrap: %w", ptr))
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, ce.Code)
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Empty(t, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeInvalidThreshold, CodeOf(New(CodeInvalidThreshold, "NaN", nil)))
}
