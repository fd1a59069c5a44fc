package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeConflict, "duplicate key")
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeValidation))
	})

	t.Run("code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("ingest: %w", New(CodeValidation, "bad row"))
		assert.True(t, HasCode(err, CodeValidation))
		assert.Equal(t, CodeValidation, CodeOf(err))
	})

	t.Run("inner code under outer code", func(t *testing.T) {
		inner := New(CodeConflict, "two ids")
		err := Wrap(inner, CodeInternal, "registry")
		assert.True(t, HasCode(err, CodeConflict))
		assert.True(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "nothing"))

	cause := errors.New("disk full")
	err := Wrap(cause, CodeUnavailable, "save snapshot")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "save snapshot: disk full", err.Error())
}
