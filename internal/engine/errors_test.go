package engine

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		code ErrorCode
		name string
	}{
		{ErrCodeMissingRequiredProperty, "MissingRequiredProperty"},
		{ErrCodeContextResolution, "ContextResolutionFailure"},
		{ErrCodeMalformedFragment, "MalformedGeneratedFragment"},
		{ErrCodeUnexpected, "UnexpectedExpansionError"},
		{ErrorCode("BB999"), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.name, tt.code.Name())
		})
	}
}

func TestExpansionErrorMatchesByCode(t *testing.T) {
	err := NewMissingRequiredProperty("Card", "id")

	assert.ErrorIs(t, err, ErrMissingRequiredProperty)
	assert.NotErrorIs(t, err, ErrUnexpected)
	assert.Equal(t, `BB100 MissingRequiredProperty in Card: property "id" is required but was not provided`, err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.ErrorIs(t, wrapped, ErrMissingRequiredProperty)
}

func TestClassifyKeepsCode(t *testing.T) {
	inner := NewMalformedFragment("", errors.New("line 1: unexpected EOF"))
	got := classify("Card", fmt.Errorf("render: %w", inner))

	assert.Equal(t, ErrCodeMalformedFragment, got.Code)
	assert.Equal(t, "Card", got.Macro)

	plain := classify("Card", errors.New("boom"))
	assert.Equal(t, ErrCodeUnexpected, plain.Code)
	assert.Equal(t, "boom", plain.Message)
}

func TestStackIsRecorded(t *testing.T) {
	err := NewUnexpected("Card", errors.New("boom"))
	assert.Contains(t, err.Stack(), "TestStackIsRecorded")
	require.Error(t, errors.Unwrap(err))
}

func TestPanicError(t *testing.T) {
	fromValue := panicError("Card", "kaboom")
	assert.Equal(t, ErrCodeUnexpected, fromValue.Code)
	assert.Contains(t, fromValue.Message, "panic: kaboom")

	fromErr := panicError("Card", NewMissingRequiredProperty("Card", "id"))
	assert.Equal(t, ErrCodeMissingRequiredProperty, fromErr.Code)
}
