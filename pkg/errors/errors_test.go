package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(ErrorTypeRateLimit, "page asked to wait for %s", "demoacct")
	assert.Equal(t, "rate_limit error: page asked to wait for demoacct", plain.Error())

	wrapped := Wrap(ErrorTypeSession, stderrors.New("chrome not found"), "create session")
	assert.Equal(t, "session error: create session: chrome not found", wrapped.Error())
}

func TestTypeOfWalksWrappedChains(t *testing.T) {
	inner := New(ErrorTypeNotFound, "profile missing")
	outer := fmt.Errorf("attempt 2: %w", inner)

	assert.Equal(t, ErrorTypeNotFound, TypeOf(outer))
	assert.True(t, IsType(outer, ErrorTypeNotFound))
	assert.False(t, IsType(outer, ErrorTypeAuth))

	assert.Equal(t, ErrorTypeTimeout, TypeOf(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrorTypeStore, cause, "save records")

	assert.ErrorIs(t, err, cause)
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", New(ErrorTypeRateLimit, "wait"), true},
		{"auth", New(ErrorTypeAuth, "rejected"), true},
		{"session", New(ErrorTypeSession, "boom"), true},
		{"store", New(ErrorTypeStore, "locked"), false},
		{"exhausted", New(ErrorTypeAttemptsExhausted, "done"), false},
		{"cancelled", fmt.Errorf("wait: %w", context.Canceled), false},
		{"unknown", stderrors.New("driver hiccup"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}
