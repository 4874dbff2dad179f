package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"connection reset", errors.New("connection reset by peer"), false},
		{"credit balance", errors.New("Your credit balance is too low"), true},
		{"rate limit", errors.New("Rate limit reached for gpt-4o"), true},
		{"quota", errors.New("You exceeded your current quota"), true},
		{"invalid key", errors.New("Invalid API key provided"), true},
		{"401", errors.New("API returned unexpected status code: 401"), true},
		{"403", errors.New("status 403: AccessDeniedException"), true},
		{"wrapped", fmt.Errorf("generate: %w", errors.New("billing hard limit reached")), true},
		{"404 model", errors.New("status 404: model not found"), false},
		{"deadline", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	fatal := errors.New("unauthorized")
	assert.ErrorIs(t, wrapFatalError(fatal), ErrFatalAPI)
	assert.ErrorIs(t, wrapFatalError(fatal), fatal)

	transient := errors.New("connection refused")
	assert.Same(t, transient, wrapFatalError(transient))
	assert.NoError(t, wrapFatalError(nil))
}
