package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"wrapped validation", fmt.Errorf("update: %w", ErrValidation), KindValidation},
		{"policy", fmt.Errorf("raw query: %w", ErrPolicy), KindPolicy},
		{"not found", ErrNotFound, KindNotFound},
		{"engine", fmt.Errorf("generate: %w", ErrEngine), KindEngine},
		{"bound", ErrBoundExceeded, KindBoundExceeded},
		{"cancelled", fmt.Errorf("turn: %w", context.Canceled), KindCancelled},
		{"unclassified", errors.New("connection reset"), KindBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
