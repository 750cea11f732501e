package failure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	_, statErr := os.Stat("/definitely/not/here")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"invalid action wrapped", fmt.Errorf("supervisor: %w", ErrInvalidAction), KindInvalidAction},
		{"not found sentinel", fmt.Errorf("watch: %w", ErrNotFound), KindNotFound},
		{"fs not exist", fmt.Errorf("open: %w", fs.ErrNotExist), KindNotFound},
		{"real stat error", statErr, KindNotFound},
		{"canceled", fmt.Errorf("upload: %w", context.Canceled), KindCanceled},
		{"deadline", context.DeadlineExceeded, KindCanceled},
		{"other", errors.New("connection reset"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(fmt.Errorf("x: %w", fs.ErrNotExist)))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.False(t, IsNotFound(nil))
}
