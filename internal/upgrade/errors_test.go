package upgrade

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := ErrInvalidVersion.With("Version received: 1.2.3")

	assert.ErrorIs(t, err, ErrInvalidVersion)
	assert.NotErrorIs(t, err, ErrInvalidChunkSize)
	assert.Equal(t, "Invalid version format, expected vX.Y.Z: Version received: 1.2.3", err.Error())
	assert.Empty(t, ErrInvalidVersion.Detail, "With must not modify the sentinel")

	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.ErrorIs(t, wrapped, ErrInvalidVersion)
}

func TestErrorWrapKeepsCause(t *testing.T) {
	cause := pkgerrors.New("connection refused")
	err := ErrTransfer.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Upgrade transfer failed: connection refused", err.Error())
	assert.Nil(t, ErrTransfer.Err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code Code
	}{
		{"domain error", ErrConfirmationTimeout, KindConfirmationTimeout, CodeTimeout},
		{"wrapped domain error", fmt.Errorf("x: %w", ErrEndpointNotActive), KindPrecondition, CodeAgentNotActive},
		{"canceled", context.Canceled, KindUnclassified, CodeInterrupted},
		{"deadline", pkgerrors.Wrap(context.DeadlineExceeded, "reload"), KindUnclassified, CodeInterrupted},
		{"anything else", errors.New("disk full"), KindUnclassified, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify(tt.err)
			require.NotNil(t, e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.code, e.Code)
		})
	}

	assert.Nil(t, Classify(nil))
}
