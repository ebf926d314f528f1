package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("booking: already cancelled")

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("cancel: %w", Conflict("booking.cancel", errSentinel))
	require.Equal(t, KindStateConflict, KindOf(err))
	require.ErrorIs(t, err, errSentinel)
	require.Equal(t, "booking.cancel: booking: already cancelled", errors.Unwrap(err).Error())
}

func TestNilPassesThrough(t *testing.T) {
	require.NoError(t, Validation("op", nil))
	require.NoError(t, External("op", nil, true))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestExternalDeadlineIsRetryable(t *testing.T) {
	err := External("refund", fmt.Errorf("call: %w", context.DeadlineExceeded), false)
	require.True(t, IsRetryable(err))
	require.True(t, Is(err, KindExternal))

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "payment processor error", e.Message())
}
