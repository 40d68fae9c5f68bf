package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thetranscendence/matchmaking/internal/apperrors"
)

func TestErrorsIs_SentinelMatchesByKind(t *testing.T) {
	wrapped := fmt.Errorf("join_queue failed: %w", apperrors.ErrAlreadyQueued)
	assert.True(t, errors.Is(wrapped, apperrors.ErrAlreadyQueued))
	assert.False(t, errors.Is(wrapped, apperrors.ErrSocketBusy))
}

func TestErrorsIs_DistinctConstructedErrorsOfSameKindMatch(t *testing.T) {
	a := apperrors.Banned("spam", 1234)
	assert.True(t, errors.Is(a, apperrors.ErrBanned), "any KindBanned error must satisfy errors.Is(err, ErrBanned)")
}

func TestKindOf_ExtractsKind(t *testing.T) {
	kind, ok := apperrors.KindOf(apperrors.ErrMatchNotFound)
	assert.True(t, ok)
	assert.Equal(t, apperrors.KindMatchNotFound, kind)
}

func TestKindOf_FalseForForeignError(t *testing.T) {
	_, ok := apperrors.KindOf(errors.New("some unrelated error"))
	assert.False(t, ok)
}

func TestBanned_CarriesDetails(t *testing.T) {
	err := apperrors.Banned("abuse", 999)
	kind, ok := apperrors.KindOf(err)
	require := assert.New(t)
	require.True(ok)
	require.Equal(apperrors.KindBanned, kind)

	var me *apperrors.MatchError
	require.True(errors.As(err, &me))
	require.Equal("abuse", me.Details["reason"])
	require.Equal(int64(999), me.Details["expiresAt"])
}

func TestInvalidPayload_UsesValidationMessage(t *testing.T) {
	err := apperrors.InvalidPayload("matchId must be a uuid")
	assert.Equal(t, "matchId must be a uuid", err.Error())
	kind, _ := apperrors.KindOf(err)
	assert.Equal(t, apperrors.KindInvalidPayload, kind)
}
