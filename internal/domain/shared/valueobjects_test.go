package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentOf(t *testing.T) {
	tests := []struct {
		part, total int
		want        Percent
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 2, 50},
		{1, 8, 13},
		{199, 200, 99},
		{995, 1000, 99},
		{1, 200, 1},
		{1, 201, 0},
		{5, 3, 100},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.part, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, PercentOf(tt.part, tt.total))
		})
	}
}

func TestPercentOf_OnlyFullSetIsComplete(t *testing.T) {
	for total := 1; total <= 300; total++ {
		for part := 0; part < total; part++ {
			p := PercentOf(part, total)
			require.True(t, p.IsValid())
			require.False(t, p.IsComplete(), "%d/%d", part, total)
		}
		require.True(t, PercentOf(total, total).IsComplete())
	}
}

func TestNewLearnerID(t *testing.T) {
	id, err := NewLearnerID("  auth0|5f1c2a  ")
	require.NoError(t, err)
	assert.Equal(t, LearnerID("auth0|5f1c2a"), id)

	for _, raw := range []string{"", "   ", "has space", string(make([]byte, 129))} {
		_, err := NewLearnerID(raw)
		assert.ErrorIs(t, err, ErrInvalidID, "input %q", raw)
	}
}

func TestParseEntityID(t *testing.T) {
	id, err := ParseEntityID("course", "Get", " 6F9619FF-8B86-D011-B42D-00C04FC964FF ")
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", id)

	_, err = ParseEntityID("course", "Get", "")
	assert.ErrorIs(t, err, ErrEmptyValue)
	assert.True(t, IsValidation(err))

	_, err = ParseEntityID("course", "Get", "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDomainError_MatchesKindAndCause(t *testing.T) {
	err := WrapError("progress", "SetCompletion", ErrNotEnrolled, "learner is not enrolled", ErrEnrollmentNotFound)

	assert.True(t, IsNotEnrolled(err))
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)
	assert.False(t, IsConflict(err))
	assert.Equal(t, "progress.SetCompletion: learner is not enrolled: progress.FindEnrollment: enrollment not found", err.Error())

	wrapped := fmt.Errorf("toggle: %w", ErrConcurrentToggle)
	assert.True(t, IsConflict(wrapped))
	assert.True(t, IsRetryable(wrapped))

	var de *DomainError
	require.True(t, errors.As(wrapped, &de))
	assert.Equal(t, "progress", de.Domain)
}
