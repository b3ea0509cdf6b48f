package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/arialabs/aria-admin/pkg/errors"
)

func TestValidateSetReportsMissingDependencies(t *testing.T) {
	_, db := newTestManager(t)
	ctx := context.Background()

	validator, err := NewValidator(db)
	require.NoError(t, err)

	report, err := validator.ValidateSet(ctx, []string{"user:delete"})
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Len(t, report.Missing, 1)
	require.Equal(t, "user:delete", report.Missing[0].Permission)
	require.Equal(t, []string{"user:read", "user:update"}, report.Missing[0].Missing)

	report, err = validator.ValidateSet(ctx, []string{"user:delete", "user:read", "user:update"})
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Empty(t, report.Missing)
}

func TestValidateSetPartialDependency(t *testing.T) {
	_, db := newTestManager(t)
	ctx := context.Background()

	validator, err := NewValidator(db)
	require.NoError(t, err)

	report, err := validator.ValidateSet(ctx, []string{"user:delete", "user:read"})
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, []string{"user:update"}, report.Missing[0].Missing)
}

func TestValidateSetUnknownCode(t *testing.T) {
	_, db := newTestManager(t)

	validator, err := NewValidator(db)
	require.NoError(t, err)

	_, err = validator.ValidateSet(context.Background(), []string{"no:such"})
	requireAppErrorCode(t, err, apperrors.ErrValidationFailed.Code)
}

func TestValidateSetRejectsWildcard(t *testing.T) {
	_, db := newTestManager(t)

	validator, err := NewValidator(db)
	require.NoError(t, err)

	_, err = validator.ValidateSet(context.Background(), []string{"*"})
	requireAppErrorCode(t, err, apperrors.ErrValidationFailed.Code)
}

func TestValidateSetNormalisesInput(t *testing.T) {
	_, db := newTestManager(t)

	validator, err := NewValidator(db)
	require.NoError(t, err)

	// Duplicates and blanks collapse; an empty set is trivially valid.
	report, err := validator.ValidateSet(context.Background(), []string{" intent:read ", "intent:read", ""})
	require.NoError(t, err)
	require.True(t, report.Valid)

	report, err = validator.ValidateSet(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, report.Valid)
}
