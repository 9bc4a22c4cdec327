package handlers_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Agents-Autonomous/billiondollarcontract/api/handlers"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/griderror"
)

func TestGrid_Handlers_StatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{griderror.ErrInvalidDimensions, http.StatusBadRequest},
		{griderror.ErrOutOfBounds, http.StatusBadRequest},
		{griderror.ErrRingLocked, http.StatusBadRequest},
		{griderror.ErrCollectionNotSet, http.StatusBadRequest},
		{griderror.ErrBlockAlreadyClaimed, http.StatusConflict},
		{griderror.ErrUnauthorized, http.StatusForbidden},
		{griderror.ErrNotOwner, http.StatusForbidden},
		{griderror.ErrOverflow, http.StatusUnprocessableEntity},
		{griderror.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{griderror.ErrNothingToClaim, http.StatusUnprocessableEntity},
		{griderror.ErrInvalidCoreAsset, http.StatusUnprocessableEntity},
		{griderror.ErrNotInitialized, http.StatusConflict},
		{griderror.ErrAlreadyInitialized, http.StatusConflict},
		{griderror.ErrParcelNotFound, http.StatusNotFound},
		{fmt.Errorf("failed to pay reward pool: %w", griderror.ErrInsufficientBalance), http.StatusUnprocessableEntity},
		{errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, handlers.StatusFor(tt.err), "error %v", tt.err)
	}
}
