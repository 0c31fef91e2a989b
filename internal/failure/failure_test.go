package failure

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutOfStock = errors.New("insufficient stock")

func TestValidation_Message(t *testing.T) {
	err := Validation(errOutOfStock, "product %s: requested %d, available %d", "P100", 10, 3)

	assert.Equal(t, "insufficient stock: product P100: requested 10, available 3", err.Error())
	assert.Equal(t, KindValidation, err.Kind)
}

func TestValidation_NoDetail(t *testing.T) {
	err := Validation(errOutOfStock, "")
	assert.Equal(t, "insufficient stock", err.Error())
}

func TestError_IsReason(t *testing.T) {
	err := fmt.Errorf("assemble: %w", Validation(errOutOfStock, "product P100"))

	require.ErrorIs(t, err, errOutOfStock)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, Is(err, KindValidation))
	assert.False(t, Is(err, KindNotFound))
}

func TestTransaction_HidesCause(t *testing.T) {
	cause := errors.New("insert order_lines: connection reset")
	err := Transaction(cause)

	assert.Equal(t, "transaction failed", err.Error())
	assert.NotContains(t, err.Error(), "order_lines")
	require.ErrorIs(t, err, ErrTransaction)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Cause())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
		{name: "not found", err: NotFound(errOutOfStock, "x"), want: KindNotFound},
		{name: "conflict", err: Conflict(errOutOfStock, "x"), want: KindConflict},
		{name: "wrapped transaction", err: errors.Wrap(Transaction(errors.New("io")), "create"), want: KindTransaction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
