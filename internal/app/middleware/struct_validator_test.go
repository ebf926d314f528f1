package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rigshare/internal/app/apperr"
)

type resolveInput struct {
	SettlementID string `json:"settlement_id" validate:"required"`
	Resolution   string `json:"resolution" validate:"required,oneof=refund_buyer release_to_seller"`
}

func (resolveInput) Key() string { return "settlement.resolve" }

func TestStructValidatorReportsFields(t *testing.T) {
	v := NewStructValidator()
	require.NoError(t, v.Validate(context.Background(), resolveInput{SettlementID: "st-1", Resolution: "refund_buyer"}))
	require.NoError(t, v.Validate(context.Background(), "not a struct"))

	err := v.Validate(context.Background(), resolveInput{Resolution: "split"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	require.Contains(t, err.Error(), "settlement.resolve")
	require.Contains(t, err.Error(), "settlement_id is required")
	require.Contains(t, err.Error(), "resolution must be one of [refund_buyer release_to_seller]")
}
