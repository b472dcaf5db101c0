package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSignedDelta(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	assert.True(t, SignedDelta(NormalDebit, hundred, decimal.Zero).Equal(hundred))
	assert.True(t, SignedDelta(NormalDebit, decimal.Zero, hundred).Equal(hundred.Neg()))
	assert.True(t, SignedDelta(NormalCredit, decimal.Zero, hundred).Equal(hundred))
	assert.True(t, SignedDelta(NormalCredit, hundred, decimal.Zero).Equal(hundred.Neg()))
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.009")))
	assert.False(t, WithinTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("99.99")))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, "10.13", Round2(decimal.RequireFromString("10.125")).StringFixed(2))
	assert.Equal(t, "-10.13", Round2(decimal.RequireFromString("-10.125")).StringFixed(2))
}

func TestRetryableAndCodes(t *testing.T) {
	wrapped := fmt.Errorf("post entry 7: %w", ErrConcurrency)
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(ErrImbalance))
	assert.Equal(t, "CONCURRENCY", Code(wrapped))
	assert.Equal(t, "HEADER_ACCOUNT", Code(fmt.Errorf("line 2: %w", ErrHeaderAccount)))
	assert.Equal(t, "INTERNAL", Code(errors.New("boom")))
	assert.Equal(t, "", Code(nil))
}
