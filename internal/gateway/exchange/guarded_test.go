package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gatebot/internal/pkg/circuit"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Name() string { return "mock" }

func (m *mockExecutor) SubmitEntry(ctx context.Context, symbol string, side Side, size float64) (PositionSnapshot, error) {
	args := m.Called(symbol, side, size)
	return args.Get(0).(PositionSnapshot), args.Error(1)
}

func (m *mockExecutor) ChangeLeverage(ctx context.Context, symbol string, leverage string) (LeverageResult, error) {
	args := m.Called(symbol, leverage)
	return args.Get(0).(LeverageResult), args.Error(1)
}

func (m *mockExecutor) SubmitClose(ctx context.Context, symbol string, side Side, size float64) error {
	args := m.Called(symbol, side, size)
	return args.Error(0)
}

func TestGuardedOpensAfterTransportFaults(t *testing.T) {
	inner := new(mockExecutor)
	inner.On("SubmitClose", "BTC_USDT", SideLong, 1.0).Return(errors.New("connection reset"))

	g := NewGuarded(inner, circuit.NewCircuitBreaker("test", 2, time.Minute))
	ctx := context.Background()

	require.Error(t, g.SubmitClose(ctx, "BTC_USDT", SideLong, 1))
	require.Error(t, g.SubmitClose(ctx, "BTC_USDT", SideLong, 1))

	err := g.SubmitClose(ctx, "BTC_USDT", SideLong, 1)
	assert.ErrorIs(t, err, circuit.ErrOpen)
	inner.AssertNumberOfCalls(t, "SubmitClose", 2)
}

func TestGuardedIgnoresRejections(t *testing.T) {
	inner := new(mockExecutor)
	rej := &RejectedError{Code: "BALANCE_NOT_ENOUGH", Message: "insufficient margin"}
	inner.On("SubmitEntry", "ETH_USDT", SideShort, 2.0).Return(PositionSnapshot{}, rej)

	g := NewGuarded(inner, circuit.NewCircuitBreaker("test", 1, time.Minute))
	for i := 0; i < 3; i++ {
		_, err := g.SubmitEntry(context.Background(), "ETH_USDT", SideShort, 2)
		assert.True(t, IsRejected(err))
	}
	inner.AssertNumberOfCalls(t, "SubmitEntry", 3)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" Buy ")
	require.NoError(t, err)
	assert.Equal(t, SideLong, s)
	assert.Equal(t, SideShort, s.Opposite())

	_, err = ParseSide("flat")
	assert.Error(t, err)
}
