package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenda/polypaper/pkg/types"
)

func TestSimulate_MarketBuyPaysSlippageAndFee(t *testing.T) {
	cfg := Config{FeeRate: 0.001, SlippageRate: 0.0005}
	fill, err := Simulate(OrderRequest{
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 0.1,
	}, 95000, cfg)
	require.NoError(t, err)

	expectedPrice := 95000 * 1.0005
	assert.InDelta(t, expectedPrice, fill.Price, 1e-9)
	assert.Equal(t, 0.1, fill.Quantity)
	assert.InDelta(t, expectedPrice*0.1*0.001, fill.Fee, 1e-9)
	assert.InDelta(t, (expectedPrice-95000)*0.1, fill.Slippage, 1e-9)
}

func TestSimulate_MarketSellReceivesLess(t *testing.T) {
	cfg := Config{FeeRate: 0.001, SlippageRate: 0.0005}
	fill, err := Simulate(OrderRequest{
		Side:     types.SideSell,
		Type:     types.OrderTypeMarket,
		Quantity: 0.1,
	}, 96000, cfg)
	require.NoError(t, err)

	expectedPrice := 96000 * 0.9995
	assert.InDelta(t, expectedPrice, fill.Price, 1e-9)
	assert.InDelta(t, (96000-expectedPrice)*0.1, fill.Slippage, 1e-9)
}

func TestSimulate_LimitOrders(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		side     types.OrderSide
		limit    float64
		ref      float64
		fillable bool
	}{
		{"buy limit above reference fills", types.SideBuy, 100, 99, true},
		{"buy limit at reference fills", types.SideBuy, 100, 100, true},
		{"buy limit below reference rejects", types.SideBuy, 100, 101, false},
		{"sell limit below reference fills", types.SideSell, 100, 101, true},
		{"sell limit at reference fills", types.SideSell, 100, 100, true},
		{"sell limit above reference rejects", types.SideSell, 100, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Simulate(OrderRequest{
				Side:     tt.side,
				Type:     types.OrderTypeLimit,
				Quantity: 1,
				Price:    tt.limit,
			}, tt.ref, cfg)
			if tt.fillable {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnfillable)
			}
		})
	}
}

func TestSimulate_LimitFillNeverCrossesLimit(t *testing.T) {
	cfg := DefaultConfig()

	// Buy limit at the reference: raw slippage would land above the limit,
	// so the fill is capped at the limit price exactly.
	fill, err := Simulate(OrderRequest{
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: 2,
		Price:    100,
	}, 100, cfg)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, 0.0, fill.Slippage)
	assert.InDelta(t, 100*2*cfg.FeeRate, fill.Fee, 1e-9)

	// Sell limit at the reference is capped symmetrically.
	fill, err = Simulate(OrderRequest{
		Side:     types.SideSell,
		Type:     types.OrderTypeLimit,
		Quantity: 2,
		Price:    100,
	}, 100, cfg)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, 0.0, fill.Slippage)

	// A limit comfortably inside the reference still pays normal slippage.
	fill, err = Simulate(OrderRequest{
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: 1,
		Price:    100,
	}, 90, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 90*(1+cfg.SlippageRate), fill.Price, 1e-9)
}

func TestSimulate_StopOrders(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name      string
		side      types.OrderSide
		stop      float64
		ref       float64
		triggered bool
	}{
		{"buy stop triggered above", types.SideBuy, 100, 101, true},
		{"buy stop not triggered below", types.SideBuy, 100, 99, false},
		{"sell stop triggered below", types.SideSell, 100, 99, true},
		{"sell stop not triggered above", types.SideSell, 100, 101, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Simulate(OrderRequest{
				Side:     tt.side,
				Type:     types.OrderTypeStop,
				Quantity: 1,
				Price:    tt.stop,
			}, tt.ref, cfg)
			if tt.triggered {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnfillable)
			}
		})
	}
}

func TestSimulate_NoPriceData(t *testing.T) {
	_, err := Simulate(OrderRequest{Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1}, 0, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoPriceData)

	_, err = Simulate(OrderRequest{Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 1}, -5, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoPriceData)
}

func TestSimulate_InvalidQuantity(t *testing.T) {
	_, err := Simulate(OrderRequest{Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 0}, 100, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSimulate_Deterministic(t *testing.T) {
	req := OrderRequest{Side: types.SideBuy, Type: types.OrderTypeMarket, Quantity: 2.5}
	cfg := DefaultConfig()

	first, err := Simulate(req, 123.45, cfg)
	require.NoError(t, err)
	second, err := Simulate(req, 123.45, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSimulate_ZeroCostModel(t *testing.T) {
	fill, err := Simulate(OrderRequest{
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 1,
	}, 100, Config{})
	require.NoError(t, err)

	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, 0.0, fill.Fee)
	assert.Equal(t, 0.0, fill.Slippage)
}
