package service

import (
	"context"
	"testing"

	"polimarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pen := f.newProduct(t, "Pen", "1.00", 5)
	old := f.newProduct(t, "Old pen", "1.00", 50)
	require.NoError(t, f.catalog.DeactivateProduct(ctx, old.ID))

	tests := []struct {
		name      string
		productID int64
		quantity  int
		want      bool
	}{
		{name: "enough", productID: pen.ID, quantity: 5, want: true},
		{name: "too many", productID: pen.ID, quantity: 6, want: false},
		{name: "inactive", productID: old.ID, quantity: 1, want: false},
		{name: "missing", productID: 999, quantity: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.stock.CheckAvailable(ctx, tt.productID, tt.quantity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAvailabilityMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pen := f.newProduct(t, "Pen", "1.00", 5)

	result, err := f.stock.Availability(ctx, pen.ID, 3)
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, "Stock available: 5 units. Requested quantity: 3", result.Message)

	result, err = f.stock.Availability(ctx, pen.ID, 8)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "Insufficient stock. Available: 5, Requested: 8", result.Message)

	result, err = f.stock.Availability(ctx, 999, 1)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, "Product not found", result.Message)

	require.NoError(t, f.catalog.DeactivateProduct(ctx, pen.ID))
	result, err = f.stock.Availability(ctx, pen.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Product is not active", result.Message)
}

func TestReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pen := f.newProduct(t, "Pen", "1.00", 10)

	remaining, err := f.stock.Reserve(ctx, pen.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	_, err = f.stock.Reserve(ctx, pen.ID, 7)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 6, f.available(t, pen.ID))

	_, err = f.stock.Reserve(ctx, pen.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.stock.Reserve(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	remaining, err = f.stock.Reserve(ctx, pen.ID, 6)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Equal(t, 1, f.publisher.count(models.EventTypeStockLow))
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pen := f.newProduct(t, "Pen", "1.00", 2)

	available, err := f.stock.Restock(ctx, pen.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	event := f.publisher.last(models.EventTypeStockRestocked).(*models.StockRestockedEvent)
	assert.Equal(t, pen.ID, event.ProductID)
	assert.Equal(t, 8, event.Quantity)
	assert.Equal(t, 10, event.Available)

	_, err = f.stock.Restock(ctx, pen.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.stock.Restock(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLowStockAndInStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.newProduct(t, "Pen", "1.00", 4)
	f.newProduct(t, "Brush", "1.00", 0)
	f.newProduct(t, "Ink", "1.00", 30)
	hidden := f.newProduct(t, "Chalk", "1.00", 1)
	require.NoError(t, f.catalog.DeactivateProduct(ctx, hidden.ID))

	low, err := f.stock.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Brush", low[0].Name)
	assert.Equal(t, "Pen", low[1].Name)

	low, err = f.stock.LowStock(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, low, 3)

	inStock, err := f.stock.InStock(ctx)
	require.NoError(t, err)
	require.Len(t, inStock, 2)
	assert.Equal(t, "Ink", inStock[0].Name)
	assert.Equal(t, "Pen", inStock[1].Name)
}
