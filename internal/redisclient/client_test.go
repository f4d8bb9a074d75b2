package redisclient

import (
	"context"
	"testing"
	"time"

	"polimarket/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdempotentSale(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	_, found, err := client.GetIdempotentSale(ctx, "checkout-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetIdempotentSale(ctx, "checkout-1", 7001, time.Minute))
	require.NoError(t, client.SetIdempotentSale(ctx, "checkout-1", 7002, time.Minute))

	saleID, found, err := client.GetIdempotentSale(ctx, "checkout-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7001), saleID, "first registration wins")
}

func TestInvoiceCache(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	missing, err := client.GetInvoice(ctx, 7001)
	require.NoError(t, err)
	assert.Nil(t, missing)

	invoice := &models.Invoice{
		Number:     "FAC-007001-20240315",
		Date:       time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		SaleID:     7001,
		Status:     models.SaleStatusCompleted,
		Total:      decimal.RequireFromString("24.00"),
		ClientName: "Luis Perez",
		VendorName: "Ana Gomez",
		Lines: []models.InvoiceLine{{
			ProductID:   1,
			ProductName: "Pen",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("12.00"),
			Subtotal:    decimal.RequireFromString("24.00"),
		}},
	}
	require.NoError(t, client.SetInvoice(ctx, invoice, time.Minute))

	cached, err := client.GetInvoice(ctx, 7001)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, invoice.Number, cached.Number)
	assert.True(t, invoice.Total.Equal(cached.Total))
	assert.Len(t, cached.Lines, 1)

	require.NoError(t, client.InvalidateInvoice(ctx, 7001))
	cached, err = client.GetInvoice(ctx, 7001)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCorruptIdempotencyEntry(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, client.rdb.Set(ctx, idempotencyKey("bad"), "not-a-number", time.Minute).Err())

	_, _, err := client.GetIdempotentSale(ctx, "bad")
	assert.Error(t, err)
}
