package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"polimarket/internal/models"
	"polimarket/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(t *testing.T, s *Store, name, description string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Description: description, UnitPrice: decimal.NewFromInt(1), Active: true}
	require.NoError(t, s.CreateProduct(context.Background(), p, stock))
	return p
}

func TestSaleNumbering(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &models.Sale{Status: models.SaleStatusPending}
	require.NoError(t, s.CreateSale(ctx, first))
	second := &models.Sale{Status: models.SaleStatusPending}
	require.NoError(t, s.CreateSale(ctx, second))

	assert.Equal(t, int64(7001), first.ID)
	assert.Equal(t, int64(7002), second.ID)
}

func TestWithTxRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := product(t, s, "Lapiz", "", 5)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Repository) error {
		if _, err := tx.DecrementStock(ctx, p.ID, 3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableStock)

	err = s.WithTx(ctx, func(tx store.Repository) error {
		_, err := tx.DecrementStock(ctx, p.ID, 3)
		return err
	})
	require.NoError(t, err)

	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableStock)
}

func TestDecrementStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := product(t, s, "Cuaderno", "", 2)

	_, err := s.DecrementStock(ctx, p.ID, 3)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = s.DecrementStock(ctx, 404, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	remaining, err := s.DecrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestFailNext(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := product(t, s, "Borrador", "", 1)

	injected := errors.New("connection reset")
	s.FailNext(injected)

	_, err := s.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, injected)

	_, err = s.GetProduct(ctx, p.ID)
	assert.NoError(t, err)
}

func TestListProductsSearch(t *testing.T) {
	s := New()
	ctx := context.Background()
	product(t, s, "Cable USB", "cable de carga", 3)
	product(t, s, "Mouse", "inalambrico con receptor USB", 0)
	product(t, s, "Teclado", "mecanico", 8)

	found, err := s.ListProducts(ctx, store.ProductFilter{Search: "usb"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	inStock, err := s.ListProducts(ctx, store.ProductFilter{Search: "usb", InStockOnly: true})
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	assert.Equal(t, "Cable USB", inStock[0].Name)

	byStock, err := s.ListProducts(ctx, store.ProductFilter{OrderBy: store.OrderByStock})
	require.NoError(t, err)
	require.Len(t, byStock, 3)
	assert.Equal(t, "Mouse", byStock[0].Name)
	assert.Equal(t, "Teclado", byStock[2].Name)
}

func TestCreatePersonDuplicate(t *testing.T) {
	s := New()
	s.SetClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	vendor := &models.Person{Kind: models.PersonKindVendor, Identification: "123", FirstName: "Ana", Active: true}
	require.NoError(t, s.CreatePerson(ctx, vendor))
	assert.Equal(t, 2024, vendor.CreatedAt.Year())

	dup := &models.Person{Kind: models.PersonKindVendor, Identification: "123", FirstName: "Otra"}
	assert.ErrorIs(t, s.CreatePerson(ctx, dup), store.ErrDuplicate)

	client := &models.Person{Kind: models.PersonKindClient, Identification: "123", FirstName: "Ana"}
	assert.NoError(t, s.CreatePerson(ctx, client))
}
