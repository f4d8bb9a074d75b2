package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"polimarket/config"
	"polimarket/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("polimarket_test"),
		postgres.WithUsername("polimarket"),
		postgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationsDir, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)

	migrator, err := NewMigrator("file://"+migrationsDir, dsn)
	require.NoError(t, err)
	applied, err := migrator.Up()
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, migrator.Close())

	s, err := NewStore(config.DatabaseConfig{
		URL:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		MaxTxRetries:    3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProduct(t *testing.T, s *Store, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, UnitPrice: decimal.RequireFromString(price), Active: true}
	require.NoError(t, s.CreateProduct(context.Background(), p, stock))
	return p
}

func seedPerson(t *testing.T, s *Store, kind, identification string) *models.Person {
	t.Helper()
	p := &models.Person{Kind: kind, Identification: identification, FirstName: "Test", Active: true}
	require.NoError(t, s.CreatePerson(context.Background(), p))
	return p
}

func TestStoreIntegration(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	vendor := seedPerson(t, s, models.PersonKindVendor, "V-1")
	client := seedPerson(t, s, models.PersonKindClient, "C-1")

	t.Run("sale numbering starts at 7001", func(t *testing.T) {
		sale := &models.Sale{VendorID: vendor.ID, ClientID: client.ID, Status: models.SaleStatusPending, Total: decimal.Zero}
		require.NoError(t, s.CreateSale(ctx, sale))
		assert.Equal(t, int64(7001), sale.ID)

		next := &models.Sale{VendorID: vendor.ID, ClientID: client.ID, Status: models.SaleStatusPending, Total: decimal.Zero}
		require.NoError(t, s.CreateSale(ctx, next))
		assert.Equal(t, int64(7002), next.ID)
	})

	t.Run("conditional decrement", func(t *testing.T) {
		p := seedProduct(t, s, "Tornillo", "0.50", 3)

		remaining, err := s.DecrementStock(ctx, p.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)

		_, err = s.DecrementStock(ctx, p.ID, 2)
		assert.ErrorIs(t, err, ErrInsufficientStock)

		_, err = s.DecrementStock(ctx, 999999, 1)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AvailableStock)

		available, err := s.IncrementStock(ctx, p.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, 5, available)
	})

	t.Run("stock check constraint", func(t *testing.T) {
		p := seedProduct(t, s, "Arandela", "0.10", 1)

		_, err := s.db.ExecContext(ctx, "UPDATE product_stock SET available = -1 WHERE product_id = $1", p.ID)
		require.Error(t, err)
		assert.ErrorIs(t, translate(err), ErrInsufficientStock)
	})

	t.Run("concurrent decrements never oversell", func(t *testing.T) {
		p := seedProduct(t, s, "Clavo", "0.05", 5)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.WithTx(ctx, func(repo Repository) error {
					_, err := repo.DecrementStock(ctx, p.ID, 1)
					return err
				})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, succeeded)
		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.AvailableStock)
	})

	t.Run("line item upsert keeps first price", func(t *testing.T) {
		p := seedProduct(t, s, "Martillo", "12.00", 10)
		sale := &models.Sale{VendorID: vendor.ID, ClientID: client.ID, Status: models.SaleStatusPending, Total: decimal.Zero}
		require.NoError(t, s.CreateSale(ctx, sale))

		first := &models.SaleLineItem{SaleID: sale.ID, ProductID: p.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("12.00")}
		require.NoError(t, s.UpsertLineItem(ctx, first))

		second := &models.SaleLineItem{SaleID: sale.ID, ProductID: p.ID, Quantity: 2, UnitPrice: decimal.RequireFromString("15.00")}
		require.NoError(t, s.UpsertLineItem(ctx, second))
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 3, second.Quantity)
		assert.True(t, second.UnitPrice.Equal(decimal.RequireFromString("12.00")))
		assert.True(t, second.Subtotal.Equal(decimal.RequireFromString("36.00")))

		items, err := s.ListLineItems(ctx, sale.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Martillo", items[0].ProductName)

		total, err := s.SumLineItems(ctx, sale.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("36")))
	})

	t.Run("duplicate identification per kind", func(t *testing.T) {
		dup := &models.Person{Kind: models.PersonKindVendor, Identification: "V-1", FirstName: "Other", Active: true}
		assert.ErrorIs(t, s.CreatePerson(ctx, dup), ErrDuplicate)

		sameIDOtherKind := &models.Person{Kind: models.PersonKindClient, Identification: "V-1", FirstName: "Other", Active: true}
		assert.NoError(t, s.CreatePerson(ctx, sameIDOtherKind))

		_, err := s.GetPerson(ctx, vendor.ID, models.PersonKindClient)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rollback on error", func(t *testing.T) {
		p := seedProduct(t, s, "Destornillador", "8.00", 4)
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(repo Repository) error {
			if _, err := repo.DecrementStock(ctx, p.ID, 3); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, got.AvailableStock)
	})

	t.Run("processed events", func(t *testing.T) {
		processed, err := s.IsEventProcessed(ctx, "evt-1")
		require.NoError(t, err)
		assert.False(t, processed)

		require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", models.EventTypeSaleCompleted))

		processed, err = s.IsEventProcessed(ctx, "evt-1")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		class     ErrorClass
		retryable bool
	}{
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization, true},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock, true},
		{"lock timeout", &pq.Error{Code: "55P03"}, ErrorClassTransient, true},
		{"wrapped deadlock", fmt.Errorf("tx: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock, true},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent, false},
		{"plain error", errors.New("plain"), ErrorClassPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, ClassifyError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(&pq.Error{Code: "23505"}), ErrDuplicate)
	assert.ErrorIs(t, translate(&pq.Error{Code: "23503"}), ErrNotFound)
	assert.ErrorIs(t, translate(&pq.Error{Code: "23514", Constraint: "product_stock_available_check"}), ErrInsufficientStock)
	assert.NotErrorIs(t, translate(&pq.Error{Code: "23514", Constraint: "products_unit_price_check"}), ErrInsufficientStock)

	plain := errors.New("plain")
	assert.Equal(t, plain, translate(plain))
	assert.Nil(t, translate(nil))
}
