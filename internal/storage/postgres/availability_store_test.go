package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

func newAvailabilityStore(t *testing.T) (*AvailabilityStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	store, err := NewAvailabilityStore(mock, fixedClock{now: testNow}, fixedIDGen{id: testID})
	require.NoError(t, err)
	return store, mock
}

func TestAvailabilityUpsertCreates(t *testing.T) {
	t.Parallel()

	store, mock := newAvailabilityStore(t)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO availability").
		WithArgs(testID, "prod-1", "Ontario", "Waterloo", 5, testNow).
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_observed_at", "last_observed_at"}).
			AddRow(testID, testNow, testNow))

	record, err := store.Upsert(context.Background(), "prod-1", "Ontario", "Waterloo", 5)
	require.NoError(t, err)
	require.Equal(t, 5, record.Quantity)
	require.Equal(t, record.FirstObservedAt, record.LastObservedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityUpsertOverwritesExisting(t *testing.T) {
	t.Parallel()

	store, mock := newAvailabilityStore(t)
	defer mock.Close()

	firstSeen := testNow.Add(-time.Hour)
	mock.ExpectQuery("INSERT INTO availability").
		WithArgs(testID, "prod-1", "Ontario", "Waterloo", 0, testNow).
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_observed_at", "last_observed_at"}).
			AddRow("existing-id", firstSeen, testNow))

	record, err := store.Upsert(context.Background(), "prod-1", "Ontario", "Waterloo", 0)
	require.NoError(t, err)
	require.Equal(t, "existing-id", record.ID, "existing row is overwritten, not duplicated")
	require.Equal(t, 0, record.Quantity)
	require.True(t, record.LastObservedAt.After(record.FirstObservedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityUpsertUnknownProduct(t *testing.T) {
	t.Parallel()

	store, mock := newAvailabilityStore(t)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO availability").
		WithArgs(testID, "ghost", "Ontario", "Waterloo", 5, testNow).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := store.Upsert(context.Background(), "ghost", "Ontario", "Waterloo", 5)
	require.ErrorIs(t, err, stock.ErrUnknownProduct)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySKUAndLocationAppliesFilters(t *testing.T) {
	t.Parallel()

	store, mock := newAvailabilityStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "product_id", "sku", "province", "location", "quantity", "first_observed_at", "last_observed_at",
	}).AddRow("a-1", "prod-1", "RTX-5080-A", "Ontario", "Waterloo", 3, testNow, testNow)

	mock.ExpectQuery("SELECT a.id, a.product_id, p.sku").
		WithArgs("RTX-5080-A", "Ontario", "Waterloo").
		WillReturnRows(rows)

	records, err := store.FindBySKUAndLocation(context.Background(), "RTX-5080-A", "Ontario", "Waterloo")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Waterloo", records[0].Location)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySKUAndLocationWithoutFilters(t *testing.T) {
	t.Parallel()

	store, mock := newAvailabilityStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT a.id, a.product_id, p.sku").
		WithArgs("RTX-5080-A").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "sku", "province", "location", "quantity", "first_observed_at", "last_observed_at",
		}))

	records, err := store.FindBySKUAndLocation(context.Background(), "RTX-5080-A", "", "")
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}
