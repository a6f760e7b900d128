package sqltier

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/dundas/truex-mm/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMockTier(t *testing.T) (*Tier, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Tier{db: gormDB}, mock
}

func TestWithAdvisoryLockRunsFnWhenLockAcquired(t *testing.T) {
	tier, mock := newMockTier(t)

	mock.ExpectQuery("SELECT GET_LOCK").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(1))
	mock.ExpectQuery("SELECT RELEASE_LOCK").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(1))

	called := false
	err := tier.withAdvisoryLock(context.Background(), "truex:migrate:sess-1", time.Second, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called, "fn should run once the advisory lock is acquired")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithAdvisoryLockFailsWhenLockNotAcquired(t *testing.T) {
	tier, mock := newMockTier(t)

	mock.ExpectQuery("SELECT GET_LOCK").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))

	called := false
	err := tier.withAdvisoryLock(context.Background(), "truex:migrate:sess-1", time.Second, func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called, "fn must not run when the advisory lock was not acquired")
}

func TestOrderRecordFromMapsNilPriceToEmptyString(t *testing.T) {
	o := &model.Order{ClientOrderID: "Q1", Symbol: "BTC-PYUSD", Size: dec("1"), FilledSize: dec("0")}
	row := orderRecordFrom("sess-1", o)
	if row.Price != "" {
		t.Errorf("price = %q, want empty string for a nil Order.Price", row.Price)
	}
	if row.SessionID != "sess-1" {
		t.Errorf("session_id = %q, want sess-1", row.SessionID)
	}
}

func TestOrderRecordFromMapsPresentPrice(t *testing.T) {
	price := dec("100.5")
	o := &model.Order{ClientOrderID: "Q2", Price: &price, Size: dec("1"), FilledSize: dec("0")}
	row := orderRecordFrom("sess-1", o)
	if row.Price != "100.5" {
		t.Errorf("price = %q, want 100.5", row.Price)
	}
}

func TestMarshalExecReportsEmptyTrailReturnsEmptyArray(t *testing.T) {
	if got := marshalExecReports(nil); got != "[]" {
		t.Errorf("marshalExecReports(nil) = %q, want []", got)
	}
}

func TestFillRecordFromCarriesDedupKeyFields(t *testing.T) {
	f := &model.Fill{ExecID: "E1", OrderID: "Q1", Symbol: "BTC-PYUSD", Quantity: dec("1"), Price: dec("100")}
	row := fillRecordFrom("sess-1", f)
	if row.SessionID != "sess-1" || row.ExecID != "E1" {
		t.Errorf("got session=%q exec=%q, want sess-1/E1", row.SessionID, row.ExecID)
	}
}

func TestOhlcRecordFromCarriesCompositeKey(t *testing.T) {
	c := &model.Candle{
		Key:    model.CandleKey{Symbol: "BTC-PYUSD", Interval: 60000, BucketTS: 120000},
		Open:   dec("1"), High: dec("2"), Low: dec("1"), Close: dec("1.5"), Volume: dec("3"),
	}
	row := ohlcRecordFrom("destination", c)
	if row.Symbol != "BTC-PYUSD" || row.Interval != 60000 || row.BucketTS != 120000 || row.Exchange != "destination" {
		t.Errorf("unexpected row: %+v", row)
	}
}
