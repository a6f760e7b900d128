// Package sqltier implements SqlTier from spec.md §4.6: the durable
// migration of a session's orders/fills/OHLC out of RedisTier under a
// session-scoped advisory lock, upserting by each table's natural key,
// marking the session migrated only when every step reports zero
// failures. Grounded on ChoSanghyuk-blackholedex's gorm.Open(mysql.Open)
// + AutoMigrate + *gorm.DB wrapper-struct shape, generalized from a
// single append-only snapshot table to the four-table schema (orders,
// fills, ohlc, sessions) spec.md §4.6 names, with MySQL's
// GET_LOCK/RELEASE_LOCK standing in for the advisory-lock primitive the
// teacher's sqlite backend has no equivalent for.
package sqltier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dundas/truex-mm/internal/model"
)

// OrderRecord is the durable row for one order, upserted by ClientOrderID.
type OrderRecord struct {
	ClientOrderID   string `gorm:"primaryKey;column:client_order_id"`
	ExchangeOrderID string `gorm:"column:exchange_order_id"`
	SessionID       string `gorm:"column:session_id;index"`
	Symbol          string
	Side            string
	Status          string
	Size            string
	FilledSize      string `gorm:"column:filled_size"`
	Price           string
	MsgSeqNum       int       `gorm:"column:msg_seq_num"`
	ExecReports     string    `gorm:"column:exec_reports;type:json"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (OrderRecord) TableName() string { return "orders" }

// FillRecord is the durable row for one fill, upserted by (session_id, exec_id).
type FillRecord struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	SessionID       string `gorm:"uniqueIndex:idx_fills_session_exec;column:session_id"`
	ExecID          string `gorm:"uniqueIndex:idx_fills_session_exec;column:exec_id;index"`
	OrderID         string `gorm:"column:order_id"`
	ExchangeOrderID string `gorm:"column:exchange_order_id"`
	Symbol          string
	Side            string
	Quantity        string
	Price           string
	Timestamp       time.Time
}

func (FillRecord) TableName() string { return "fills" }

// OhlcRecord is the durable row for one candle, upserted by
// (symbol, exchange, interval, bucket_ts).
type OhlcRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Symbol     string `gorm:"uniqueIndex:idx_ohlc_bucket;index:idx_ohlc_lookup"`
	Exchange   string `gorm:"uniqueIndex:idx_ohlc_bucket"`
	Interval   int64  `gorm:"uniqueIndex:idx_ohlc_bucket;index:idx_ohlc_lookup"`
	BucketTS   int64  `gorm:"uniqueIndex:idx_ohlc_bucket"`
	Open       string
	High       string
	Low        string
	Close      string
	Volume     string
	TradeCount int    `gorm:"column:trade_count"`
	Source     string
	IsComplete bool `gorm:"column:is_complete"`
}

func (OhlcRecord) TableName() string { return "ohlc" }

// SessionRecord tracks migration status for one trading session.
type SessionRecord struct {
	SessionID   string `gorm:"primaryKey;column:session_id"`
	StartedAt   time.Time `gorm:"column:started_at"`
	Migrated    bool      `gorm:"column:migrated"`
	MigratedAt  *time.Time `gorm:"column:migrated_at"`
}

func (SessionRecord) TableName() string { return "sessions" }

// Tier is SqlTier: the durable, periodically-migrated backing store.
type Tier struct {
	db *gorm.DB
}

// New opens (auto-migrating under a schema-scoped advisory lock) the
// four tables SqlTier owns.
func New(db *gorm.DB) (*Tier, error) {
	t := &Tier{db: db}
	if err := t.withAdvisoryLock(context.Background(), "truex:schema_migration", 10*time.Second, func() error {
		return db.AutoMigrate(&OrderRecord{}, &FillRecord{}, &OhlcRecord{}, &SessionRecord{})
	}); err != nil {
		return nil, model.Wrap(model.StorageError, "schema migration", err)
	}
	return t, nil
}

// MigrationResult reports how many rows were upserted per table and any
// failures encountered.
type MigrationResult struct {
	OrdersUpserted int
	FillsUpserted  int
	OhlcUpserted   int
	Failed         int
	Errors         []string
}

func (r *MigrationResult) addError(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

// MigrateFromRedis runs under a session-scoped advisory lock per spec.md
// §4.6: persist the session summary, upsert orders by client_order_id,
// fills by (session_id, exec_id), and OHLC by
// (symbol, exchange, interval, bucket_ts). The session is marked
// migrated only when every step reports zero failures.
func (t *Tier) MigrateFromRedis(ctx context.Context, sessionID string, orders []*model.Order, fills []*model.Fill, candles []*model.Candle, exchange string) (*MigrationResult, error) {
	result := &MigrationResult{}
	lockName := "truex:migrate:" + sessionID

	err := t.withAdvisoryLock(ctx, lockName, 10*time.Second, func() error {
		return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}},
				DoNothing: true,
			}).Create(&SessionRecord{SessionID: sessionID, StartedAt: time.Now()}).Error; err != nil {
				result.addError(err)
			}

			for _, o := range orders {
				row := orderRecordFrom(sessionID, o)
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "client_order_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"exchange_order_id", "status", "size", "filled_size", "price", "msg_seq_num", "exec_reports", "updated_at"}),
				}).Create(&row).Error; err != nil {
					result.addError(err)
					continue
				}
				result.OrdersUpserted++
			}

			for _, f := range fills {
				row := fillRecordFrom(sessionID, f)
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "session_id"}, {Name: "exec_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"order_id", "exchange_order_id", "quantity", "price", "timestamp"}),
				}).Create(&row).Error; err != nil {
					result.addError(err)
					continue
				}
				result.FillsUpserted++
			}

			for _, c := range candles {
				row := ohlcRecordFrom(exchange, c)
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "symbol"}, {Name: "exchange"}, {Name: "interval"}, {Name: "bucket_ts"}},
					DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "trade_count", "source", "is_complete"}),
				}).Create(&row).Error; err != nil {
					result.addError(err)
					continue
				}
				result.OhlcUpserted++
			}

			if result.Failed == 0 {
				now := time.Now()
				if err := tx.Model(&SessionRecord{}).Where("session_id = ?", sessionID).
					Updates(map[string]interface{}{"migrated": true, "migrated_at": now}).Error; err != nil {
					result.addError(err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return result, model.Wrap(model.StorageError, "migrate_from_redis", err)
	}
	return result, nil
}

// withAdvisoryLock wraps fn in MySQL's session-scoped GET_LOCK/RELEASE_LOCK,
// the advisory-lock primitive spec.md §4.6 requires.
func (t *Tier) withAdvisoryLock(ctx context.Context, name string, timeout time.Duration, fn func() error) error {
	var acquired int
	if err := t.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, ?)", name, int(timeout.Seconds())).Scan(&acquired).Error; err != nil {
		return fmt.Errorf("acquire advisory lock %q: %w", name, err)
	}
	if acquired != 1 {
		return fmt.Errorf("advisory lock %q not acquired within %s", name, timeout)
	}
	defer func() {
		var released int
		t.db.WithContext(ctx).Raw("SELECT RELEASE_LOCK(?)", name).Scan(&released)
	}()
	return fn()
}

func orderRecordFrom(sessionID string, o *model.Order) OrderRecord {
	var price string
	if o.Price != nil {
		price = o.Price.String()
	}
	return OrderRecord{
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: o.ExchangeOrderID,
		SessionID:       sessionID,
		Symbol:          o.Symbol,
		Side:            string(o.Side),
		Status:          string(o.Status),
		Size:            o.Size.String(),
		FilledSize:      o.FilledSize.String(),
		Price:           price,
		MsgSeqNum:       msgSeqNumOrZero(o.MsgSeqNum),
		ExecReports:     marshalExecReports(o.ExecReportTrail),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func marshalExecReports(trail []model.ExecutionReport) string {
	if len(trail) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(trail)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func msgSeqNumOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func fillRecordFrom(sessionID string, f *model.Fill) FillRecord {
	return FillRecord{
		SessionID:       sessionID,
		ExecID:          f.ExecID,
		OrderID:         f.OrderID,
		ExchangeOrderID: f.ExchangeOrderID,
		Symbol:          f.Symbol,
		Side:            string(f.Side),
		Quantity:        f.Quantity.String(),
		Price:           f.Price.String(),
		Timestamp:       f.Timestamp,
	}
}

func ohlcRecordFrom(exchange string, c *model.Candle) OhlcRecord {
	return OhlcRecord{
		Symbol:     c.Key.Symbol,
		Exchange:   exchange,
		Interval:   c.Key.Interval,
		BucketTS:   c.Key.BucketTS,
		Open:       c.Open.String(),
		High:       c.High.String(),
		Low:        c.Low.String(),
		Close:      c.Close.String(),
		Volume:     c.Volume.String(),
		TradeCount: c.TradeCount,
		Source:     string(c.Source),
		IsComplete: c.IsComplete,
	}
}
