package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripsplit-backend/ledger"
	"tripsplit-backend/models"
	"tripsplit-backend/money"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed expense ids.
const NotifyChannel = "expense_changes"

type expenseRow struct {
	ID        string          `gorm:"primaryKey;size:64"`
	Label     string          `gorm:"not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency  string          `gorm:"size:3;not null"`
	Payer     string          `gorm:"size:128;not null;index"`
	CreatedAt time.Time       `gorm:"not null;index"`
	Splits    []splitRow      `gorm:"foreignKey:ExpenseID;constraint:OnDelete:CASCADE"`
}

func (expenseRow) TableName() string { return "expenses" }

type splitRow struct {
	ID          uint            `gorm:"primaryKey"`
	ExpenseID   string          `gorm:"size:64;not null;index"`
	Position    int             `gorm:"not null"`
	Participant string          `gorm:"size:128;not null;index"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

func (splitRow) TableName() string { return "expense_splits" }

const notifyTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_expense_change() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('` + NotifyChannel + `', OLD.id);
	ELSE
		PERFORM pg_notify('` + NotifyChannel + `', NEW.id);
	END IF;
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS expenses_notify ON expenses;
CREATE TRIGGER expenses_notify AFTER INSERT OR UPDATE OR DELETE ON expenses
	FOR EACH ROW EXECUTE FUNCTION notify_expense_change();
`

// Connect opens the Postgres database and migrates the expense tables.
func Connect(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("database connected")

	if err := db.AutoMigrate(&expenseRow{}, &splitRow{}); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := db.Exec(notifyTriggerSQL).Error; err != nil {
		return nil, fmt.Errorf("installing change trigger: %w", err)
	}
	slog.Info("database migrated")
	return db, nil
}

// GormStore keeps expenses in Postgres. Splits live in their own table and
// are rewritten together with the expense row in one transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, id string) (models.Expense, error) {
	var row expenseRow
	err := s.withSplits(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Expense{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return models.Expense{}, err
	}
	return row.toExpense()
}

func (s *GormStore) Create(ctx context.Context, e models.Expense) error {
	row := toRow(e)
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateID, e.ID)
	}
	return err
}

func (s *GormStore) Replace(ctx context.Context, e models.Expense) error {
	row := toRow(e)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&expenseRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"label":      row.Label,
			"amount":     row.Amount,
			"currency":   row.Currency,
			"payer":      row.Payer,
			"created_at": row.CreatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, e.ID)
		}
		if err := tx.Where("expense_id = ?", row.ID).Delete(&splitRow{}).Error; err != nil {
			return err
		}
		if len(row.Splits) == 0 {
			return nil
		}
		return tx.Create(&row.Splits).Error
	})
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expense_id = ?", id).Delete(&splitRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&expenseRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
		}
		return nil
	})
}

func (s *GormStore) List(ctx context.Context) ([]models.Expense, error) {
	var rows []expenseRow
	if err := s.withSplits(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := row.toExpense()
		if err != nil {
			slog.Warn("skipping unreadable expense row", "expense_id", row.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *GormStore) withSplits(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Splits", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func toRow(e models.Expense) expenseRow {
	row := expenseRow{
		ID:        e.ID,
		Label:     e.Label,
		Amount:    e.Total.Amount,
		Currency:  string(e.Total.Currency),
		Payer:     e.Payer,
		CreatedAt: e.CreatedAt.UTC(),
		Splits:    make([]splitRow, len(e.Splits)),
	}
	for i, s := range e.Splits {
		row.Splits[i] = splitRow{
			ExpenseID:   e.ID,
			Position:    i,
			Participant: s.Participant,
			Amount:      s.Share.Amount,
		}
	}
	return row
}

func (r expenseRow) toExpense() (models.Expense, error) {
	cur, err := money.ParseCurrency(r.Currency)
	if err != nil {
		return models.Expense{}, err
	}
	e := models.Expense{
		ID:        r.ID,
		Label:     r.Label,
		Total:     money.New(r.Amount, cur),
		Payer:     r.Payer,
		CreatedAt: r.CreatedAt.UTC(),
		Splits:    make([]models.SplitEntry, len(r.Splits)),
	}
	for i, s := range r.Splits {
		e.Splits[i] = models.SplitEntry{Participant: s.Participant, Share: money.New(s.Amount, cur)}
	}
	return e, nil
}
