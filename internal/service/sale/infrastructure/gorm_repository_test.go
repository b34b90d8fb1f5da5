package infrastructure

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"nexus-sale/internal/service/sale/domain"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var recordColumns = []string{"id", "item_id", "user_id", "home_id", "status", "num", "paid_amount"}

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestGormStoreCompareAndSetStatus(t *testing.T) {
	update := regexp.QuoteMeta("UPDATE `record` SET `status`=?,`updated_at`=? WHERE id = ? AND status IN (?,?)")
	reload := regexp.QuoteMeta("SELECT * FROM `record` WHERE id = ?")

	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "matching status is updated",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(update).
					WithArgs("sending", sqlmock.AnyArg(), 7, "pay", "consult").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "status moved on is an invalid state",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
				mock.ExpectQuery(reload).
					WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(7, 1, 1, 1, "sign", 2, 20))
			},
			wantErr: domain.ErrInvalidState,
		},
		{
			name: "missing row is not found",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
				mock.ExpectQuery(reload).WillReturnRows(sqlmock.NewRows(recordColumns))
			},
			wantErr: domain.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.expect(mock)

			err := store.CompareAndSetStatus(context.Background(), 7,
				[]domain.Status{domain.StatusPay, domain.StatusConsult}, domain.StatusSending)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStoreLocksRowsOnlyInsideTransaction(t *testing.T) {
	selectOrder := regexp.QuoteMeta("SELECT * FROM `record` WHERE id = ? ORDER BY `record`.`id` LIMIT ?")

	t.Run("plain read", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectOrder+"$").
			WithArgs(7, 1).
			WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(7, 1, 1, 1, "cart", 2, 0))

		order, err := store.FindOrder(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCart, order.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("read in transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectOrder + regexp.QuoteMeta(" FOR UPDATE")).
			WithArgs(7, 1).
			WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(7, 1, 1, 1, "cart", 2, 0))
		mock.ExpectCommit()

		err := store.Transaction(context.Background(), func(tx domain.Store) error {
			order, err := tx.FindOrder(context.Background(), 7)
			if err != nil {
				return err
			}
			assert.EqualValues(t, 2, order.Quantity)
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed transaction rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(selectOrder + regexp.QuoteMeta(" FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows(recordColumns))
		mock.ExpectRollback()

		err := store.Transaction(context.Background(), func(tx domain.Store) error {
			_, err := tx.FindOrder(context.Background(), 7)
			return err
		})
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreFindOrderLine(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `record` WHERE item_id = ? AND user_id = ? AND home_id = ? AND status IN (?,?) ORDER BY id,`record`.`id` LIMIT ?")).
		WithArgs(3, 1, 2, "pay", "sending", 1).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(9, 3, 1, 2, "sending", 4, 40))

	order, err := store.FindOrderLine(context.Background(), 3, 1, 2,
		[]domain.Status{domain.StatusPay, domain.StatusSending})
	require.NoError(t, err)
	assert.EqualValues(t, 9, order.ID)
	assert.EqualValues(t, 2, order.DestinationID)
	assert.EqualValues(t, 40, order.PaidAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreInsertItem(t *testing.T) {
	insert := regexp.QuoteMeta("INSERT INTO `item`")

	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		wantID  uint64
		wantErr error
	}{
		{
			name: "new item gets its id",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(11, 1))
				mock.ExpectCommit()
			},
			wantID: 11,
		},
		{
			name: "duplicate name",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(insert).
					WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'widget' for key 'item.name'"})
				mock.ExpectRollback()
			},
			wantErr: domain.ErrAlreadyExists,
		},
		{
			name: "other driver errors stay wrapped",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(insert).WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.expect(mock)

			item := &domain.Item{Name: "widget", Kind: "tool", Price: 10, Remain: 5}
			err := store.InsertItem(context.Background(), item)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantID != 0:
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, item.ID)
			default:
				require.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrAlreadyExists)
				assert.Contains(t, err.Error(), "connection reset")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
