package infrastructure

import (
	"errors"
	"fmt"
	"testing"

	"nexus-sale/internal/service/sale/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslateErrors(t *testing.T) {
	assert.NoError(t, translate(nil, "x"))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound, "order 1"), domain.ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey, "item"), domain.ErrAlreadyExists)

	dup := fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.ErrorIs(t, translate(dup, "item"), domain.ErrAlreadyExists)

	other := errors.New("connection refused")
	err := translate(other, "item")
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderMapping(t *testing.T) {
	order := &domain.Order{ID: 3, ItemID: 1, CustomerID: 2, DestinationID: 4, Quantity: 5, Status: domain.StatusPay, PaidAmount: 50}
	assert.Equal(t, order, ToDomainOrder(FromDomainOrder(order)))
	assert.Equal(t, []string{"cart", "pay"}, statusStrings([]domain.Status{domain.StatusCart, domain.StatusPay}))
}
