package infrastructure

import (
	"context"
	stderrors "errors"
	"fmt"

	"nexus-sale/internal/service/sale/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 是 domain.Store 的 GORM 实现。
// 事务内的读取都带 SELECT ... FOR UPDATE，跨进程时也能防止丢失更新。
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore 创建一个新的 GORM 仓储实例
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) query(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if s.inTx {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func (s *GormStore) FindItem(ctx context.Context, ref domain.ItemRef) (*domain.Item, error) {
	var model ItemModel
	db := s.query(ctx)
	if ref.ID != 0 {
		db = db.Where("id = ?", ref.ID)
	} else {
		db = db.Where("name = ?", ref.Name)
	}
	if err := db.First(&model).Error; err != nil {
		return nil, translate(err, ref.String())
	}
	return ToDomainItem(&model), nil
}

func (s *GormStore) InsertItem(ctx context.Context, item *domain.Item) error {
	model := FromDomainItem(item)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, fmt.Sprintf("item %q", item.Name))
	}
	item.ID = model.ID
	return nil
}

func (s *GormStore) SaveItem(ctx context.Context, item *domain.Item) error {
	err := s.db.WithContext(ctx).Model(&ItemModel{}).Where("id = ?", item.ID).
		Updates(map[string]interface{}{"price": item.Price, "remain": item.Remain}).Error
	return translate(err, fmt.Sprintf("item#%d", item.ID))
}

func (s *GormStore) ListItems(ctx context.Context, inStockOnly bool) ([]*domain.Item, error) {
	var models []*ItemModel
	db := s.db.WithContext(ctx).Order("id")
	if inStockOnly {
		db = db.Where("remain > 0")
	}
	if err := db.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	items := make([]*domain.Item, len(models))
	for i, m := range models {
		items[i] = ToDomainItem(m)
	}
	return items, nil
}

func (s *GormStore) FindOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	var model RecordModel
	if err := s.query(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("order %d", id))
	}
	return ToDomainOrder(&model), nil
}

func (s *GormStore) FindOrderLine(ctx context.Context, itemID, customerID, destinationID uint64, statuses []domain.Status) (*domain.Order, error) {
	var model RecordModel
	err := s.query(ctx).
		Where("item_id = ? AND user_id = ? AND home_id = ? AND status IN ?", itemID, customerID, destinationID, statusStrings(statuses)).
		Order("id").
		First(&model).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("order line (item %d, user %d, destination %d)", itemID, customerID, destinationID))
	}
	return ToDomainOrder(&model), nil
}

func (s *GormStore) InsertOrder(ctx context.Context, order *domain.Order) error {
	model := FromDomainOrder(order)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, "order")
	}
	order.ID = model.ID
	return nil
}

func (s *GormStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	err := s.db.WithContext(ctx).Model(&RecordModel{}).Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"num":         order.Quantity,
			"home_id":     order.DestinationID,
			"status":      string(order.Status),
			"paid_amount": order.PaidAmount,
		}).Error
	return translate(err, fmt.Sprintf("order %d", order.ID))
}

// CompareAndSetStatus 通过 UPDATE ... WHERE status IN (...) 实现比较并交换，
// 没有命中行时再查一次区分 NotFound 与 InvalidState。
func (s *GormStore) CompareAndSetStatus(ctx context.Context, id uint64, from []domain.Status, to domain.Status) error {
	res := s.db.WithContext(ctx).Model(&RecordModel{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Update("status", string(to))
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("order %d", id))
	}
	if res.RowsAffected > 0 {
		return nil
	}
	current, err := s.FindOrder(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order %d is %s, expected one of %v", domain.ErrInvalidState, id, current.Status, from)
}

func (s *GormStore) ListOrdersByCustomer(ctx context.Context, customerID uint64) ([]*domain.Order, error) {
	return s.listOrders(ctx, "user_id = ?", customerID)
}

func (s *GormStore) ListOrdersByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	return s.listOrders(ctx, "status = ?", string(status))
}

func (s *GormStore) listOrders(ctx context.Context, cond string, arg interface{}) ([]*domain.Order, error) {
	var models []*RecordModel
	if err := s.db.WithContext(ctx).Where(cond, arg).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders := make([]*domain.Order, len(models))
	for i, m := range models {
		orders[i] = ToDomainOrder(m)
	}
	return orders, nil
}

// translate 把驱动层错误归类成领域错误
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, what)
	}
	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, what)
	}
	return errors.Wrapf(err, "store: %s", what)
}
