package infrastructure

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"nexus-sale/internal/service/wallet/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceModel 对应数据库中的 balance 表
type BalanceModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"uniqueIndex"`
	Num       int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BalanceModel) TableName() string {
	return "balance"
}

// GormRepository 是 domain.Repository 的 GORM 实现
type GormRepository struct {
	db   *gorm.DB
	inTx bool
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate 创建或更新 balance 表
func AutoMigrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&BalanceModel{}), "migrate wallet tables")
}

func (r *GormRepository) query(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx)
	if r.inTx {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx domain.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx, inTx: true})
	})
}

func (r *GormRepository) FindByID(ctx context.Context, id uint64) (*domain.Balance, error) {
	return r.find(ctx, "id = ?", id)
}

func (r *GormRepository) FindByUser(ctx context.Context, userID uint64) (*domain.Balance, error) {
	return r.find(ctx, "user_id = ?", userID)
}

func (r *GormRepository) find(ctx context.Context, cond string, arg uint64) (*domain.Balance, error) {
	var model BalanceModel
	if err := r.query(ctx).Where(cond, arg).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %d", domain.ErrNotFound, cond, arg)
		}
		return nil, errors.Wrap(err, "find balance")
	}
	return &domain.Balance{ID: model.ID, UserID: model.UserID, Num: model.Num}, nil
}

func (r *GormRepository) Insert(ctx context.Context, b *domain.Balance) error {
	model := &BalanceModel{UserID: b.UserID, Num: b.Num}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrapf(err, "insert balance of user %d", b.UserID)
	}
	b.ID = model.ID
	return nil
}

func (r *GormRepository) Save(ctx context.Context, b *domain.Balance) error {
	err := r.db.WithContext(ctx).Model(&BalanceModel{}).Where("id = ?", b.ID).Update("num", b.Num).Error
	return errors.Wrapf(err, "save balance %d", b.ID)
}
