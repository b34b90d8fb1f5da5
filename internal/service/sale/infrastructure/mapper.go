package infrastructure

import "nexus-sale/internal/service/sale/domain"

// ToDomainItem 将数据库模型转换为领域模型
func ToDomainItem(model *ItemModel) *domain.Item {
	if model == nil {
		return nil
	}
	return &domain.Item{
		ID:     model.ID,
		Name:   model.Name,
		Kind:   model.Kind,
		Price:  model.Price,
		Remain: model.Remain,
	}
}

// FromDomainItem 将领域模型转换为数据库模型 (用于插入)
func FromDomainItem(item *domain.Item) *ItemModel {
	return &ItemModel{
		ID:     item.ID,
		Name:   item.Name,
		Kind:   item.Kind,
		Price:  item.Price,
		Remain: item.Remain,
	}
}

func ToDomainOrder(model *RecordModel) *domain.Order {
	if model == nil {
		return nil
	}
	return &domain.Order{
		ID:            model.ID,
		ItemID:        model.ItemID,
		CustomerID:    model.UserID,
		DestinationID: model.HomeID,
		Quantity:      model.Num,
		Status:        domain.Status(model.Status),
		PaidAmount:    model.PaidAmount,
	}
}

func FromDomainOrder(order *domain.Order) *RecordModel {
	return &RecordModel{
		ID:         order.ID,
		ItemID:     order.ItemID,
		UserID:     order.CustomerID,
		HomeID:     order.DestinationID,
		Status:     string(order.Status),
		Num:        order.Quantity,
		PaidAmount: order.PaidAmount,
	}
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
