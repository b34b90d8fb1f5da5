package interfaces

import "nexus-sale/internal/service/sale/domain"

type itemView struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind,omitempty"`
	Price  int64  `json:"price"`
	Remain int64  `json:"remain"`
}

func newItemView(i *domain.Item) itemView {
	return itemView{ID: i.ID, Name: i.Name, Kind: i.Kind, Price: i.Price, Remain: i.Remain}
}

type orderView struct {
	ID            uint64        `json:"id"`
	ItemID        uint64        `json:"itemId"`
	CustomerID    uint64        `json:"customerId"`
	DestinationID uint64        `json:"destinationId"`
	Quantity      int64         `json:"quantity"`
	Status        domain.Status `json:"status"`
	PaidAmount    int64         `json:"paidAmount,omitempty"`
}

func newOrderView(o *domain.Order) orderView {
	return orderView{
		ID:            o.ID,
		ItemID:        o.ItemID,
		CustomerID:    o.CustomerID,
		DestinationID: o.DestinationID,
		Quantity:      o.Quantity,
		Status:        o.Status,
		PaidAmount:    o.PaidAmount,
	}
}
