package rpc

import (
	"time"

	inventory "pharmacyinventory"
)

type OrderLine struct {
	ProductID    string `msgpack:"product_id,omitempty"`
	ProductName  string `msgpack:"product_name,omitempty"`
	UnitName     string `msgpack:"unit,omitempty"`
	UnitPrice    int64  `msgpack:"price,omitempty"`
	Quantity     int64  `msgpack:"quantity,omitempty"`
	BaseQuantity int64  `msgpack:"base_quantity,omitempty"`
}

type Order struct {
	UUID          string      `msgpack:"uuid,omitempty"`
	DatetimeMs    int64       `msgpack:"date,omitempty"`
	PaymentMethod string      `msgpack:"payment_method,omitempty"`
	AmountPaid    int64       `msgpack:"amount_paid,omitempty"`
	Lines         []OrderLine `msgpack:"lines,omitempty"`
}

type AuditEntry struct {
	ProductID   string `msgpack:"product_id,omitempty"`
	SystemStock int64  `msgpack:"system_stock"`
	ActualStock int64  `msgpack:"actual_stock"`
	DatetimeMs  int64  `msgpack:"date,omitempty"`
}

type AuditBatch struct {
	UUID        string       `msgpack:"uuid,omitempty"`
	WarehouseID string       `msgpack:"warehouse_id,omitempty"`
	Note        string       `msgpack:"note,omitempty"`
	DatetimeMs  int64        `msgpack:"date,omitempty"`
	Entries     []AuditEntry `msgpack:"entries,omitempty"`
}

type Ack struct {
	PacketID string `msgpack:"packet_id"`
	OK       bool   `msgpack:"ok"`
	Error    string `msgpack:"error,omitempty"`
}

func NewOrder(o inventory.Order) Order {
	out := Order{
		UUID:          o.ID,
		DatetimeMs:    o.CreatedAt.UnixMilli(),
		PaymentMethod: o.Payment.Method,
		AmountPaid:    int64(o.Payment.AmountPaid),
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, OrderLine{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			UnitName:     l.UnitName,
			UnitPrice:    int64(l.UnitPrice),
			Quantity:     l.Quantity,
			BaseQuantity: l.BaseQuantity,
		})
	}
	return out
}

// ToInvOrderLines returns the lines with the prices captured on the device.
func ToInvOrderLines(o *Order) []inventory.OrderLine {
	lines := make([]inventory.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, inventory.OrderLine{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			UnitName:     l.UnitName,
			UnitPrice:    inventory.Money(l.UnitPrice),
			Quantity:     l.Quantity,
			BaseQuantity: l.BaseQuantity,
		})
	}
	return lines
}

func ToInvPayment(o *Order) inventory.Payment {
	return inventory.Payment{Method: o.PaymentMethod, AmountPaid: inventory.Money(o.AmountPaid)}
}

func NewAuditBatch(b inventory.AuditBatch) AuditBatch {
	out := AuditBatch{
		UUID:        b.ID,
		WarehouseID: b.WarehouseID,
		Note:        b.Note,
		DatetimeMs:  b.CreatedAt.UnixMilli(),
	}
	for _, e := range b.Entries {
		out.Entries = append(out.Entries, AuditEntry{
			ProductID:   e.ProductID,
			SystemStock: e.SystemStock,
			ActualStock: e.ActualStock,
			DatetimeMs:  e.CountedAt.UnixMilli(),
		})
	}
	return out
}

// ToInvAuditBatch rebuilds the batch; variance and status are recomputed
// from the counts rather than trusted from the device.
func ToInvAuditBatch(b *AuditBatch) inventory.AuditBatch {
	out := inventory.AuditBatch{
		ID:          b.UUID,
		WarehouseID: b.WarehouseID,
		Note:        b.Note,
		CreatedAt:   fromMillis(b.DatetimeMs),
	}
	for _, e := range b.Entries {
		variance, status := inventory.ComputeAuditVariance(e.SystemStock, e.ActualStock)
		out.Entries = append(out.Entries, inventory.AuditEntry{
			ProductID:   e.ProductID,
			SystemStock: e.SystemStock,
			ActualStock: e.ActualStock,
			Variance:    variance,
			Status:      status,
			CountedAt:   fromMillis(e.DatetimeMs),
		})
	}
	return out
}

// fromMillis treats a missing device time as now.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
