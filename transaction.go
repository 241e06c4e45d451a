package inventory

import (
	"time"

	"github.com/google/uuid"
)

const (
	MovementImport      = "import"
	MovementSale        = "sale"
	MovementRefund      = "refund"
	MovementTransferOut = "transfer_out"
	MovementTransferIn  = "transfer_in"
	MovementAudit       = "audit"
)

// MovementItem is the stock change of one product. BaseQuantity is the signed
// change in base units; Balance is the stock after it.
type MovementItem struct {
	ProductID    string `json:"product_id"`
	UnitName     string `json:"unit_name"`
	Quantity     int64  `json:"quantity"`
	BaseQuantity int64  `json:"base_quantity"`
	UnitPrice    Money  `json:"unit_price"`
	Balance      int64  `json:"balance"`
}

type Movement struct {
	ID          string         `json:"id"`
	WarehouseID string         `json:"warehouse_id"`
	Type        string         `json:"type"`
	Reference   string         `json:"reference,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Items       []MovementItem `json:"items"`
	Note        string         `json:"note,omitempty"`
}

func newMovement(warehouseID, mvType, reference, note string) Movement {
	return Movement{
		ID:          uuid.New().String(),
		WarehouseID: warehouseID,
		Type:        mvType,
		Reference:   reference,
		Timestamp:   time.Now().UTC(),
		Note:        note,
	}
}

func (mv Movement) ProductIDs() []string {
	ids := make([]string, 0, len(mv.Items))
	for _, item := range mv.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Value is the total cost of the movement at the recorded unit prices.
func (mv Movement) Value() Money {
	var total Money
	for _, item := range mv.Items {
		total += item.UnitPrice.Multiply(item.Quantity)
	}
	return total
}
