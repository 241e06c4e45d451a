package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is the physical count of one product. Stocks are in base units.
type AuditEntry struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	SystemStock int64       `json:"system_stock"`
	ActualStock int64       `json:"actual_stock"`
	Variance    int64       `json:"variance"`
	Status      AuditStatus `json:"status"`
	CountedAt   time.Time   `json:"counted_at"`
}

// NewAuditEntry compares the counted quantity with the product's stock.
func NewAuditEntry(p Product, actualStock int64) AuditEntry {
	variance, status := ComputeAuditVariance(p.Stock, actualStock)
	return AuditEntry{
		ProductID:   p.ID,
		ProductName: p.Name,
		SystemStock: p.Stock,
		ActualStock: actualStock,
		Variance:    variance,
		Status:      status,
		CountedAt:   time.Now().UTC(),
	}
}

type AuditBatch struct {
	ID          string       `json:"id"`
	WarehouseID string       `json:"warehouse_id"`
	Note        string       `json:"note,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	Entries     []AuditEntry `json:"entries"`
}

type AuditSummary struct {
	Matched     int   `json:"matched"`
	Over        int   `json:"over"`
	Under       int   `json:"under"`
	NetVariance int64 `json:"net_variance"`
}

// AuditSession collects counts for one stock take. Scanning the same product
// again replaces its entry.
type AuditSession struct {
	WarehouseID string
	entries     []AuditEntry
}

func NewAuditSession(warehouseID string) *AuditSession {
	return &AuditSession{WarehouseID: warehouseID}
}

func (s *AuditSession) Record(p Product, actualStock int64) AuditEntry {
	entry := NewAuditEntry(p, actualStock)
	for i := range s.entries {
		if s.entries[i].ProductID == p.ID {
			s.entries[i] = entry
			return entry
		}
	}
	s.entries = append(s.entries, entry)
	return entry
}

func (s *AuditSession) Remove(productID string) error {
	for i := range s.entries {
		if s.entries[i].ProductID == productID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: audit entry %s", ErrLineNotFound, productID)
}

// Entries returns the entries in scan order.
func (s *AuditSession) Entries() []AuditEntry {
	return append([]AuditEntry(nil), s.entries...)
}

func (s *AuditSession) Summary() AuditSummary {
	return Summarize(s.entries)
}

// Batch packs the session for submission.
func (s *AuditSession) Batch(note string) AuditBatch {
	return AuditBatch{
		ID:          uuid.New().String(),
		WarehouseID: s.WarehouseID,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
		Entries:     s.Entries(),
	}
}

func Summarize(entries []AuditEntry) AuditSummary {
	var sum AuditSummary
	for _, e := range entries {
		switch e.Status {
		case AuditMatch:
			sum.Matched++
		case AuditOver:
			sum.Over++
		case AuditUnder:
			sum.Under++
		}
		sum.NetVariance += e.Variance
	}
	return sum
}
