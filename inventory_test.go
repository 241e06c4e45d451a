package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerImport(t *testing.T) {
	l := NewLedger("main")
	p := paracetamol(0)
	mv, err := l.Import(&p, "Hộp", 2, 0, "hóa đơn NCC")
	require.NoError(t, err)
	assert.Equal(t, int64(240), p.Stock)
	assert.Equal(t, MovementImport, mv.Type)
	require.Len(t, mv.Items, 1)
	assert.Equal(t, int64(240), mv.Items[0].BaseQuantity)
	assert.Equal(t, Money(175000), mv.Items[0].UnitPrice)
	assert.Equal(t, int64(240), mv.Items[0].Balance)
	assert.Equal(t, Money(350000), mv.Value())

	_, err = l.Import(&p, "Hộp", -1, 0, "")
	assert.ErrorIs(t, err, ErrNegativeQuantity)
	assert.Equal(t, int64(240), p.Stock)
}

func TestLedgerSell(t *testing.T) {
	l := NewLedger("main")
	p := paracetamol(100)
	products := map[string]*Product{p.ID: &p}
	order := Order{ID: "o1", Lines: []OrderLine{
		{ProductID: p.ID, UnitName: "Vỉ", UnitPrice: 17500, Quantity: 2},
		{ProductID: p.ID, UnitName: "Viên", UnitPrice: 1500, Quantity: 6},
	}}
	mv, err := l.Sell(products, order)
	require.NoError(t, err)
	assert.Equal(t, int64(70), p.Stock)
	assert.Equal(t, "o1", mv.Reference)
	assert.Equal(t, int64(-24), mv.Items[0].BaseQuantity)
	assert.Equal(t, int64(76), mv.Items[0].Balance)
	assert.Equal(t, int64(70), mv.Items[1].Balance)

	order.Lines = []OrderLine{{ProductID: p.ID, UnitName: "Hộp", Quantity: 1}}
	_, err = l.Sell(products, order)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, int64(70), p.Stock)

	order.Lines = []OrderLine{{ProductID: "ghost", UnitName: "Viên", Quantity: 1}}
	_, err = l.Sell(products, order)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestLedgerReturn(t *testing.T) {
	l := NewLedger("main")
	p := paracetamol(100)
	order := soldOrder(t, p, "Vỉ", 2)
	r, err := NewRefund(order, map[string]Product{p.ID: p}, nil)
	require.NoError(t, err)
	_, err = r.SetQuantity(0, 1)
	require.NoError(t, err)

	mv, err := l.Return(map[string]*Product{p.ID: &p}, r)
	require.NoError(t, err)
	assert.Equal(t, MovementRefund, mv.Type)
	assert.Equal(t, int64(112), p.Stock)
	assert.Equal(t, int64(12), mv.Items[0].BaseQuantity)
}

func TestLedgerTransferClamps(t *testing.T) {
	src := NewLedger("main")
	dest := NewLedger("kho-2")
	from := paracetamol(100)
	to := paracetamol(5)
	to.ID = "p-paracetamol-kho2"

	out, in, clamped, err := src.Transfer(&from, &to, "Hộp", 1, dest, "")
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, int64(0), from.Stock)
	assert.Equal(t, int64(105), to.Stock)
	assert.Equal(t, MovementTransferOut, out.Type)
	assert.Equal(t, "kho-2", out.Reference)
	assert.Equal(t, int64(-100), out.Items[0].BaseQuantity)
	assert.Equal(t, MovementTransferIn, in.Type)
	assert.Equal(t, "kho-2", in.WarehouseID)
	assert.Equal(t, int64(105), in.Items[0].Balance)
	assert.Equal(t, out.ID, in.Reference)

	_, _, _, err = src.Transfer(&from, &to, "Viên", 1, dest, "")
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestLedgerAdjust(t *testing.T) {
	l := NewLedger("main")
	p := paracetamol(50)
	s := NewAuditSession("main")
	s.Record(p, 45)

	mv, err := l.Adjust(map[string]*Product{p.ID: &p}, s.Batch(""))
	require.NoError(t, err)
	assert.Equal(t, MovementAudit, mv.Type)
	assert.Equal(t, int64(45), p.Stock)
	assert.Equal(t, int64(-5), mv.Items[0].BaseQuantity)

	bad := AuditBatch{Entries: []AuditEntry{{ProductID: p.ID, ActualStock: -1}}}
	_, err = l.Adjust(map[string]*Product{p.ID: &p}, bad)
	assert.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestLedgerHooks(t *testing.T) {
	l := NewLedger("main")
	var seen []Movement
	l.AddHook(func(mv Movement, _ *Ledger) error {
		seen = append(seen, mv)
		return nil
	})
	a := paracetamol(0)
	b := syrup(0)
	_, err := l.Import(&a, "Vỉ", 1, 0, "")
	require.NoError(t, err)
	_, err = l.Import(&b, "Chai", 3, 40000, "")
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, []string{a.ID}, seen[0].ProductIDs())
	assert.Equal(t, int64(12), seen[0].Items[0].Balance)
	assert.Equal(t, Money(120000), seen[1].Value())

	boom := errors.New("boom")
	l.AddHook(func(Movement, *Ledger) error { return boom })
	_, err = l.Import(&b, "Chai", 1, 0, "")
	assert.ErrorIs(t, err, boom)
}
