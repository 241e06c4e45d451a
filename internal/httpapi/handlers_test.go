package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/config"
	"pharmacyinventory/rpc"
)

func newTestServer(t *testing.T) (http.Handler, *inventory.SQLiteStore) {
	t.Helper()
	st, err := inventory.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cfg := config.Config{WarehouseID: "main", CORSOrigin: "*", MaxBodyBytes: 1 << 20}
	return NewRouter(NewApp(cfg, st)), st
}

func seedParacetamol(t *testing.T, st inventory.Store, stock int64) inventory.Product {
	t.Helper()
	p, err := st.UpsertProduct(context.Background(), inventory.Product{
		ID:       "p-paracetamol",
		Name:     "Paracetamol",
		Category: "Giảm đau",
		Stock:    stock,
		Units: []inventory.Unit{
			{Name: "Viên", Price: 1500, ConversionFactor: 1, IsBaseUnit: true},
			{Name: "Vỉ", Price: 17500, ConversionFactor: 12},
			{Name: "Hộp", Price: 175000, ConversionFactor: 10},
		},
	})
	require.NoError(t, err)
	return p
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProductEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPut, "/products/p-1", map[string]any{
		"name":          "Amoxicillin",
		"category":      "Kháng sinh",
		"stock":         100,
		"derive_prices": true,
		"units": []map[string]any{
			{"name": "Viên", "conversion_factor": 1, "is_base_unit": true},
			{"name": "Vỉ", "conversion_factor": 10},
			{"name": "Hộp", "conversion_factor": 10, "price": 120000},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p inventory.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, inventory.Money(1200), p.Units[0].Price)
	assert.Equal(t, inventory.Money(12000), p.Units[1].Price)

	rec = do(t, h, http.MethodGet, "/products/p-1/breakdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bd breakdownResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bd))
	assert.Equal(t, []inventory.UnitQuantity{
		{UnitName: "Viên", Available: 100},
		{UnitName: "Vỉ", Available: 10},
		{UnitName: "Hộp", Available: 1},
	}, bd.Breakdown)

	rec = do(t, h, http.MethodGet, "/products?search=kháng", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []inventory.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodPut, "/products/p-2", map[string]any{"name": "Empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/products/p-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/products/p-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDerivePrices(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/products/derive-prices", map[string]any{"largest_price": 175000, "factors": []int{1, 12, 10}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"prices":[1458,17500,175000]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/products/derive-prices", map[string]any{"largest_price": "175.000 ₫", "factors": []string{"1", "12", "10"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"prices":[1458,17500,175000]}`, rec.Body.String())

	for _, factors := range []any{[]int{1, 0}, []float64{1, 1.5}} {
		rec = do(t, h, http.MethodPost, "/products/derive-prices", map[string]any{"largest_price": 100, "factors": factors})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid conversion factor")
	}
}

func TestCreateOrderClampsAndRefunds(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 50)

	rec := do(t, h, http.MethodPost, "/orders", createOrderRequest{
		Lines:   []orderLineRequest{{ProductID: "p-paracetamol", UnitName: "Vỉ", Quantity: 5}},
		Payment: inventory.Payment{Method: inventory.PaymentCash, AmountPaid: 100000},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, []string{"p-paracetamol"}, created.Clamped)
	require.Len(t, created.Order.Lines, 1)
	assert.Equal(t, int64(4), created.Order.Lines[0].Quantity)
	assert.Equal(t, inventory.Money(70000), created.Order.Total)
	assert.Equal(t, inventory.Money(30000), created.Order.Payment.Change)

	p, err := st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Stock)

	rec = do(t, h, http.MethodPost, "/orders/"+created.Order.ID+"/refunds", refundRequest{
		Reason: "khách đổi ý",
		Lines:  []refundLineRequest{{Line: 0, ReturnUnitName: "Viên", Quantity: 100}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var refunded struct {
		Refund inventory.Refund `json:"refund"`
		Total  inventory.Money  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refunded))
	assert.Equal(t, int64(48), refunded.Refund.Lines[0].ReturnQuantity)
	assert.Equal(t, inventory.Money(72000), refunded.Total)

	rec = do(t, h, http.MethodGet, "/orders/"+created.Order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var order inventory.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, inventory.OrderStatusRefunded, order.Status)

	p, err = st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Stock)
}

func TestUpsertProductRejectsFractionalFactor(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodPut, "/products/p-1", map[string]any{
		"name": "Amoxicillin",
		"units": []map[string]any{
			{"name": "Viên", "price": 1200, "conversion_factor": 1, "is_base_unit": true},
			{"name": "Vỉ", "price": "12.000 ₫", "conversion_factor": 1.5},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid conversion factor")

	rec = do(t, h, http.MethodPut, "/products/p-1", map[string]any{
		"name": "Amoxicillin",
		"units": []map[string]any{
			{"name": "Viên", "price": 1200, "conversion_factor": 1, "is_base_unit": true},
			{"name": "Vỉ", "price": "12.000 ₫", "conversion_factor": "10"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p inventory.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, inventory.Money(12000), p.Units[1].Price)
	assert.Equal(t, int64(10), p.Units[1].ConversionFactor)
}

func TestCreateOrderRejectsOverflowingQuantity(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 50)

	for _, qty := range []int64{2305843009213693942, 1 << 62} {
		rec := do(t, h, http.MethodPost, "/orders", createOrderRequest{
			Lines:   []orderLineRequest{{ProductID: "p-paracetamol", UnitName: "Hộp", Quantity: qty}},
			Payment: inventory.Payment{Method: inventory.PaymentCash, AmountPaid: 100000},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "qty %d", qty)
	}
	p, err := st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Stock)

	orders, err := st.FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRefundSameOrderTwice(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 50)

	rec := do(t, h, http.MethodPost, "/orders", createOrderRequest{
		Lines:   []orderLineRequest{{ProductID: "p-paracetamol", UnitName: "Vỉ", Quantity: 2}},
		Payment: inventory.Payment{Method: inventory.PaymentCard},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/orders/" + created.Order.ID + "/refunds"
	oneBlister := refundRequest{Lines: []refundLineRequest{{Line: 0, Quantity: 1}}}

	rec = do(t, h, http.MethodPost, path, oneBlister)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first refundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, inventory.OrderStatusPartiallyRefunded, first.OrderStatus)

	// only one blister is left to return
	rec = do(t, h, http.MethodPost, path, refundRequest{Lines: []refundLineRequest{{Line: 0, Quantity: 2}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var second refundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, int64(1), second.Refund.Lines[0].ReturnQuantity)
	assert.Equal(t, inventory.OrderStatusRefunded, second.OrderStatus)

	rec = do(t, h, http.MethodPost, path, oneBlister)
	assert.Equal(t, http.StatusConflict, rec.Code)

	p, err := st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Stock)
}

func TestCreateOrderErrors(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 0)

	rec := do(t, h, http.MethodPost, "/orders", createOrderRequest{
		Lines: []orderLineRequest{{ProductID: "p-paracetamol", UnitName: "Viên", Quantity: 1}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", createOrderRequest{
		Lines: []orderLineRequest{{ProductID: "ghost", UnitName: "Viên", Quantity: 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders/missing/refunds", refundRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportTransferAudit(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 0)
	_, err := st.UpsertProduct(context.Background(), inventory.Product{
		ID: "p-paracetamol-kho2", Name: "Paracetamol", Stock: 0,
		Units: []inventory.Unit{{Name: "Viên", Price: 1500, ConversionFactor: 1, IsBaseUnit: true}},
	})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/imports", importRequest{ProductID: "p-paracetamol", UnitName: "Hộp", Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mv inventory.Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mv))
	assert.Equal(t, int64(240), mv.Items[0].Balance)

	rec = do(t, h, http.MethodPost, "/transfers", transferRequest{
		FromProductID: "p-paracetamol", ToProductID: "p-paracetamol-kho2", ToWarehouseID: "kho-2",
		UnitName: "Hộp", Quantity: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tr transferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.True(t, tr.Clamped)
	assert.Equal(t, int64(0), tr.Out.Items[0].Balance)
	assert.Equal(t, int64(240), tr.In.Items[0].Balance)

	rec = do(t, h, http.MethodPost, "/transfers", transferRequest{FromProductID: "p-paracetamol", ToProductID: "p-paracetamol"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/audits", auditRequest{Counts: []auditCount{{ProductID: "p-paracetamol-kho2", ActualStock: 235}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ar auditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ar))
	assert.Equal(t, inventory.AuditSummary{Under: 1, NetVariance: -5}, ar.Summary)

	rec = do(t, h, http.MethodPost, "/audits", auditRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/products/p-paracetamol-kho2/movements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mvs []inventory.Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mvs))
	require.Len(t, mvs, 2)
	assert.Equal(t, inventory.MovementTransferIn, mvs[0].Type)
	assert.Equal(t, inventory.MovementAudit, mvs[1].Type)
}

func TestSyncStream(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 100)

	order, err := rpc.NewPacket(rpc.KindOrder, rpc.Order{
		UUID:          "device-order-1",
		DatetimeMs:    1760000000000,
		PaymentMethod: inventory.PaymentCash,
		AmountPaid:    40000,
		Lines:         []rpc.OrderLine{{ProductID: "p-paracetamol", UnitName: "Vỉ", UnitPrice: 17000, Quantity: 2}},
	})
	require.NoError(t, err)
	tooBig, err := rpc.NewPacket(rpc.KindOrder, rpc.Order{
		UUID:  "device-order-2",
		Lines: []rpc.OrderLine{{ProductID: "p-paracetamol", UnitName: "Hộp", UnitPrice: 175000, Quantity: 1}},
	})
	require.NoError(t, err)
	audit, err := rpc.NewPacket(rpc.KindAudit, rpc.AuditBatch{
		Entries: []rpc.AuditEntry{{ProductID: "p-paracetamol", SystemStock: 76, ActualStock: 70}},
	})
	require.NoError(t, err)

	var body bytes.Buffer
	require.NoError(t, rpc.WriteStream(&body, order, tooBig, audit))
	req := httptest.NewRequest(http.MethodPost, "/sync", &body)
	req.Header.Set("Content-Type", msgpackContentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgpackContentType, rec.Header().Get("Content-Type"))

	var pb rpc.PacketBuffer
	pkts, err := pb.Feed(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, pkts, 3)
	acks := make([]rpc.Ack, len(pkts))
	for i, pkt := range pkts {
		assert.Equal(t, rpc.KindAck, pkt.Kind)
		require.NoError(t, pkt.Decode(&acks[i]))
	}
	assert.Equal(t, order.ID, acks[0].PacketID)
	assert.True(t, acks[0].OK, acks[0].Error)
	assert.False(t, acks[1].OK)
	assert.NotEmpty(t, acks[1].Error)
	assert.True(t, acks[2].OK, acks[2].Error)

	stored, err := st.GetOrder(context.Background(), "device-order-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.Money(34000), stored.Total)
	assert.Equal(t, int64(24), stored.Lines[0].BaseQuantity)

	p, err := st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(70), p.Stock)
}

func TestSyncBrokenStreamKeepsAcks(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 100)

	order, err := rpc.NewPacket(rpc.KindOrder, rpc.Order{
		PaymentMethod: inventory.PaymentCard,
		Lines:         []rpc.OrderLine{{ProductID: "p-paracetamol", UnitName: "Viên", UnitPrice: 1500, Quantity: 4}},
	})
	require.NoError(t, err)
	var body bytes.Buffer
	require.NoError(t, rpc.WriteStream(&body, order))
	body.WriteByte(0xc1)

	req := httptest.NewRequest(http.MethodPost, "/sync", &body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var pb rpc.PacketBuffer
	pkts, err := pb.Feed(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	var ok, broken rpc.Ack
	require.NoError(t, pkts[0].Decode(&ok))
	require.NoError(t, pkts[1].Decode(&broken))
	assert.Equal(t, order.ID, ok.PacketID)
	assert.True(t, ok.OK)
	assert.Empty(t, broken.PacketID)
	assert.Contains(t, broken.Error, "invalid_msgpack")

	p, err := st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(96), p.Stock)
}

func TestClientFlushOutbox(t *testing.T) {
	h, st := newTestServer(t)
	seedParacetamol(t, st, 30)
	srv := httptest.NewServer(h)
	defer srv.Close()

	var outbox rpc.Outbox
	_, err := outbox.Enqueue(rpc.KindOrder, rpc.Order{
		PaymentMethod: inventory.PaymentCard,
		Lines:         []rpc.OrderLine{{ProductID: "p-paracetamol", UnitName: "Viên", UnitPrice: 1500, Quantity: 10}},
	})
	require.NoError(t, err)
	_, err = outbox.Enqueue("bogus", map[string]string{})
	require.NoError(t, err)
	require.Equal(t, 2, outbox.Len())

	acks, err := rpc.NewClient(srv.URL+"/").Flush(context.Background(), &outbox)
	require.NoError(t, err)
	require.Len(t, acks, 2)
	assert.True(t, acks[0].OK, acks[0].Error)
	assert.Contains(t, acks[1].Error, "unknown packet kind")
	assert.Equal(t, 0, outbox.Len())

	p, err := st.GetProduct(context.Background(), "p-paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.Stock)

	acks, err = rpc.NewClient(srv.URL).Flush(context.Background(), &outbox)
	require.NoError(t, err)
	assert.Empty(t, acks)
}
