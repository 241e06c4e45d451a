package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/obs"
	"pharmacyinventory/rpc"
)

const msgpackContentType = rpc.ContentType

// sync applies a msgpack stream of queued device packets and answers with
// one ack packet per input packet, in order. A stream that stops decoding
// still gets the acks of the packets before the damage, followed by one ack
// with no packet ID carrying the decode error.
func (a *App) sync(w http.ResponseWriter, r *http.Request) {
	if a.Cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.Cfg.MaxBodyBytes)
	}
	var pb rpc.PacketBuffer
	var acks []*rpc.Packet
	chunk := make([]byte, 4096)
	for {
		n, err := r.Body.Read(chunk)
		if n > 0 {
			pkts, ferr := pb.Feed(chunk[:n])
			for _, pkt := range pkts {
				ack, aerr := rpc.NewPacket(rpc.KindAck, a.applyPacket(r, pkt))
				if aerr != nil {
					writeError(w, r, aerr)
					return
				}
				acks = append(acks, ack)
			}
			if ferr != nil {
				obs.Logger.Warn("sync_stream_broken", "applied", len(acks), "error", ferr)
				if !appendStreamError(w, r, &acks, "invalid_msgpack: "+ferr.Error()) {
					return
				}
				break
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			obs.Logger.Warn("sync_body_failed", "applied", len(acks), "error", err)
			if !appendStreamError(w, r, &acks, "invalid_body: "+err.Error()) {
				return
			}
			break
		}
	}
	if pb.Buffered() > 0 {
		obs.Logger.Warn("sync_trailing_bytes", "bytes", pb.Buffered())
	}
	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(http.StatusOK)
	if err := rpc.WriteStream(w, acks...); err != nil {
		obs.Logger.Error("sync_write_failed", "error", err)
	}
}

func appendStreamError(w http.ResponseWriter, r *http.Request, acks *[]*rpc.Packet, msg string) bool {
	ack, err := rpc.NewPacket(rpc.KindAck, rpc.Ack{Error: msg})
	if err != nil {
		writeError(w, r, err)
		return false
	}
	*acks = append(*acks, ack)
	return true
}

func (a *App) applyPacket(r *http.Request, pkt *rpc.Packet) rpc.Ack {
	var err error
	switch pkt.Kind {
	case rpc.KindOrder:
		err = a.syncOrder(r, pkt)
	case rpc.KindAudit:
		err = a.syncAudit(r, pkt)
	default:
		err = fmt.Errorf("unknown packet kind %q", pkt.Kind)
	}
	if err != nil {
		obs.Logger.Warn("sync_packet_rejected", "packet_id", pkt.ID, "kind", pkt.Kind, "error", err)
		return rpc.Ack{PacketID: pkt.ID, Error: err.Error()}
	}
	return rpc.Ack{PacketID: pkt.ID, OK: true}
}

func (a *App) syncOrder(r *http.Request, pkt *rpc.Packet) error {
	var wire rpc.Order
	if err := pkt.Decode(&wire); err != nil {
		return err
	}
	lines := rpc.ToInvOrderLines(&wire)
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := a.loadProducts(r.Context(), ids)
	if err != nil {
		return err
	}
	for i := range lines {
		base, err := inventory.ConvertToBaseUnits(*products[lines[i].ProductID], lines[i].UnitName, lines[i].Quantity)
		if err != nil {
			return err
		}
		lines[i].BaseQuantity = base
	}
	order, err := inventory.NewOrder(lines, rpc.ToInvPayment(&wire))
	if err != nil {
		return err
	}
	if wire.UUID != "" {
		order.ID = wire.UUID
	}
	if wire.DatetimeMs > 0 {
		order.CreatedAt = time.UnixMilli(wire.DatetimeMs).UTC()
	}
	mv, err := a.newLedger("").Sell(products, order)
	if err != nil {
		return err
	}
	_, err = a.Store.CreateOrder(r.Context(), order, mv)
	return err
}

func (a *App) syncAudit(r *http.Request, pkt *rpc.Packet) error {
	var wire rpc.AuditBatch
	if err := pkt.Decode(&wire); err != nil {
		return err
	}
	batch := rpc.ToInvAuditBatch(&wire)
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.WarehouseID == "" {
		batch.WarehouseID = a.Cfg.WarehouseID
	}
	ids := make([]string, 0, len(batch.Entries))
	for _, e := range batch.Entries {
		ids = append(ids, e.ProductID)
	}
	products, err := a.loadProducts(r.Context(), ids)
	if err != nil {
		return err
	}
	for i := range batch.Entries {
		batch.Entries[i].ProductName = products[batch.Entries[i].ProductID].Name
	}
	return a.reconcile(r, products, batch)
}
