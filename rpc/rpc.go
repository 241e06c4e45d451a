// Package rpc frames msgpack packets exchanged between POS devices and the
// store service. A device queues orders and audit batches while offline and
// uploads them as one stream of packets.
package rpc

import (
	"bytes"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	KindOrder = "order"
	KindAudit = "audit"
	KindAck   = "ack"
)

type Packet struct {
	ID   string            `msgpack:"id"`
	Kind string            `msgpack:"kind"`
	H    map[string]string `msgpack:"h,omitempty"`
	B    []byte            `msgpack:"b,omitempty"`
}

func NewPacket(kind string, body any) (*Packet, error) {
	b, err := msgpack.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Packet{ID: uuid.New().String(), Kind: kind, B: b}, nil
}

// Decode unmarshals the packet body into v.
func (p *Packet) Decode(v any) error {
	return msgpack.Unmarshal(p.B, v)
}

func (p *Packet) Marshal() ([]byte, error) {
	return msgpack.Marshal(p)
}

// PacketBuffer accumulates stream bytes and yields every complete packet.
// A trailing partial packet stays buffered until more bytes arrive.
type PacketBuffer struct {
	buf bytes.Buffer
}

func (pb *PacketBuffer) Feed(data []byte) ([]*Packet, error) {
	pb.buf.Write(data)

	var results []*Packet
	for pb.buf.Len() > 0 {
		r := bytes.NewReader(pb.buf.Bytes())
		dec := msgpack.NewDecoder(r)
		v := new(Packet)
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// not enough data yet, stop
				break
			}
			return results, err
		}
		pb.buf.Next(pb.buf.Len() - r.Len())
		results = append(results, v)
	}
	return results, nil
}

// Buffered reports how many bytes wait for the rest of a packet.
func (pb *PacketBuffer) Buffered() int {
	return pb.buf.Len()
}

// WriteStream marshals packets back to back.
func WriteStream(w io.Writer, pkts ...*Packet) error {
	enc := msgpack.NewEncoder(w)
	for _, p := range pkts {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}
