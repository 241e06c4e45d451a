package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const ContentType = "application/msgpack"

// Outbox queues packets on the device until the service acknowledges them.
type Outbox struct {
	mu      sync.Mutex
	pending []*Packet
}

func (o *Outbox) Enqueue(kind string, body any) (*Packet, error) {
	pkt, err := NewPacket(kind, body)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.pending = append(o.pending, pkt)
	o.mu.Unlock()
	return pkt, nil
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Outbox) snapshot() []*Packet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Packet(nil), o.pending...)
}

// drop removes every packet that got an ack, accepted or rejected.
func (o *Outbox) drop(acks []Ack) {
	done := make(map[string]bool, len(acks))
	for _, a := range acks {
		done[a.PacketID] = true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.pending[:0]
	for _, p := range o.pending {
		if !done[p.ID] {
			kept = append(kept, p)
		}
	}
	o.pending = kept
}

// Client uploads an Outbox to the store service's sync endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Flush sends every queued packet in one stream and returns the acks.
// Packets left without an ack stay queued for the next flush. When the
// service could not decode the whole stream, the acks it did send are still
// applied and the stream error is returned.
func (c *Client) Flush(ctx context.Context, o *Outbox) ([]Ack, error) {
	pkts := o.snapshot()
	if len(pkts) == 0 {
		return nil, nil
	}
	var body bytes.Buffer
	if err := WriteStream(&body, pkts...); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sync", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sync: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var pb PacketBuffer
	replies, err := pb.Feed(data)
	if err != nil {
		return nil, err
	}
	acks := make([]Ack, 0, len(replies))
	for _, r := range replies {
		if r.Kind != KindAck {
			continue
		}
		var a Ack
		if err := r.Decode(&a); err != nil {
			return acks, err
		}
		acks = append(acks, a)
	}
	o.drop(acks)
	for _, a := range acks {
		if a.PacketID == "" {
			return acks, fmt.Errorf("sync: %s", a.Error)
		}
	}
	return acks, nil
}
