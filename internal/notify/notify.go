// Package notify pushes best-effort events to stream subscribers. Delivery
// failures never affect engine state or an already-returned result.
package notify

import "github.com/matchd/matchd/internal/types"

type MessageType string

const (
	TypeTrades    MessageType = "trades"
	TypeOrders    MessageType = "orders"
	TypeOrderBook MessageType = "orderbook"
)

// Message is one outbound event envelope.
type Message struct {
	Type       MessageType `json:"type"`
	Instrument string      `json:"instrument,omitempty"`
	Payload    any         `json:"payload"`
}

// Sink receives events best effort. Publish must never block the caller.
type Sink interface {
	Publish(msg Message)
}

// NopSink drops everything, for tests and headless runs.
type NopSink struct{}

func (NopSink) Publish(Message) {}

// PublishTrades pushes executed trades to the sink.
func PublishTrades(sink Sink, trades []types.Trade) {
	if len(trades) == 0 {
		return
	}
	sink.Publish(Message{Type: TypeTrades, Payload: trades})
}

// PublishOrders pushes updated orders (new, partial, filled, cancelled).
func PublishOrders(sink Sink, orders []types.Order) {
	if len(orders) == 0 {
		return
	}
	sink.Publish(Message{Type: TypeOrders, Payload: orders})
}

// PublishBook pushes a fresh snapshot for the affected instrument.
func PublishBook(sink Sink, snapshot types.BookSnapshot) {
	sink.Publish(Message{
		Type:       TypeOrderBook,
		Instrument: snapshot.Instrument,
		Payload:    snapshot,
	})
}
