// Package pubsub implements the broadcast group layer used by the print
// service: pairing notifications, forced disconnects, and print job dispatch
// all travel through named groups. Two implementations are provided: an
// in-process layer for single-node deployments and tests, and a Redis-backed
// layer for multi-process deployments.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types delivered through the group layer.
const (
	// EventPairingApproved notifies a pairing session that an operator
	// approved the client. Payload: PairingDecision.
	EventPairingApproved = "pairing.approved"
	// EventPairingDenied notifies a pairing session that an operator
	// denied the client. No payload.
	EventPairingDenied = "pairing.denied"
	// EventForceDisconnect tells the live session for a client to close;
	// it has been superseded or deactivated. No payload.
	EventForceDisconnect = "force.disconnect"
	// EventPrintJob carries a print job to the client's live session.
	// Payload: the protocol print.job message.
	EventPrintJob = "print.job"
)

// Event is one message delivered to every subscriber of a group.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event of the given type, marshaling payload as JSON.
// A nil payload produces an event with no payload.
func NewEvent(eventType string, payload any) (Event, error) {
	ev := Event{Type: eventType}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev.Payload = data
	return ev, nil
}

// PairingDecision is the payload of a pairing.approved event.
type PairingDecision struct {
	PrintClientID string `json:"print_client_id"`
}

// ErrLayerClosed is returned by operations on a closed layer.
var ErrLayerClosed = errors.New("pubsub: layer closed")

// Subscriber receives events for groups it has joined. Deliver must not
// block: implementations enqueue into a bounded buffer and drop on overflow.
type Subscriber interface {
	Deliver(event Event)
}

// Layer is the narrow group-broadcast interface consumed by sessions, the
// dispatcher, and the admin handlers. Send fans an event out to every
// current subscriber of the named group; a group with no subscribers
// swallows the event. Delivery is best-effort with no ordering guarantees
// between groups.
type Layer interface {
	Join(ctx context.Context, group string, sub Subscriber) error
	Leave(ctx context.Context, group string, sub Subscriber) error
	Send(ctx context.Context, group string, event Event) error
	Close() error
}
