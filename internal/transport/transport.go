// Package transport abstracts the MAD (management datagram) layer that
// the design declares external: submit_portinfo_set(path, payload, attr,
// modifier, context) -> ack/timeout. The manager never blocks on a reply;
// Submit hands the request off and returns, invoking the callback later from
// another goroutine.
package transport

import (
	"context"

	"github.com/google/uuid"
)

// Attribute is the IBA management attribute being set. PortInfo is the only
// one this subsystem emits.
type Attribute uint16

// AttrPortInfo is the IBA PortInfo attribute ID.
const AttrPortInfo Attribute = 0x0015

// Path identifies the management-packet route to a destination port; its
// internal shape is the MAD layer's concern, so this subsystem only needs
// opaque identity and a human-readable label for logging.
type Path struct {
	DestLID uint16
	Label   string
}

// Result is delivered to a Submit callback once a reply (or timeout)
// arrives.
type Result struct {
	CorrelationID uuid.UUID
	Timeout       bool
	Err           error
}

// PortInfoSetter is the abstract MAD-layer collaborator from the design.
type PortInfoSetter interface {
	// Submit is non-blocking: it returns once the request is handed off to
	// the transport, not once a reply arrives. cb is invoked at most once,
	// from another goroutine, when the outcome is known; Noop never invokes
	// it.
	Submit(ctx context.Context, path Path, payload [64]byte, attr Attribute, modifier uint8, cb func(Result)) error
}
