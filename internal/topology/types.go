// Package topology models the discovered subnet as a GUID-keyed arena of
// ports, standing in for the subnet-discovery collaborator that the design
// declares external. Ports are plain values keyed by GUID (see Static);
// there are no pointers between ports, physical ports, and nodes, so the set
// can be copied, iterated, and tested without reference cycles. This package
// defines no node or physical-port tables.
package topology

import "context"

// GUID is a 64-bit port-unique identifier, hardware-stable across restarts.
type GUID uint64

// PortIndex is an integer port index; nothing in this module uses it.
type PortIndex int

// Port is the read-only view the LID manager needs of one discovered,
// physical port. It intentionally omits everything the manager does not
// touch (link speed, vendor info, ...).
type Port struct {
	GUID GUID

	// NodeIndex and PhysPortIndex are opaque indices supplied by discovery;
	// nothing in this module reads them.
	NodeIndex     int
	PhysPortIndex int

	// CurrentBaseLID is the LID the port is presently advertising, or 0 if
	// none (a brand-new, never-assigned port).
	CurrentBaseLID uint16

	// CurrentLIDCount is how many LIDs the port's currently-advertised range
	// spans; a zero count is treated as 1.
	CurrentLIDCount uint16

	// IsNew is true if this port was not present in the previous sweep.
	IsNew bool

	// IsSwitch and PortNum classify the physical port for the Port
	// Configurator's Kind switch (the design): IsSwitch && PortNum != 0
	// is a switch's data port, never touched by this subsystem. PortNum is
	// always 0 for switch port 0 and for CA/router ports.
	IsSwitch bool
	PortNum  uint8

	// ClientReregCapable reports whether the port's capability mask
	// advertises ClientReregister support; Configure gates setting that
	// bit on it.
	ClientReregCapable bool

	// LinkWidthSupported, NeighborMTU, and OperationalVLs are the link
	// peer's negotiated values, as recomputed by discovery for every
	// sweep; they feed straight into the Port Configurator's request.
	LinkWidthSupported uint8
	NeighborMTU        uint8
	OperationalVLs     uint8

	// switchPort0 is non-nil only for a switch's management port (SP0).
	switchPort0 *sp0Info
}

type sp0Info struct {
	enhancedLMC bool
}

// IsSwitchPort0 reports whether p is a switch's management port.
func (p Port) IsSwitchPort0() bool {
	return p.switchPort0 != nil
}

// IsEnhancedSP0 reports whether p is an SP0 that is enhanced-LMC-capable
// (accepts N LIDs like any other port) as opposed to a base SP0 (always 1).
func (p Port) IsEnhancedSP0() bool {
	return p.switchPort0 != nil && p.switchPort0.enhancedLMC
}

// NeedsSingleLID reports whether p needs exactly 1 LID regardless of LMC:
// true for a base (non-enhanced) switch port 0, false otherwise.
func (p Port) NeedsSingleLID() bool {
	return p.IsSwitchPort0() && !p.IsEnhancedSP0()
}

// CurrentRange returns the port's currently-advertised LID range as lo and
// hi, or ok=false if CurrentBaseLID is 0.
func (p Port) CurrentRange() (lo, hi uint16, ok bool) {
	if p.CurrentBaseLID == 0 {
		return 0, 0, false
	}

	n := p.CurrentLIDCount
	if n == 0 {
		n = 1
	}

	return p.CurrentBaseLID, p.CurrentBaseLID + n - 1, true
}

// Discovery is the subnet-discovery collaborator's interface, as named in
// the design. A real discovery engine supplies the live port set; Static (in
// this package) is an in-memory stand-in for tests and standalone running.
type Discovery interface {
	// AllPorts returns every currently discovered port, SM's own port
	// included.
	AllPorts(ctx context.Context) ([]Port, error)

	// SMPort looks up the SM's own port by GUID. ok is false if the SM's
	// port has not (yet) been discovered.
	SMPort(ctx context.Context, smGUID GUID) (Port, bool, error)
}
