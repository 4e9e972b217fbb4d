package portcfg

import (
	"github.com/r3labs/diff/v3"
)

// Kind distinguishes the three physical-port shapes the configurator treats
// differently, per an edge rule and switch-port-0 branch.
type Kind int

const (
	// KindEndPort is an ordinary CA, router, or enhanced-LMC-capable
	// switch port 0 being configured like any other port.
	KindEndPort Kind = iota
	// KindSwitchPort0 is a (base, non-enhanced) switch management port.
	KindSwitchPort0
	// KindSwitchNonZero is any non-zero switch port: per the
	// edge rule, the LID manager never touches these; they belong to a
	// later link-state manager.
	KindSwitchNonZero
)

// ManagerConfig bundles the manager-wide configuration options the design
// says are overlaid verbatim into every PortInfo.
type ManagerConfig struct {
	MKey                    uint64
	SubnetPrefix            uint64
	MasterSMBaseLID         uint16
	MKeyLeasePeriod         uint16
	SubnetTimeout           uint8
	LocalPhyErrorsThreshold uint8
	OverrunErrorsThreshold  uint8
	NoClientsRereg          bool
}

// Request bundles everything Configure needs to build one port's PortInfo
// update, beyond the previously observed PortInfo.
type Request struct {
	Kind    Kind
	BaseLID uint16
	LMC     uint8

	// EnhancedSP0 only matters when Kind == KindSwitchPort0: an enhanced
	// SP0 gets its lmc byte set like a normal port; a base SP0 does not.
	EnhancedSP0 bool

	IsNew                bool
	FirstTimeMasterSweep bool
	ClientReregCapable   bool

	// LinkWidthSupported, NeighborMTU, and OperationalVLs are recomputed
	// from the link peer by the caller (internal/topology accessors);
	// they only apply to KindEndPort.
	LinkWidthSupported uint8
	NeighborMTU        uint8
	OperationalVLs     uint8

	Config ManagerConfig
}

// Outcome is the result of configuring one port.
type Outcome struct {
	Next PortInfo

	// Send is true iff a PortInfoSet request must be emitted: any diffed
	// field changed, or FirstTimeMasterSweep forced a resync.
	Send bool

	// TransientLinkDown is true when NeighborMTU or OperationalVLs
	// actually changed, per the MTU/op-VL transition rule: the
	// local port should be scheduled through a transient LinkDown.
	TransientLinkDown bool

	// PeerToInit mirrors TransientLinkDown: the remote physical port's
	// cached state should be preemptively set to Init, since the peer
	// will follow the local port down.
	PeerToInit bool
}

// Configure implements the design. prev is the last-observed PortInfo for
// this port, or nil if none has ever been observed.
func Configure(prev *PortInfo, req Request) Outcome {
	if req.Kind == KindSwitchNonZero {
		return Outcome{Next: derefOr(prev), Send: false}
	}

	next := derefOr(prev)

	next.PortPhysicalState = PhysStateNoChange
	next.LinkDownDefState = LinkDownDefPolling
	next.PortState = PortStateNoChange

	next.MKey = req.Config.MKey
	next.SubnetPrefix = req.Config.SubnetPrefix
	next.MasterSMBaseLID = req.Config.MasterSMBaseLID
	next.MKeyLeasePeriod = req.Config.MKeyLeasePeriod
	next.SubnetTimeout = req.Config.SubnetTimeout
	next.BaseLID = req.BaseLID

	var mtuChanged, vlsChanged bool

	switch req.Kind {
	case KindEndPort:
		next.LinkWidthEnabled = req.LinkWidthSupported
		next.LMC = req.LMC
		next.MKeyProtectBits = 0

		mtuChanged = next.NeighborMTU != req.NeighborMTU
		vlsChanged = next.OperationalVLs != req.OperationalVLs
		next.NeighborMTU = req.NeighborMTU
		next.OperationalVLs = req.OperationalVLs

		next.LocalPhyErrors = req.Config.LocalPhyErrorsThreshold
		next.OverrunErrors = req.Config.OverrunErrorsThreshold

	case KindSwitchPort0:
		// "NeighborMTU = MTU-Cap of the previous PortInfo": this
		// subsystem has no separate MTU-Cap field, so it reuses the
		// previous NeighborMTU slot as the cap, per the design.
		if prev != nil {
			next.NeighborMTU = prev.NeighborMTU
		}

		if req.EnhancedSP0 {
			next.LMC = req.LMC
		}
	}

	next.ClientReregister = (req.FirstTimeMasterSweep || req.IsNew) && !req.Config.NoClientsRereg && req.ClientReregCapable

	changed := req.FirstTimeMasterSweep || !equalPortInfo(prev, next)

	return Outcome{
		Next:              next,
		Send:              changed,
		TransientLinkDown: mtuChanged || vlsChanged,
		PeerToInit:        mtuChanged || vlsChanged,
	}
}

func derefOr(p *PortInfo) PortInfo {
	if p == nil {
		return PortInfo{}
	}

	return *p
}

// equalPortInfo reports whether next is identical to prev, field by field.
// A nil prev (never observed) is always treated as "changed", matching the
// configurator forcing a send on a port's first appearance.
func equalPortInfo(prev *PortInfo, next PortInfo) bool {
	if prev == nil {
		return false
	}

	changelog, err := diff.Diff(*prev, next)
	if err != nil {
		// A structural diff failure (mismatched types) should never
		// happen between two PortInfo values of the same shape; treat
		// it conservatively as "changed" so the update is still sent.
		return false
	}

	return len(changelog) == 0
}
