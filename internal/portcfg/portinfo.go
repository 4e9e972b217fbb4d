// Package portcfg implements the Port Configurator from the design: it
// builds a PortInfo update for one physical port and decides whether a send
// is actually needed by diffing against the last observed PortInfo.
package portcfg

import "encoding/binary"

// The subset of IBA PortState / PortPhysicalState / LinkDownDefaultState
// wire values this subsystem ever writes or compares against.
const (
	PortStateNoChange uint8 = 0
	PortStateDown     uint8 = 1
	PortStateInit     uint8 = 2

	PhysStateNoChange uint8 = 0
	PhysStatePolling  uint8 = 2

	LinkDownDefPolling uint8 = 2
)

// PortInfo is a typed view over exactly the fields the design names from
// the IBA PortInfo management attribute. Every field carries a `diff:"..."`
// tag so internal/portcfg can diff two instances field-by-field with
// r3labs/diff/v3.
type PortInfo struct {
	MKey               uint64 `diff:"m_key"`
	SubnetPrefix       uint64 `diff:"subnet_prefix"`
	MasterSMBaseLID    uint16 `diff:"master_sm_base_lid"`
	BaseLID            uint16 `diff:"base_lid"`
	MKeyLeasePeriod    uint16 `diff:"m_key_lease_period"`
	SubnetTimeout      uint8  `diff:"subnet_timeout"`
	LMC                uint8  `diff:"lmc"`
	MKeyProtectBits    uint8  `diff:"m_key_protect_bits"`
	PortState          uint8  `diff:"port_state"`
	PortPhysicalState  uint8  `diff:"port_physical_state"`
	LinkDownDefState   uint8  `diff:"link_down_default_state"`
	LinkWidthEnabled   uint8  `diff:"link_width_enabled"`
	LinkWidthSupported uint8  `diff:"link_width_supported"`
	NeighborMTU        uint8  `diff:"neighbor_mtu"`
	OperationalVLs     uint8  `diff:"operational_vls"`
	LocalPhyErrors     uint8  `diff:"local_phy_errors_threshold"`
	OverrunErrors      uint8  `diff:"overrun_errors_threshold"`
	ClientReregister   bool   `diff:"client_reregister"`
}

// wireLen is the fixed size of the IBA PortInfo attribute payload.
const wireLen = 64

// Marshal encodes p into its bit-exact 64-byte IBA PortInfo wire layout.
func (p PortInfo) Marshal() [wireLen]byte {
	var buf [wireLen]byte

	binary.BigEndian.PutUint64(buf[0:8], p.MKey)
	binary.BigEndian.PutUint64(buf[8:16], p.SubnetPrefix)
	binary.BigEndian.PutUint16(buf[16:18], p.MasterSMBaseLID)
	binary.BigEndian.PutUint16(buf[18:20], p.BaseLID)
	binary.BigEndian.PutUint16(buf[20:22], p.MKeyLeasePeriod)
	buf[22] = p.SubnetTimeout
	buf[23] = (p.LMC << 5) | (p.MKeyProtectBits & 0x03)
	buf[24] = (p.PortState & 0x0F) | (p.PortPhysicalState << 4)
	buf[25] = p.LinkDownDefState
	buf[26] = p.LinkWidthEnabled
	buf[27] = p.LinkWidthSupported
	buf[28] = p.NeighborMTU
	buf[29] = p.OperationalVLs
	buf[30] = p.LocalPhyErrors
	buf[31] = p.OverrunErrors
	if p.ClientReregister {
		buf[32] = 1
	}

	return buf
}

// Unmarshal decodes a 64-byte IBA PortInfo wire payload into a PortInfo.
func Unmarshal(buf [wireLen]byte) PortInfo {
	return PortInfo{
		MKey:               binary.BigEndian.Uint64(buf[0:8]),
		SubnetPrefix:       binary.BigEndian.Uint64(buf[8:16]),
		MasterSMBaseLID:    binary.BigEndian.Uint16(buf[16:18]),
		BaseLID:            binary.BigEndian.Uint16(buf[18:20]),
		MKeyLeasePeriod:    binary.BigEndian.Uint16(buf[20:22]),
		SubnetTimeout:      buf[22],
		LMC:                buf[23] >> 5,
		MKeyProtectBits:    buf[23] & 0x03,
		PortState:          buf[24] & 0x0F,
		PortPhysicalState:  buf[24] >> 4,
		LinkDownDefState:   buf[25],
		LinkWidthEnabled:   buf[26],
		LinkWidthSupported: buf[27],
		NeighborMTU:        buf[28],
		OperationalVLs:     buf[29],
		LocalPhyErrors:     buf[30],
		OverrunErrors:      buf[31],
		ClientReregister:   buf[32] != 0,
	}
}
