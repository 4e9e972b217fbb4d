package topology

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// fixturePort is the YAML shape of one port in a discovery fixture file,
// standing in for what a real MAD-based discovery engine would learn by
// walking the subnet (the design external collaborator).
type fixturePort struct {
	GUID               string `yaml:"guid"`
	SwitchPort0        bool   `yaml:"switch_port0"`
	EnhancedLMC        bool   `yaml:"enhanced_lmc"`
	IsSwitch           bool   `yaml:"is_switch"`
	PortNum            uint8  `yaml:"port_num"`
	CurrentBaseLID     uint16 `yaml:"current_base_lid"`
	CurrentLIDCount    uint16 `yaml:"current_lid_count"`
	IsNew              bool   `yaml:"is_new"`
	ClientReregCapable bool   `yaml:"client_rereg_capable"`
	LinkWidthSupported uint8  `yaml:"link_width_supported"`
	NeighborMTU        uint8  `yaml:"neighbor_mtu"`
	OperationalVLs     uint8  `yaml:"operational_vls"`
	SMPort             bool   `yaml:"sm_port"`
}

type fixtureFile struct {
	Ports []fixturePort `yaml:"ports"`
}

// LoadFixture reads a YAML discovery snapshot from path and returns a
// Static discovery set plus the GUID of the port marked sm_port (0 if
// none is marked).
func LoadFixture(path string) (*Static, GUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading discovery fixture %q: %w", path, err)
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, 0, fmt.Errorf("parsing discovery fixture %q: %w", path, err)
	}

	static := NewStatic()
	var smGUID GUID

	for _, fp := range file.Ports {
		guid, err := parseGUID(fp.GUID)
		if err != nil {
			return nil, 0, fmt.Errorf("fixture %q: %w", path, err)
		}

		p := Port{
			GUID:               guid,
			CurrentBaseLID:     fp.CurrentBaseLID,
			CurrentLIDCount:    fp.CurrentLIDCount,
			IsNew:              fp.IsNew,
			IsSwitch:           fp.IsSwitch,
			PortNum:            fp.PortNum,
			ClientReregCapable: fp.ClientReregCapable,
			LinkWidthSupported: fp.LinkWidthSupported,
			NeighborMTU:        fp.NeighborMTU,
			OperationalVLs:     fp.OperationalVLs,
		}

		if fp.SwitchPort0 {
			static.AddSwitchPort0(p, fp.EnhancedLMC)
		} else {
			static.AddPort(p)
		}

		if fp.SMPort {
			smGUID = guid
		}
	}

	return static, smGUID, nil
}

func parseGUID(s string) (GUID, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid guid %q: %w", s, err)
	}

	return GUID(v), nil
}
