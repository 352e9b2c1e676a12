package whd

// Core identifies one of the chip's two AI-controlled cores that the
// boot sequencer brings in and out of reset.
type Core uint8

const (
	CoreWLAN Core = iota
	CoreSOCSRAM
)

// BaseAddr returns the backplane base address of the AI wrapper
// registers for the core, within the CYW43439 chip-family address map.
func (c Core) BaseAddr() uint32 {
	switch c {
	case CoreWLAN:
		return 0x18002000
	case CoreSOCSRAM:
		return CYW43439SocsramBase
	default:
		panic("whd: unknown core")
	}
}

func (c Core) String() string {
	switch c {
	case CoreWLAN:
		return "WLAN"
	case CoreSOCSRAM:
		return "SOCSRAM"
	default:
		return "unknown core"
	}
}

// ChipRAM describes the RAM layout parameters of a supported chip
// family. Only CYW43439 is populated today; a second family is added
// by extending this table, not by touching the boot sequencer.
type ChipRAM struct {
	AtcmRAMBase     uint32
	SocsramBase     uint32
	ChipRAMSize     uint32
	SocramSrmemSize uint32
}

// CYW43439 is the RAM layout of the chip this driver targets.
var CYW43439 = ChipRAM{
	AtcmRAMBase:     CYW43439AtcmRAMBase,
	SocsramBase:     CYW43439SocsramBase,
	ChipRAMSize:     CYW43439ChipRAMSize,
	SocramSrmemSize: CYW43439SocramSrmemSize,
}
