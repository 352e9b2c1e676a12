package whd

// Bluetooth-over-gSPI (BTSDIO) constants. Reconstructed from the call
// sites in the driver's bluetooth.go, which references these names
// without the subpackage that defined them.

const (
	CYW_BT_BASE_ADDRESS uint32 = 0x19000000

	BT2WLAN_PWRUP_ADDR uint32 = 0x3000
	BT2WLAN_PWRUP_WAKE uint32 = 0x02

	WLAN_RAM_BASE_REG_ADDR uint32 = 0x19000000
	BT_CTRL_REG_ADDR       uint32 = 0x18000c7c
	HOST_CTRL_REG_ADDR     uint32 = 0x18000c78

	SDIO_BASE_ADDRESS uint32 = 0x18002000
	SDIO_INT_STATUS   uint32 = 0x20

	I_HMB_FC_CHANGE uint32 = 1 << 5
)

// BTSDIO ring-buffer offsets, relative to the negotiated BT base
// address (read from WLAN_RAM_BASE_REG_ADDR during bt_init_buffers).
const (
	BTSDIO_OFFSET_HOST2BT_IN   uint32 = 0x00
	BTSDIO_OFFSET_HOST2BT_OUT  uint32 = 0x04
	BTSDIO_OFFSET_BT2HOST_IN   uint32 = 0x08
	BTSDIO_OFFSET_BT2HOST_OUT  uint32 = 0x0c
	BTSDIO_OFFSET_HOST_WRITE_BUF uint32 = 0x10
	BTSDIO_OFFSET_HOST_READ_BUF  uint32 = 0x1010

	BTSDIO_FWBUF_SIZE uint32 = 0x1000
)

// BTSDIO control-register bitmasks.
const (
	BTSDIO_REG_DATA_VALID_BITMASK uint32 = 0x01
	BTSDIO_REG_FW_RDY_BITMASK     uint32 = 0x02
	BTSDIO_REG_SW_RDY_BITMASK     uint32 = 0x04
	BTSDIO_REG_BT_AWAKE_BITMASK   uint32 = 0x08
	BTSDIO_REG_WAKE_BT_BITMASK    uint32 = 0x10
)

// BTFW hex-patch-line addressing modes.
const (
	BTFW_ADDR_MODE_EXTENDED int32 = iota
	BTFW_ADDR_MODE_SEGMENT
	BTFW_ADDR_MODE_LINEAR32
)

// BTFW hex-patch-line record types, following the Intel-HEX
// conventions the Broadcom BT patch format reuses.
const (
	BTFW_HEX_LINE_TYPE_DATA                      uint8 = 0x00
	BTFW_HEX_LINE_TYPE_EXTENDED_ADDRESS          uint8 = 0x04
	BTFW_HEX_LINE_TYPE_EXTENDED_SEGMENT_ADDRESS  uint8 = 0x02
	BTFW_HEX_LINE_TYPE_ABSOLUTE_32BIT_ADDRESS    uint8 = 0x05
)
