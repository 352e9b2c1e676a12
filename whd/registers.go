// Package whd holds wire-layout and register definitions for the
// Broadcom CYW43439 combo radio, shared between the Wi-Fi runner and
// the Bluetooth HCI transport.
package whd

// SPI function addressing (gSPI "backplane" model). Each register
// access is addressed by (function, register) pairs; F1 additionally
// exposes a sliding 32KiB window over the chip's full backplane
// address space.
const (
	FuncBus       = 0 // F0: bus/SPI config registers.
	FuncBackplane = 1 // F1: backplane window access.
	FuncWLAN      = 2 // F2: WLAN packet FIFO (bulk TX/RX).
)

// F0 bus config registers, plus RegBackplaneFunction2Watermark, which
// is accessed through F1.
const (
	RegBusControl               = 0x0
	RegBusInterrupt             = 0x04
	RegBusInterruptEnable       = 0x06
	RegBusStatus                = 0x8
	RegBusTestRO                = 0x14
	RegBusTestRW                = 0x18
	RegBusRespDelay             = 0x1
	RegBackplaneFunction2Watermark = 0x10008
)

// F1 backplane registers.
const (
	RegBackplaneAddrLow    = 0x1000A
	RegBackplaneAddrMid    = 0x1000B
	RegBackplaneAddrHigh   = 0x1000C
	RegBackplaneChipClockCSR = 0x1000E
	RegBackplaneWakeupCtrl = 0x1001E
	RegBackplanePullUp     = 0x1000F
	RegBackplaneSleepCSR   = 0x1001F
)

// Interrupt bits (F0 REG_BUS_INTERRUPT / REG_BUS_INTERRUPT_ENABLE).
const (
	IRQDataUnavailable   = 0x0001
	IRQF2FIFOLowWatermark = 0x0004
	IRQF2FIFOOverflow    = 0x0008
	IRQF2FIFOIntr        = 0x0010
	IRQF1Overflow        = 0x0080
	IRQF2PacketAvailable = 0x2000
	IRQF3PacketAvailable = 0x4000
)

// Bus status register (F0 REG_BUS_STATUS) bit layout.
const (
	StatusDataNotAvailable = 1 << 0
	StatusUnderflow        = 1 << 1
	StatusOverflow         = 1 << 2
	StatusF2Interrupt      = 1 << 3
	StatusF2RxReady        = 1 << 5
	StatusF2PacketAvailable = 1 << 8
	StatusF2PacketLenMask  = 0x7FE00000
	StatusF2PacketLenShift = 21
)

// Backplane chip clock CSR bits.
const (
	BackplaneALPAvailReq = 0x08
	BackplaneALPAvail    = 0x40
	BackplaneHTAvail     = 0x80
)

// AI (AXI interconnect) core control register offsets, relative to a
// core's backplane base address.
const (
	AIIOCtrlOffset   = 0x408
	AIResetCtrlOffset = 0x800

	AIIOCtrlBitFGC     = 0x02
	AIIOCtrlBitClockEn = 0x01

	AIResetCtrlBitReset = 0x01
)

// Backplane window size: each F1 address window covers 64KiB of the
// chip's address space, matching exactly what RegBackplaneAddrHigh and
// RegBackplaneAddrMid can address (bits 31:16); crossing a window
// boundary requires sliding those two registers before continuing the
// transfer. RegBackplaneAddrLow is left unused by this driver: it only
// matters for sub-window addressing finer than a single backplane
// register access, which setBackplaneWindow never needs.
const BackplaneWindowSize = 0x10000

// RegChipIDAddr is the backplane address of the chip-id register,
// read once during boot for diagnostics (spec.md §4.3 step 3).
const RegChipIDAddr uint32 = 0x18000000

// CYW43439 chip-family parameters.
const (
	CYW43439ChipRAMBase    = 0x0
	CYW43439AtcmRAMBase    = 0x198000
	CYW43439SocsramBase    = 0x18004000
	CYW43439ChipRAMSize    = 512 * 1024
	CYW43439SocramSrmemSize = 64 * 1024
)
