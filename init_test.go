package cyw43439

import (
	"testing"

	"github.com/soypat/cyw43439/netlink"
	"github.com/soypat/cyw43439/whd"
)

func TestInitHappyPath(t *testing.T) {
	bus := newFakeBus()
	dev := New(bus, netlink.New())

	cfg := Config{
		Firmware: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		NVRAM:    []byte("wl_ssid=test\x00"),
	}
	if err := dev.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}

	up, err := dev.core_is_up(whd.CoreWLAN)
	if err != nil {
		t.Fatalf("core_is_up: %v", err)
	}
	if !up {
		t.Fatal("wlan core should be up after Init")
	}
}
