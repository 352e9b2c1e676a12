//go:build tinygo || cyw43439_hw

// Command cywmqtt brings up the radio, joins the host's TCP/IP stack
// over netlink, and publishes a single MQTT message, exercising the
// full domain stack: cyw43439 for the radio, netlink+seqs for TCP/IP,
// and natiu-mqtt for the application protocol on top.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/netlink"
	"github.com/soypat/cyw43439/tracesaleae"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/seqs/stacks"
)

// enableTrace records every SPI register transaction to a Saleae
// Logic2-compatible capture at traceOutPath, for diagnosing boot
// sequencing or credit exhaustion. Off by default: the capture buffer
// and per-transaction pulse bookkeeping aren't free.
const (
	enableTrace  = false
	traceOutPath = "cywmqtt-trace.sal"
)

func main() {
	logger := slog.Default()

	bus := newBus()
	var rec *tracesaleae.Recorder
	if enableTrace {
		rec = tracesaleae.NewRecorder(bus, 1_000_000)
		bus = rec
	}

	nl := netlink.New()
	dev := cyw43439.New(bus, nl)

	if err := dev.Init(cyw43439.Config{EnableLogs: true, Logger: logger}); err != nil {
		logger.Error("radio init failed", slog.String("err", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ioctls := cyw43439.NewIoctlState()
	events := &cyw43439.EventQueue{}
	go func() {
		if err := dev.Run(ctx, ioctls, events); err != nil {
			logger.Error("runner stopped", slog.String("err", err.Error()))
		}
	}()

	mac := [6]byte{0x00, 0x0F, 0x27, 0x01, 0x02, 0x03}
	stack := stacks.NewPortStack(stacks.PortStackConfig{
		MAC:             mac,
		MaxOpenPortsTCP: 1,
	})

	go pumpEthernet(ctx, nl, stack)

	conn, err := stacks.NewTCPConn(stack, stacks.TCPConnConfig{TxBufSize: 2048, RxBufSize: 2048})
	if err != nil {
		logger.Error("tcp conn failed", slog.String("err", err.Error()))
		return
	}

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
	})
	if err := client.Connect(ctx, conn, &mqtt.ConnectParams{
		ClientID: []byte("cyw43439-demo"),
	}); err != nil {
		logger.Error("mqtt connect failed", slog.String("err", err.Error()))
		return
	}

	if err := client.PublishPayload(ctx, mqtt.Header{QoS: mqtt.QoS0}, []byte("cyw43439/demo"), []byte("hello")); err != nil {
		logger.Error("publish failed", slog.String("err", err.Error()))
	}

	if rec != nil {
		if err := rec.Save(traceOutPath); err != nil {
			logger.Error("trace save failed", slog.String("err", err.Error()))
		}
	}
}

// pumpEthernet ferries frames between netlink's host-side rings and
// the seqs stack's Ethernet handler until ctx is cancelled.
func pumpEthernet(ctx context.Context, nl *netlink.Device, stack *stacks.PortStack) {
	txbuf := make([]byte, netlink.MTU)
	for {
		frame, err := nl.DequeueRX(ctx)
		if err != nil {
			return
		}
		if frame != nil {
			stack.RecvEth(frame)
		}
		n, _ := stack.HandleEth(txbuf)
		if n > 0 {
			nl.QueueTX(txbuf[:n])
		}
	}
}
