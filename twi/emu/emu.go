// Package emu connects the byte transport to an emulated bus over UDP,
// so the daemon and the display stack can be exercised on a developer
// machine with no wires at all. The package also ships the matching
// emulator server hosting scriptable responder devices.
//
// The wire format is deliberately tiny: every primitive is a two-byte
// request [op, arg] answered by [status, data], where status carries
// the twi error taxonomy and 0 means success. A PINGPING/PONGPONG
// probe detects a live emulator on connect.
package emu

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/twibus/twid-go/memlog"
	"github.com/twibus/twid-go/twi"
)

const emulatorNetwork = "udp"

var (
	emulatorPing = []byte("PINGPING")
	emulatorPong = []byte("PONGPONG")
)

// Request opcodes.
const (
	opInit    = 'I'
	opStart   = 'S'
	opStop    = 'P'
	opSet     = 'W'
	opGet     = 'R'
	opDisable = 'D'
)

// Wire status codes, the twi taxonomy flattened to one byte.
const (
	wireOK          = 0
	wireStart       = 1
	wireArbitration = 2
	wireAck         = 3
	wireGeneral     = 4
	wireNotReady    = 5
)

func wireToErr(code byte) error {
	switch code {
	case wireOK:
		return nil
	case wireStart:
		return twi.ErrStartFailed
	case wireArbitration:
		return twi.ErrArbitrationLost
	case wireAck:
		return twi.ErrAckFailed
	case wireNotReady:
		return twi.ErrBusNotReady
	}
	return twi.ErrGeneralFailure
}

func errToWire(err error) byte {
	switch err {
	case nil:
		return wireOK
	case twi.ErrStartFailed:
		return wireStart
	case twi.ErrArbitrationLost:
		return wireArbitration
	case twi.ErrAckFailed:
		return wireAck
	case twi.ErrBusNotReady:
		return wireNotReady
	}
	return wireGeneral
}

// roundtripTimeout bounds one UDP exchange; a vanished emulator should
// error out, not hang the bridge.
const roundtripTimeout = 3 * time.Second

// Bus is a twi.ByteTransport backed by an emulator.
type Bus struct {
	conn   net.Conn
	log    *memlog.Writer
	status byte
}

// Connect dials the emulator on a local UDP port and verifies it is
// alive with a ping exchange.
func Connect(port int, log *memlog.Writer) (*Bus, error) {
	conn, err := net.Dial(emulatorNetwork, fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}

	b := &Bus{conn: conn, log: log}
	if err := b.ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) ping() error {
	if err := b.conn.SetDeadline(time.Now().Add(roundtripTimeout)); err != nil {
		return err
	}
	if _, err := b.conn.Write(emulatorPing); err != nil {
		return err
	}
	response := make([]byte, len(emulatorPong))
	if _, err := b.conn.Read(response); err != nil {
		return err
	}
	if !bytes.Equal(response, emulatorPong) {
		return fmt.Errorf("emu: unexpected ping response %q", response)
	}
	return nil
}

// Close releases the UDP socket. The emulator keeps running.
func (b *Bus) Close() error {
	return b.conn.Close()
}

func (b *Bus) roundtrip(op, arg byte) (byte, byte, error) {
	if err := b.conn.SetDeadline(time.Now().Add(roundtripTimeout)); err != nil {
		return 0, 0, err
	}
	if _, err := b.conn.Write([]byte{op, arg}); err != nil {
		return 0, 0, err
	}
	response := make([]byte, 2)
	if _, err := b.conn.Read(response); err != nil {
		return 0, 0, err
	}
	return response[0], response[1], nil
}

// call runs one primitive and folds transport failures into the bus
// error taxonomy; a lost emulator is indistinguishable from a broken
// bus as far as upper layers care.
func (b *Bus) call(op, arg byte) (byte, error) {
	code, data, err := b.roundtrip(op, arg)
	if err != nil {
		b.log.Log("emu - roundtrip: " + err.Error())
		b.status = twi.StatusBusError
		return 0, twi.ErrGeneralFailure
	}
	return data, wireToErr(code)
}

func (b *Bus) Init() error {
	_, err := b.call(opInit, 0)
	if err != nil {
		b.status = twi.StatusBusError
		return err
	}
	b.status = twi.StatusInitComplete
	return nil
}

func (b *Bus) Disable() {
	_, _ = b.call(opDisable, 0)
	b.status = twi.StatusInitComplete
}

func (b *Bus) Status() byte {
	return b.status
}

func (b *Bus) Start() error {
	_, err := b.call(opStart, 0)
	if err != nil {
		return err
	}
	b.status |= twi.StatusTransmit
	return nil
}

func (b *Bus) Stop() {
	_, _ = b.call(opStop, 0)
	b.status &^= twi.StatusTransmit
}

func (b *Bus) Address(addr byte, dir twi.Direction) error {
	return b.Set(addr<<1 | byte(0x01&dir))
}

func (b *Bus) Set(data byte) error {
	_, err := b.call(opSet, data)
	return err
}

func (b *Bus) Get(ack bool) (byte, error) {
	var arg byte
	if ack {
		arg = 1
	}
	return b.call(opGet, arg)
}
