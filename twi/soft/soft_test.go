package soft

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/twibus/twid-go/twi"
)

// simBus models two open-drain lines shared by the master under test
// and an edge-driven responder. A line reads high only when nobody
// drives it low, so a released bit can still be observed low, which is
// exactly what the arbitration check relies on.
type simBus struct {
	masterSCL bool // true = released
	masterSDA bool
	slave     *responder

	sclJam bool // stuck device holding the clock low
	sdaJam bool // another master driving the data line low

	stretchReads int // clock reads forced low, models stretching

	rises int // SCL rising edges, the clock pulse count
}

func newSimBus() *simBus {
	return &simBus{masterSCL: true, masterSDA: true}
}

func (b *simBus) sclLevel() bool {
	return b.masterSCL && !b.sclJam
}

func (b *simBus) sdaLevel() bool {
	if b.sdaJam {
		return false
	}
	if b.slave != nil && b.slave.driveSDA {
		return false
	}
	return b.masterSDA
}

func (b *simBus) set(isSCL, level bool) {
	prevSCL, prevSDA := b.sclLevel(), b.sdaLevel()
	if isSCL {
		b.masterSCL = level
	} else {
		b.masterSDA = level
	}
	curSCL, curSDA := b.sclLevel(), b.sdaLevel()

	if curSCL && !prevSCL {
		b.rises++
	}
	if b.slave == nil {
		return
	}
	switch {
	case prevSCL && curSCL && prevSDA && !curSDA:
		b.slave.onStart()
	case prevSCL && curSCL && !prevSDA && curSDA:
		b.slave.onStop()
	case !prevSCL && curSCL:
		b.slave.onRise(curSDA)
	case prevSCL && !curSCL:
		b.slave.onFall()
	}
}

type simLine struct {
	bus   *simBus
	isSCL bool
}

func (l *simLine) High() { l.bus.set(l.isSCL, true) }
func (l *simLine) Low()  { l.bus.set(l.isSCL, false) }

func (l *simLine) Read() bool {
	if l.isSCL {
		if l.bus.stretchReads > 0 {
			l.bus.stretchReads--
			return false
		}
		return l.bus.sclLevel()
	}
	return l.bus.sdaLevel()
}

// responder is an edge-driven register-pointer memory device: the
// first byte of a write transaction sets the pointer, further writes
// store through it, reads return from it. The pointer survives a
// repeated start.
const (
	respIdle = iota
	respAddr
	respWrite
	respRead
	respReadAck
)

type responder struct {
	address byte

	state   int
	shift   byte
	bits    int
	dir     twi.Direction
	ackPend bool
	acking  bool

	driveSDA bool // pulling the data line low

	mem     [256]byte
	pointer byte
	fresh   bool

	starts  int
	stops   int
	written []byte
}

func newResponder(address byte) *responder {
	return &responder{address: address, state: respIdle}
}

func (r *responder) onStart() {
	r.starts++
	r.state = respAddr
	r.shift = 0
	r.bits = 0
	r.ackPend = false
	r.acking = false
	r.driveSDA = false
}

func (r *responder) onStop() {
	r.stops++
	r.state = respIdle
	r.driveSDA = false
}

func (r *responder) onRise(sda bool) {
	switch r.state {
	case respAddr, respWrite:
		if r.acking {
			return // acknowledgment clock
		}
		r.shift <<= 1
		if sda {
			r.shift |= 1
		}
		r.bits++
		if r.bits < 8 {
			return
		}
		if r.state == respAddr {
			if r.shift>>1 != r.address {
				r.state = respIdle
				return
			}
			r.dir = twi.Direction(r.shift & 0x01)
			if r.dir == twi.Write {
				r.fresh = true
			}
			r.ackPend = true
			return
		}
		// completed data byte
		if r.fresh {
			r.pointer = r.shift
			r.fresh = false
		} else {
			r.mem[r.pointer] = r.shift
			r.pointer++
		}
		r.written = append(r.written, r.shift)
		r.ackPend = true

	case respReadAck:
		if !sda {
			r.state = respRead
			r.bits = 0
		} else {
			r.state = respIdle
		}
	}
}

func (r *responder) onFall() {
	switch r.state {
	case respAddr, respWrite:
		if r.ackPend {
			r.driveSDA = true
			r.ackPend = false
			r.acking = true
			return
		}
		if r.acking {
			r.driveSDA = false
			r.acking = false
			r.shift = 0
			r.bits = 0
			if r.state == respAddr {
				if r.dir == twi.Read {
					r.state = respRead
					r.readFall()
				} else {
					r.state = respWrite
				}
			}
		}

	case respRead:
		r.readFall()
	}
}

func (r *responder) readFall() {
	if r.bits == 0 {
		r.shift = r.mem[r.pointer]
		r.pointer++
	}
	if r.bits < 8 {
		one := r.shift&(0x80>>r.bits) != 0
		r.driveSDA = !one
		r.bits++
		return
	}
	r.driveSDA = false
	r.state = respReadAck
}

func noDelay(time.Duration) {}

func newTestMaster(bus *simBus, cfg Config) *Master {
	if cfg.Delay == nil {
		cfg.Delay = noDelay
	}
	scl := &simLine{bus: bus, isSCL: true}
	sda := &simLine{bus: bus}
	return New(scl, sda, cfg)
}

func TestInitChecksBusFree(t *testing.T) {
	bus := newSimBus()
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatalf("init on a free bus: %s", err)
	}
	if m.Status() != twi.StatusInitComplete {
		t.Errorf("status after init = %02x", m.Status())
	}
}

func TestInitStuckClock(t *testing.T) {
	bus := newSimBus()
	bus.sclJam = true
	m := newTestMaster(bus, Config{})
	if err := m.Init(); !errors.Is(err, twi.ErrBusNotReady) {
		t.Fatalf("init = %v, want ErrBusNotReady", err)
	}
	if m.Status() != twi.StatusBusError {
		t.Errorf("status = %02x, want bus error", m.Status())
	}
	if bus.rises != 0 {
		t.Error("init attempted bus transitions on a stuck bus")
	}
}

func TestStartStopStatusFlag(t *testing.T) {
	bus := newSimBus()
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if m.Status()&twi.StatusTransmit == 0 {
		t.Error("transmit flag not set after start")
	}
	m.Stop()
	if m.Status()&twi.StatusTransmit != 0 {
		t.Error("transmit flag not cleared after stop")
	}
}

func TestAddressNack(t *testing.T) {
	bus := newSimBus()
	bus.slave = newResponder(0x50)
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x51, twi.Write); !errors.Is(err, twi.ErrAckFailed) {
		t.Fatalf("absent address = %v, want ErrAckFailed", err)
	}
	m.Stop()
}

func TestWriteTransactionWireTrace(t *testing.T) {
	bus := newSimBus()
	bus.slave = newResponder(0x3C)
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}

	payload := []byte{0xAE, 0xA8, 0x3F}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x3C, twi.Write); err != nil {
		t.Fatalf("address: %s", err)
	}
	for _, b := range payload {
		if err := m.Set(b); err != nil {
			t.Fatalf("set %02x: %s", b, err)
		}
	}
	m.Stop()

	if !bytes.Equal(bus.slave.written, payload) {
		t.Errorf("responder saw % x, want % x", bus.slave.written, payload)
	}
	if bus.slave.starts != 1 || bus.slave.stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1/1", bus.slave.starts, bus.slave.stops)
	}
	// nine clock pulses per byte (eight data, one acknowledgment) for
	// four bytes, plus one pulse each for the start and stop conditions
	if want := 9*4 + 2; bus.rises != want {
		t.Errorf("clock pulses = %d, want %d", bus.rises, want)
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	bus := newSimBus()
	bus.slave = newResponder(0x50)
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}

	// write [pointer, data...] then read back through a repeated start
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x50, twi.Write); err != nil {
		t.Fatal(err)
	}
	for _, b := range []byte{0x10, 0xAA, 0xBB} {
		if err := m.Set(b); err != nil {
			t.Fatalf("set %02x: %s", b, err)
		}
	}
	m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x50, twi.Write); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(0x10); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil { // repeated start
		t.Fatal(err)
	}
	if err := m.Address(0x50, twi.Read); err != nil {
		t.Fatal(err)
	}
	first, err := m.Get(true)
	if err != nil {
		t.Fatalf("get: %s", err)
	}
	second, err := m.Get(false)
	if err != nil {
		t.Fatalf("get: %s", err)
	}
	m.Stop()

	if first != 0xAA || second != 0xBB {
		t.Errorf("read back %02x %02x, want aa bb", first, second)
	}
	if bus.slave.starts != 3 {
		t.Errorf("starts = %d, want 3 (one repeated)", bus.slave.starts)
	}
}

func TestEveryByteValueRoundTrips(t *testing.T) {
	bus := newSimBus()
	bus.slave = newResponder(0x50)
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}

	// fill all 256 memory cells with their own value over the wire
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x50, twi.Write); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(0x00); err != nil { // pointer
		t.Fatal(err)
	}
	for i := 0; i < 256; i++ {
		if err := m.Set(byte(i)); err != nil {
			t.Fatalf("set %02x: %s", i, err)
		}
	}
	m.Stop()

	// and read every one of them back
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x50, twi.Write); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(0x00); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Address(0x50, twi.Read); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 256; i++ {
		b, err := m.Get(i < 255)
		if err != nil {
			t.Fatalf("get %d: %s", i, err)
		}
		if b != byte(i) {
			t.Fatalf("byte %d came back as %02x", i, b)
		}
	}
	m.Stop()
}

func TestArbitrationLost(t *testing.T) {
	bus := newSimBus()
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	// another master drives the data line low under our released 1 bit
	bus.sdaJam = true
	rises := bus.rises
	if err := m.Set(0x80); !errors.Is(err, twi.ErrArbitrationLost) {
		t.Fatalf("set = %v, want ErrArbitrationLost", err)
	}
	if bus.rises != rises {
		t.Error("loss detected only after raising the clock")
	}
}

func TestArbitrationNotCheckedOnZeroBits(t *testing.T) {
	bus := newSimBus()
	bus.slave = newResponder(0x00)
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	// a driven 0 cannot lose arbitration, so a foreign low during an
	// all-zeroes byte goes unnoticed through the data bits
	bus.sdaJam = true
	err := m.Set(0x00)
	if errors.Is(err, twi.ErrArbitrationLost) {
		t.Fatal("all-zeroes byte reported arbitration loss")
	}
}

func TestClockStretchingTolerated(t *testing.T) {
	bus := newSimBus()
	bus.slave = newResponder(0x50)
	m := newTestMaster(bus, Config{})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	bus.stretchReads = 20
	if err := m.Address(0x50, twi.Write); err != nil {
		t.Fatalf("address under stretching: %s", err)
	}
	if bus.stretchReads != 0 {
		t.Errorf("%d stretch reads left unconsumed", bus.stretchReads)
	}
	m.Stop()
}

func TestStretchTimeout(t *testing.T) {
	bus := newSimBus()
	m := newTestMaster(bus, Config{StretchTimeout: time.Millisecond})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	bus.sclJam = true
	if err := m.Set(0x00); !errors.Is(err, twi.ErrTimeout) {
		t.Fatalf("set with stuck clock = %v, want ErrTimeout", err)
	}
	if m.Status() != twi.StatusBusError {
		t.Errorf("status = %02x, want bus error", m.Status())
	}
}
