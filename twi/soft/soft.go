// Package soft bit-bangs a two-wire bus master over two open-drain
// signal lines. Bit timing is derived from the configured bus clock,
// clock stretching by the responder is tolerated on every rising edge
// and arbitration against another master is detected while the clock
// is still low.
package soft

import (
	"time"

	"github.com/twibus/twid-go/gpio"
	"github.com/twibus/twid-go/twi"
)

// DefaultBusClock is used when Config.BusClock is zero. 100 kHz is
// standard-mode speed and what the usual display controllers expect.
const DefaultBusClock = 100_000

// Config carries the construction-time parameters of a Master. The C
// heritage of these knobs is compile-time macros; here they are plain
// fields with zero values meaning "default".
type Config struct {
	// BusClock is the bus frequency in hertz. The half-period delay
	// of every clock phase is computed from it.
	BusClock int

	// StretchTimeout bounds the busy-wait for a responder that holds
	// the clock low. Zero keeps the baseline contract: wait forever.
	// With a bound set, an expired wait surfaces as twi.ErrTimeout
	// and marks the session status as bus error.
	StretchTimeout time.Duration

	// Interrupts, when non-nil, is engaged for the duration of every
	// start condition and byte transfer so preemption cannot stretch
	// a bit. The surrounding system is starved for tens to low
	// hundreds of microseconds per byte.
	Interrupts gpio.Interrupts

	// Delay overrides the half-period wait. Tests substitute a no-op;
	// the default is time.Sleep, which on a general-purpose kernel
	// gives a slower but still correct bus.
	Delay func(time.Duration)
}

// Master drives SCL and SDA directly. One Master per physical bus;
// concurrent use is undefined, serialize in the caller.
type Master struct {
	scl gpio.Line
	sda gpio.Line

	half    time.Duration
	stretch time.Duration
	irq     gpio.Interrupts
	delay   func(time.Duration)

	status byte
}

// New wires a Master to its two lines. No bus traffic happens until
// Init.
func New(scl, sda gpio.Line, cfg Config) *Master {
	clock := cfg.BusClock
	if clock <= 0 {
		clock = DefaultBusClock
	}
	delay := cfg.Delay
	if delay == nil {
		delay = time.Sleep
	}
	var irq gpio.Interrupts = gpio.Unblocked{}
	if cfg.Interrupts != nil {
		irq = cfg.Interrupts
	}
	return &Master{
		scl:     scl,
		sda:     sda,
		half:    time.Second / time.Duration(2*clock),
		stretch: cfg.StretchTimeout,
		irq:     irq,
		delay:   delay,
	}
}

// Init releases both lines to their idle high state and verifies the
// bus is actually free. A line that still reads low is stuck (a hung
// responder or a missing pull-up) and yields twi.ErrBusNotReady; no
// further transitions are attempted.
func (m *Master) Init() error {
	m.scl.High()
	m.sda.High()

	m.delay(m.half)
	m.delay(m.half)

	if !m.scl.Read() || !m.sda.Read() {
		m.status = twi.StatusBusError
		return twi.ErrBusNotReady
	}
	m.status = twi.StatusInitComplete
	return nil
}

// Disable releases both lines and forgets the session state. Safe to
// call repeatedly.
func (m *Master) Disable() {
	m.scl.High()
	m.sda.High()
	m.status = twi.StatusInitComplete
}

// Status returns the session status byte.
func (m *Master) Status() byte {
	return m.status
}

// Start drives SDA low while SCL is high. Called mid-transaction it
// produces a repeated start; the bit-banged variant cannot observe a
// failed start condition, so it never fails.
func (m *Master) Start() error {
	m.status |= twi.StatusTransmit

	m.irq.DisableInterrupts()

	// The leading clock-low phase matters for the repeated-start case:
	// a responder holds its acknowledgment bit until the clock falls,
	// only then can the released data line rise and make the restart
	// edge visible. From an idle bus the extra pulse is harmless.
	m.scl.Low()
	m.sda.High()
	m.delay(m.half)

	m.scl.High()
	m.delay(m.half)

	m.sda.Low()
	m.delay(m.half)
	m.scl.Low()

	m.irq.EnableInterrupts()

	return nil
}

// Stop drives the LOW->HIGH transitions on clock then data and holds
// the bus idle for one half-period before the next transaction may
// begin.
func (m *Master) Stop() {
	m.scl.Low()
	m.sda.Low()
	m.delay(m.half)
	m.scl.High()
	m.delay(m.half)
	m.sda.High()
	m.delay(m.half)

	m.status &^= twi.StatusTransmit
}

// Address transmits the address byte for a 7-bit address.
func (m *Master) Address(addr byte, dir twi.Direction) error {
	return m.Set(addr<<1 | byte(0x01&dir))
}

// Set shifts one byte onto the bus, most significant bit first, and
// samples the acknowledgment.
func (m *Master) Set(b byte) error {
	m.irq.DisableInterrupts()
	defer m.irq.EnableInterrupts()

	for i := 0; i < 8; i++ {
		one := (b<<i)&0x80 != 0

		m.scl.Low()
		if one {
			m.sda.High()
		} else {
			m.sda.Low()
		}
		m.delay(m.half)

		// The arbitration check must happen while the clock is still
		// low: once SCL rises, a low SDA could as well be a
		// responder. Only a released (1) bit can lose arbitration; a
		// driven 0 wins by construction, an asymmetry kept from the
		// wire protocol.
		if one && !m.sda.Read() {
			return twi.ErrArbitrationLost
		}
		m.scl.High()

		if err := m.waitClockReleased(); err != nil {
			return err
		}
		m.delay(m.half)
	}

	// Acknowledgment bit: release SDA, clock once, sample under
	// clock-high. Low means the responder acknowledged.
	m.scl.Low()
	m.sda.High()
	m.delay(m.half)

	m.scl.High()
	if err := m.waitClockReleased(); err != nil {
		return err
	}
	acked := !m.sda.Read()
	m.delay(m.half)

	if !acked {
		return twi.ErrAckFailed
	}
	return nil
}

// Get samples one byte at eight clock highs, then drives the requested
// acknowledgment bit before releasing the data line.
func (m *Master) Get(ack bool) (byte, error) {
	m.irq.DisableInterrupts()
	defer m.irq.EnableInterrupts()

	m.status |= twi.StatusReceive
	defer func() { m.status &^= twi.StatusReceive }()

	var received byte
	for i := 0; i < 8; i++ {
		m.scl.Low()
		m.delay(m.half)

		m.scl.High()
		if err := m.waitClockReleased(); err != nil {
			return 0, err
		}
		m.delay(m.half)

		received <<= 1
		if m.sda.Read() {
			received |= 1
		}
	}

	m.scl.Low()
	if ack {
		m.sda.Low()
	} else {
		m.sda.High()
	}
	m.delay(m.half)

	m.scl.High()
	if err := m.waitClockReleased(); err != nil {
		return 0, err
	}
	m.delay(m.half)

	m.scl.Low()
	m.sda.High()

	return received, nil
}

// waitClockReleased busy-waits until the responder stops stretching
// the clock. Without a configured bound an indefinitely stuck
// responder hangs the caller; that is the documented baseline.
func (m *Master) waitClockReleased() error {
	if m.stretch == 0 {
		for !m.scl.Read() {
		}
		return nil
	}

	deadline := time.Now().Add(m.stretch)
	for !m.scl.Read() {
		if time.Now().After(deadline) {
			m.status = twi.StatusBusError
			return twi.ErrTimeout
		}
	}
	return nil
}
