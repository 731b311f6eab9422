// Package hw drives a dedicated two-wire controller peripheral. Bit
// timing is the peripheral's business; this package programs the
// bitrate, triggers transfers and translates the controller's status
// codes into the shared twi error taxonomy.
//
// The register window follows the classic AVR megaAVR TWI layout
// (bitrate, control, status, data) but is abstracted behind the
// Peripheral interface so the package stays portable and testable.
package hw

import (
	"errors"

	"github.com/twibus/twid-go/twi"
)

// Peripheral is the register window of a hardware two-wire controller.
// Reads and writes map directly onto the device registers.
type Peripheral interface {
	SetBitrate(b byte)
	SetPrescaler(b byte)

	Control() byte
	SetControl(b byte)

	// Status returns the raw status register; the status code lives
	// in the upper five bits.
	Status() byte

	Data() byte
	SetData(b byte)
}

// Control register bits.
const (
	CtlIntFlag   byte = 0x80 // transfer complete, cleared by writing 1
	CtlEnableAck byte = 0x40 // assert ACK on reception
	CtlStart     byte = 0x20 // issue start condition
	CtlStop      byte = 0x10 // issue stop condition
	CtlCollision byte = 0x08 // write collision flag
	CtlEnable    byte = 0x04 // enable the peripheral
	CtlIntEnable byte = 0x01 // interrupt-driven mode, unused here
)

// Status codes reported in the upper five bits of the status register.
const (
	StatusStart           byte = 0x08
	StatusRepeatedStart   byte = 0x10
	StatusAddrWriteAck    byte = 0x18
	StatusAddrWriteNack   byte = 0x20
	StatusDataWriteAck    byte = 0x28
	StatusDataWriteNack   byte = 0x30
	StatusArbitrationLost byte = 0x38
	StatusAddrReadAck     byte = 0x40
	StatusAddrReadNack    byte = 0x48
	StatusDataReadAck     byte = 0x50
	StatusDataReadNack    byte = 0x58
)

const statusMask byte = 0xF8

// Config carries the construction-time clocking parameters.
type Config struct {
	// CPUClock and BusClock are in hertz. The bitrate register is
	// computed from them, never hardcoded, so the same code serves
	// any clock target.
	CPUClock int
	BusClock int

	// Prescaler is the power-of-four prescaler exponent (0..3).
	Prescaler int

	// PollBudget bounds every completion-flag busy-wait in loop
	// iterations. Zero keeps the baseline contract of waiting
	// forever; an exhausted budget surfaces as twi.ErrTimeout.
	PollBudget int
}

// Master drives one controller peripheral.
type Master struct {
	p      Peripheral
	cfg    Config
	budget int

	status byte
}

var errBitrate = errors.New("hw: bus clock not reachable from cpu clock")

// New validates the clocking and wires the Master to its peripheral.
func New(p Peripheral, cfg Config) (*Master, error) {
	if cfg.CPUClock <= 0 || cfg.BusClock <= 0 {
		return nil, errBitrate
	}
	if _, ok := bitrate(cfg); !ok {
		return nil, errBitrate
	}
	return &Master{p: p, cfg: cfg, budget: cfg.PollBudget}, nil
}

// bitrate solves cpu/(16+2*TWBR*4^prescaler) = bus for the bitrate
// register value.
func bitrate(cfg Config) (byte, bool) {
	div := 1
	for i := 0; i < cfg.Prescaler; i++ {
		div *= 4
	}
	v := (cfg.CPUClock/cfg.BusClock - 16) / (2 * div)
	if v < 0 || v > 255 {
		return 0, false
	}
	return byte(v), true
}

// Init programs bitrate and prescaler and enables the controller. The
// peripheral accepts any clocking already validated by New, so Init
// itself cannot fail.
func (m *Master) Init() error {
	v, _ := bitrate(m.cfg)
	m.p.SetBitrate(v)
	m.p.SetPrescaler(byte(m.cfg.Prescaler))
	m.p.SetControl(CtlEnable)
	m.status = twi.StatusInitComplete
	return nil
}

// Disable clears the enable and acknowledge bits, releasing the pins
// to their reset state. Idempotent.
func (m *Master) Disable() {
	m.p.SetControl(m.p.Control() &^ (CtlEnableAck | CtlEnable | CtlIntEnable))
	m.status = twi.StatusInitComplete
}

// Status combines the status code with the write-collision flag, the
// raw form consumed by the status page.
func (m *Master) Status() byte {
	return (m.p.Status() & statusMask) | (0x04 & (m.p.Control() >> 1))
}

// Start triggers a start condition and positively confirms via the
// status code that the controller entered a start or repeated-start
// state; anything else is twi.ErrStartFailed.
func (m *Master) Start() error {
	m.p.SetControl(CtlIntFlag | CtlStart | CtlEnable)

	if err := m.waitComplete(); err != nil {
		return err
	}

	switch m.p.Status() & statusMask {
	case StatusStart, StatusRepeatedStart:
		m.status |= twi.StatusTransmit
		return nil
	}
	return twi.ErrStartFailed
}

// Stop triggers the stop condition and waits for the controller to
// report it executed (the stop bit self-clears).
func (m *Master) Stop() {
	m.p.SetControl(CtlIntFlag | CtlEnable | CtlStop)

	budget := m.budget
	for m.p.Control()&CtlStop != 0 {
		if m.budget != 0 {
			budget--
			if budget <= 0 {
				m.status = twi.StatusBusError
				return
			}
		}
	}
	m.status &^= twi.StatusTransmit
}

// Address transmits the address byte for a 7-bit address.
func (m *Master) Address(addr byte, dir twi.Direction) error {
	return m.Set(addr<<1 | byte(0x01&dir))
}

// Set loads the data register, triggers the transfer and maps the
// resulting status code. Address- and data-phase codes are both
// accepted here because Address delegates to Set.
func (m *Master) Set(b byte) error {
	m.p.SetData(b)
	m.p.SetControl(CtlIntFlag | CtlEnable)

	if err := m.waitComplete(); err != nil {
		return err
	}

	switch m.p.Status() & statusMask {
	case StatusAddrWriteAck, StatusDataWriteAck, StatusAddrReadAck:
		return nil
	case StatusAddrWriteNack, StatusDataWriteNack, StatusAddrReadNack:
		return twi.ErrAckFailed
	case StatusArbitrationLost:
		return twi.ErrArbitrationLost
	}
	return twi.ErrGeneralFailure
}

// Get triggers a receive with the requested acknowledgment policy and
// verifies the controller reports the matching status code. A status
// this package does not recognize maps to twi.ErrGeneralFailure, never
// to success.
func (m *Master) Get(ack bool) (byte, error) {
	m.status |= twi.StatusReceive
	defer func() { m.status &^= twi.StatusReceive }()

	if ack {
		m.p.SetControl(CtlIntFlag | CtlEnableAck | CtlEnable)
	} else {
		m.p.SetControl(CtlIntFlag | CtlEnable)
	}

	if err := m.waitComplete(); err != nil {
		return 0, err
	}

	b := m.p.Data()

	switch m.p.Status() & statusMask {
	case StatusDataReadAck:
		if ack {
			return b, nil
		}
		return b, twi.ErrAckFailed
	case StatusDataReadNack:
		if !ack {
			return b, nil
		}
		return b, twi.ErrAckFailed
	case StatusArbitrationLost:
		return 0, twi.ErrArbitrationLost
	}
	return 0, twi.ErrGeneralFailure
}

// waitComplete busy-waits on the completion flag, bounded only when a
// poll budget was configured.
func (m *Master) waitComplete() error {
	if m.budget == 0 {
		for m.p.Control()&CtlIntFlag == 0 {
		}
		return nil
	}

	for i := 0; i < m.budget; i++ {
		if m.p.Control()&CtlIntFlag != 0 {
			return nil
		}
	}
	m.status = twi.StatusBusError
	return twi.ErrTimeout
}
