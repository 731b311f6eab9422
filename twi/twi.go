// Package twi defines the byte-level contract of a two-wire
// (I2C-compatible) serial bus master.
//
// The concrete transports live in subpackages: twi/soft bit-bangs the
// two lines directly, twi/hw drives a dedicated controller peripheral
// and twi/emu talks to an emulated bus over UDP. Upper layers (core,
// oled) depend only on ByteTransport and are agnostic to the variant
// selected at construction time.
package twi

// Direction selects the transfer direction for the address phase of a
// transaction. It is the least significant bit of the address byte and
// stays fixed until the next (repeated) start.
type Direction byte

const (
	Write Direction = 0
	Read  Direction = 1
)

// Session status flag bits, readable through ByteTransport.Status.
// Transmit is set between a start condition and the matching stop.
const (
	StatusInitComplete byte = 0x00
	StatusTransmit     byte = 0x01
	StatusReceive      byte = 0x02
	StatusBusError     byte = 0xFF
)

// ByteTransport is one session on a two-wire bus. Exactly one
// transaction may be in flight at a time; the transport does no
// internal locking, callers sharing a bus must serialize externally
// (the core package does this for the daemon).
//
// All operations block. A transaction is Start, Address, any number of
// Set or Get calls, Stop. Start without an intervening Stop produces a
// repeated start. Errors are never retried internally; a failed byte
// does not abort the transaction, the caller decides whether to keep
// going.
type ByteTransport interface {
	// Init prepares the bus and must be called once before any
	// transaction. The bit-banged variant verifies both lines read
	// high after release and fails with ErrBusNotReady otherwise.
	Init() error

	// Disable releases the lines or masks the peripheral. Idempotent.
	Disable()

	// Status returns the raw session status byte (Status* flags for
	// the soft variant, the peripheral status register for hw).
	Status() byte

	// Start produces a start or repeated-start condition and marks
	// the session as transmitting.
	Start() error

	// Stop produces a stop condition followed by the minimum
	// inter-transaction idle spacing and clears the transmit flag.
	Stop()

	// Address transmits addr<<1|dir for a 7-bit address. It shares
	// the acknowledgment semantics of Set.
	Address(addr byte, dir Direction) error

	// Set transmits one byte, most significant bit first, and samples
	// the acknowledgment bit. A negative acknowledgment is
	// ErrAckFailed.
	Set(b byte) error

	// Get receives one byte and drives the acknowledgment bit: true
	// requests more data, false terminates reception.
	Get(ack bool) (byte, error)
}
