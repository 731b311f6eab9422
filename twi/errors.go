package twi

import "errors"

// The closed error taxonomy shared by every transport variant. Callers
// compare with errors.Is; transports must never report success for a
// status they do not recognize (that is ErrGeneralFailure).
var (
	// ErrBusNotReady signals a line stuck low during Init.
	ErrBusNotReady = errors.New("twi: bus not ready")

	// ErrStartFailed signals that a start or repeated-start condition
	// could not be established on the bus.
	ErrStartFailed = errors.New("twi: start condition failed")

	// ErrAckFailed signals a NACK where an ACK was expected, or the
	// other way around.
	ErrAckFailed = errors.New("twi: acknowledge failed")

	// ErrArbitrationLost signals that another master drove the data
	// line against our output.
	ErrArbitrationLost = errors.New("twi: arbitration lost")

	// ErrGeneralFailure covers every unclassified bus condition.
	ErrGeneralFailure = errors.New("twi: general bus failure")

	// ErrTimeout is returned only when a transport is configured with
	// a bounded wait; the baseline contract busy-waits forever on a
	// stretched clock or a pending transfer flag.
	ErrTimeout = errors.New("twi: bus timeout")
)
