// Package gpio holds the small signal-line abstraction consumed by the
// bit-banged transport in twi/soft. Concrete implementations map a Line
// onto whatever the platform offers (memory-mapped pins, a character
// device, a simulated bus in tests).
package gpio

// Line is one open-drain bus line. High releases the line so the
// pull-up can take it high; Low actively drives it low. Read samples
// the wire, not the last driven value: with several drivers on the bus
// a released line can still read low.
type Line interface {
	High()
	Low()
	Read() bool
}

// Interrupts lets a transport block interrupt delivery around a
// timing-critical section. Implementations exist only on targets where
// preemption can stretch a bit beyond tolerance; everything else uses
// Unblocked.
type Interrupts interface {
	DisableInterrupts()
	EnableInterrupts()
}

// Unblocked is the no-op Interrupts implementation.
type Unblocked struct{}

func (Unblocked) DisableInterrupts() {}
func (Unblocked) EnableInterrupts()  {}
