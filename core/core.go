// Package core composes byte-level bus primitives into whole
// transactions and owns the one-transaction-at-a-time invariant. The
// transport packages are not imported; everything goes through the
// twi.ByteTransport interface so the daemon, the tests and the display
// stack all run the same code against any variant.
package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/twibus/twid-go/memlog"
	"github.com/twibus/twid-go/twi"
)

// 7-bit addressing leaves 0x00..0x07 and 0x78..0x7F reserved by the
// bus specification; Scan probes only the usable window.
const (
	ScanFirst byte = 0x08
	ScanLast  byte = 0x77
)

var ErrBadAddress = errors.New("core: address out of 7-bit range")

type Core struct {
	transport twi.ByteTransport

	// The bus takes exactly one transaction at a time and the
	// transport does no locking of its own; every operation below
	// holds busMutex for its whole transaction.
	busMutex sync.Mutex

	trace *Trace
	log   *memlog.Writer
}

func New(transport twi.ByteTransport, log *memlog.Writer) *Core {
	return &Core{
		transport: transport,
		trace:     newTrace(traceDepth),
		log:       log,
	}
}

func (c *Core) Log(s string) {
	c.log.Log("core - " + s)
}

// Init prepares the bus. Must succeed once before any transaction.
func (c *Core) Init() error {
	c.busMutex.Lock()
	defer c.busMutex.Unlock()

	c.Log("init transport")
	if err := c.transport.Init(); err != nil {
		c.Log("init failed: " + err.Error())
		return err
	}
	return nil
}

// Close releases the bus lines.
func (c *Core) Close() {
	c.busMutex.Lock()
	defer c.busMutex.Unlock()
	c.transport.Disable()
}

// Status returns the raw transport status byte.
func (c *Core) Status() byte {
	c.busMutex.Lock()
	defer c.busMutex.Unlock()
	return c.transport.Status()
}

// Trace exposes the wire trace feed.
func (c *Core) Trace() *Trace {
	return c.trace
}

// Scan probes every usable 7-bit address with an address-write and
// reports the ones that acknowledged. An absent device is a NACK, not
// an error; anything else aborts the scan.
func (c *Core) Scan() ([]byte, error) {
	c.busMutex.Lock()
	defer c.busMutex.Unlock()

	c.Log("scanning bus")
	var found []byte
	for addr := ScanFirst; addr <= ScanLast; addr++ {
		if err := c.transport.Start(); err != nil {
			return nil, err
		}
		err := c.transport.Address(addr, twi.Write)
		c.transport.Stop()

		switch {
		case err == nil:
			found = append(found, addr)
		case errors.Is(err, twi.ErrAckFailed):
			// nobody home
		default:
			c.trace.add(Entry{Op: "scan", Err: err.Error()})
			return nil, err
		}
	}
	c.Log(fmt.Sprintf("scan found %d devices", len(found)))
	c.trace.add(Entry{Op: "scan", Data: found})
	return found, nil
}

// Write runs one write transaction: START, address, payload, STOP.
// The first failing byte ends the payload, no retries; the stop
// condition is produced either way so the bus is left free.
func (c *Core) Write(addr byte, data []byte) error {
	if addr > 0x7F {
		return ErrBadAddress
	}

	c.busMutex.Lock()
	defer c.busMutex.Unlock()

	err := c.write(addr, data)
	e := Entry{Op: "write", Addr: addr, Data: data}
	if err != nil {
		e.Err = err.Error()
	}
	c.trace.add(e)
	return err
}

func (c *Core) write(addr byte, data []byte) error {
	if err := c.transport.Start(); err != nil {
		return err
	}
	defer c.transport.Stop()

	if err := c.transport.Address(addr, twi.Write); err != nil {
		return err
	}
	for _, b := range data {
		if err := c.transport.Set(b); err != nil {
			return err
		}
	}
	return nil
}

// Read runs one read transaction of n bytes, acknowledging every byte
// except the last.
func (c *Core) Read(addr byte, n int) ([]byte, error) {
	if addr > 0x7F {
		return nil, ErrBadAddress
	}

	c.busMutex.Lock()
	defer c.busMutex.Unlock()

	data, err := c.read(addr, n)
	e := Entry{Op: "read", Addr: addr, Data: data}
	if err != nil {
		e.Err = err.Error()
	}
	c.trace.add(e)
	return data, err
}

func (c *Core) read(addr byte, n int) ([]byte, error) {
	if err := c.transport.Start(); err != nil {
		return nil, err
	}
	defer c.transport.Stop()

	if err := c.transport.Address(addr, twi.Read); err != nil {
		return nil, err
	}

	data := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := c.transport.Get(i < n-1)
		if err != nil {
			return data, err
		}
		data = append(data, b)
	}
	return data, nil
}

// WriteRead writes w, then reads n bytes after a repeated start, the
// usual register-access shape. The direction flips without the bus
// ever going idle in between.
func (c *Core) WriteRead(addr byte, w []byte, n int) ([]byte, error) {
	if addr > 0x7F {
		return nil, ErrBadAddress
	}

	c.busMutex.Lock()
	defer c.busMutex.Unlock()

	data, err := c.writeRead(addr, w, n)
	e := Entry{Op: "writeread", Addr: addr, Data: data}
	if err != nil {
		e.Err = err.Error()
	}
	c.trace.add(e)
	return data, err
}

func (c *Core) writeRead(addr byte, w []byte, n int) ([]byte, error) {
	if err := c.transport.Start(); err != nil {
		return nil, err
	}
	defer c.transport.Stop()

	if err := c.transport.Address(addr, twi.Write); err != nil {
		return nil, err
	}
	for _, b := range w {
		if err := c.transport.Set(b); err != nil {
			return nil, err
		}
	}

	// repeated start, no stop in between
	if err := c.transport.Start(); err != nil {
		return nil, err
	}
	if err := c.transport.Address(addr, twi.Read); err != nil {
		return nil, err
	}

	data := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := c.transport.Get(i < n-1)
		if err != nil {
			return data, err
		}
		data = append(data, b)
	}
	return data, nil
}
