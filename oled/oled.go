// Package oled drives an SSD1306-style display controller over a
// two-wire byte transport. The display memory is organized in pages of
// eight pixel rows; every drawing operation is a short command
// transaction followed by a data transaction, composed from the
// transport primitives with no timing logic of its own.
package oled

import (
	"errors"

	"github.com/twibus/twid-go/twi"
)

// DefaultAddress is the usual 7-bit controller address (0x78 on the
// wire with the write bit).
const DefaultAddress byte = 0x3C

// Display geometry defaults.
const (
	DefaultColumns = 128
	DefaultRows    = 64
	PageRows       = 8
)

// Control bytes prefixing every command or data byte stream.
const (
	controlCommand byte = 0x80
	controlData    byte = 0x40
)

// Command bytes of the controller.
const (
	cmdDisplayOff         byte = 0xAE
	cmdDisplayOn          byte = 0xAF
	cmdMultiplexRatio     byte = 0xA8
	cmdMultiplex64        byte = 0x3F
	cmdDisplayOffset      byte = 0xD3
	cmdStartLine          byte = 0x40
	cmdSegmentRemap       byte = 0xA1 // reversed
	cmdScanDirection      byte = 0xC8 // reversed
	cmdComPins            byte = 0xDA
	cmdComPinsAlternative byte = 0x12
	cmdContrast           byte = 0x81
	cmdContrastDefault    byte = 0x7F
	cmdFollowRAM          byte = 0xA4
	cmdNormalMode         byte = 0xA6
	cmdDisplayClock       byte = 0xD5
	cmdClockDefault       byte = 0x80
	cmdAddressingMode     byte = 0x20
	cmdAddressingPage     byte = 0x02
	cmdChargePump         byte = 0x8D
	cmdChargePumpInternal byte = 0x14
	cmdPageStart          byte = 0xB0
	cmdColumnLower        byte = 0x00
	cmdColumnHigher       byte = 0x10
)

// initCommands brings the panel from reset to a cleared, powered-on
// state in page addressing mode. Order matters: the charge pump must
// be configured before display-on.
var initCommands = []byte{
	cmdDisplayOff,
	cmdMultiplexRatio, cmdMultiplex64,
	cmdDisplayOffset, 0x00,
	cmdStartLine,
	cmdSegmentRemap,
	cmdScanDirection,
	cmdComPins, cmdComPinsAlternative,
	cmdContrast, cmdContrastDefault,
	cmdFollowRAM,
	cmdNormalMode,
	cmdDisplayClock, cmdClockDefault,
	cmdAddressingMode, cmdAddressingPage,
	cmdChargePump, cmdChargePumpInternal,
	cmdDisplayOn,
}

var ErrOutOfRange = errors.New("oled: position out of range")

// Config carries construction-time display parameters; zero values
// select the 128x64 panel at the default address.
type Config struct {
	Address byte
	Columns int
	Rows    int
}

// Display is one panel on the bus. Not safe for concurrent use; like
// the transport underneath it assumes one caller.
type Display struct {
	t       twi.ByteTransport
	addr    byte
	columns int
	pages   int

	// current RAM position, tracked so the console layer can ask
	column int
	page   int
}

func New(t twi.ByteTransport, cfg Config) *Display {
	addr := cfg.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	columns := cfg.Columns
	if columns <= 0 {
		columns = DefaultColumns
	}
	rows := cfg.Rows
	if rows <= 0 {
		rows = DefaultRows
	}
	return &Display{
		t:       t,
		addr:    addr,
		columns: columns,
		pages:   rows / PageRows,
	}
}

// Columns returns the panel width in pixels.
func (d *Display) Columns() int { return d.columns }

// Pages returns the panel height in pages of eight rows.
func (d *Display) Pages() int { return d.pages }

// begin opens a write transaction to the controller.
func (d *Display) begin() error {
	if err := d.t.Start(); err != nil {
		return err
	}
	return d.t.Address(d.addr, twi.Write)
}

// command sends one command byte inside an open transaction.
func (d *Display) command(c byte) error {
	if err := d.t.Set(controlCommand); err != nil {
		return err
	}
	return d.t.Set(c)
}

// commands runs one whole command transaction.
func (d *Display) commands(cs ...byte) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.t.Stop()

	for _, c := range cs {
		if err := d.command(c); err != nil {
			return err
		}
	}
	return nil
}

// Init initializes the transport, pushes the panel init sequence and
// clears the display memory.
func (d *Display) Init() error {
	if err := d.t.Init(); err != nil {
		return err
	}
	if err := d.commands(initCommands...); err != nil {
		return err
	}
	return d.Clear()
}

// Disable releases the bus transport. The panel keeps its last frame
// until it loses power.
func (d *Display) Disable() {
	d.t.Disable()
}

// Position moves the RAM pointer to the given column and page.
func (d *Display) Position(column, page int) error {
	if column < 0 || column >= d.columns || page < 0 || page >= d.pages {
		return ErrOutOfRange
	}
	d.column = column
	d.page = page
	return d.commands(
		cmdPageStart|byte(0x07&page),
		cmdColumnLower|byte(0x0F&column),
		cmdColumnHigher|byte(0x0F&(column>>4)),
	)
}

// Home moves the RAM pointer to the top-left corner.
func (d *Display) Home() error {
	return d.Position(0, 0)
}

// ScrollVertical shifts the whole panel up by the given number of
// pixel rows using the display-offset register.
func (d *Display) ScrollVertical(rows int) error {
	if rows < 0 || rows >= d.pages*PageRows {
		return ErrOutOfRange
	}
	return d.commands(cmdDisplayOffset, byte(rows))
}

// data streams column bytes in one data transaction at the current
// position.
func (d *Display) data(p []byte) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.t.Stop()

	if err := d.t.Set(controlData); err != nil {
		return err
	}
	for _, b := range p {
		if err := d.t.Set(b); err != nil {
			return err
		}
	}
	return nil
}

// Frame paints the full panel from a columns*pages buffer, page rows
// first.
func (d *Display) Frame(frame []byte) error {
	if len(frame) < d.columns*d.pages {
		return ErrOutOfRange
	}
	if err := d.Home(); err != nil {
		return err
	}
	for page := 0; page < d.pages; page++ {
		if err := d.Page(frame[page*d.columns:(page+1)*d.columns], page); err != nil {
			return err
		}
	}
	return nil
}

// Page paints one full page.
func (d *Display) Page(data []byte, page int) error {
	return d.PageSegment(data, 0, d.columns-1, page)
}

// PageSegment paints the columns columnStart..columnStop (inclusive)
// of one page.
func (d *Display) PageSegment(data []byte, columnStart, columnStop, page int) error {
	if page < 0 || page >= d.pages ||
		columnStop >= d.columns || columnStart < 0 || columnStart >= columnStop {
		return ErrOutOfRange
	}
	n := columnStop - columnStart + 1
	if len(data) < n {
		return ErrOutOfRange
	}
	if err := d.Position(columnStart, page); err != nil {
		return err
	}
	return d.data(data[:n])
}

// Column paints a single column byte.
func (d *Display) Column(data byte, column, page int) error {
	if page < 0 || page >= d.pages || column < 0 || column >= d.columns {
		return ErrOutOfRange
	}
	if err := d.Position(column, page); err != nil {
		return err
	}
	return d.data([]byte{data})
}

// Clear blanks the whole panel and homes the RAM pointer.
func (d *Display) Clear() error {
	for page := 0; page < d.pages; page++ {
		if err := d.ClearPage(page); err != nil {
			return err
		}
	}
	return d.Home()
}

// ClearPage blanks one page.
func (d *Display) ClearPage(page int) error {
	return d.ClearPageSegment(0, d.columns-1, page)
}

// ClearPageSegment blanks the columns columnStart..columnStop
// (inclusive) of one page.
func (d *Display) ClearPageSegment(columnStart, columnStop, page int) error {
	if page < 0 || page >= d.pages ||
		columnStop >= d.columns || columnStart < 0 || columnStart >= columnStop {
		return ErrOutOfRange
	}
	if err := d.Position(columnStart, page); err != nil {
		return err
	}
	blank := make([]byte, columnStop-columnStart+1)
	return d.data(blank)
}
