// Package tty emulates a scrolling text console on a page-addressed
// display: one text line per display page, glyphs from the 5x7 font.
// Console implements io.Writer, so fmt.Fprintf prints straight onto
// the panel.
package tty

import (
	"errors"

	"github.com/twibus/twid-go/oled"
	"github.com/twibus/twid-go/oled/font"
)

// Screen is the slice of the display driver the console needs,
// satisfied by *oled.Display.
type Screen interface {
	Init() error
	Clear() error
	ClearPage(page int) error
	Position(column, page int) error
	PageSegment(data []byte, columnStart, columnStop, page int) error
	ScrollVertical(rows int) error
	Columns() int
	Pages() int
}

var _ Screen = (*oled.Display)(nil)

var ErrBadCursor = errors.New("tty: cursor out of range")

// Config carries console options.
type Config struct {
	// NoAutoscroll pins the view: once the last line wraps, output
	// continues at the top without shifting the panel.
	NoAutoscroll bool
}

// Console is a cursor plus the scroll state. One writer at a time.
type Console struct {
	screen Screen
	width  int // characters per line
	height int // lines

	column   int
	line     int
	scroll   bool // autoscroll enabled
	scrolled bool // the output has wrapped at least once
}

func New(screen Screen, cfg Config) *Console {
	return &Console{
		screen: screen,
		width:  screen.Columns() / font.Width,
		height: screen.Pages(),
		scroll: !cfg.NoAutoscroll,
	}
}

// Init initializes the underlying display and homes the cursor.
func (c *Console) Init() error {
	c.column = 0
	c.line = 0
	c.scrolled = false
	if err := c.screen.Init(); err != nil {
		return err
	}
	return c.screen.Clear()
}

// Width returns the line width in characters.
func (c *Console) Width() int { return c.width }

// Height returns the number of lines.
func (c *Console) Height() int { return c.height }

// Cursor moves the cursor to a character cell.
func (c *Console) Cursor(column, line int) error {
	if column < 0 || column >= c.width || line < 0 || line >= c.height {
		return ErrBadCursor
	}
	c.column = column
	c.line = line
	return c.screen.Position(column*font.Width, line)
}

// ClearLine blanks one text line without moving the cursor.
func (c *Console) ClearLine(line int) error {
	if line < 0 || line >= c.height {
		return ErrBadCursor
	}
	return c.screen.ClearPage(line)
}

// Putchar renders one character at the cursor and advances it.
// Newlines move to a fresh line; characters outside the font range
// are dropped silently, like a terminal swallowing control bytes.
func (c *Console) Putchar(ch byte) error {
	if ch == '\n' {
		return c.newline()
	}
	if ch < font.Start || ch > font.End {
		return nil
	}

	glyph := font.Glyph(ch)
	col := c.column * font.Width
	if err := c.screen.PageSegment(glyph[:], col, col+font.Width-1, c.line); err != nil {
		return err
	}

	c.column++
	if c.column >= c.width {
		return c.newline()
	}
	return nil
}

// newline advances to the next line, wrapping at the bottom. Once
// wrapped, autoscroll keeps the freshest line at the bottom of the
// panel by rotating the display offset.
func (c *Console) newline() error {
	c.column = 0
	c.line++
	if c.line >= c.height {
		c.line = 0
		c.scrolled = true
	}

	if c.scroll && c.scrolled {
		next := c.line + 1
		if next >= c.height {
			next = 0
		}
		if err := c.screen.ScrollVertical(oled.PageRows * next); err != nil {
			return err
		}
	}
	return c.ClearLine(c.line)
}

// Write renders a byte stream, making Console an io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	for i, ch := range p {
		if err := c.Putchar(ch); err != nil {
			return i, err
		}
	}
	return len(p), nil
}
