// Package memlog keeps log lines in memory, rotating old ones out but
// pinning a number of lines from the start of the session. Detailed
// bus logging would be too much for a file, but the last few thousand
// lines plus the startup lines are exactly what the status page and
// the downloadable log need.
package memlog

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// hardcoded so a runaway caller cannot balloon memory line by line
const maxLineLength = 500

type Writer struct {
	maxLineCount int
	lines        [][]byte // lines include newlines
	startCount   int
	startLines   [][]byte
	startTime    time.Time
	printTime    bool
	copyTo       io.Writer
	mutex        sync.Mutex
}

// New builds a Writer that rotates after size lines while pinning the
// first startSize lines. With printTime set, every line is prefixed
// with elapsed and wall-clock time. A non-nil copyTo additionally
// mirrors every line (verbose mode).
func New(size, startSize int, printTime bool, copyTo io.Writer) (*Writer, error) {
	if size <= 0 || startSize < 0 {
		return nil, errors.New("memlog: nonsense sizes")
	}
	return &Writer{
		maxLineCount: size,
		lines:        make([][]byte, 0, size),
		startCount:   startSize,
		startLines:   make([][]byte, 0, startSize),
		startTime:    time.Now(),
		printTime:    printTime,
		copyTo:       copyTo,
	}, nil
}

// Log writes one line, appending the newline.
func (m *Writer) Log(s string) {
	_, err := m.Write([]byte(s + "\n"))
	if err != nil {
		// give up, just print on stdout
		fmt.Println(err)
	}
}

// Write remembers one line in memory. Overlong lines are truncated
// rather than refused so a chatty caller loses detail, not history.
func (m *Writer) Write(p []byte) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := len(p)
	if len(p) > maxLineLength {
		p = p[:maxLineLength]
	}

	var newline []byte
	if !m.printTime {
		newline = make([]byte, len(p))
		copy(newline, p)
	} else {
		now := time.Now()
		elapsed := now.Sub(m.startTime)

		newline = []byte(fmt.Sprintf("[%.6f : %s] %s",
			elapsed.Seconds(), now.Format("15:04:05"), string(p)))
	}

	if len(m.startLines) < m.startCount {
		// do not rotate
		m.startLines = append(m.startLines, newline)
	} else {
		// rotate
		for len(m.lines) >= m.maxLineCount {
			m.lines = m.lines[1:]
		}
		m.lines = append(m.lines, newline)
	}

	if m.copyTo != nil {
		if _, err := m.copyTo.Write(newline); err != nil {
			fmt.Println(err)
		}
	}
	return n, nil
}

// writeTo exports the remembered lines, latest first, the pinned start
// lines last, with the given text on top.
func (m *Writer) writeTo(start string, w io.Writer) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, err := w.Write([]byte(start)); err != nil {
		return err
	}

	for i := len(m.lines) - 1; i >= 0; i-- {
		if _, err := w.Write(m.lines[i]); err != nil {
			return err
		}
	}

	// ... to make space between end and start
	if _, err := w.Write([]byte("...\n")); err != nil {
		return err
	}

	for i := len(m.startLines) - 1; i >= 0; i-- {
		if _, err := w.Write(m.startLines[i]); err != nil {
			return err
		}
	}
	return nil
}

// String exports as a string.
func (m *Writer) String(start string) (string, error) {
	var b bytes.Buffer
	if err := m.writeTo(start, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Gzip exports as gzip bytes, for the log download on the status page.
func (m *Writer) Gzip(start string) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	gw.Name = "log.txt"

	if err := m.writeTo(start, gw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
