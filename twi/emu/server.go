package emu

import (
	"bytes"
	"net"
	"sync"

	"github.com/twibus/twid-go/twi"
)

// Slave is one emulated responder device. The server calls Select when
// the device is addressed, WriteByte/ReadByte for the data phase and
// Stop at the end of the transaction.
type Slave interface {
	Select(dir twi.Direction)
	WriteByte(b byte) bool // reports whether the byte is acknowledged
	ReadByte(ack bool) byte
	Stop()
}

// Server emulates the far side of the bus: it answers the two-byte
// request protocol on a UDP port and routes the data phase to the
// attached slaves. One transaction state per server, matching a single
// physical bus.
type Server struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	slaves map[byte]Slave

	started      bool
	awaitingAddr bool
	selected     Slave
	selectedDir  twi.Direction
	haveSelected bool
	status       byte

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewServer binds the emulator to a local UDP port; port 0 picks a
// free one, see Port.
func NewServer(port int) (*Server, error) {
	conn, err := net.ListenUDP(emulatorNetwork, &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: port,
	})
	if err != nil {
		return nil, err
	}
	return &Server{
		conn:   conn,
		slaves: make(map[byte]Slave),
		closed: make(chan struct{}),
	}, nil
}

// Port returns the bound UDP port.
func (s *Server) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Attach registers a slave under a 7-bit address. Attach before Run;
// attaching mid-run is fine too, the lock covers it.
func (s *Server) Attach(addr byte, sl Slave) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slaves[addr&0x7F] = sl
}

// Run serves requests until Close. It returns immediately; serving
// happens on its own goroutine.
func (s *Server) Run() {
	s.wg.Add(1)
	go s.serve()
}

// Close stops the server and releases the socket.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	buf := make([]byte, 16)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				continue
			}
		}

		if n == len(emulatorPing) && bytes.Equal(buf[:n], emulatorPing) {
			_, _ = s.conn.WriteToUDP(emulatorPong, peer)
			continue
		}
		if n != 2 {
			continue
		}

		code, data := s.handle(buf[0], buf[1])
		_, _ = s.conn.WriteToUDP([]byte{code, data}, peer)
	}
}

func (s *Server) handle(op, arg byte) (code, data byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case opInit:
		s.reset()
		return wireOK, s.status

	case opDisable:
		s.reset()
		return wireOK, 0

	case opStart:
		// Start and repeated start look the same from here: the next
		// written byte is an address byte.
		s.started = true
		s.awaitingAddr = true
		s.status |= twi.StatusTransmit
		return wireOK, 0

	case opStop:
		if s.haveSelected {
			s.selected.Stop()
		}
		s.reset()
		return wireOK, 0

	case opSet:
		return s.handleSet(arg)

	case opGet:
		return s.handleGet(arg == 1)
	}
	return wireGeneral, 0
}

func (s *Server) handleSet(b byte) (byte, byte) {
	if !s.started {
		return wireGeneral, 0
	}

	if s.awaitingAddr {
		s.awaitingAddr = false
		sl, ok := s.slaves[b>>1]
		if !ok {
			// nobody home, the address byte floats unacknowledged
			s.haveSelected = false
			return wireAck, 0
		}
		s.selected = sl
		s.selectedDir = twi.Direction(b & 0x01)
		s.haveSelected = true
		sl.Select(s.selectedDir)
		return wireOK, 0
	}

	if !s.haveSelected || s.selectedDir != twi.Write {
		return wireGeneral, 0
	}
	if !s.selected.WriteByte(b) {
		return wireAck, 0
	}
	return wireOK, 0
}

func (s *Server) handleGet(ack bool) (byte, byte) {
	if !s.started || !s.haveSelected || s.selectedDir != twi.Read {
		return wireGeneral, 0
	}
	return wireOK, s.selected.ReadByte(ack)
}

func (s *Server) reset() {
	s.started = false
	s.awaitingAddr = false
	s.selected = nil
	s.haveSelected = false
	s.status = twi.StatusInitComplete
}
