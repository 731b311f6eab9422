package core

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/twibus/twid-go/memlog"
	"github.com/twibus/twid-go/twi"
)

// fakeTransport records every primitive call and answers from a script:
// the ack map decides which addresses respond, reads feeds Get, and
// failSet makes the n-th Set call fail (1-based, 0 disables).
type fakeTransport struct {
	ops []string

	acked map[byte]bool
	reads []byte

	failSet    int
	failSetErr error
	setCalls   int
}

func newFakeTransport(acked ...byte) *fakeTransport {
	m := make(map[byte]bool)
	for _, a := range acked {
		m[a] = true
	}
	return &fakeTransport{acked: m}
}

func (f *fakeTransport) Init() error  { f.ops = append(f.ops, "init"); return nil }
func (f *fakeTransport) Disable()     { f.ops = append(f.ops, "disable") }
func (f *fakeTransport) Status() byte { return twi.StatusInitComplete }

func (f *fakeTransport) Start() error {
	f.ops = append(f.ops, "start")
	return nil
}

func (f *fakeTransport) Stop() {
	f.ops = append(f.ops, "stop")
}

func (f *fakeTransport) Address(addr byte, dir twi.Direction) error {
	rw := "w"
	if dir == twi.Read {
		rw = "r"
	}
	f.ops = append(f.ops, fmt.Sprintf("addr %02x %s", addr, rw))
	if !f.acked[addr] {
		return twi.ErrAckFailed
	}
	return nil
}

func (f *fakeTransport) Set(b byte) error {
	f.ops = append(f.ops, fmt.Sprintf("set %02x", b))
	f.setCalls++
	if f.failSet != 0 && f.setCalls >= f.failSet {
		return f.failSetErr
	}
	return nil
}

func (f *fakeTransport) Get(ack bool) (byte, error) {
	f.ops = append(f.ops, fmt.Sprintf("get %v", ack))
	if len(f.reads) == 0 {
		return 0, twi.ErrGeneralFailure
	}
	b := f.reads[0]
	f.reads = f.reads[1:]
	return b, nil
}

func testLog(t *testing.T) *memlog.Writer {
	t.Helper()
	mw, err := memlog.New(1000, 100, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	return mw
}

func TestWriteSequence(t *testing.T) {
	f := newFakeTransport(0x3C)
	c := New(f, testLog(t))

	if err := c.Write(0x3C, []byte{0xAE, 0xA8, 0x3F}); err != nil {
		t.Fatalf("write: %s", err)
	}

	want := []string{"start", "addr 3c w", "set ae", "set a8", "set 3f", "stop"}
	if !reflect.DeepEqual(f.ops, want) {
		t.Errorf("ops = %v, want %v", f.ops, want)
	}
}

func TestReadAcknowledgesAllButLast(t *testing.T) {
	f := newFakeTransport(0x50)
	f.reads = []byte{1, 2, 3}
	c := New(f, testLog(t))

	data, err := c.Read(0x50, 3)
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	if !reflect.DeepEqual(data, []byte{1, 2, 3}) {
		t.Errorf("data = % x", data)
	}

	want := []string{"start", "addr 50 r", "get true", "get true", "get false", "stop"}
	if !reflect.DeepEqual(f.ops, want) {
		t.Errorf("ops = %v, want %v", f.ops, want)
	}
}

func TestWriteReadUsesRepeatedStart(t *testing.T) {
	f := newFakeTransport(0x50)
	f.reads = []byte{0xAB}
	c := New(f, testLog(t))

	data, err := c.WriteRead(0x50, []byte{0x10}, 1)
	if err != nil {
		t.Fatalf("writeread: %s", err)
	}
	if len(data) != 1 || data[0] != 0xAB {
		t.Errorf("data = % x", data)
	}

	want := []string{"start", "addr 50 w", "set 10", "start", "addr 50 r", "get false", "stop"}
	if !reflect.DeepEqual(f.ops, want) {
		t.Errorf("ops = %v, want %v", f.ops, want)
	}
}

func TestScan(t *testing.T) {
	f := newFakeTransport(0x3C, 0x50)
	c := New(f, testLog(t))

	found, err := c.Scan()
	if err != nil {
		t.Fatalf("scan: %s", err)
	}
	if !reflect.DeepEqual(found, []byte{0x3C, 0x50}) {
		t.Errorf("found = % x, want 3c 50", found)
	}

	// every usable address probed exactly once: start, address, stop
	probes := int(ScanLast-ScanFirst) + 1
	if len(f.ops) != 3*probes {
		t.Errorf("ops = %d calls, want %d", len(f.ops), 3*probes)
	}
}

func TestWriteErrorEndsPayloadButStops(t *testing.T) {
	f := newFakeTransport(0x3C)
	f.failSet = 3 // address byte goes through Address, not Set
	f.failSetErr = twi.ErrAckFailed
	c := New(f, testLog(t))

	err := c.Write(0x3C, []byte{1, 2, 3, 4})
	if !errors.Is(err, twi.ErrAckFailed) {
		t.Fatalf("write = %v, want ErrAckFailed", err)
	}

	// bytes 3 and 4 must not follow the failed byte, the stop must
	want := []string{"start", "addr 3c w", "set 01", "set 02", "set 03", "stop"}
	if !reflect.DeepEqual(f.ops, want) {
		t.Errorf("ops = %v, want %v", f.ops, want)
	}
}

func TestBadAddress(t *testing.T) {
	c := New(newFakeTransport(), testLog(t))
	if err := c.Write(0x80, nil); !errors.Is(err, ErrBadAddress) {
		t.Errorf("write to 0x80 = %v, want ErrBadAddress", err)
	}
	if _, err := c.Read(0xFF, 1); !errors.Is(err, ErrBadAddress) {
		t.Errorf("read from 0xff = %v, want ErrBadAddress", err)
	}
}

func TestTraceRecordsTransactions(t *testing.T) {
	f := newFakeTransport(0x3C)
	c := New(f, testLog(t))

	if err := c.Write(0x3C, []byte{0xAE, 0xA8, 0x3F}); err != nil {
		t.Fatal(err)
	}

	recent := c.Trace().Recent()
	if len(recent) != 1 {
		t.Fatalf("trace has %d entries, want 1", len(recent))
	}
	e := recent[0]
	if e.Op != "write" || e.Addr != 0x3C || e.Hex != "aea83f" || e.Err != "" {
		t.Errorf("trace entry = %+v", e)
	}
	if e.Time.IsZero() {
		t.Error("trace entry not timestamped")
	}
}

func TestTraceSubscribe(t *testing.T) {
	f := newFakeTransport(0x3C)
	c := New(f, testLog(t))

	ch, cancel := c.Trace().Subscribe()
	defer cancel()

	if err := c.Write(0x3C, []byte{0x01}); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-ch:
		if e.Op != "write" || e.Hex != "01" {
			t.Errorf("streamed entry = %+v", e)
		}
	default:
		t.Fatal("no entry streamed to subscriber")
	}
}
