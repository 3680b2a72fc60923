// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

// pipeConn is a connection whose input is fed by the test and whose output
// is captured.
type pipeConn struct {
	r  *io.PipeReader
	pw *io.PipeWriter

	mu  sync.Mutex
	out bytes.Buffer
}

func newPipeConn() *pipeConn {
	r, w := io.Pipe()
	return &pipeConn{r: r, pw: w}
}

func (c *pipeConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *pipeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *pipeConn) Close() error {
	c.pw.Close()
	return c.r.Close()
}

func (c *pipeConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *pipeConn) feed(t *testing.T, s string) {
	t.Helper()
	if _, err := c.pw.Write([]byte(s)); err != nil {
		t.Fatalf("feed: %v", err)
	}
}

// serialConn adds the line controls a USB serial port has.
type serialConn struct {
	*pipeConn
	breaks []time.Duration
	dtr    []bool
	resets int
}

func (c *serialConn) Break(d time.Duration) error { c.breaks = append(c.breaks, d); return nil }
func (c *serialConn) SetDTR(on bool) error        { c.dtr = append(c.dtr, on); return nil }
func (c *serialConn) ResetInputBuffer() error     { c.resets++; return nil }

type lineRecorder struct {
	mu    sync.Mutex
	bytes []byte
}

func (r *lineRecorder) ReceiveByte(b byte) {
	r.mu.Lock()
	r.bytes = append(r.bytes, b)
	r.mu.Unlock()
}

func (r *lineRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.bytes)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTransferWritesAndDeliversReply(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	rx := &lineRecorder{}
	p.Attach(rx)
	p.Start()
	defer p.Close()

	if err := p.StartTransfer([]byte("sys get ver\r\n")); err != nil {
		t.Fatalf("StartTransfer: %v", err)
	}
	eventually(t, "write", func() bool { return !p.TransferActive() })
	if got := conn.written(); got != "sys get ver\r\n" {
		t.Errorf("written = %q", got)
	}

	conn.feed(t, "RN2483 1.0.5\r\n")
	eventually(t, "reply", func() bool { return rx.String() == "RN2483 1.0.5\r\n" })
}

func TestSecondLineWaitsForArm(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	rx := &lineRecorder{}
	p.Attach(rx)
	p.Start()
	defer p.Close()

	p.StartTransfer([]byte("mac tx uncnf 1 00\r\n"))
	conn.feed(t, "ok\r\nmac_tx_ok\r\n")
	eventually(t, "first line", func() bool { return rx.String() == "ok\r\n" })

	time.Sleep(10 * time.Millisecond)
	if got := rx.String(); got != "ok\r\n" {
		t.Fatalf("second line delivered before arm: %q", got)
	}

	p.ArmReceive()
	if got := rx.String(); got != "ok\r\nmac_tx_ok\r\n" {
		t.Errorf("after arm = %q", got)
	}
}

func TestArmBeforeLine(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	rx := &lineRecorder{}
	p.Attach(rx)
	p.Start()
	defer p.Close()

	p.ArmReceive()
	conn.feed(t, "accepted\r\n")
	eventually(t, "line", func() bool { return rx.String() == "accepted\r\n" })
}

func TestTransferDropsUnsolicitedLines(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	rx := &lineRecorder{}
	p.Attach(rx)
	p.Start()
	defer p.Close()

	conn.feed(t, "stale\r\n")
	eventually(t, "queued line", func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.pending) == 1
	})

	p.StartTransfer([]byte("sys get hweui\r\n"))
	conn.feed(t, "0004A30B00F1D2C3\r\n")
	eventually(t, "reply", func() bool { return rx.String() == "0004A30B00F1D2C3\r\n" })
}

func TestLineControls(t *testing.T) {
	plain := New(newPipeConn())
	if err := plain.Break(time.Millisecond); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Break on plain connection = %v, want ErrUnsupported", err)
	}
	if err := plain.Reset(); err != nil {
		t.Errorf("Reset on plain connection = %v", err)
	}

	conn := &serialConn{pipeConn: newPipeConn()}
	p := New(conn)
	if err := p.Break(20 * time.Millisecond); err != nil {
		t.Fatalf("Break: %v", err)
	}
	if len(conn.breaks) != 1 || conn.breaks[0] != 20*time.Millisecond {
		t.Errorf("breaks = %v", conn.breaks)
	}
	p.Reset()
	if conn.resets != 1 {
		t.Errorf("input resets = %d", conn.resets)
	}

	sw := NewPowerSwitch(conn)
	sw.SetModemPower(true)
	sw.SetModemPower(false)
	if len(conn.dtr) != 2 || !conn.dtr[0] || conn.dtr[1] || sw.On() {
		t.Errorf("dtr = %v on=%v", conn.dtr, sw.On())
	}
}

func TestTransportOverUART(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	link := transport.New(p, fault.RaiserFunc(func(c fault.Code) { t.Errorf("fault %v", c) }), transport.Options{})
	p.Attach(link)
	p.Start()
	defer p.Close()

	go func() {
		for conn.written() == "" {
			time.Sleep(time.Millisecond)
		}
		conn.pw.Write([]byte("ok\r\n"))
	}()

	if got := link.SendAndAwait([]byte("mac pause\r\n")); got != transport.StatusSent {
		t.Fatalf("SendAndAwait = %v", got)
	}
	if got := link.ReadResponse(); got != "ok\r" {
		t.Errorf("response = %q", got)
	}
}

func TestStartTransferAfterClose(t *testing.T) {
	p := New(newPipeConn())
	p.Start()
	p.Close()
	<-p.Done()
	if err := p.StartTransfer([]byte("x")); err == nil {
		t.Error("transfer on closed port succeeded")
	}
}
