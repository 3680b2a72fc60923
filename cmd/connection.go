// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is a byte stream to the modem over serial or WebSocket.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port. Besides the byte stream it exposes
// the line controls the modem needs: break for auto-baud training and DTR
// for the supply enable.
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// Break holds TX low for d.
func (s *SerialConnection) Break(d time.Duration) error {
	return s.port.Break(d)
}

// ResetInputBuffer discards unread input.
func (s *SerialConnection) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

// SetDTR drives the DTR line.
func (s *SerialConnection) SetDTR(on bool) error {
	return s.port.SetDTR(on)
}

// OpenSerialConnection opens portName at baudRate, 8N1 as the RN2483 expects.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialConnection{port: port}, nil
}

// WebSocket timing. Pings keep the bridge link open while the node sleeps.
const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
	wsWriteWait    = 5 * time.Second
	wsDialTimeout  = 15 * time.Second
)

// WebSocketConnection carries the modem's serial stream through a
// serial-to-WebSocket bridge. Message boundaries carry no meaning: each
// message is whatever run of bytes the bridge read from the port.
type WebSocketConnection struct {
	conn *websocket.Conn
	msg  io.Reader
	err  error

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{conn: conn, done: make(chan struct{})}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go w.keepAlive()
	return w
}

func (w *WebSocketConnection) keepAlive() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteWait)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Printf("websocket: ping failed: %v", err)
				return
			}
		}
	}
}

// Read streams message payloads back to back. A normal close from the bridge
// reads as io.EOF.
func (w *WebSocketConnection) Read(p []byte) (int, error) {
	for w.err == nil {
		if w.msg == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				w.err = err
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					w.err = io.EOF
				}
				break
			}
			w.msg = r
		}
		n, err := w.msg.Read(p)
		if errors.Is(err, io.EOF) {
			w.msg = nil
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, w.err
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close says goodbye to the bridge and drops the connection.
func (w *WebSocketConnection) Close() error {
	err := net.ErrClosed
	w.closeOnce.Do(func() {
		close(w.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		err = w.conn.Close()
	})
	return err
}

// DialWebSocket connects to a bridge at rawURL. Credentials, when username is
// set, go in a Basic authorization header.
func DialWebSocket(ctx context.Context, rawURL, username, password string) (*WebSocketConnection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	header := http.Header{}
	if username != "" {
		(&http.Request{Header: header}).SetBasicAuth(username, password)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake with %s failed (HTTP %d): %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", u.Host, err)
	}
	return newWebSocketConnection(conn), nil
}

// readPassword returns TIDEWATCH_PASSWORD, or prompts for it without echo.
func readPassword() (string, error) {
	if pw := os.Getenv("TIDEWATCH_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to prompt for the bridge password; set TIDEWATCH_PASSWORD")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// OpenConnection opens the link named by --url or --port and describes it.
func OpenConnection() (Connection, string, error) {
	switch {
	case wsURL != "":
		password := ""
		if wsUsername != "" {
			var err error
			if password, err = readPassword(); err != nil {
				return nil, "", err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
		defer cancel()
		conn, err := DialWebSocket(ctx, wsURL, wsUsername, password)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil

	case portName != "":
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}
	return nil, "", errors.New("either --port or --url must be specified")
}
