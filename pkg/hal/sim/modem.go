// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/lpp"
	"github.com/Thermoquad/tidewatch/pkg/transport"
)

// Emulated module identity
const (
	ModemVersion     = "RN2483 1.0.5 Oct 31 2018 15:06:52"
	ModemHardwareEUI = "0004A30B00F1D2C3"
	minSleep         = 100 * time.Millisecond
)

// Receiver takes the bytes the modem sends back.
type Receiver interface {
	ReceiveByte(b byte)
}

// ModemOptions configures the emulator.
type ModemOptions struct {
	// DeniedJoins is the number of join requests refused before the network
	// accepts one.
	DeniedJoins int
	// OnUplink is told about every accepted uplink.
	OnUplink func(port uint8, confirmed bool, payload []byte)
}

// Modem emulates an RN2483 LoRaWAN module behind a UART. It implements
// transport.Peripheral: the first response line of a command is returned
// during the transfer, later lines when reception is re-armed.
type Modem struct {
	opts ModemOptions

	mu        sync.Mutex
	rx        Receiver
	line      []byte
	pending   []string
	powered   bool
	joined    bool
	sleeping  bool
	breakSeen bool
	keys      map[string]string
	denied    int
	downlinks []string
	uplinks   int
}

var _ transport.Peripheral = (*Modem)(nil)

// NewModem creates an unpowered emulator.
func NewModem(opts ModemOptions) *Modem {
	return &Modem{opts: opts, keys: map[string]string{}}
}

// Attach connects the emulator's output to rx.
func (m *Modem) Attach(rx Receiver) {
	m.mu.Lock()
	m.rx = rx
	m.mu.Unlock()
}

// SetPower switches the module's supply. Powering down loses the session.
func (m *Modem) SetPower(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powered = on
	if !on {
		m.joined = false
		m.sleeping = false
		m.breakSeen = false
		m.pending = nil
		m.line = nil
	}
}

// QueueDownlink schedules a downlink for the next uplink's receive window.
func (m *Modem) QueueDownlink(port uint8, data []byte) {
	m.mu.Lock()
	m.downlinks = append(m.downlinks, fmt.Sprintf("mac_rx %d %s", port, strings.ToUpper(hex.EncodeToString(data))))
	m.mu.Unlock()
}

// Joined reports whether a session is active.
func (m *Modem) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// Sleeping reports whether the module is in sleep.
func (m *Modem) Sleeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleeping
}

// Uplinks returns the number of accepted uplinks.
func (m *Modem) Uplinks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uplinks
}

// SyncBusy is always false: the emulator has no register synchronisation.
func (m *Modem) SyncBusy() bool { return false }

// TransferActive is always false: transfers complete inside StartTransfer.
func (m *Modem) TransferActive() bool { return false }

// StartTransfer feeds p to the module's command parser.
func (m *Modem) StartTransfer(p []byte) error {
	var out []string
	var notify []func()

	m.mu.Lock()
	for _, b := range p {
		if !m.powered {
			break
		}
		if m.sleeping {
			if b == transport.AutoBaudByte && m.breakSeen {
				m.sleeping, m.breakSeen = false, false
				m.pending = append(m.pending, "ok")
			}
			continue
		}
		if b == transport.AutoBaudByte && len(m.line) == 0 {
			continue
		}
		m.line = append(m.line, b)
		if b != '\n' {
			continue
		}
		cmd := strings.TrimSpace(string(m.line))
		m.line = m.line[:0]
		lines, cb := m.handle(cmd)
		if cb != nil {
			notify = append(notify, cb)
		}
		if len(lines) > 0 {
			out = append(out, lines[0])
			m.pending = append(m.pending, lines[1:]...)
		}
	}
	rx := m.rx
	m.mu.Unlock()

	for _, cb := range notify {
		cb()
	}
	deliver(rx, out)
	return nil
}

// ArmReceive releases the next deferred response line.
func (m *Modem) ArmReceive() {
	m.mu.Lock()
	var out []string
	if len(m.pending) > 0 {
		out = m.pending[:1]
		m.pending = m.pending[1:]
	}
	rx := m.rx
	m.mu.Unlock()
	deliver(rx, out)
}

// Break interrupts a sleep when followed by the auto-baud byte.
func (m *Modem) Break(hold time.Duration) error {
	m.mu.Lock()
	if m.sleeping {
		m.breakSeen = true
	}
	m.mu.Unlock()
	return nil
}

// Reset drops any partial command and deferred responses.
func (m *Modem) Reset() error {
	m.mu.Lock()
	m.line = nil
	m.pending = nil
	m.mu.Unlock()
	return nil
}

func deliver(rx Receiver, lines []string) {
	if rx == nil {
		return
	}
	for _, l := range lines {
		for _, b := range []byte(l + "\r\n") {
			rx.ReceiveByte(b)
		}
	}
}

var keyLengths = map[string]int{
	"deveui":  16,
	"appeui":  16,
	"appkey":  32,
	"devaddr": 8,
	"nwkskey": 32,
	"appskey": 32,
}

// handle runs one command with m.mu held. The returned callback, if any,
// runs after the lock is released.
func (m *Modem) handle(cmd string) ([]string, func()) {
	f := strings.Fields(cmd)
	switch {
	case cmd == "sys get ver" || cmd == "sys reset":
		if cmd == "sys reset" {
			m.joined = false
		}
		return []string{ModemVersion}, nil
	case cmd == "sys get hweui":
		return []string{ModemHardwareEUI}, nil
	case len(f) == 3 && f[0] == "sys" && f[1] == "sleep":
		ms, err := strconv.Atoi(f[2])
		if err != nil || time.Duration(ms)*time.Millisecond < minSleep {
			return []string{"invalid_param"}, nil
		}
		m.sleeping = true
		return nil, nil
	case cmd == "mac reset 868":
		m.joined = false
		m.keys = map[string]string{}
		return []string{"ok"}, nil
	case cmd == "mac get appeui":
		if eui, ok := m.keys["appeui"]; ok {
			return []string{eui}, nil
		}
		return []string{"0000000000000000"}, nil
	case len(f) == 4 && f[0] == "mac" && f[1] == "set":
		return []string{m.set(f[2], f[3])}, nil
	case cmd == "mac save" || cmd == "mac resume":
		return []string{"ok"}, nil
	case cmd == "mac pause":
		return []string{"4294967245"}, nil
	case cmd == "mac join otaa":
		return m.join("deveui", "appeui", "appkey"), nil
	case cmd == "mac join abp":
		return m.join("devaddr", "nwkskey", "appskey"), nil
	case len(f) == 5 && f[0] == "mac" && f[1] == "tx":
		return m.transmit(f[2], f[3], f[4])
	default:
		return []string{"invalid_param"}, nil
	}
}

func (m *Modem) set(param, value string) string {
	if n, ok := keyLengths[param]; ok {
		if _, err := hex.DecodeString(value); err != nil || len(value) != n {
			return "invalid_param"
		}
		m.keys[param] = strings.ToUpper(value)
		return "ok"
	}
	switch param {
	case "dr":
		if v, err := strconv.Atoi(value); err != nil || v < 0 || v > 7 {
			return "invalid_param"
		}
	case "pwridx":
		if v, err := strconv.Atoi(value); err != nil || v < 0 || v > 5 {
			return "invalid_param"
		}
	case "adr", "ar":
		if value != "on" && value != "off" {
			return "invalid_param"
		}
	default:
		return "invalid_param"
	}
	return "ok"
}

func (m *Modem) join(keys ...string) []string {
	for _, k := range keys {
		if _, ok := m.keys[k]; !ok {
			return []string{"keys_not_init"}
		}
	}
	if m.denied < m.opts.DeniedJoins {
		m.denied++
		return []string{"ok", "denied"}
	}
	m.joined = true
	return []string{"ok", "accepted"}
}

func (m *Modem) transmit(kind, portField, data string) ([]string, func()) {
	if kind != "cnf" && kind != "uncnf" {
		return []string{"invalid_param"}, nil
	}
	port, err := strconv.Atoi(portField)
	if err != nil || port < 1 || port > 223 {
		return []string{"invalid_param"}, nil
	}
	if !m.joined {
		return []string{"not_joined"}, nil
	}
	payload, err := hex.DecodeString(data)
	if err != nil {
		return []string{"invalid_param"}, nil
	}
	if len(payload) > lpp.MaxCapacity {
		return []string{"invalid_data_len"}, nil
	}
	m.uplinks++

	result := "mac_tx_ok"
	if len(m.downlinks) > 0 {
		result, m.downlinks = m.downlinks[0], m.downlinks[1:]
	}

	var cb func()
	if m.opts.OnUplink != nil {
		confirmed := kind == "cnf"
		cb = func() { m.opts.OnUplink(uint8(port), confirmed, payload) }
	}
	log.Printf("sim: modem uplink port %d, %d bytes", port, len(payload))
	return []string{"ok", result}, cb
}
