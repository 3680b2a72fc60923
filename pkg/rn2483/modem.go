// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rn2483

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/transport"
)

// Link is the part of the serial transport the modem driver uses.
type Link interface {
	Init()
	BreakCondition()
	Send(p []byte)
	SendAndAwait(p []byte) transport.Status
	AwaitResponse() transport.Status
	ReadLine() string
	ClearBuffers()
	Reset()
}

// Modem is an RN2483 attached to a Link.
type Modem struct {
	link Link
}

// New creates a modem driver on link.
func New(link Link) *Modem {
	return &Modem{link: link}
}

// Init trains the modem's auto-baud detector.
func (m *Modem) Init() {
	m.link.Init()
}

// ResetLink resets the serial link, dropping any half-received reply.
func (m *Modem) ResetLink() {
	m.link.Reset()
}

// command sends one command line and classifies its immediate response.
func (m *Modem) command(format string, args ...any) (Status, string) {
	cmd := fmt.Sprintf(format, args...)
	m.link.ClearBuffers()
	if m.link.SendAndAwait([]byte(cmd+"\r\n")) != transport.StatusSent {
		return TxTimeout, ""
	}
	resp := strings.TrimSpace(m.link.ReadLine())
	return Classify(resp), resp
}

// awaitResult waits for the second line of a command with a radio effect.
func (m *Modem) awaitResult() (Status, string) {
	if m.link.AwaitResponse() != transport.StatusReceived {
		return RxTimeout, ""
	}
	resp := strings.TrimSpace(m.link.ReadLine())
	return Classify(resp), resp
}

func (m *Modem) simple(format string, args ...any) Status {
	s, _ := m.command(format, args...)
	return s
}

// GetSystemVersion returns the firmware version line.
func (m *Modem) GetSystemVersion() (string, Status) {
	s, resp := m.command("sys get ver")
	return resp, s
}

// GetHardwareEUI returns the preprogrammed EUI-64.
func (m *Modem) GetHardwareEUI() (string, Status) {
	s, resp := m.command("sys get hweui")
	return resp, s
}

// GetApplicationEUI returns the configured application EUI.
func (m *Modem) GetApplicationEUI() (string, Status) {
	s, resp := m.command("mac get appeui")
	return resp, s
}

// MacReset restores the LoRaWAN stack defaults for the 868 MHz band.
func (m *Modem) MacReset() Status { return m.simple("mac reset 868") }

// SetDeviceEUI sets the device EUI.
func (m *Modem) SetDeviceEUI(eui string) Status { return m.simple("mac set deveui %s", eui) }

// SetApplicationEUI sets the application (join) EUI.
func (m *Modem) SetApplicationEUI(eui string) Status { return m.simple("mac set appeui %s", eui) }

// SetApplicationKey sets the OTAA application key.
func (m *Modem) SetApplicationKey(key string) Status { return m.simple("mac set appkey %s", key) }

// SetDeviceAddress sets the ABP device address.
func (m *Modem) SetDeviceAddress(addr string) Status { return m.simple("mac set devaddr %s", addr) }

// SetNetworkSessionKey sets the ABP network session key.
func (m *Modem) SetNetworkSessionKey(key string) Status { return m.simple("mac set nwkskey %s", key) }

// SetApplicationSessionKey sets the ABP application session key.
func (m *Modem) SetApplicationSessionKey(key string) Status {
	return m.simple("mac set appskey %s", key)
}

// SetDataRate sets the uplink data rate.
func (m *Modem) SetDataRate(dr DataRate) Status {
	if dr < SF12BW125 || dr > SF7BW125 {
		return InvalidParam
	}
	return m.simple("mac set dr %d", int(dr))
}

// SetOutputPower sets the transmit power in dBm.
func (m *Modem) SetOutputPower(dBm int) Status {
	idx, ok := powerIndex[dBm]
	if !ok {
		return InvalidParam
	}
	return m.simple("mac set pwridx %d", idx)
}

// DisableAdaptiveDataRate keeps the configured data rate fixed.
func (m *Modem) DisableAdaptiveDataRate() Status { return m.simple("mac set adr off") }

// DisableAutomaticReplies stops the stack from sending empty uplinks on its own.
func (m *Modem) DisableAutomaticReplies() Status { return m.simple("mac set ar off") }

// SaveMac writes the MAC parameters to the modem's EEPROM.
func (m *Modem) SaveMac() Status { return m.simple("mac save") }

// PauseMac pauses the LoRaWAN stack. The modem answers with the pause time.
func (m *Modem) PauseMac() Status { return m.simple("mac pause") }

// ResumeMac resumes the LoRaWAN stack.
func (m *Modem) ResumeMac() Status { return m.simple("mac resume") }

// firstFailure runs steps in order and returns the first status that is not
// MacOK.
func firstFailure(steps ...func() Status) Status {
	for _, step := range steps {
		if s := step(); s != MacOK {
			return s
		}
	}
	return MacOK
}

// SetupOTAA loads OTAA credentials and radio parameters.
func (m *Modem) SetupOTAA(s Settings) Status {
	return firstFailure(
		m.MacReset,
		func() Status { return m.SetDeviceEUI(s.DevEUI) },
		func() Status { return m.SetApplicationEUI(s.AppEUI) },
		func() Status { return m.SetApplicationKey(s.AppKey) },
		func() Status { return m.SetOutputPower(s.OutputPower) },
		func() Status { return m.SetDataRate(s.DataRate) },
		m.DisableAdaptiveDataRate,
		m.DisableAutomaticReplies,
		m.SaveMac,
	)
}

// SetupABP loads ABP session keys and radio parameters.
func (m *Modem) SetupABP(s Settings) Status {
	return firstFailure(
		m.MacReset,
		func() Status { return m.SetDeviceAddress(s.DevAddr) },
		func() Status { return m.SetNetworkSessionKey(s.NwkSKey) },
		func() Status { return m.SetApplicationSessionKey(s.AppSKey) },
		func() Status { return m.SetOutputPower(s.OutputPower) },
		func() Status { return m.SetDataRate(s.DataRate) },
		m.DisableAdaptiveDataRate,
		m.DisableAutomaticReplies,
		m.SaveMac,
	)
}

// JoinOTAA starts an over-the-air join and waits for its outcome.
func (m *Modem) JoinOTAA() Status { return m.join("otaa") }

// JoinABP activates the ABP session.
func (m *Modem) JoinABP() Status { return m.join("abp") }

func (m *Modem) join(mode string) Status {
	if s, _ := m.command("mac join %s", mode); s != MacOK {
		return s
	}
	s, _ := m.awaitResult()
	return s
}

// Setup configures the modem for s and joins the network. It returns
// JoinAccepted on success.
func (m *Modem) Setup(s Settings) Status {
	if s.Activation == ABP {
		if st := m.SetupABP(s); st != MacOK {
			return st
		}
		return m.JoinABP()
	}
	if st := m.SetupOTAA(s); st != MacOK {
		return st
	}
	return m.JoinOTAA()
}

// TransmitUnconfirmed sends payload as an unconfirmed uplink on port.
func (m *Modem) TransmitUnconfirmed(port uint8, payload []byte) Status {
	return m.transmit("uncnf", port, payload)
}

// TransmitConfirmed sends payload as a confirmed uplink on port.
func (m *Modem) TransmitConfirmed(port uint8, payload []byte) Status {
	return m.transmit("cnf", port, payload)
}

func (m *Modem) transmit(kind string, port uint8, payload []byte) Status {
	s, _ := m.command("mac tx %s %d %s", kind, port, strings.ToUpper(hex.EncodeToString(payload)))
	if s != MacOK {
		return s
	}
	s, resp := m.awaitResult()
	if s == MacRx {
		log.Printf("rn2483: downlink %s", strings.TrimPrefix(resp, "mac_rx "))
	}
	return s
}

// Sleep puts the modem to sleep for d without waiting for it to wake. The
// modem prints "ok" when it wakes by itself or when Wake interrupts it.
func (m *Modem) Sleep(d time.Duration) {
	m.link.ClearBuffers()
	m.link.Send([]byte(fmt.Sprintf("sys sleep %d\r\n", d.Milliseconds())))
}

// Wake interrupts a modem sleep with a break and auto-baud byte.
func (m *Modem) Wake() Status {
	m.link.ClearBuffers()
	m.link.BreakCondition()
	m.link.Send([]byte{transport.AutoBaudByte})
	s, _ := m.awaitResult()
	return s
}
