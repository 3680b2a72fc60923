// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rn2483 drives a Microchip RN2483 LoRaWAN modem over its ASCII
// command interface.
//
// Each command is one CRLF-terminated line answered by one response line.
// Commands with a radio effect (join, transmit, sleep) answer "ok" first and
// report their outcome in a second line that is awaited separately.
package rn2483

import "strings"

// Status classifies a modem response line.
type Status int

const (
	MacOK Status = iota
	InvalidParam
	JoinAccepted
	JoinDenied
	NotJoined
	NoFreeChannel
	Silent
	FrameCounterRejoinNeeded
	Busy
	MacPaused
	InvalidDataLen
	MacTxOK
	MacRx
	MacErr
	RadioTxOK
	RadioErr
	Unknown
	TxTimeout
	RxTimeout
	DataReturned
)

var responses = map[string]Status{
	"ok":                              MacOK,
	"invalid_param":                   InvalidParam,
	"accepted":                        JoinAccepted,
	"denied":                          JoinDenied,
	"not_joined":                      NotJoined,
	"no_free_ch":                      NoFreeChannel,
	"silent":                          Silent,
	"frame_counter_err_rejoin_needed": FrameCounterRejoinNeeded,
	"busy":                            Busy,
	"mac_paused":                      MacPaused,
	"invalid_data_len":                InvalidDataLen,
	"mac_tx_ok":                       MacTxOK,
	"mac_err":                         MacErr,
	"radio_tx_ok":                     RadioTxOK,
	"radio_err":                       RadioErr,
}

// Classify maps a response line to a Status. Lines that are not a known
// keyword are data returned by a get command.
func Classify(line string) Status {
	line = strings.TrimSpace(line)
	if line == "" {
		return Unknown
	}
	if s, ok := responses[line]; ok {
		return s
	}
	if strings.HasPrefix(line, "mac_rx ") {
		return MacRx
	}
	if strings.HasPrefix(line, "radio_rx ") {
		return DataReturned
	}
	if strings.Contains(line, "_") && !strings.Contains(line, " ") {
		// Unlisted snake_case keyword from a newer firmware.
		return Unknown
	}
	return DataReturned
}

// Delivered reports whether an uplink result means the frame went out.
func (s Status) Delivered() bool {
	return s == MacTxOK || s == MacRx
}

func (s Status) String() string {
	switch s {
	case MacOK:
		return "MAC_OK"
	case InvalidParam:
		return "INVALID_PARAM"
	case JoinAccepted:
		return "JOIN_ACCEPTED"
	case JoinDenied:
		return "JOIN_DENIED"
	case NotJoined:
		return "NOT_JOINED"
	case NoFreeChannel:
		return "NO_FREE_CH"
	case Silent:
		return "SILENT"
	case FrameCounterRejoinNeeded:
		return "FRAME_COUNTER_ERR_REJOIN_NEEDED"
	case Busy:
		return "BUSY"
	case MacPaused:
		return "MAC_PAUSED"
	case InvalidDataLen:
		return "INVALID_DATA_LEN"
	case MacTxOK:
		return "MAC_TX_OK"
	case MacRx:
		return "MAC_RX"
	case MacErr:
		return "MAC_ERR"
	case RadioTxOK:
		return "RADIO_TX_OK"
	case RadioErr:
		return "RADIO_ERR"
	case TxTimeout:
		return "TX_TIMEOUT"
	case RxTimeout:
		return "RX_TIMEOUT"
	case DataReturned:
		return "DATA_RETURNED"
	default:
		return "UNKNOWN_ERR"
	}
}
