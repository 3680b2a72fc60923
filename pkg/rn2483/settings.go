// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rn2483

import (
	"fmt"
	"strings"
)

// Activation selects the LoRaWAN activation method.
type Activation int

const (
	OTAA Activation = iota
	ABP
)

// ParseActivation parses "otaa" or "abp".
func ParseActivation(s string) (Activation, error) {
	switch strings.ToLower(s) {
	case "otaa":
		return OTAA, nil
	case "abp":
		return ABP, nil
	}
	return 0, fmt.Errorf("unknown activation %q (use otaa or abp)", s)
}

func (a Activation) String() string {
	if a == ABP {
		return "abp"
	}
	return "otaa"
}

// DataRate is an EU868 data rate index.
type DataRate int

const (
	SF12BW125 DataRate = iota
	SF11BW125
	SF10BW125
	SF9BW125
	SF8BW125
	SF7BW125
)

var dataRateNames = map[string]DataRate{
	"SF12BW125": SF12BW125,
	"SF11BW125": SF11BW125,
	"SF10BW125": SF10BW125,
	"SF9BW125":  SF9BW125,
	"SF8BW125":  SF8BW125,
	"SF7BW125":  SF7BW125,
}

// ParseDataRate parses a name such as "SF9BW125".
func ParseDataRate(s string) (DataRate, error) {
	dr, ok := dataRateNames[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("unknown data rate %q", s)
	}
	return dr, nil
}

func (d DataRate) String() string {
	for name, dr := range dataRateNames {
		if dr == d {
			return name
		}
	}
	return fmt.Sprintf("DR%d", int(d))
}

// powerIndex maps EU868 output power in dBm to the modem's pwridx.
var powerIndex = map[int]int{
	14: 1,
	11: 2,
	8:  3,
	5:  4,
	2:  5,
}

// Settings is everything needed to bring the modem onto the network.
type Settings struct {
	Activation Activation

	// OTAA
	DevEUI string
	AppEUI string
	AppKey string

	// ABP
	DevAddr string
	NwkSKey string
	AppSKey string

	DataRate    DataRate
	OutputPower int // dBm
	Port        uint8
}

// DefaultSettings returns settings for an OTAA node at SF9 and 14 dBm.
func DefaultSettings() Settings {
	return Settings{
		Activation:  OTAA,
		DataRate:    SF9BW125,
		OutputPower: 14,
		Port:        1,
	}
}

// Validate checks key lengths and enum ranges.
func (s Settings) Validate() error {
	check := func(name, v string, n int) error {
		if len(v) != n || !isHex(v) {
			return fmt.Errorf("%s must be %d hex characters", name, n)
		}
		return nil
	}

	var errs []error
	switch s.Activation {
	case OTAA:
		errs = append(errs, check("dev_eui", s.DevEUI, 16), check("app_eui", s.AppEUI, 16), check("app_key", s.AppKey, 32))
	case ABP:
		errs = append(errs, check("dev_addr", s.DevAddr, 8), check("nwk_s_key", s.NwkSKey, 32), check("app_s_key", s.AppSKey, 32))
	default:
		return fmt.Errorf("unknown activation %d", s.Activation)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if s.DataRate < SF12BW125 || s.DataRate > SF7BW125 {
		return fmt.Errorf("unknown data rate %d", s.DataRate)
	}
	if _, ok := powerIndex[s.OutputPower]; !ok {
		return fmt.Errorf("unsupported output power %d dBm (use 2, 5, 8, 11 or 14)", s.OutputPower)
	}
	if s.Port == 0 || s.Port > 223 {
		return fmt.Errorf("port %d out of range 1-223", s.Port)
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
