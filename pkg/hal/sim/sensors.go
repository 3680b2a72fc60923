// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"math"
	"sync"
	"time"

	"github.com/Thermoquad/tidewatch/pkg/fault"
)

// Sensor defaults
const (
	DefaultBatteryVoltage = 3600  // mV
	DefaultIntTemp        = 18000 // m°C
	DefaultWaterTemp      = 12000 // m°C
	dischargePerRead      = 1     // mV
	dailySwing            = 1500  // m°C
)

// Sensors models a slowly discharging battery and a water temperature that
// swings over the simulated day.
type Sensors struct {
	clock  *Clock
	faults fault.Raiser

	mu          sync.Mutex
	voltage     int32
	intTemp     int32
	waterTemp   int32
	probeAbsent bool
}

// NewSensors creates sensors on clock.
func NewSensors(clock *Clock, faults fault.Raiser) *Sensors {
	return &Sensors{
		clock:     clock,
		faults:    faults,
		voltage:   DefaultBatteryVoltage,
		intTemp:   DefaultIntTemp,
		waterTemp: DefaultWaterTemp,
	}
}

// SetProbeAbsent simulates a missing one-wire temperature probe.
func (s *Sensors) SetProbeAbsent(absent bool) {
	s.mu.Lock()
	s.probeAbsent = absent
	s.mu.Unlock()
}

// BatteryVoltage returns the battery voltage in mV.
func (s *Sensors) BatteryVoltage() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.voltage
	if s.voltage > 0 {
		s.voltage -= dischargePerRead
	}
	return v
}

// InternalTemperature returns the MCU die temperature in m°C.
func (s *Sensors) InternalTemperature() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intTemp + s.swing()/2
}

// ExternalTemperature returns the water temperature in m°C, or 0 after
// raising fault.TempSensorAbsent when the probe is missing.
func (s *Sensors) ExternalTemperature() int32 {
	s.mu.Lock()
	absent := s.probeAbsent
	t := s.waterTemp + s.swing()
	s.mu.Unlock()
	if absent {
		s.faults.Raise(fault.TempSensorAbsent)
		return 0
	}
	return t
}

func (s *Sensors) swing() int32 {
	now := s.clock.Now()
	day := float64(now.Hour()*3600+now.Minute()*60+now.Second()) / float64(24*time.Hour/time.Second)
	return int32(dailySwing * math.Sin(2*math.Pi*day))
}
