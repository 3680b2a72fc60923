// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lora

import (
	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lpp"
)

// Uplink names the kind of message a payload carries.
type Uplink string

const (
	UplinkMeasurements Uplink = "measurements"
	UplinkStorm        Uplink = "storm"
	UplinkCable        Uplink = "cable"
	UplinkStatus       Uplink = "status"
	UplinkBootReport   Uplink = "boot_report"
)

// StatusBooted is the status value carried by the boot report.
const StatusBooted = 11

// stageCodes are the faults for the buffer, encode and send stages of one
// message kind.
type stageCodes struct {
	buffer, encode, send fault.Code
}

var (
	measurementCodes = stageCodes{fault.MeasurementsBuffer, fault.MeasurementsEncode, fault.MeasurementsSend}
	stormCodes       = stageCodes{fault.StormBuffer, fault.StormEncode, fault.StormSend}
	cableCodes       = stageCodes{fault.CableBuffer, fault.CableEncode, fault.CableSend}
	statusCodes      = stageCodes{fault.StatusBuffer, fault.StatusEncode, fault.StatusSend}
)

// send allocates a buffer of exactly size bytes, encodes into it and sends
// it unconfirmed. The buffer is released on every path. A failing stage
// raises its fault and aborts this one message.
func (m *Manager) send(kind Uplink, size int, codes stageCodes, encode func(b *lpp.Buffer) bool) bool {
	buf, err := lpp.NewBuffer(size)
	if err != nil {
		m.faults.Raise(codes.buffer)
		return false
	}
	defer buf.Release()

	if !encode(buf) {
		m.faults.Raise(codes.encode)
		return false
	}
	return m.deliver(kind, buf, codes.send)
}

func (m *Manager) deliver(kind Uplink, buf *lpp.Buffer, sendCode fault.Code) bool {
	st := m.SendLPP(buf, false)
	if m.opts.OnUplink != nil {
		m.opts.OnUplink(kind, append([]byte(nil), buf.Bytes()...), st == Success)
	}
	if st != Success {
		m.faults.Raise(sendCode)
		return false
	}
	return true
}

// SendMeasurements sends up to six batched readings. The buffer is sized for
// a full batch.
func (m *Manager) SendMeasurements(voltages, intTemps, extTemps []int32) bool {
	return m.send(UplinkMeasurements, lpp.MeasurementsSize(lpp.MaxMeasurements), measurementCodes,
		func(b *lpp.Buffer) bool { return b.AddMeasurements(voltages, intTemps, extTemps) })
}

// SendStormDetected sends the storm flag.
func (m *Manager) SendStormDetected(detected bool) bool {
	return m.send(UplinkStorm, lpp.SingleValueSize, stormCodes,
		func(b *lpp.Buffer) bool { return b.AddStormDetected(detected) })
}

// SendCableBroken sends the cable flag.
func (m *Manager) SendCableBroken(broken bool) bool {
	return m.send(UplinkCable, lpp.SingleValueSize, cableCodes,
		func(b *lpp.Buffer) bool { return b.AddCableBroken(broken) })
}

// SendStatus sends a single status byte, such as a forwarded fault code.
func (m *Manager) SendStatus(status uint8) bool {
	return m.send(UplinkStatus, lpp.SingleValueSize, statusCodes,
		func(b *lpp.Buffer) bool { return b.AddStatus(status) })
}

// SendBootReport sends the first reading together with the storm, cable and
// status records so the backend sees every channel once after power up.
func (m *Manager) SendBootReport(voltage, intTemp, extTemp int32, storm, cableBroken bool) bool {
	buf, err := lpp.NewBuffer(lpp.BootReportSize)
	if err != nil {
		m.faults.Raise(fault.BootReportBuffer)
		return false
	}
	defer buf.Release()

	steps := []struct {
		add  func() bool
		code fault.Code
	}{
		{func() bool { return buf.AddVBAT(lpp.VoltageValue(voltage)) }, fault.BootReportVBAT},
		{func() bool { return buf.AddIntTemp(lpp.TemperatureValue(intTemp)) }, fault.BootReportIntTemp},
		{func() bool { return buf.AddExtTemp(lpp.TemperatureValue(extTemp)) }, fault.BootReportExtTemp},
		{func() bool { return buf.AddStormRecord(storm) }, fault.BootReportStorm},
		{func() bool { return buf.AddCableRecord(cableBroken) }, fault.BootReportCable},
		{func() bool { return buf.AddStatusRecord(StatusBooted) }, fault.BootReportStatus},
	}
	for _, step := range steps {
		if !step.add() {
			m.faults.Raise(step.code)
			return false
		}
	}
	return m.deliver(UplinkBootReport, buf, fault.BootReportSend)
}
