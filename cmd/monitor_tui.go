// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/tidewatch/pkg/fault"
	"github.com/Thermoquad/tidewatch/pkg/lora"
	"github.com/Thermoquad/tidewatch/pkg/lpp"
	"github.com/Thermoquad/tidewatch/pkg/node"
	"github.com/Thermoquad/tidewatch/pkg/wake"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for faults and failed uplinks
}

// TUI model
type monitorModel struct {
	title         string
	connInfo      string
	stack         *nodeStack
	started       time.Time
	snapshot      node.Snapshot
	radio         lora.Status
	ledOn         bool
	uplinks       int
	failed        int
	eventLog      []eventLogEntry
	maxLogEntries int
	shakeInput    textinput.Model
	editing       bool
	width         int
	height        int
	quitting      bool
}

// Messages
type monitorTickMsg time.Time
type nodeEventMsg node.Event
type uplinkMsg struct {
	kind      lora.Uplink
	payload   []byte
	delivered bool
	at        time.Time
}
type faultMsg struct {
	code fault.Code
	at   time.Time
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, p := range []struct {
		n    uint64
		unit string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
	} {
		if p.n == 1 {
			parts = append(parts, "1 "+p.unit)
		} else if p.n > 1 {
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newMonitorModel(title, connInfo string, stack *nodeStack) monitorModel {
	// Text input for a custom accelerometer event count
	ti := textinput.New()
	ti.Placeholder = "12"
	ti.CharLimit = 4
	ti.Width = 6

	return monitorModel{
		title:         title,
		connInfo:      connInfo,
		stack:         stack,
		started:       stack.clock.Now(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 200,
		shakeInput:    ti,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.handleShakeInput(msg)
		}
		switch msg.String() {
		case "x":
			m.editing = true
			m.shakeInput.SetValue("")
			return m, m.shakeInput.Focus()
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "0", "1":
			m.stack.buttons.Press(int(msg.String()[0] - '0'))
			m.addLogEntry(m.stack.clock.Now(), "button "+msg.String()+" pressed", false)
		case "t":
			m.stack.queue.Post(wake.Timer)
			m.addLogEntry(m.stack.clock.Now(), "timer fired", false)
		case "a":
			m.stack.accel.Shake(1)
			m.addLogEntry(m.stack.clock.Now(), "buoy nudged", false)
		case "s":
			n := int(m.stack.cfg.NodeConfig().StormInterrupts) + 1
			m.stack.accel.Shake(n)
			m.addLogEntry(m.stack.clock.Now(), fmt.Sprintf("storm: %d accelerometer events", n), false)
		case "c":
			m.stack.probe.Cut()
			m.addLogEntry(m.stack.clock.Now(), "cable cut", true)
		case "r":
			m.stack.probe.Repair()
			m.addLogEntry(m.stack.clock.Now(), "cable repaired", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.snapshot = m.stack.machine.Snapshot()
		m.radio = m.stack.manager.Status()
		m.ledOn = m.stack.led.On()
		return m, monitorTickCmd()

	case nodeEventMsg:
		ev := node.Event(msg)
		m.snapshot = m.stack.machine.Snapshot()
		text := fmt.Sprintf("%s -> %s (batch %d)", ev.From, ev.To, ev.Count)
		if ev.From == node.StateWakeup {
			text += fmt.Sprintf(" wake=%s causes=%s", ev.Wake, ev.Causes)
		}
		m.addLogEntry(ev.Time, text, false)

	case uplinkMsg:
		m.uplinks++
		text := fmt.Sprintf("uplink %s (%d bytes)", msg.kind, len(msg.payload))
		if u, err := lpp.Decode(msg.payload); err == nil {
			text += ": " + summarizeUplink(u)
		}
		if !msg.delivered {
			m.failed++
			text += " FAILED"
		}
		m.addLogEntry(msg.at, text, !msg.delivered)

	case faultMsg:
		m.addLogEntry(msg.at, fmt.Sprintf("fault %d %s (%s)", uint8(msg.code), msg.code, msg.code.Band()), true)
	}

	return m, nil
}

// handleShakeInput edits the event count; enter injects it, esc cancels.
func (m monitorModel) handleShakeInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.editing = false
		m.shakeInput.Blur()
		return m, nil
	case "enter":
		m.editing = false
		m.shakeInput.Blur()
		val := m.shakeInput.Value()
		if val == "" {
			val = m.shakeInput.Placeholder
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			m.addLogEntry(m.stack.clock.Now(), fmt.Sprintf("invalid event count %q", val), true)
			return m, nil
		}
		m.stack.accel.Shake(n)
		m.addLogEntry(m.stack.clock.Now(), fmt.Sprintf("shook %d accelerometer events", n), false)
		return m, nil
	}

	var cmd tea.Cmd
	m.shakeInput, cmd = m.shakeInput.Update(msg)
	return m, cmd
}

// summarizeUplink renders a decoded uplink on one line.
func summarizeUplink(u *lpp.Uplink) string {
	var parts []string
	if n := len(u.BatteryVoltage); n > 0 {
		parts = append(parts, fmt.Sprintf("vbat %.2fV", u.BatteryVoltage[n-1]))
	}
	if n := len(u.ExternalTemperature); n > 0 {
		parts = append(parts, fmt.Sprintf("water %.1f°C", u.ExternalTemperature[n-1]))
	}
	if len(u.StormDetected) > 0 {
		parts = append(parts, fmt.Sprintf("storm=%d", u.StormDetected[0]))
	}
	if len(u.CableBroken) > 0 {
		parts = append(parts, fmt.Sprintf("cable_broken=%d", u.CableBroken[0]))
	}
	if len(u.Status) > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", u.Status[0]))
	}
	return strings.Join(parts, " ")
}

func (m *monitorModel) addLogEntry(at time.Time, message string, isError bool) {
	entry := eventLogEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Keys: 0/1 button, t timer, a nudge, s storm, x shake n, c cut, r repair, q quit", m.connInfo)))
	s.WriteString("\n\n")
	if m.editing {
		s.WriteString(statsLabelStyle.Render("Shake events: "))
		s.WriteString(m.shakeInput.View())
		s.WriteString(headerStyle.Render("  (enter to send, esc to cancel)"))
		s.WriteString("\n\n")
	}

	// Node
	snap := m.snapshot
	led := headerStyle.Render("○ off")
	if m.ledOn {
		led = warningStyle.Render("● on")
	}
	uptime := m.stack.clock.Now().Sub(m.started)

	nodeContent := strings.Builder{}
	nodeContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("State:"), statsValueStyle.Render(snap.State.String()),
		statsLabelStyle.Render("Batch:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", snap.Count, node.BatchSize)),
		statsLabelStyle.Render("LED:"), led,
	))
	storm := statsValueStyle.Render("calm")
	if snap.StormDetected {
		storm = errorStyle.Render("STORM")
	}
	nodeContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Sea:"), storm,
		statsLabelStyle.Render("Slept:"), statsValueStyle.Render(snap.Accumulated.String()),
		statsLabelStyle.Render("Last wake:"), statsValueStyle.Render(snap.LastWake.String()),
	))
	cable := statsValueStyle.Render("intact")
	if !m.stack.probe.Intact() {
		cable = errorStyle.Render("BROKEN")
	}
	nodeContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Cable:"), cable,
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(uint64(uptime/time.Millisecond))),
	))
	s.WriteString(boxStyle.Render(nodeContent.String()))
	s.WriteString("\n\n")

	// Radio and link
	st := m.stack.link.Statistics()
	radioContent := strings.Builder{}
	radioStatus := statsValueStyle.Render(m.radio.String())
	if m.radio != lora.Joined {
		radioStatus = warningStyle.Render(m.radio.String())
	}
	failed := statsValueStyle.Render("0")
	if m.failed > 0 {
		failed = errorStyle.Render(fmt.Sprintf("%d", m.failed))
	}
	radioContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Radio:"), radioStatus,
		statsLabelStyle.Render("Uplinks:"), statsValueStyle.Render(fmt.Sprintf("%d", m.uplinks)),
		statsLabelStyle.Render("Failed:"), failed,
	))
	timeouts := statsValueStyle.Render("0")
	if n := st.Timeouts(); n > 0 {
		timeouts = errorStyle.Render(fmt.Sprintf("%d", n))
	}
	radioContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("TX:"), statsValueStyle.Render(fmt.Sprintf("%d frames", st.TxFrames)),
		statsLabelStyle.Render("RX:"), statsValueStyle.Render(fmt.Sprintf("%d frames", st.RxFrames)),
		statsLabelStyle.Render("Timeouts:"), timeouts,
	))
	if count := m.stack.faults.Count(); count > 0 {
		code, _ := m.stack.faults.Last()
		radioContent.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render("Faults:"), errorStyle.Render(fmt.Sprintf("%d (last %d %s)", count, uint8(code), code)),
		))
	}
	s.WriteString(boxStyle.Render(radioContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 17 // Reserve space for header and boxes
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
