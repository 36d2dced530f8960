// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/crumbs/internal/catalog"
	"github.com/Thermoquad/crumbs/internal/controller"
	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusDeviceList = iota
	focusCommandInput
)

const maxLogEntries = 100

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// deviceItem adapts a scan result to list.Item
type deviceItem struct {
	controller.Device
}

func (d deviceItem) Title() string {
	return fmt.Sprintf("0x%02X %s", d.Addr, d.TypeName)
}

func (d deviceItem) Description() string {
	switch {
	case d.Version == nil:
		return "no version"
	case d.Compatible:
		return d.Version.String()
	default:
		return d.Version.String() + " (incompatible)"
	}
}

func (d deviceItem) FilterValue() string { return fmt.Sprintf("%02X", d.Addr) }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	ctl      *controller.Controller
	cat      *catalog.Catalog
	connInfo string
	opts     crumbs.ScanOptions
	interval time.Duration

	// Scanning
	scanning   bool
	lastReport *controller.ScanReport
	spinner    spinner.Model

	// Devices and commands
	deviceList   list.Model
	cmdInput     textinput.Model
	focusedField int

	log []logEntry

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type scanResultMsg struct {
	report *controller.ScanReport
	err    error
}

type commandResultMsg struct {
	line   string
	output string
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newMonitorModel(ctl *controller.Controller, c *catalog.Catalog, connInfo string, opts crumbs.ScanOptions, interval time.Duration) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "query 0x10 0x80"
	ti.Prompt = "> "
	ti.CharLimit = 120
	ti.Width = 48

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 36, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return monitorModel{
		ctl:        ctl,
		cat:        c,
		connInfo:   connInfo,
		opts:       opts,
		interval:   interval,
		scanning:   true,
		spinner:    sp,
		deviceList: deviceList,
		cmdInput:   ti,
		width:      80,
		height:     24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.startScan(), m.spinner.Tick)
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// startScan runs a scan off the UI goroutine
func (m *monitorModel) startScan() tea.Cmd {
	m.scanning = true
	ctl, opts := m.ctl, m.opts
	return func() tea.Msg {
		report, err := ctl.Scan(opts)
		return scanResultMsg{report: report, err: err}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		if m.scanning {
			return m, monitorTickCmd(m.interval)
		}
		return m, m.startScan()

	case scanResultMsg:
		m.scanning = false
		m.applyScan(msg)
		return m, monitorTickCmd(m.interval)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
		} else {
			m.addLogEntry(msg.output, false)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusCommandInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		if m.focusedField == focusDeviceList {
			m.focusedField = focusCommandInput
			m.cmdInput.Focus()
		} else {
			m.focusedField = focusDeviceList
			m.cmdInput.Blur()
		}
		return m, nil

	case "r":
		if m.focusedField == focusDeviceList {
			m.ctl.ResetStatistics()
			m.addLogEntry("Statistics reset", false)
			return m, nil
		}

	case "s":
		if m.focusedField == focusDeviceList && !m.scanning {
			return m, m.startScan()
		}

	case "enter":
		if m.focusedField == focusCommandInput {
			line := strings.TrimSpace(m.cmdInput.Value())
			m.cmdInput.SetValue("")
			if line == "" {
				return m, nil
			}
			ctl, c := m.ctl, m.cat
			return m, func() tea.Msg {
				out, err := runCommandLine(ctl, c, line)
				return commandResultMsg{line: line, output: out, err: err}
			}
		}
		if d, ok := m.deviceList.SelectedItem().(deviceItem); ok {
			m.cmdInput.SetValue(fmt.Sprintf("query 0x%02X ", d.Addr))
			m.cmdInput.CursorEnd()
			m.focusedField = focusCommandInput
			m.cmdInput.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusedField == focusCommandInput {
		m.cmdInput, cmd = m.cmdInput.Update(msg)
	} else {
		m.deviceList, cmd = m.deviceList.Update(msg)
	}
	return m, cmd
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) applyScan(msg scanResultMsg) {
	if msg.err != nil {
		m.addLogEntry(fmt.Sprintf("Scan failed: %v", msg.err), true)
		return
	}

	prev := map[uint8]bool{}
	if m.lastReport != nil {
		for _, d := range m.lastReport.Devices {
			prev[d.Addr] = true
		}
	}

	now := map[uint8]bool{}
	for _, d := range msg.report.Devices {
		now[d.Addr] = true
		if !prev[d.Addr] {
			m.addLogEntry(fmt.Sprintf("Device 0x%02X (%s) appeared", d.Addr, d.TypeName), false)
		}
		if d.Err != nil && !errors.Is(d.Err, crumbs.ErrIntegrity) {
			m.addLogEntry(fmt.Sprintf("Device 0x%02X: %v", d.Addr, d.Err), true)
		}
	}
	for addr := range prev {
		if !now[addr] {
			m.addLogEntry(fmt.Sprintf("Device 0x%02X disappeared", addr), true)
		}
	}

	m.lastReport = msg.report
	items := make([]list.Item, len(msg.report.Devices))
	for i, d := range msg.report.Devices {
		items[i] = deviceItem{d}
	}
	m.deviceList.SetItems(items)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}

func (m *monitorModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(36, listHeight)
}

// runCommandLine executes one TUI command:
//
//	send <addr> <type> <opcode> [hex...]
//	query <addr> <opcode>
//	version <addr>
func runCommandLine(ctl *controller.Controller, c *catalog.Catalog, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.New("empty command")
	}

	switch fields[0] {
	case "send", "s":
		if len(fields) < 4 {
			return "", errors.New("usage: send <addr> <type> <opcode> [hex...]")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return "", err
		}
		typeID, err := parseTypeID(c, fields[2])
		if err != nil {
			return "", err
		}
		opcode, err := parseUint8("opcode", fields[3])
		if err != nil {
			return "", err
		}
		data, err := parseHexBytes(fields[4:])
		if err != nil {
			return "", err
		}
		if err := ctl.Send(addr, typeID, opcode, data); err != nil {
			return "", err
		}
		return fmt.Sprintf("-> 0x%02X %s %s (%d bytes)", addr, c.TypeName(typeID), c.OpcodeName(typeID, opcode), len(data)), nil

	case "query", "q":
		if len(fields) != 3 {
			return "", errors.New("usage: query <addr> <opcode>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return "", err
		}
		opcode, err := parseUint8("opcode", fields[2])
		if err != nil {
			return "", err
		}
		reply, err := ctl.Query(addr, opcode)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("<- 0x%02X %s", addr, describeMessage(c, &reply)), nil

	case "version", "v":
		if len(fields) != 2 {
			return "", errors.New("usage: version <addr>")
		}
		addr, err := parseAddress(fields[1])
		if err != nil {
			return "", err
		}
		info, typeID, err := ctl.Version(addr)
		if err != nil {
			return "", err
		}
		status := "compatible"
		if err := c.CheckVersion(typeID, info); err != nil {
			status = err.Error()
		}
		return fmt.Sprintf("<- 0x%02X %s %s (%s)", addr, c.TypeName(typeID), info, status), nil
	}

	return "", fmt.Errorf("unknown command %q (send, query, version)", fields[0])
}

//////////////////////////////////////////////////////////////
// Rendering
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("CRUMBS - BUS MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Scan 0x%02X-0x%02X every %v | tab: focus, s: scan, r: reset, q: quit",
		m.connInfo, m.opts.Start, m.opts.End, m.interval)))
	s.WriteString("\n\n")

	// Scan status
	if m.scanning {
		s.WriteString(m.spinner.View() + warningStyle.Render(" Scanning..."))
	} else if m.lastReport != nil {
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("✓ %d device(s)", m.lastReport.Total)))
		s.WriteString(headerStyle.Render(fmt.Sprintf(" in %v at %s",
			m.lastReport.Duration.Round(time.Microsecond), m.lastReport.Started.Format("15:04:05"))))
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatistics(statsLabelStyle, statsValueStyle, errorStyle)))
	s.WriteString("\n")

	listBox := boxStyle
	inputBox := boxStyle
	if m.focusedField == focusDeviceList {
		listBox = focusedBoxStyle
	} else {
		inputBox = focusedBoxStyle
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		listBox.Render(m.deviceList.View()),
		inputBox.Render(statsLabelStyle.Render("Command")+"\n"+m.cmdInput.View()+"\n"+
			headerStyle.Render("send <addr> <type> <op> [hex]\nquery <addr> <op>\nversion <addr>")),
	))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, headerStyle, errorStyle, warningStyle, boxStyle))
	return s.String()
}

func (m monitorModel) renderStatistics(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	stats := m.ctl.Statistics()
	crcCount, lastOK := m.ctl.CRCStats()

	errStyle := valueStyle
	if stats.Errors() > 0 {
		errStyle = errorStyle
	}
	lastCRC := valueStyle.Render("ok")
	if !lastOK {
		lastCRC = errorStyle.Render("failed")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Transactions:"), valueStyle.Render(fmt.Sprintf("%d", stats.Transactions)),
		labelStyle.Render("Queries:"), valueStyle.Render(fmt.Sprintf("%d", stats.Queries)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d", stats.ValidReplies)),
		labelStyle.Render("Scans:"), valueStyle.Render(fmt.Sprintf("%d", stats.Scans)),
	))
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s (last %s)\n",
		labelStyle.Render("Errors:"), errStyle.Render(fmt.Sprintf("%d", stats.Errors())),
		labelStyle.Render("CRC:"), errStyle.Render(fmt.Sprintf("%d", stats.CRCErrors)),
		labelStyle.Render("Decode:"), errStyle.Render(fmt.Sprintf("%d", stats.DecodeErrors)),
		labelStyle.Render("Bad frames:"), errStyle.Render(fmt.Sprintf("%d", crcCount)), lastCRC,
	))
	b.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f tx/s", stats.TransactionRate)),
		labelStyle.Render("Error Rate:"), errStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate)),
	))
	return b.String()
}

func (m monitorModel) renderEventLog(labelStyle, headerStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.log) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}
