package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/joeycumines/simscript/internal/bridge"
	"github.com/joeycumines/simscript/internal/event"
	"github.com/joeycumines/simscript/internal/ui"
	"github.com/joeycumines/simscript/internal/world"
)

const (
	focusScript = iota
	focusCommand
)

// rewindFrames is how far one ctrl+z steps back: a second of simulation at
// the default tick rate.
const rewindFrames = 30

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	responseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type tickMsg time.Time

type model struct {
	world    *world.World
	instance *bridge.Instance
	bus      *event.Bus
	adapter  *ui.Adapter
	interval time.Duration

	script  textarea.Model
	command textinput.Model
	focus   int

	autoRun     bool
	pendingRun  bool
	pendingExec bool
	response    string

	width  int
	height int
	err    error
}

// instanceHost adapts the bridge instance to the UI adapter's Host surface.
type instanceHost struct {
	instance *bridge.Instance
}

func (h instanceHost) Commit(source string) (bool, string) {
	outcome := h.instance.Propose(source)
	return outcome.OK, outcome.Message
}

func (h instanceHost) QueueCommand(cmd string) {
	h.instance.QueueCommand(cmd)
}

func (h instanceHost) Response() string {
	return h.instance.Response()
}

func newModel(w *world.World, inst *bridge.Instance, bus *event.Bus, interval time.Duration, logger zerolog.Logger) model {
	ta := textarea.New()
	ta.Placeholder = "function update() { ... }"
	ta.SetValue(inst.Committed())
	ta.SetHeight(12)
	ta.Focus()

	ti := textinput.New()
	ti.Placeholder = "one-shot command, e.g. state.ticks"

	return model{
		world:    w,
		instance: inst,
		bus:      bus,
		adapter:  ui.NewAdapter(instanceHost{instance: inst}, logger),
		interval: interval,
		script:   ta,
		command:  ti,
		response: inst.Response(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.tickCmd())
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.script.SetWidth(msg.Width - 4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.focus == focusScript {
				m.focus = focusCommand
				m.script.Blur()
				m.command.Focus()
			} else {
				m.focus = focusScript
				m.command.Blur()
				m.script.Focus()
			}
			return m, nil
		case "ctrl+r":
			m.pendingRun = true
			m.bus.Publish("ui.update")
			return m, nil
		case "ctrl+a":
			m.autoRun = !m.autoRun
			m.bus.Publish("ui.update")
			return m, nil
		case "ctrl+z":
			n := rewindFrames
			if avail := m.world.HistoryLen(); n > avail {
				n = avail
			}
			if n > 0 {
				if err := m.world.Rewind(n); err != nil {
					m.err = err
				}
			}
			return m, nil
		case "enter":
			if m.focus == focusCommand {
				m.pendingExec = true
				m.bus.Publish("ui.update")
				return m, nil
			}
		}

	case tickMsg:
		m.reconcile()
		m.world.Capture()
		m.world.Advance(m.interval.Seconds())
		m.response = m.instance.Tick(m.world)
		return m, m.tickCmd()
	}

	var cmd tea.Cmd
	if m.focus == focusScript {
		m.script, cmd = m.script.Update(msg)
	} else {
		m.command, cmd = m.command.Update(msg)
	}
	return m, cmd
}

// reconcile runs the widget protocol when, and only when, an update signal
// arrived on the instance's subscribed channel.
func (m *model) reconcile() {
	signal := m.instance.Signal("ui.update")
	if signal == nil {
		return
	}
	select {
	case <-signal:
	default:
		return
	}

	states := []ui.State{
		ui.SlotScript:     ui.TextBoxState{Text: m.script.Value()},
		ui.SlotAutoRun:    ui.CheckBoxState{Checked: m.autoRun},
		ui.SlotRunButton:  ui.ButtonState{Clicked: m.pendingRun},
		ui.SlotCommand:    ui.TextInputState{Text: m.command.Value()},
		ui.SlotExecButton: ui.ButtonState{Clicked: m.pendingExec},
		ui.SlotResponse:   ui.LabelState{Text: m.response},
	}
	m.pendingRun = false
	m.pendingExec = false

	next, err := m.adapter.HandleUpdate(states)
	if err != nil {
		m.err = err
		return
	}
	if cmdState, err := ui.TextInputAt(next, ui.SlotCommand); err == nil {
		m.command.SetValue(cmdState.Text)
	}
	if label, err := ui.LabelAt(next, ui.SlotResponse); err == nil {
		m.response = label.Text
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("simscript"))
	auto := "off"
	if m.autoRun {
		auto = "on"
	}
	b.WriteString(sectionStyle.Render(fmt.Sprintf("  auto-run: %s", auto)))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("script"))
	b.WriteString("\n")
	b.WriteString(m.script.View())
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("command"))
	b.WriteString("\n")
	b.WriteString(m.command.View())
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("response"))
	b.WriteString("\n")
	resp := m.response
	style := responseStyle
	if strings.HasPrefix(resp, "Error") {
		style = errorStyle
	}
	if resp == "" {
		resp = "(none)"
	}
	b.WriteString(style.Render(resp))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("entities"))
	b.WriteString("\n")
	b.WriteString(m.entityTable())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("ui error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("tab: focus · ctrl+r: commit · enter: queue command · ctrl+a: auto-run · ctrl+z: rewind 1s · ctrl+c: quit"))
	return b.String()
}

func (m model) entityTable() string {
	var b strings.Builder
	for _, query := range m.instance.Capabilities().QueryNames() {
		ids, err := m.world.Entities(query)
		if err != nil {
			continue
		}
		kinds, err := m.world.QueryKinds(query)
		if err != nil {
			continue
		}
		b.WriteString(fmt.Sprintf("%s (%d)\n", query, len(ids)))
		for _, id := range ids {
			rec, err := m.world.Read(id, kinds)
			if err != nil || rec.Transform == nil {
				continue
			}
			p := rec.Transform.Position
			b.WriteString(fmt.Sprintf("  #%d  (%.2f, %.2f, %.2f)\n", id, p.X, p.Y, p.Z))
		}
	}
	if b.Len() == 0 {
		return "(no matched entities)"
	}
	return b.String()
}
