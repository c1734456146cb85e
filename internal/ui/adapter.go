package ui

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Host is the bridge surface the adapter drives. Commit proposes new script
// source (returning the outcome message); QueueCommand stores a one-shot
// command for the next tick.
type Host interface {
	Commit(source string) (ok bool, message string)
	QueueCommand(cmd string)
	Response() string
}

// Adapter reconciles a widget's full state vector with the host on every
// update event, and projects the host's response text back into the label
// slot. The whole vector is read and the whole vector is replaced, matching
// the widget protocol's modify semantics.
type Adapter struct {
	host Host
	log  zerolog.Logger

	// lastCommitted avoids re-proposing the same source on every
	// reconciliation while auto-run is enabled.
	lastCommitted string
}

// NewAdapter creates an adapter bound to a host.
func NewAdapter(host Host, log zerolog.Logger) *Adapter {
	return &Adapter{
		host: host,
		log:  log.With().Str("component", "ui").Logger(),
	}
}

// HandleUpdate processes one update event: reads the current state vector,
// emits host commands, and returns the replacement vector. Consumed
// one-shot inputs (button clicks, the command text) are cleared in the
// returned vector; the label slot always reflects the host's latest
// response.
func (a *Adapter) HandleUpdate(states []State) ([]State, error) {
	if len(states) != slotCount {
		return nil, fmt.Errorf("state vector has %d slots, want %d", len(states), slotCount)
	}

	script, err := TextBoxAt(states, SlotScript)
	if err != nil {
		return nil, err
	}
	autoRun, err := CheckBoxAt(states, SlotAutoRun)
	if err != nil {
		return nil, err
	}
	run, err := ButtonAt(states, SlotRunButton)
	if err != nil {
		return nil, err
	}
	command, err := TextInputAt(states, SlotCommand)
	if err != nil {
		return nil, err
	}
	exec, err := ButtonAt(states, SlotExecButton)
	if err != nil {
		return nil, err
	}
	if _, err := LabelAt(states, SlotResponse); err != nil {
		return nil, err
	}

	if run.Clicked || (autoRun.Checked && script.Text != a.lastCommitted) {
		ok, message := a.host.Commit(script.Text)
		if ok {
			a.lastCommitted = script.Text
		}
		a.log.Debug().Bool("ok", ok).Str("message", message).Msg("script committed")
	}

	commandText := command.Text
	if exec.Clicked && strings.TrimSpace(commandText) != "" {
		a.host.QueueCommand(commandText)
		commandText = ""
	}

	next := make([]State, slotCount)
	next[SlotScript] = script
	next[SlotAutoRun] = autoRun
	next[SlotRunButton] = ButtonState{}
	next[SlotCommand] = TextInputState{Text: commandText}
	next[SlotExecButton] = ButtonState{}
	next[SlotResponse] = LabelState{Text: a.host.Response()}
	return next, nil
}

// SetResponse returns a copy of states with the label slot replaced by
// text. It is the projection half of the protocol, used when the host's
// response changes without an input event.
func SetResponse(states []State, text string) ([]State, error) {
	if _, err := LabelAt(states, SlotResponse); err != nil {
		return nil, err
	}
	next := make([]State, len(states))
	copy(next, states)
	next[SlotResponse] = LabelState{Text: text}
	return next, nil
}
