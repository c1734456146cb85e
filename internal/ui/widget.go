// Package ui translates widget state into host-visible bridge operations.
//
// The legacy widget protocol couples an ordered schema of control
// descriptors to an equally ordered state vector addressed by positional
// index. That "magic index" pattern is kept alive here only as an explicit
// mapping table at the boundary (the Slot* constants); everything else works
// in terms of tagged control variants with typed accessors that return
// errors instead of panicking on a mismatched variant.
package ui

import "fmt"

// ControlKind discriminates the tagged control variants.
type ControlKind string

const (
	KindTextBox   ControlKind = "text-box"
	KindTextInput ControlKind = "text-input"
	KindButton    ControlKind = "button"
	KindCheckBox  ControlKind = "check-box"
	KindLabel     ControlKind = "label"
)

// Schema describes one control in a widget. Exactly one descriptor per
// state slot, index-stable.
type Schema struct {
	Kind ControlKind
	// Label is meaningful for buttons and checkboxes only.
	Label string
}

// State is one control's current state.
type State interface {
	Kind() ControlKind
}

// TextBoxState is a multi-line editor's content.
type TextBoxState struct {
	Text string
}

func (TextBoxState) Kind() ControlKind { return KindTextBox }

// TextInputState is a single-line input's content.
type TextInputState struct {
	Text string
}

func (TextInputState) Kind() ControlKind { return KindTextInput }

// ButtonState reports whether the button was clicked since the last read.
type ButtonState struct {
	Clicked bool
}

func (ButtonState) Kind() ControlKind { return KindButton }

// CheckBoxState is a checkbox's current value.
type CheckBoxState struct {
	Checked bool
}

func (CheckBoxState) Kind() ControlKind { return KindCheckBox }

// LabelState is display-only text.
type LabelState struct {
	Text string
}

func (LabelState) Kind() ControlKind { return KindLabel }

// Slot indices for the bridge widget. This table is the entire remaining
// surface of the positional protocol: slot order here must match the order
// returned by DefaultSchema and DefaultState.
const (
	SlotScript = iota
	SlotAutoRun
	SlotRunButton
	SlotCommand
	SlotExecButton
	SlotResponse
	slotCount
)

// DefaultSchema returns the bridge widget's control descriptors.
func DefaultSchema() []Schema {
	return []Schema{
		SlotScript:     {Kind: KindTextBox},
		SlotAutoRun:    {Kind: KindCheckBox, Label: "Auto-run"},
		SlotRunButton:  {Kind: KindButton, Label: "Run"},
		SlotCommand:    {Kind: KindTextInput},
		SlotExecButton: {Kind: KindButton, Label: "Exec"},
		SlotResponse:   {Kind: KindLabel},
	}
}

// DefaultState returns a state vector matching DefaultSchema.
func DefaultState() []State {
	return []State{
		SlotScript:     TextBoxState{},
		SlotAutoRun:    CheckBoxState{},
		SlotRunButton:  ButtonState{},
		SlotCommand:    TextInputState{},
		SlotExecButton: ButtonState{},
		SlotResponse:   LabelState{},
	}
}

func slotState[T State](states []State, slot int) (T, error) {
	var zero T
	if slot < 0 || slot >= len(states) {
		return zero, fmt.Errorf("slot %d out of range (have %d states)", slot, len(states))
	}
	s, ok := states[slot].(T)
	if !ok {
		return zero, fmt.Errorf("slot %d holds %s, want %s", slot, states[slot].Kind(), zero.Kind())
	}
	return s, nil
}

// TextBoxAt returns the text-box state at slot, or an error on a variant
// mismatch.
func TextBoxAt(states []State, slot int) (TextBoxState, error) {
	return slotState[TextBoxState](states, slot)
}

// TextInputAt returns the text-input state at slot.
func TextInputAt(states []State, slot int) (TextInputState, error) {
	return slotState[TextInputState](states, slot)
}

// ButtonAt returns the button state at slot.
func ButtonAt(states []State, slot int) (ButtonState, error) {
	return slotState[ButtonState](states, slot)
}

// CheckBoxAt returns the checkbox state at slot.
func CheckBoxAt(states []State, slot int) (CheckBoxState, error) {
	return slotState[CheckBoxState](states, slot)
}

// LabelAt returns the label state at slot.
func LabelAt(states []State, slot int) (LabelState, error) {
	return slotState[LabelState](states, slot)
}
