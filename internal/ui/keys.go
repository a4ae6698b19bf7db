package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the applet.
type keyMap struct {
	Quit key.Binding

	// Selection
	Up   key.Binding
	Down key.Binding

	// Value changes on the selected control
	Increase     key.Binding
	Decrease     key.Binding
	FineIncrease key.Binding
	FineDecrease key.Binding
	Toggle       key.Binding
	Reset        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc/q", "Close"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "Previous control"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j", "tab"),
			key.WithHelp("↓/j", "Next control"),
		),
		Increase: key.NewBinding(
			key.WithKeys("right", "l", "+"),
			key.WithHelp("→/l", "Increase"),
		),
		Decrease: key.NewBinding(
			key.WithKeys("left", "h", "-"),
			key.WithHelp("←/h", "Decrease"),
		),
		FineIncrease: key.NewBinding(
			key.WithKeys("shift+right", "L"),
			key.WithHelp("shift+→", "Increase slightly"),
		),
		FineDecrease: key.NewBinding(
			key.WithKeys("shift+left", "H"),
			key.WithHelp("shift+←", "Decrease slightly"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "Toggle"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r", "backspace"),
			key.WithHelp("r", "Reset to default"),
		),
	}
}
