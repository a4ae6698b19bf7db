package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/property"
)

// Poster accepts controller events.
type Poster interface {
	Post(ev controller.Event) bool
}

// Model is the Bubble Tea model of the applet.
type Model struct {
	opts   Options
	keys   keyMap
	theme  Theme
	target Poster
	layout layout

	snap     controller.Snapshot
	hasSnap  bool
	focus    int
	dragging bool
	dragRow  row
	fine     bool
	quitting bool
}

// New creates the model. Events are posted to target.
func New(target Poster, opts Options) Model {
	visible := opts.Visible
	if visible == nil {
		visible = property.All[:]
	}
	return Model{
		opts:   opts,
		keys:   DefaultKeyMap(),
		theme:  DefaultTheme(),
		target: target,
		layout: newLayout(opts, visible),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		return m.applySnapshot(controller.Snapshot(msg))
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		return m.handleMouse(msg)
	}
	return m, nil
}

func (m Model) applySnapshot(snap controller.Snapshot) (tea.Model, tea.Cmd) {
	first := !m.hasSnap
	m.snap = snap
	m.hasSnap = true

	if snap.Hidden() {
		m.quitting = true
		return m, tea.Quit
	}

	var visible []property.ID
	for _, id := range property.All {
		if snap.Records[id].Enabled {
			visible = append(visible, id)
		}
	}
	if !m.layout.sameRows(visible) {
		m.layout = newLayout(m.opts, visible)
		if m.dragging && m.layout.index(m.dragRow.Property) < 0 {
			m.dragging = false
		}
		first = true
	}
	if first {
		if i := m.layout.index(snap.Focus); i >= 0 {
			m.focus = i
		}
	}
	if m.focus >= len(m.layout.rows) {
		m.focus = 0
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	r, ok := m.focused()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.focus = (m.focus + len(m.layout.rows) - 1) % len(m.layout.rows)
		m.post(controller.Interact{})
	case key.Matches(msg, m.keys.Down):
		m.focus = (m.focus + 1) % len(m.layout.rows)
		m.post(controller.Interact{})
	case key.Matches(msg, m.keys.FineIncrease):
		m.post(controller.Scroll{Property: r.Property, Ticks: 1, Fine: true})
	case key.Matches(msg, m.keys.FineDecrease):
		m.post(controller.Scroll{Property: r.Property, Ticks: -1, Fine: true})
	case key.Matches(msg, m.keys.Increase):
		m.post(controller.Scroll{Property: r.Property, Ticks: 1})
	case key.Matches(msg, m.keys.Decrease):
		m.post(controller.Scroll{Property: r.Property, Ticks: -1})
	case key.Matches(msg, m.keys.Toggle):
		if isSwitch(r.Property) {
			m.post(controller.Toggle{Property: r.Property})
		} else {
			m.post(controller.Interact{})
		}
	case key.Matches(msg, m.keys.Reset):
		m.post(controller.Reset{Property: r.Property})
	default:
		m.post(controller.Interact{})
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	held := msg.Shift || msg.Ctrl || msg.Alt
	if held != m.fine {
		m.fine = held
		m.post(controller.Modifier{Held: held})
	}

	switch msg.Action {
	case tea.MouseActionPress:
		r, ok := m.layout.at(msg.Y)
		if !ok {
			m.post(controller.Interact{})
			return m, nil
		}

		switch msg.Button {
		case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
			ticks := 1
			if msg.Button == tea.MouseButtonWheelDown {
				ticks = -1
			}
			m.focusOn(r)
			m.post(controller.Scroll{Property: r.Property, Ticks: ticks, Fine: held})

		case tea.MouseButtonLeft:
			m.focusOn(r)
			if isSwitch(r.Property) {
				m.post(controller.Toggle{Property: r.Property})
				return m, nil
			}
			if !r.onTrack(msg.X) {
				m.post(controller.Interact{})
				return m, nil
			}
			m.dragging = true
			m.dragRow = r
			m.post(controller.PointerDown{Property: r.Property, Pos: r.pos(msg.X), Extent: r.extent()})

		case tea.MouseButtonRight:
			m.focusOn(r)
			m.post(controller.Reset{Property: r.Property})

		default:
			m.post(controller.Interact{})
		}

	case tea.MouseActionMotion:
		if m.dragging {
			m.post(controller.PointerMove{Pos: m.dragRow.pos(msg.X)})
		}

	case tea.MouseActionRelease:
		if m.dragging {
			m.dragging = false
			m.post(controller.PointerUp{})
		}
	}
	return m, nil
}

func (m *Model) focusOn(r row) {
	if i := m.layout.index(r.Property); i >= 0 {
		m.focus = i
	}
}

func (m Model) focused() (row, bool) {
	if m.focus < 0 || m.focus >= len(m.layout.rows) {
		return row{}, false
	}
	return m.layout.rows[m.focus], true
}

func (m Model) post(ev controller.Event) {
	if m.target != nil {
		m.target.Post(ev)
	}
}

func isSwitch(id property.ID) bool {
	return property.DomainOf(id).Kind == property.KindBool
}
