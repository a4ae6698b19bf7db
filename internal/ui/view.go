package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/property"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	opacity := 1.0
	if m.hasSnap {
		opacity = m.snap.Opacity
	}
	st := m.theme.Styles(opacity)

	pad := m.opts.OuterPadding
	if pad < 0 {
		pad = 0
	}
	inner := m.opts.Width - 2*pad

	var lines []string
	if !m.hasSnap {
		lines = append(lines, st.Label.Render(padRight("connecting…", inner)))
	} else {
		for i, r := range m.layout.rows {
			lines = append(lines, m.renderRow(st, i == m.focus, r))
		}
		if !m.snap.Connected {
			lines = append(lines, st.Status.Render(padRight("gamma relay unavailable", inner)))
		}
	}

	window := st.Window.Padding(pad, pad)
	if m.opts.Height > 0 {
		window = window.Height(m.opts.Height)
	}
	return window.Render(strings.Join(lines, "\n"))
}

func (m Model) renderRow(st Styles, focused bool, r row) string {
	rec := m.snap.Records[r.Property]
	var b strings.Builder

	if !m.opts.HideCaret {
		caret := "  "
		if focused {
			caret = "› "
		}
		b.WriteString(st.Caret.Render(caret))
	}

	if !m.opts.HideLabels {
		label := st.Label
		if focused {
			label = st.Focused
		}
		b.WriteString(label.Render(padRight(r.Property.Label(), labelWidth)))
	}

	if isSwitch(r.Property) {
		b.WriteString(renderSwitch(st, property.Bool(rec.Value), r.TrackW))
	} else {
		b.WriteString(renderTrack(st, r, rec.Value))
	}

	if !m.opts.HideValue {
		b.WriteString(renderValue(st, r.Property, rec))
	}
	return b.String()
}

// renderTrack draws the slider: filled cells up to the knob, empty after.
func renderTrack(st Styles, r row, v float64) string {
	k := r.knob(v)
	return st.Filled.Render(strings.Repeat("━", k)) +
		st.Knob.Render("●") +
		st.Empty.Render(strings.Repeat("─", r.TrackW-k-1))
}

func renderSwitch(st Styles, on bool, width int) string {
	text := "[ off]"
	style := st.Empty
	if on {
		text = "[ on ]"
		style = st.Filled
	}
	return style.Render(padRight(text, width))
}

// renderValue right-aligns the value. A value awaiting confirmation is drawn
// in the pending color; one that could not be delivered is flagged.
func renderValue(st Styles, id property.ID, rec property.Record) string {
	text := property.Format(id, rec.Value)
	style := st.Value
	switch {
	case rec.SoftFail:
		text = "!" + text
		style = st.SoftFail
	case rec.Pending:
		style = st.Pending
	}
	return style.Render(fmt.Sprintf("%*s", valueWidth, text))
}

func padRight(s string, width int) string {
	return fmt.Sprintf("%-*s", width, s)
}

// Run shows the applet until the user closes it, the window fades out or ctx
// is cancelled. Snapshots published to bridge are forwarded to the model.
func Run(ctx context.Context, target Poster, bridge *Bridge, opts Options, extra ...tea.ProgramOption) error {
	progOpts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	}, extra...)
	p := tea.NewProgram(New(target, opts), progOpts...)

	fwdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go bridge.Run(fwdCtx, p.Send)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

var _ tea.Model = Model{}

// Compile-time check that the controller satisfies Poster.
var _ Poster = (*controller.Controller)(nil)
