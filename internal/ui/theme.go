package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Theme defines the applet colors.
type Theme struct {
	Background string
	Text       string
	Muted      string
	Accent     string
	Track      string
	Warning    string
	Danger     string
}

// DefaultTheme returns the default dark theme.
func DefaultTheme() Theme {
	return Theme{
		Background: "#1e1e2e",
		Text:       "#cdd6f4",
		Muted:      "#6c7086",
		Accent:     "#fab387",
		Track:      "#45475a",
		Warning:    "#f9e2af",
		Danger:     "#f38ba8",
	}
}

// Styles holds the lipgloss styles for one opacity level.
type Styles struct {
	Window   lipgloss.Style
	Caret    lipgloss.Style
	Label    lipgloss.Style
	Focused  lipgloss.Style
	Filled   lipgloss.Style
	Knob     lipgloss.Style
	Empty    lipgloss.Style
	Value    lipgloss.Style
	Pending  lipgloss.Style
	SoftFail lipgloss.Style
	Status   lipgloss.Style
}

// Styles returns the styles with every foreground blended towards the
// background by 1-opacity.
func (t Theme) Styles(opacity float64) Styles {
	fg := func(c string) lipgloss.Color {
		return lipgloss.Color(fade(c, t.Background, opacity))
	}
	bg := lipgloss.Color(t.Background)

	return Styles{
		Window:   lipgloss.NewStyle().Background(bg),
		Caret:    lipgloss.NewStyle().Background(bg).Foreground(fg(t.Accent)),
		Label:    lipgloss.NewStyle().Background(bg).Foreground(fg(t.Muted)),
		Focused:  lipgloss.NewStyle().Background(bg).Foreground(fg(t.Text)).Bold(true),
		Filled:   lipgloss.NewStyle().Background(bg).Foreground(fg(t.Accent)),
		Knob:     lipgloss.NewStyle().Background(bg).Foreground(fg(t.Text)),
		Empty:    lipgloss.NewStyle().Background(bg).Foreground(fg(t.Track)),
		Value:    lipgloss.NewStyle().Background(bg).Foreground(fg(t.Text)),
		Pending:  lipgloss.NewStyle().Background(bg).Foreground(fg(t.Warning)),
		SoftFail: lipgloss.NewStyle().Background(bg).Foreground(fg(t.Danger)),
		Status:   lipgloss.NewStyle().Background(bg).Foreground(fg(t.Danger)).Italic(true),
	}
}

// fade blends color towards background; opacity 1 keeps color, 0 yields the
// background. Unparsable colors are returned unchanged.
func fade(color, background string, opacity float64) string {
	if opacity >= 1 {
		return color
	}
	if opacity < 0 {
		opacity = 0
	}
	c, err := colorful.Hex(color)
	if err != nil {
		return color
	}
	b, err := colorful.Hex(background)
	if err != nil {
		return color
	}
	return c.BlendRgb(b, 1-opacity).Clamped().Hex()
}
