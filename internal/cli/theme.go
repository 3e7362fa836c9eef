package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Auto    lipgloss.Color
	Confirm lipgloss.Color
	Unknown lipgloss.Color
	Speaker lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Auto:    lipgloss.Color("#00D787"), // green
	Confirm: lipgloss.Color("#FFAF00"), // amber
	Unknown: lipgloss.Color("#FF005F"), // red
	Speaker: lipgloss.Color("#5FAFD7"), // light blue
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) decisionStyle(d models.Decision) lipgloss.Style {
	switch d {
	case models.DecisionAuto:
		return lipgloss.NewStyle().Foreground(t.Auto)
	case models.DecisionConfirm:
		return lipgloss.NewStyle().Foreground(t.Confirm).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(t.Unknown).Bold(true)
	}
}

// decisionTag renders d as a fixed-width bracketed tag.
func (t Theme) decisionTag(d models.Decision) string {
	if d == "" {
		d = models.DecisionUnknown
	}
	return t.decisionStyle(d).Render(fmt.Sprintf("[%-7s]", d))
}

func (t Theme) speakerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Speaker).Bold(true)
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Underline(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// clock formats milliseconds as mm:ss.t.
func clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d.%d", ms/60_000, (ms/1000)%60, (ms%1000)/100)
}
