package watch

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme represents the color theme for the TUI
type Theme struct {
	Primary     lipgloss.AdaptiveColor
	Secondary   lipgloss.AdaptiveColor
	Success     lipgloss.AdaptiveColor
	Warning     lipgloss.AdaptiveColor
	Error       lipgloss.AdaptiveColor
	Info        lipgloss.AdaptiveColor
	Subtle      lipgloss.AdaptiveColor
	HighlightLo lipgloss.AdaptiveColor
	Text        lipgloss.AdaptiveColor
	TextDim     lipgloss.AdaptiveColor
}

// GruvboxTheme creates a new Gruvbox-inspired theme
func GruvboxTheme() Theme {
	return Theme{
		// Gruvbox-inspired colors
		Primary: lipgloss.AdaptiveColor{
			Light: "#b8bb26", // Gruvbox light green
			Dark:  "#b8bb26", // Gruvbox dark green
		},
		Secondary: lipgloss.AdaptiveColor{
			Light: "#fe8019", // Gruvbox light orange
			Dark:  "#fe8019", // Gruvbox dark orange
		},
		Success: lipgloss.AdaptiveColor{
			Light: "#98971a", // Gruvbox light green
			Dark:  "#b8bb26", // Gruvbox dark green
		},
		Warning: lipgloss.AdaptiveColor{
			Light: "#d79921", // Gruvbox light yellow
			Dark:  "#fabd2f", // Gruvbox dark yellow
		},
		Error: lipgloss.AdaptiveColor{
			Light: "#cc241d", // Gruvbox light red
			Dark:  "#fb4934", // Gruvbox dark red
		},
		Info: lipgloss.AdaptiveColor{
			Light: "#458588", // Gruvbox light blue
			Dark:  "#83a598", // Gruvbox dark blue
		},
		Subtle: lipgloss.AdaptiveColor{
			Light: "#928374", // Gruvbox light gray
			Dark:  "#7c6f64", // Gruvbox dark gray
		},
		HighlightLo: lipgloss.AdaptiveColor{
			Light: "#d5c4a1", // Gruvbox light bg highlights
			Dark:  "#3c3836", // Gruvbox dark bg highlights
		},
		Text: lipgloss.AdaptiveColor{
			Light: "#3c3836", // Gruvbox light text
			Dark:  "#fbf1c7", // Gruvbox dark text
		},
		TextDim: lipgloss.AdaptiveColor{
			Light: "#7c6f64", // Gruvbox light text dim
			Dark:  "#a89984", // Gruvbox dark text dim
		},
	}
}

// DefaultTheme is the default theme for the TUI
var DefaultTheme = GruvboxTheme()

// Styles contains predefined styles for the TUI
type Styles struct {
	Title        lipgloss.Style
	Subtle       lipgloss.Style
	Error        lipgloss.Style
	Success      lipgloss.Style
	Warning      lipgloss.Style
	Info         lipgloss.Style
	Spinner      lipgloss.Style
	StatusBar    lipgloss.Style
	StageDone    lipgloss.Style
	StageActive  lipgloss.Style
	StagePending lipgloss.Style
	EventTime    lipgloss.Style
	EventKind    lipgloss.Style
	LevelDebug   lipgloss.Style
	LevelWarn    lipgloss.Style
	LevelError   lipgloss.Style
}

// DefaultStyles returns default styles for the TUI
func DefaultStyles() Styles {
	theme := DefaultTheme

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Text),

		Subtle: lipgloss.NewStyle().
			Foreground(theme.TextDim),

		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Error),

		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Success),

		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Warning),

		Info: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Secondary),

		StatusBar: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Text).
			Background(theme.HighlightLo).
			PaddingLeft(1).
			PaddingRight(1),

		StageDone: lipgloss.NewStyle().
			Foreground(theme.Success),

		StageActive: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		StagePending: lipgloss.NewStyle().
			Foreground(theme.Subtle),

		EventTime: lipgloss.NewStyle().
			Foreground(theme.TextDim),

		EventKind: lipgloss.NewStyle().
			Foreground(theme.Info),

		LevelDebug: lipgloss.NewStyle().
			Foreground(theme.Subtle),

		LevelWarn: lipgloss.NewStyle().
			Foreground(theme.Warning),

		LevelError: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Error),
	}
}

// DefaultStyle is the default style for the TUI
var DefaultStyle = DefaultStyles()
