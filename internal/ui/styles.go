// Package ui is the full-screen terminal surface for a chat session.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"ChatWidget/internal/chatbot"
	"ChatWidget/internal/session"
)

type palette struct {
	fg, muted, accent, userBg, botBg lipgloss.Color
	info, warning, errorC            lipgloss.Color
}

var palettes = map[session.Theme]palette{
	session.ThemeLight: {
		fg:      "#1F2937",
		muted:   "#6B7280",
		accent:  "#4F46E5",
		userBg:  "#E0E7FF",
		botBg:   "#F3F4F6",
		info:    "#0369A1",
		warning: "#B45309",
		errorC:  "#B91C1C",
	},
	session.ThemeDark: {
		fg:      "#E5E7EB",
		muted:   "#9CA3AF",
		accent:  "#818CF8",
		userBg:  "#312E81",
		botBg:   "#1F2937",
		info:    "#38BDF8",
		warning: "#FBBF24",
		errorC:  "#F87171",
	},
}

// Styles holds the lipgloss styles for one theme
type Styles struct {
	Header    lipgloss.Style
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	User      lipgloss.Style
	Typing    lipgloss.Style
	StatusBar lipgloss.Style
	Online    lipgloss.Style
	Offline   lipgloss.Style
	Toast     map[chatbot.Level]lipgloss.Style
}

// NewStyles builds the styles for theme
func NewStyles(theme session.Theme) Styles {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[session.ThemeLight]
	}

	toast := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().
			Foreground(c).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c).
			Padding(0, 1)
	}

	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(p.muted),
		User: lipgloss.NewStyle().
			Foreground(p.fg).
			Background(p.userBg).
			Padding(0, 1),
		Typing:    lipgloss.NewStyle().Italic(true).Foreground(p.muted),
		StatusBar: lipgloss.NewStyle().Foreground(p.muted),
		Online:    lipgloss.NewStyle().Foreground(p.info),
		Offline:   lipgloss.NewStyle().Foreground(p.errorC),
		Toast: map[chatbot.Level]lipgloss.Style{
			chatbot.LevelInfo:    toast(p.info),
			chatbot.LevelWarning: toast(p.warning),
			chatbot.LevelError:   toast(p.errorC),
		},
	}
}

// DetectTheme picks a theme matching the terminal background
func DetectTheme() session.Theme {
	if termenv.HasDarkBackground() {
		return session.ThemeDark
	}
	return session.ThemeLight
}
