package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up          key.Binding
	down        key.Binding
	trigger     key.Binding
	detail      key.Binding
	suggestions key.Binding
	back        key.Binding
	refresh     key.Binding
	quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		trigger:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run now")),
		detail:      key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "details")),
		suggestions: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "suggestions")),
		back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.trigger},
		{k.detail, k.suggestions, k.back},
		{k.refresh, k.quit},
	}
}
