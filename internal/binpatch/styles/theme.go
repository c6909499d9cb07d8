// Package styles holds the terminal look of binpatch output.
package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(charmtone.Zest.Hex())).
		Background(lipgloss.Color(charmtone.Charple.Hex())).
		Padding(0, 1)

	Label   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	Value   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	Offset  = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	Muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex()))
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	Failure = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Cheeky.Hex())).Bold(true)

	// Help line at the bottom of the viewer.
	Help = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)

	Spinner = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)
