package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Viewer styles.
var (
	MenuBar = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1)
	Title    = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Charple.Hex())).Bold(true)
	Address  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	Selected = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	Mnemonic = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex()))
	Label    = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	Comment  = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Guac.Hex()))
	Error    = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Coral.Hex())).Bold(true)
	Tag      = lipgloss.NewStyle().
			Foreground(lipgloss.Color(charmtone.Butter.Hex())).
			Background(lipgloss.Color(charmtone.Charcoal.Hex())).
			Padding(0, 1)
)
