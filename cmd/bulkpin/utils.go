package main

import "github.com/charmbracelet/lipgloss"

const bulkpinArt = `
 _           _ _          _
| |__  _   _| | | ___ __ (_)_ __
| '_ \| | | | | |/ / '_ \| | '_ \
| |_) | |_| | |   <| |_) | | | | |
|_.__/ \__,_|_|_|\_\ .__/|_|_| |_|
                   |_|`

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	bold      = lipgloss.NewStyle().Bold(true)
)
