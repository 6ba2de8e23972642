package shell

import "github.com/charmbracelet/lipgloss"

type theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	Accent     lipgloss.Color
	Selected   lipgloss.Color
	Border     lipgloss.Color
	Success    lipgloss.Color
	Failure    lipgloss.Color
}

var defaultTheme = theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("243"),
	Accent:     lipgloss.Color("39"),
	Selected:   lipgloss.Color("236"),
	Border:     lipgloss.Color("240"),
	Success:    lipgloss.Color("42"),
	Failure:    lipgloss.Color("203"),
}

func (t theme) title() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
}

func (t theme) faint() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.FaintText)
}

func (t theme) sidebar() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1).
		Width(sidebarWidth)
}

func (t theme) menuItem(selected, active bool) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(t.NormalText)
	if active {
		style = style.Bold(true).Foreground(t.Accent)
	}
	if selected {
		style = style.Background(t.Selected)
	}
	return style
}

func (t theme) toast(kind ToastKind) lipgloss.Style {
	color := t.Success
	if kind == ToastError {
		color = t.Failure
	}
	return lipgloss.NewStyle().Foreground(color)
}
