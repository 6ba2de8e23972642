package shell

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"certportal/internal/navigation"
)

const appTitle = "Vehicle Export Certificates"

func (m Model) View() string {
	var body string
	switch {
	case !m.state.IsHydrated:
		body = m.skeletonView()
	case m.onLoginScreen():
		body = m.loginView()
	case !m.state.IsAuthChecked:
		body = m.placeholderView("Verifying session…")
	case !m.state.IsLoggedIn && !isPublicRoute(m.route.Path):
		body = m.placeholderView("Redirecting to login…")
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.contentView())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.toastView(), m.helpView())
}

func (m Model) skeletonView() string {
	bar := m.theme.faint().Render(strings.Repeat("░", sidebarWidth-4))
	lines := []string{bar, "", bar, bar, bar, bar, "", bar}
	return m.theme.sidebar().Render(strings.Join(lines, "\n"))
}

func (m Model) placeholderView(text string) string {
	return m.theme.sidebar().Render(m.theme.title().Render(appTitle) + "\n\n" + m.theme.faint().Render(text))
}

func (m Model) sidebarView() string {
	var b strings.Builder
	b.WriteString(m.theme.title().Render(appTitle))
	b.WriteString("\n\n")

	for i, item := range menuItems {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		active := routeActive(item.Route, m.route.Path)
		b.WriteString(m.theme.menuItem(i == m.cursor, active).Render(marker + item.Label))
		b.WriteString("\n")
	}

	if u := m.state.User; u != nil {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(u.Name))
		b.WriteString("\n")
		b.WriteString(m.theme.faint().Render(u.Email))
		b.WriteString("\n")
		b.WriteString(m.theme.faint().Render(string(u.Role)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.loggingOut:
		b.WriteString(m.theme.faint().Render("Logging out…"))
	case m.state.IsLoggedIn:
		b.WriteString(m.theme.faint().Render("[o] Log out"))
	default:
		b.WriteString(m.theme.faint().Render("[l] Log in"))
	}
	return m.theme.sidebar().Render(b.String())
}

func (m Model) contentView() string {
	title, text := pageFor(m.route.Path)
	style := lipgloss.NewStyle().Padding(1, 2)
	return style.Render(m.theme.title().Render(title) + "\n\n" + text)
}

func pageFor(path string) (string, string) {
	for _, item := range menuItems {
		if routeActive(item.Route, path) {
			return item.Label, fmt.Sprintf("%s will appear here.", item.Label)
		}
	}
	if path == navigation.UnauthorizedRoute {
		return "Unauthorized", "Your account does not have access to that page."
	}
	return "Not found", fmt.Sprintf("Nothing lives at %s.", path)
}

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString(m.theme.title().Render("Sign in"))
	b.WriteString("\n\n")
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")
	if m.submitting {
		b.WriteString(m.theme.faint().Render("Signing in…"))
	} else {
		b.WriteString(m.theme.faint().Render("enter to continue"))
	}
	return m.theme.sidebar().Width(sidebarWidth + 20).Render(b.String())
}

func (m Model) toastView() string {
	lines := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		lines = append(lines, m.theme.toast(t.Kind).Render(t.Message))
	}
	return strings.Join(lines, "\n")
}

func (m Model) helpView() string {
	session := m.keys.Logout
	if !m.state.IsLoggedIn {
		session = m.keys.Login
	}
	bindings := []string{
		m.keys.Up.Help().Key + " " + m.keys.Up.Help().Desc,
		m.keys.Down.Help().Key + " " + m.keys.Down.Help().Desc,
		m.keys.Open.Help().Key + " " + m.keys.Open.Help().Desc,
		m.keys.Back.Help().Key + " " + m.keys.Back.Help().Desc,
		session.Help().Key + " " + session.Help().Desc,
		m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc,
	}
	if m.onLoginScreen() {
		bindings = []string{
			m.keys.NextField.Help().Key + " " + m.keys.NextField.Help().Desc,
			m.keys.Submit.Help().Key + " " + m.keys.Submit.Help().Desc,
			m.keys.Cancel.Help().Key + " " + m.keys.Cancel.Help().Desc,
		}
	}
	return m.theme.faint().Render(strings.Join(bindings, " · "))
}
