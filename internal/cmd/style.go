package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// styles renders command output for the writer it was created for. Writers
// that are not terminals get plain text at unlimited width.
type styles struct {
	heading lipgloss.Style
	name    lipgloss.Style
	muted   lipgloss.Style
	width   int
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	s := styles{
		heading: r.NewStyle().Bold(true),
		name:    r.NewStyle().Foreground(lipgloss.Color("6")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			s.width = w
		}
	}
	return s
}

// fit truncates line to the terminal width, keeping escape sequences intact.
func (s styles) fit(line string) string {
	if s.width <= 3 || lipgloss.Width(line) <= s.width {
		return line
	}
	return ansi.Truncate(line, s.width, "...")
}
