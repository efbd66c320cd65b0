package lifecycle

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const separator = "-----------------------------------------------"

// timeFormat matches a 12-hour locale time string.
const timeFormat = "3:04:05 PM"

// Reporter prints the startup and shutdown banners.
type Reporter struct {
	out     io.Writer
	now     func() time.Time
	version string
	support string

	title     lipgloss.Style
	downTitle lipgloss.Style
	rule      lipgloss.Style
	downRule  lipgloss.Style
	label     lipgloss.Style
	downLabel lipgloss.Style
	meta      lipgloss.Style
	link      lipgloss.Style
	value     lipgloss.Style
	port      lipgloss.Style
	note      lipgloss.Style
}

// NewReporter creates a Reporter writing to out.  Styling is dropped when
// out is not a terminal.
func NewReporter(out io.Writer, now func() time.Time, version, supportURL string) *Reporter {
	if now == nil {
		now = time.Now
	}
	r := lipgloss.NewRenderer(out)
	return &Reporter{
		out:     out,
		now:     now,
		version: version,
		support: supportURL,

		title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")),
		downTitle: r.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")),
		rule:      r.NewStyle().Foreground(lipgloss.Color("6")),
		downRule:  r.NewStyle().Foreground(lipgloss.Color("1")),
		label:     r.NewStyle().Foreground(lipgloss.Color("2")),
		downLabel: r.NewStyle().Foreground(lipgloss.Color("3")),
		meta:      r.NewStyle().Foreground(lipgloss.Color("5")),
		link:      r.NewStyle().Foreground(lipgloss.Color("4")),
		value:     r.NewStyle().Bold(true),
		port:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		note:      r.NewStyle().Foreground(lipgloss.Color("4")),
	}
}

// Started prints the status block shown once the listener is bound.
func (r *Reporter) Started(port int) {
	url := "http://localhost:" + strconv.Itoa(port)
	lines := []string{
		r.title.Render("  Welcome to Doge V4, user!  ") + "\n",
		r.rule.Render(separator),
		r.label.Render("  🌟 Status: ") + r.value.Render("Active"),
		r.label.Render("  🌍 Port: ") + r.port.Render(strconv.Itoa(port)),
		r.label.Render("  🕒 Time: ") + r.value.Render(r.now().Format(timeFormat)),
		r.rule.Render(separator),
		r.meta.Render("📦 Version: ") + r.value.Render(r.version),
		r.meta.Render("🔗 URL: ") + r.value.Underline(true).Render(url),
		r.rule.Render(separator),
		r.link.Render("💬 Discord: ") + r.value.Underline(true).Render(r.support),
		r.rule.Render(separator),
	}
	r.print(lines)
}

// ShuttingDown prints the banner shown when a shutdown trigger arrives.
func (r *Reporter) ShuttingDown(trigger string) {
	lines := []string{
		r.downTitle.Render(fmt.Sprintf("  Shutting Down (Signal: %s)  ", trigger)) + "\n",
		r.downRule.Render(separator),
		r.downLabel.Render("  🛑 Status: ") + r.value.Render("Shutting Down"),
		r.downLabel.Render("  🕒 Time: ") + r.value.Render(r.now().Format(timeFormat)),
		r.downRule.Render(separator),
		r.note.Render("  Performing graceful exit..."),
	}
	r.print(lines)
}

// Closed prints the final line once every connection is closed.
func (r *Reporter) Closed() {
	r.print([]string{r.note.Render("  Doge has been closed.")})
}

func (r *Reporter) print(lines []string) {
	_, _ = io.WriteString(r.out, strings.Join(lines, "\n")+"\n")
}
