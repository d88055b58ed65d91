package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
)

var (
	colorPrimary = lipgloss.Color("#7C71F9")
	colorSuccess = lipgloss.Color("#34D399")
	colorError   = lipgloss.Color("#F87171")
	colorWarning = lipgloss.Color("#FBBF24")
	colorOrange  = lipgloss.Color("#FB923C")
	colorDim     = lipgloss.Color("#6B7280")
	colorAccent  = lipgloss.Color("#60A5FA")
)

var (
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)

	styleCommand = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleAction  = lipgloss.NewStyle().Bold(true)

	styleTableHeader = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	stylePID = lipgloss.NewStyle().Foreground(colorAccent)
)

var levelColors = map[core.Level]lipgloss.Color{
	core.LevelGreen:    colorSuccess,
	core.LevelYellow:   colorWarning,
	core.LevelOrange:   colorOrange,
	core.LevelRed:      colorError,
	core.LevelCritical: colorError,
}

func levelStyle(level core.Level) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(levelColors[level])
	if level == core.LevelCritical {
		style = style.Bold(true).Reverse(true)
	}
	return style
}

var actionColors = map[governor.Action]lipgloss.Color{
	governor.ActionContinue:         colorSuccess,
	governor.ActionContinueDegraded: colorWarning,
	governor.ActionSnapshotAndPause: colorOrange,
	governor.ActionHalt:             colorError,
}

func actionStyle(action governor.Action) lipgloss.Style {
	return styleAction.Foreground(actionColors[action])
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})
}

func styledError(msg string, hints ...string) string {
	out := styleError.Render(msg)
	for _, h := range hints {
		out += "\n  " + styleDim.Render(h)
	}
	return out
}

// renderStatus always shows used and total so the budget never reads as unlimited.
func renderStatus(s governor.Status) string {
	t := newTable("SESSION", "LEVEL", "BUDGET", "SNAPSHOT")

	snapshot := string(s.SnapshotStatus)
	if s.SnapshotLocation != "" {
		snapshot += fmt.Sprintf(" (step %d) ", s.SnapshotStep) + styleDim.Render(s.SnapshotLocation)
	}

	t.Row(
		string(s.SessionID),
		levelStyle(s.Level).Render(s.Level.String()),
		fmt.Sprintf("%d%% (%d/%d)", s.BudgetUsedPercent, min(s.Used, s.Total), s.Total),
		snapshot,
	)

	var notes []string
	if s.SnapshotPending {
		notes = append(notes, styleWarning.Render(fmt.Sprintf("snapshot pending: none written since step %d of %d", s.SnapshotStep, s.Steps)))
	}
	if s.AwaitingSwitchConfirmation {
		notes = append(notes, styleWarning.Render("awaiting backend switch confirmation"))
	}
	if s.Backend != "" {
		notes = append(notes, "backend: "+styleCommand.Render(s.Backend))
	}
	if s.Halted {
		notes = append(notes, styleError.Render("halted: start a new session with `reset`"))
	}

	out := t.Render()
	if len(notes) > 0 {
		out += "\n" + strings.Join(notes, "\n")
	}
	return out
}

func renderDirective(d governor.Directive) string {
	var b strings.Builder

	b.WriteString(actionStyle(d.Action).Render(string(d.Action)))
	b.WriteString(" " + styleDim.Render(fmt.Sprintf("verbosity=%s chunk=%s", d.Mode.Verbosity, d.Mode.Chunk)))
	if d.Reason != "" {
		b.WriteString("\n" + d.Reason)
	}
	if d.Status != nil {
		b.WriteString("\n\n" + renderStatus(*d.Status))
	}
	return b.String()
}
