package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	accentStyle  = lipgloss.NewStyle().Foreground(purple)
	boldStyle    = lipgloss.NewStyle().Bold(true)

	// MutedStyle dims rows for containers that are stopped or not fresh.
	MutedStyle = lipgloss.NewStyle().Foreground(dim)
)

func Bold(s string) string    { return boldStyle.Render(s) }
func Muted(s string) string   { return MutedStyle.Render(s) }
func Success(s string) string { return successStyle.Render(s) }
func Warn(s string) string    { return warnStyle.Render(s) }
func Error(s string) string   { return errorStyle.Render(s) }

func SuccessMsg(format string, a ...any) string { return status(successStyle, "✓", format, a) }
func WarnMsg(format string, a ...any) string    { return status(warnStyle, "!", format, a) }
func ErrorMsg(format string, a ...any) string   { return status(errorStyle, "✗", format, a) }
func InfoMsg(format string, a ...any) string    { return status(accentStyle, "●", format, a) }

func status(glyph lipgloss.Style, mark, format string, a []any) string {
	return glyph.Render(mark) + " " + fmt.Sprintf(format, a...)
}

type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders aligned "key:  value" lines with a trailing newline.
// Values spanning several lines are indented under their key.
func KeyValues(indent string, pairs ...Pair) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p.key)+1)
	}
	pad := indent + strings.Repeat(" ", width+1)

	var sb strings.Builder
	for _, p := range pairs {
		first, rest, _ := strings.Cut(p.value, "\n")
		fmt.Fprintf(&sb, "%s%s %s\n", indent, MutedStyle.Render(fmt.Sprintf("%-*s", width, p.key+":")), first)
		if rest == "" {
			continue
		}
		for _, l := range strings.Split(rest, "\n") {
			sb.WriteString(pad + l + "\n")
		}
	}
	return sb.String()
}

// RowStyle picks the style of a data row; nil keeps the default.
type RowStyle func(row int) *lipgloss.Style

// Table renders rows inside a rounded border with an accented header.
func Table(headers []string, rows [][]string, rowStyle RowStyle) string {
	cell := lipgloss.NewStyle().Padding(0, 1)
	header := cell.Foreground(purple).Bold(true)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if rowStyle != nil {
				if s := rowStyle(row); s != nil {
					return s.Padding(0, 1)
				}
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
