package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one ordered key/value line.
type Detail struct {
	Key   string
	Value string
}

// Header is a command banner with ordered parameters.
type Header struct {
	Title   string
	Command string
	Params  []Detail
	Width   int
}

// NewHeader creates a header sized to the terminal.
func NewHeader(title, command string, params ...Detail) *Header {
	return &Header{Title: title, Command: command, Params: params, Width: GetTerminalWidth()}
}

// Render returns the styled header.
func (h *Header) Render() string {
	lines := []string{
		TitleStyle.Render(strings.ToUpper(h.Title)),
		MutedStyle.Render(h.Command),
	}
	if len(h.Params) > 0 {
		lines = append(lines, Divider(h.Width-6))
		for _, p := range h.Params {
			lines = append(lines, KeyValue(p.Key+":", p.Value))
		}
	}
	return BoxStyle(h.Width, PrimaryColor).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Result is a success or failure box.
type Result struct {
	Success bool
	Title   string
	Details []Detail
	Err     error
	Hint    string
	Width   int
}

// NewSuccessResult creates a success box.
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Success: true, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure box with an optional multi-line hint.
func NewFailureResult(title string, err error, hint string) *Result {
	return &Result{Title: title, Err: err, Hint: hint, Width: GetTerminalWidth()}
}

// Render returns the styled box.
func (r *Result) Render() string {
	var lines []string
	color := SuccessColor
	if r.Success {
		lines = append(lines, SuccessTitleStyle.Render(SuccessMarker+" "+r.Title))
	} else {
		color = ErrorColor
		lines = append(lines, ErrorTitleStyle.Render(FailureMarker+" "+r.Title))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
		for _, d := range r.Details {
			lines = append(lines, KeyValue(d.Key, d.Value))
		}
	}
	if r.Err != nil {
		lines = append(lines, "", ErrorMessageStyle.Render(r.Err.Error()))
	}
	if r.Hint != "" {
		lines = append(lines, "", MutedStyle.Render(r.Hint))
	}
	return BoxStyle(r.Width, color).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Printer writes rendered components.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a Printer; nil writes to os.Stdout.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w}
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Table writes rows as aligned columns with a bold header row.
func (p *Printer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, 0, len(widths))
		for i, c := range cells {
			if i >= len(widths) {
				break
			}
			parts = append(parts, style.Width(widths[i]+2).Render(c))
		}
		return strings.Join(parts, "")
	}
	p.Println(line(header, TitleStyle))
	for _, row := range rows {
		p.Println(line(row, ValueStyle))
	}
}
