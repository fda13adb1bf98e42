package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

// Severity classifies a Diagnostic. Warnings never abort a run; errors do.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Diagnostic is a single pinpoint source-spanned message, the unit every
// phase of the compiler (lexer, parser, analyzer) reports through.
type Diagnostic struct {
	Severity Severity
	Message  string
	Span     *Span
	File     *File
}

func errorAt(file *File, span Span, format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Span: &span, File: file}
}

func warningAt(file *File, span Span, format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Span: &span, File: file}
}

func errorf(format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

func (d *Diagnostic) Error() string { return d.Message }

// ColorMode controls whether diagnostics are rendered with ANSI styling.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

func (m ColorMode) enabled() bool {
	switch m {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	}
}

var (
	errorLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warnLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	messageStyle    = lipgloss.NewStyle().Bold(true)
	caretStyleErr   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	caretStyleWarn  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	gutterStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	highlightStyle  = lipgloss.NewStyle().Bold(true)
)

// tabWidth is the canonical expansion width used only to position carets:
// tabs count as 4 display columns when aligning underlines.
const tabWidth = 4

// Render produces the multi-line `error: MESSAGE` / gutter / source / caret
// block described by the diagnostic engine's rendering contract.
func (d *Diagnostic) Render(color ColorMode) string {
	label := "error:"
	labelStyle := errorLabelStyle
	caretStyle := caretStyleErr
	if d.Severity == SeverityWarning {
		label = "warning:"
		labelStyle = warnLabelStyle
		caretStyle = caretStyleWarn
	}

	head := fmt.Sprintf("%s %s", label, d.Message)
	if color.enabled() {
		head = fmt.Sprintf("%s %s", labelStyle.Render(label), messageStyle.Render(d.Message))
	}
	if d.Span == nil || d.File == nil {
		return head
	}
	return head + "\n" + d.renderSpan(caretStyle, color)
}

func (d *Diagnostic) renderSpan(caretStyle lipgloss.Style, color ColorMode) string {
	if d.Span == nil || d.File == nil {
		return ""
	}
	line := d.Span.Line
	lineText := d.File.LineText(line)
	lineNumStr := strconv.Itoa(line)
	gutterWidth := len(lineNumStr)
	pad := strings.Repeat(" ", gutterWidth)

	col := displayColumn(lineText, d.Span.Col)
	width := displayWidth(d.File.Slice(*d.Span))
	if width < 1 {
		width = 1
	}
	caret := strings.Repeat(" ", col) + strings.Repeat("^", width)

	gutter := func(s string) string {
		if color.enabled() {
			return gutterStyle.Render(s)
		}
		return s
	}
	caretLine := caret
	if color.enabled() {
		caretLine = strings.Repeat(" ", col) + caretStyle.Render(strings.Repeat("^", width))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s |\n", pad)
	fmt.Fprintf(&b, "%s%s | %s\n", gutter(lineNumStr), "", expandTabs(lineText))
	fmt.Fprintf(&b, "%s | %s", pad, caretLine)
	return b.String()
}

// expandTabs renders tabs as tabWidth spaces so the printed line lines up
// with the caret computed by displayColumn.
func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

// displayColumn converts a 1-based rune column into a 0-based display-cell
// offset, expanding tabs to tabWidth and multi-byte runes to their cell
// width, so carets line up under multi-byte text.
func displayColumn(line string, col int) int {
	runes := []rune(line)
	n := col - 1
	if n > len(runes) {
		n = len(runes)
	}
	width := 0
	for i := 0; i < n; i++ {
		if runes[i] == '\t' {
			width += tabWidth
		} else {
			width += runewidth.RuneWidth(runes[i])
		}
	}
	return width
}

func displayWidth(s string) int {
	width := 0
	for _, r := range s {
		if r == '\t' {
			width += tabWidth
		} else if r == '\n' {
			continue
		} else {
			width += runewidth.RuneWidth(r)
		}
	}
	return width
}

// whitespaceGlyphs renders tabs/spaces as the ␉/␠ pictograms the
// whitespace diagnostics use.
func whitespaceGlyphs(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\t':
			b.WriteRune('␉')
		case ' ':
			b.WriteRune('␠')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
