package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Brand colors
var (
	Brand  = color.New(color.FgHiGreen, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Info   = color.New(color.FgCyan)
	Good   = color.New(color.FgGreen)
	Bad    = color.New(color.FgRed)
)

// Disclosure state colors, matching the canvas palette.
var (
	Collapsed = color.New(color.FgYellow, color.Bold)
	Expanded  = color.New(color.FgBlue, color.Bold)
)

const Canopy = "\U0001F333" // 🌳

// Out is where the printers below write. Tests swap it.
var Out io.Writer = os.Stdout

// SetColor turns ANSI colors on or off for every printer.
func SetColor(on bool) {
	color.NoColor = !on
}

// Banner prints the canopy banner.
func Banner(subtitle string) {
	fmt.Fprintf(Out, "%s %s — %s\n\n", Canopy, Brand.Sprint("canopy"), subtitle)
}

// Table prints a simple aligned table.
func Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	headerLine := "  "
	sepLine := "  "
	for i, h := range headers {
		headerLine += pad(h, widths[i]) + "  "
		sepLine += strings.Repeat("─", widths[i]) + "  "
	}
	Subtle.Fprintln(Out, headerLine)
	Subtle.Fprintln(Out, sepLine)

	for _, row := range rows {
		line := "  "
		for i, cell := range row {
			if i < len(widths) {
				line += pad(cell, widths[i]) + "  "
			}
		}
		fmt.Fprintln(Out, line)
	}
}

// Bar renders a horizontal gauge for a fraction in [0, 1].
func Bar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))

	c := Good
	switch {
	case frac > 0.5:
		c = Bad
	case frac > 0.1:
		c = Warn
	}
	return c.Sprint(strings.Repeat("█", filled)) + Subtle.Sprint(strings.Repeat("░", width-filled))
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// StatusIcon returns a status icon string.
func StatusIcon(ok bool) string {
	if ok {
		return Good.Sprint("✓")
	}
	return Bad.Sprint("✗")
}

// WarnIcon returns a warning icon.
func WarnIcon() string {
	return Warn.Sprint("⚠")
}

// StateIcon marks a node as collapsed (●) or expanded (○).
func StateIcon(collapsed bool) string {
	if collapsed {
		return Collapsed.Sprint("●")
	}
	return Expanded.Sprint("○")
}

func pad(s string, width int) string {
	if n := visibleLen(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// visibleLen counts runes outside ANSI escape sequences.
func visibleLen(s string) int {
	n, esc := 0, false
	for _, r := range s {
		switch {
		case esc:
			if r == 'm' {
				esc = false
			}
		case r == '\x1b':
			esc = true
		default:
			n++
		}
	}
	return n
}
