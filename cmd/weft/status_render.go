package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"weft/internal/backend"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 24
	statusIndent     = "  "
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct{ label, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

func (k statusKind) label() string { return statusStyles[k].label }

func (k statusKind) color() string { return statusStyles[k].color }

// paint wraps s in an ANSI color when on is set and color is known.
func paint(s, color string, on bool) string {
	if !on || color == "" {
		return s
	}
	return color + s + ansiReset
}

// renderStatusLine formats "  Label:   [KIND] message" with the label padded
// so a block of lines stays aligned.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	status := "[" + kind.label() + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	return paint(line, kind.color(), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(heading, ansiBlue, colorize),
		paint(strings.Repeat("-", len(heading)), ansiBlue, colorize),
	}
}

var titleCaser = cases.Title(language.English)

var jobStatusColors = map[backend.JobStatus]string{
	backend.JobComplete: ansiGreen,
	backend.JobFailed:   ansiRed,
	backend.JobRunning:  ansiYellow,
}

// jobStatusLabel turns a status such as "waiting_on_lease" into
// "Waiting On Lease".
func jobStatusLabel(status backend.JobStatus) string {
	words := strings.ReplaceAll(strings.TrimSpace(string(status)), "_", " ")
	if words == "" {
		return "Unknown"
	}
	return titleCaser.String(words)
}

func colorizeJobStatus(status backend.JobStatus, colorize bool) string {
	return paint(jobStatusLabel(status), jobStatusColors[status], colorize)
}

// shouldColorize is true only for terminals, so piped output stays plain.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
