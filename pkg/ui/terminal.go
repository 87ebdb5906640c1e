package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ASCII logo for the application
const ASCIILogo = `
  ╦╔═╗╦ ╦╔═╗╦═╗╦  ╦╔═╗╔═╗╔╦╗
  ║║ ╦╠═╣╠═╣╠╦╝╚╗╔╝║╣ ╚═╗ ║
  ╩╚═╝╩ ╩╩ ╩╩╚═ ╚╝ ╚═╝╚═╝ ╩
  profile capture orchestrator
`

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	noColor bool
	quiet   bool
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.Lock()
		plain := noColor
		mu.Unlock()
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// SetOutput redirects all printing. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
}

// SetNoColor disables ANSI escapes
func SetNoColor(v bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = v
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(v bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = v
}

func writer(isError bool) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !isError {
		return io.Discard
	}
	return out
}

// Printf writes unstyled text unless quiet
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(writer(false), format, args...)
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	fmt.Fprint(writer(false), Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	fmt.Fprintln(writer(true), Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(writer(false), Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(writer(false), "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	fmt.Fprintln(writer(false), Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(writer(false), Magenta(msg))
}

// PrintTable prints rows under a dimmed header, padding every column to its
// widest cell.
func PrintTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := len([]rune(row[i])); n > widths[i] {
				widths[i] = n
			}
		}
	}

	w := writer(false)
	fmt.Fprintln(w, Dim(formatRow(header, widths)))
	for _, row := range rows {
		fmt.Fprintln(w, formatRow(row, widths))
	}
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = cell + strings.Repeat(" ", widths[i]-len([]rune(cell)))
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}
