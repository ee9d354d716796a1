package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════════╗
    ║  ___ ____     _   _   _ ____ ___ _____ _   _  ____ _____  ║
    ║ |_ _/ ___|   / \ | | | |  _ \_ _| ____| \ | |/ ___| ____| ║
    ║  | | |  _   / _ \| | | | | | | ||  _| |  \| | |   |  _|   ║
    ║  | | |_| | / ___ \ |_| | |_| | || |___| |\  | |___| |___  ║
    ║ |___\____|/_/   \_\___/|____/___|_____|_| \_|\____|_____| ║
    ║          BRAND AUDIENCE DISCOVERY AND ANALYSIS            ║
    ╚═══════════════════════════════════════════════════════════╝
`

// Color functions for terminal output. Styles degrade to plain text when
// the output is not a color terminal.
var (
	Cyan    = colorize(lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")))
	Yellow  = colorize(lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")))
	Red     = colorize(lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3030")).Bold(true))
	Green   = colorize(lipgloss.NewStyle().Foreground(lipgloss.Color("#39FF14")))
	Magenta = colorize(lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF")).Bold(true))
	Dim     = colorize(lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Faint(true))
)

var (
	mu    sync.Mutex
	out   io.Writer = os.Stdout
	quiet bool
)

// colorize returns a function that renders text in style
func colorize(style lipgloss.Style) func(string) string {
	return func(text string) string {
		return style.Render(text)
	}
}

// SetOutput redirects all terminal output
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

func printf(force bool, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !force {
		return
	}
	fmt.Fprintf(out, format, args...)
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	printf(false, "%s", Cyan(ASCIILogo))
}

// PrintError prints an error message in red. Errors print even in quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		printf(true, "%s\n", Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		printf(true, "%s\n", Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	printf(false, "%s\n", Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	printf(false, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		printf(false, "%s\n", Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		printf(false, "%s\n", Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	printf(false, "%s\n", Magenta(msg))
}

// Println prints plain text
func Println(msg string) {
	printf(false, "%s\n", msg)
}
