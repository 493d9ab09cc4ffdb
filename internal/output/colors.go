package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for live and summary lines.
type ColorScheme struct {
	Timestamp *color.Color
	Latency   *color.Color
	OK        *color.Color
	Failure   *color.Color
	Header    *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Timestamp: color.New(color.FgHiBlack),
		Latency:   color.New(color.FgCyan, color.Bold),
		OK:        color.New(color.FgGreen),
		Failure:   color.New(color.FgRed, color.Bold),
		Header:    color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.Timestamp.DisableColor()
	scheme.Latency.DisableColor()
	scheme.OK.DisableColor()
	scheme.Failure.DisableColor()
	scheme.Header.DisableColor()
	return scheme
}

// ColorsFor picks a scheme for w: colored only when w is a terminal and
// noColor is false.
func ColorsFor(w io.Writer, noColor bool) *ColorScheme {
	if noColor || !IsTerminal(w) {
		return NoColorScheme()
	}
	scheme := DefaultColorScheme()
	scheme.Timestamp.EnableColor()
	scheme.Latency.EnableColor()
	scheme.OK.EnableColor()
	scheme.Failure.EnableColor()
	scheme.Header.EnableColor()
	return scheme
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
