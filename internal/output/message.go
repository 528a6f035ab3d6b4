package output

import (
	"fmt"
)

// Info prints an informational line. It is suppressed in JSON mode.
func (f *Formatter) Info(msg string) {
	if f.IsJSON() {
		return
	}
	_, _ = fmt.Fprintln(f.writer, f.theme.Muted(msg))
}

// Infof prints a formatted informational line.
func (f *Formatter) Infof(format string, args ...any) {
	f.Info(fmt.Sprintf(format, args...))
}

// Warn prints a warning to the error writer in every mode.
func (f *Formatter) Warn(msg string) {
	_, _ = fmt.Fprintln(f.errW, f.theme.Warning("warning: "+msg))
}

// Warnf prints a formatted warning.
func (f *Formatter) Warnf(format string, args ...any) {
	f.Warn(fmt.Sprintf(format, args...))
}

// Success prints a success line. It is suppressed in JSON mode.
func (f *Formatter) Success(msg string) {
	if f.IsJSON() {
		return
	}
	_, _ = fmt.Fprintln(f.writer, f.theme.Positive(msg))
}

// Successf prints a formatted success line.
func (f *Formatter) Successf(format string, args ...any) {
	f.Success(fmt.Sprintf(format, args...))
}
