package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Details     map[string]string `json:"details,omitempty"`
	Suggestion  string            `json:"suggestion,omitempty"`
	Recoverable bool              `json:"recoverable"`
	ExitCode    int               `json:"exit_code"`
}

// Describe converts err into its structured form.
func Describe(err error) ErrorDetail {
	var he *hwerr.HWError
	if errors.As(err, &he) {
		return ErrorDetail{
			Code:        he.Code,
			Message:     message(err),
			Details:     he.Details,
			Suggestion:  he.Suggestion,
			Recoverable: hwerr.IsRecoverable(err),
			ExitCode:    he.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: hwerr.ExitGeneral,
	}
}

// message renders err without the details, which are listed separately.
// A cause that only repeats the sentinel is dropped.
func message(err error) string {
	top, ok := err.(*hwerr.HWError) //nolint:errorlint // only the outermost error carries the display message
	if !ok {
		return err.Error()
	}
	msg := top.Message
	if top.Cause == nil {
		return msg
	}
	var inner *hwerr.HWError
	if errors.As(top.Cause, &inner) && inner.Code == top.Code && strings.HasSuffix(msg, inner.Message) {
		if inner.Cause != nil {
			return msg + ": " + inner.Cause.Error()
		}
		return msg
	}
	return msg + ": " + top.Cause.Error()
}

// FormatError formats an error for display. Text output uses the plain
// theme; see FormatErrorThemed.
func FormatError(w io.Writer, err error, format Format) error {
	return FormatErrorThemed(w, err, format, nil)
}

// FormatErrorThemed formats an error with the given theme.
func FormatErrorThemed(w io.Writer, err error, format Format, theme *Theme) error {
	if err == nil {
		return nil
	}
	if theme == nil {
		theme = ThemeByName("", true)
	}

	detail := Describe(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: detail})
	}

	var sb strings.Builder
	sb.WriteString(theme.Danger("Error: "))
	sb.WriteString(detail.Message)
	sb.WriteString("\n")

	if len(detail.Details) > 0 {
		keys := make([]string, 0, len(detail.Details))
		for k := range detail.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", theme.Label(k), detail.Details[k]))
		}
	}

	if detail.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\nSuggestion: %s\n", detail.Suggestion))
	}
	if detail.Recoverable {
		sb.WriteString(theme.Muted("\nThis can be retried.") + "\n")
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
