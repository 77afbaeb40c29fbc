package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/graph"
	"github.com/theirongolddev/redline/internal/tui/theme"
)

// CLIError represents a structured CLI error with remediation hints.
type CLIError struct {
	Message string `json:"error"`
	Cause   string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Code    string `json:"code,omitempty"`

	err error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Unwrap returns the error the CLIError was built from, if any.
func (e *CLIError) Unwrap() error {
	return e.err
}

// NewCLIError creates a new CLI error with just a message.
func NewCLIError(msg string) *CLIError {
	return &CLIError{Message: msg}
}

// WithCause adds a cause to the error.
func (e *CLIError) WithCause(cause string) *CLIError {
	e.Cause = cause
	return e
}

// WithHint adds a remediation hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// WithCode adds an error code to the error.
func (e *CLIError) WithCode(code string) *CLIError {
	e.Code = code
	return e
}

// Common error hints
var (
	HintNotSignedIn   = "Run 'redline login' to sign in, or set REDLINE_ACCESS_TOKEN"
	HintNoClientID    = "Set auth.client_id in the config file or REDLINE_CLIENT_ID"
	HintUnauthorized  = "The token was rejected; run 'redline login' again"
	HintUnavailable   = "The mail API is unreachable; check the network or graph.base_url"
	HintTimeout       = "Raise graph.timeout in the config file or try again"
	HintConfigInvalid = "Check the file with 'redline config show' or recreate it with 'redline config init --force'"
)

// Classify turns an error from a refresh or sign-in into a CLIError with
// a code and a hint. Errors it does not recognise keep their message only.
func Classify(err error) *CLIError {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	e := &CLIError{Message: err.Error(), err: err}
	switch {
	case errors.Is(err, auth.ErrNoClientID):
		e.Code, e.Hint = "NO_CLIENT_ID", HintNoClientID
	case errors.Is(err, auth.ErrNotSignedIn):
		e.Code, e.Hint = "NOT_SIGNED_IN", HintNotSignedIn
	case errors.Is(err, auth.ErrDeclined), errors.Is(err, auth.ErrExpired):
		e.Code, e.Hint = "SIGN_IN_FAILED", HintNotSignedIn
	case auth.IsAuthError(err):
		e.Code, e.Hint = "AUTH", HintNotSignedIn
	case graph.IsUnauthorized(err):
		e.Code, e.Hint = "UNAUTHORIZED", HintUnauthorized
	case graph.IsTimeout(err):
		e.Code, e.Hint = "TIMEOUT", HintTimeout
	case graph.IsServerUnavailable(err):
		e.Code, e.Hint = "API_UNAVAILABLE", HintUnavailable
	}
	if status := graph.StatusCode(err); status != 0 {
		e.Cause = fmt.Sprintf("mail API returned HTTP %d", status)
	}
	return e
}

func isStderrTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// FormatCLIError formats a CLIError for terminal output.
// Colors are used only when color is true.
func FormatCLIError(e *CLIError, color bool) string {
	var sb strings.Builder

	label := func(s string, c lipgloss.Color, bold bool) string { return s }
	if color {
		label = func(s string, c lipgloss.Color, bold bool) string {
			return lipgloss.NewStyle().Foreground(c).Bold(bold).Render(s)
		}
	}
	t := theme.Current()

	sb.WriteString(label("Error: ", t.Error, true))
	sb.WriteString(e.Message)
	if e.Code != "" {
		sb.WriteString(" ")
		sb.WriteString(label("["+e.Code+"]", t.Overlay, false))
	}
	sb.WriteString("\n")

	if e.Cause != "" {
		sb.WriteString(label("  Cause: ", t.Subtext, false))
		sb.WriteString(e.Cause)
		sb.WriteString("\n")
	}
	if e.Hint != "" {
		sb.WriteString(label("  Hint: ", t.Info, false))
		sb.WriteString(e.Hint)
		sb.WriteString("\n")
	}
	return sb.String()
}

// PrintError writes err to stderr (text) or w (JSON and YAML).
func PrintError(w io.Writer, err error, format Format) {
	e := Classify(err)
	switch format {
	case FormatJSON:
		_ = WriteJSON(w, e, true)
	case FormatYAML:
		_ = WriteYAML(w, e)
	default:
		useColor := isStderrTerminal() && !theme.NoColorEnabled()
		fmt.Fprint(os.Stderr, FormatCLIError(e, useColor))
	}
}
