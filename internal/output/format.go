// Package output provides unified output formatting for text, JSON and YAML.
// All commands should use this package for consistent output across the CLI.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Format represents the output format type
type Format int

const (
	// FormatText is human-readable formatted text (default)
	FormatText Format = iota
	// FormatJSON is machine-readable JSON output
	FormatJSON
	// FormatYAML is machine-readable YAML output
	FormatYAML
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "text"
	}
}

// ParseFormat parses "text", "json" or "yaml" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return FormatText, fmt.Errorf("unknown output format %q (expected text, json or yaml)", s)
	}
}

// Formatter handles output formatting for commands
type Formatter struct {
	format Format
	writer io.Writer
	pretty bool // For JSON: whether to indent
}

// New creates a new Formatter with the given options
func New(opts ...Option) *Formatter {
	f := &Formatter{
		format: FormatText,
		writer: os.Stdout,
		pretty: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Option is a functional option for Formatter
type Option func(*Formatter)

// WithFormat sets the output format
func WithFormat(format Format) Option {
	return func(f *Formatter) {
		f.format = format
	}
}

// WithWriter sets the output writer
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) {
		f.writer = w
	}
}

// WithPretty sets whether JSON should be indented
func WithPretty(pretty bool) Option {
	return func(f *Formatter) {
		f.pretty = pretty
	}
}

// Format returns the current output format
func (f *Formatter) Format() Format {
	return f.format
}

// IsText reports whether output is for humans.
func (f *Formatter) IsText() bool {
	return f.format == FormatText
}

// Writer returns the output writer
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Output writes v as JSON or YAML, or calls textFn for text output.
func (f *Formatter) Output(v interface{}, textFn func(w io.Writer) error) error {
	switch f.format {
	case FormatJSON:
		return WriteJSON(f.writer, v, f.pretty)
	case FormatYAML:
		return WriteYAML(f.writer, v)
	default:
		return textFn(f.writer)
	}
}

// DetectFormat determines the output format.
// Priority: explicit flag > REDLINE_OUTPUT_FORMAT > pipe detection > text
func DetectFormat(flag string) (Format, error) {
	if flag != "" {
		return ParseFormat(flag)
	}

	if env := os.Getenv("REDLINE_OUTPUT_FORMAT"); env != "" {
		if f, err := ParseFormat(env); err == nil {
			return f, nil
		}
	}

	// Piped output is for programs: redline status | jq .
	if !IsTerminal() {
		return FormatJSON, nil
	}
	return FormatText, nil
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TerminalWidth returns the width of stdout, or fallback when it is not a
// terminal.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
