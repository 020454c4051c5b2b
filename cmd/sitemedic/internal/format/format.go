// Package format prints operation summaries for the CLI.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

// Formatter writes human or JSON output for command results.
type Formatter struct {
	out  io.Writer
	json bool
}

// New returns a Formatter writing to stdout.
func New(jsonMode bool) *Formatter {
	return &Formatter{out: os.Stdout, json: jsonMode}
}

// PrintJSON writes v as indented JSON.
func (f *Formatter) PrintJSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a green check line, or the payload in JSON mode.
func (f *Formatter) Success(message string, payload any) error {
	if f.json {
		return f.PrintJSON(payload)
	}
	_, err := green.Fprintf(f.out, "✓ %s\n", message)
	return err
}

// Warn prints a yellow warning line. No-op in JSON mode; warnings ride in
// the payload there.
func (f *Formatter) Warn(message string) {
	if f.json {
		return
	}
	_, _ = yellow.Fprintf(f.out, "! %s\n", message)
}

// Fail prints a red failure line.
func (f *Formatter) Fail(message string) {
	if f.json {
		_ = f.PrintJSON(map[string]any{"success": false, "error": message})
		return
	}
	_, _ = red.Fprintf(f.out, "✗ %s\n", message)
}

// Line prints a plain detail line.
func (f *Formatter) Line(format string, args ...any) {
	if f.json {
		return
	}
	_, _ = fmt.Fprintf(f.out, format+"\n", args...)
}
