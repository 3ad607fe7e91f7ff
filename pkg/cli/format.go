// Package cli provides shared formatting helpers for the synapse CLI.
package cli

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/tidwall/pretty"
	"golang.org/x/term"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

// DotPad pads name with dots to the given width.
// Example: DotPad("bgp", 12) → "bgp ........"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}

// Outcome colors a saga outcome or phase name.
func Outcome(s string) string {
	switch s {
	case "succeeded", "pass", "active":
		return Green(s)
	case "rollback-failed", "fail":
		return Red(s)
	case "":
		return "-"
	}
	return Yellow(s)
}

// PrettyJSON indents raw JSON. Invalid input is returned unchanged.
func PrettyJSON(data []byte) []byte {
	if !json.Valid(data) {
		return data
	}
	return pretty.Pretty(data)
}

// WriteJSON marshals v and writes it indented, colored when w is a
// terminal and color is enabled.
func WriteJSON(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteRawJSON(w, data)
}

// WriteRawJSON is WriteJSON for an already encoded document.
func WriteRawJSON(w io.Writer, data []byte) error {
	out := PrettyJSON(data)
	if colorEnabled && isTerminal(w) {
		out = pretty.Color(out, nil)
	}
	_, err := w.Write(out)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ReadPassword prompts on stderr and reads a line without echo.
func ReadPassword(prompt string) (string, error) {
	os.Stderr.WriteString(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	os.Stderr.WriteString("\n")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
