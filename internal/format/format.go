// Package format renders CLI output, syntax-highlighting JSON responses.
package format

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Token styles, on the shared palette from the styles package.
var (
	keyStyle     = lipgloss.NewStyle().Foreground(ColorInfo)
	stringStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	numberStyle  = lipgloss.NewStyle().Foreground(ColorWarning)
	literalStyle = lipgloss.NewStyle().Foreground(ColorBrand)
	punctStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
)

// Formatter pretty-prints daemon CLI output. Text that parses as JSON is
// re-indented and colorized by token type; anything else passes through
// unchanged. Formatting never fails.
type Formatter struct {
	// Color enables ANSI highlighting
	Color bool
	// Indent is the per-level indentation (default four spaces)
	Indent string
}

// New creates a Formatter with color enabled when stdout is a terminal
// and NO_COLOR is unset.
func New() *Formatter {
	return &Formatter{
		Color: term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == "",
	}
}

// Format returns the highlighted rendition of raw, or raw unchanged when
// it is not JSON.
func (f *Formatter) Format(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return raw
	}

	out, err := f.render(trimmed)
	if err != nil {
		return raw
	}
	return out
}

func (f *Formatter) indent() string {
	if f.Indent == "" {
		return "    "
	}
	return f.Indent
}

// render walks the JSON token stream so object key order survives the
// round trip, writing an indented, optionally colorized rendition.
func (f *Formatter) render(src string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(src)))
	dec.UseNumber()

	var sb strings.Builder
	if err := f.writeValue(dec, &sb, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (f *Formatter) writeValue(dec *json.Decoder, sb *strings.Builder, depth int) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	return f.writeToken(dec, sb, depth, tok)
}

func (f *Formatter) writeToken(dec *json.Decoder, sb *strings.Builder, depth int, tok json.Token) error {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return f.writeObject(dec, sb, depth)
		case '[':
			return f.writeArray(dec, sb, depth)
		}
		return io.ErrUnexpectedEOF
	case string:
		sb.WriteString(f.paint(stringStyle, quote(t)))
	case json.Number:
		sb.WriteString(f.paint(numberStyle, t.String()))
	case bool:
		if t {
			sb.WriteString(f.paint(literalStyle, "true"))
		} else {
			sb.WriteString(f.paint(literalStyle, "false"))
		}
	case nil:
		sb.WriteString(f.paint(literalStyle, "null"))
	}
	return nil
}

func (f *Formatter) writeObject(dec *json.Decoder, sb *strings.Builder, depth int) error {
	sb.WriteString(f.paint(punctStyle, "{"))
	first := true
	for dec.More() {
		if !first {
			sb.WriteString(f.paint(punctStyle, ","))
		}
		first = false
		sb.WriteString("\n" + strings.Repeat(f.indent(), depth+1))

		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return io.ErrUnexpectedEOF
		}
		sb.WriteString(f.paint(keyStyle, quote(key)))
		sb.WriteString(f.paint(punctStyle, ":") + " ")

		if err := f.writeValue(dec, sb, depth+1); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil { // consume '}'
		return err
	}
	if !first {
		sb.WriteString("\n" + strings.Repeat(f.indent(), depth))
	}
	sb.WriteString(f.paint(punctStyle, "}"))
	return nil
}

func (f *Formatter) writeArray(dec *json.Decoder, sb *strings.Builder, depth int) error {
	sb.WriteString(f.paint(punctStyle, "["))
	first := true
	for dec.More() {
		if !first {
			sb.WriteString(f.paint(punctStyle, ","))
		}
		first = false
		sb.WriteString("\n" + strings.Repeat(f.indent(), depth+1))
		if err := f.writeValue(dec, sb, depth+1); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil { // consume ']'
		return err
	}
	if !first {
		sb.WriteString("\n" + strings.Repeat(f.indent(), depth))
	}
	sb.WriteString(f.paint(punctStyle, "]"))
	return nil
}

func (f *Formatter) paint(style lipgloss.Style, s string) string {
	if !f.Color {
		return s
	}
	return style.Render(s)
}

// quote renders a string the way encoding/json would.
func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `"` + s + `"`
	}
	return string(data)
}
