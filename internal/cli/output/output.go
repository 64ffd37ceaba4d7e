// Package output provides mode-aware rendering for CLI commands.
//
// A Renderer targets one of four modes: styled text for terminals,
// markdown for piped output, JSON for scripting, and auto which picks
// text or markdown based on whether stdout is a TTY.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

// Supported output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	styles *Styles
}

// NewRenderer creates a renderer writing to out and errOut.
// An empty or unknown mode behaves like ModeAuto.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	switch mode {
	case ModeText, ModeMarkdown, ModeJSON:
	default:
		mode = ModeAuto
	}
	r := &Renderer{out: out, errOut: errOut, mode: mode}
	r.styles = NewStyles(r.EffectiveMode() == ModeText && isTerminal(out))
	return r
}

// isTerminal reports whether w is attached to a TTY.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves ModeAuto to text (TTY) or markdown (piped).
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if isTerminal(r.out) {
		return ModeText
	}
	return ModeMarkdown
}

// Writer returns the primary output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// ErrWriter returns the error output writer.
func (r *Renderer) ErrWriter() io.Writer {
	return r.errOut
}

// Styles returns the style set active for this renderer.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Println writes a line to the primary output.
func (r *Renderer) Println(args ...interface{}) {
	_, _ = fmt.Fprintln(r.out, args...)
}

// Printf writes formatted output to the primary output.
func (r *Renderer) Printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a section header.
func (r *Renderer) Header(text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(2, text))
		return
	}
	r.Println(r.styles.Header.Render(text))
}

// Success writes a success line.
func (r *Renderer) Success(text string) {
	r.Println(r.styles.Success.Render(text))
}

// Warning writes a warning line to the error output.
func (r *Renderer) Warning(text string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render(text))
}

// Error writes an error line to the error output.
func (r *Renderer) Error(text string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(text))
}

// Muted writes a de-emphasized line.
func (r *Renderer) Muted(text string) {
	r.Println(r.styles.Muted.Render(text))
}

// StatusLine writes an aligned "label: value" line.
func (r *Renderer) StatusLine(label, value string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatKeyValue(label, value))
		return
	}
	r.Printf("%s %s\n", r.styles.Key.Render(label+":"), value)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v interface{}) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatHeader formats a markdown header at the given level.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue formats a markdown "key: value" bullet.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s**: %s", key, value)
}
