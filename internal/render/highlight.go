// Package render prints rewritten SQL and query results for the CLI.
package render

import (
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlighter tokenises SQL text using chroma and renders it with ANSI
// colors for terminal output.
type Highlighter struct {
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
}

// NewHighlighter creates a Highlighter that uses the PostgreSQL lexer. If the
// PostgreSQL lexer is unavailable it falls back to the generic SQL lexer.
func NewHighlighter() *Highlighter {
	l := lexers.Get("PostgreSQL")
	if l == nil {
		l = lexers.Get("SQL")
	}
	if l == nil {
		l = lexers.Fallback
	}
	// Coalesce runs of identical token types so the formatter processes
	// fewer, larger chunks.
	l = chroma.Coalesce(l)

	f := formatters.Get("terminal256")
	if f == nil {
		f = formatters.Fallback
	}

	s := styles.Get("monokai")
	if s == nil {
		s = styles.Fallback
	}

	return &Highlighter{lexer: l, formatter: f, style: s}
}

// Highlight writes sql to w with ANSI color codes. On tokenise or
// format errors the plain text is written instead.
func (h *Highlighter) Highlight(w io.Writer, sql string) error {
	iter, err := h.lexer.Tokenise(nil, sql)
	if err != nil {
		_, werr := io.WriteString(w, sql)
		return werr
	}
	if err := h.formatter.Format(w, h.style, iter); err != nil {
		_, werr := io.WriteString(w, sql)
		return werr
	}
	return nil
}

// Sprint returns sql with ANSI color codes, or the input unchanged when
// highlighting fails.
func (h *Highlighter) Sprint(sql string) string {
	var b strings.Builder
	if err := h.Highlight(&b, sql); err != nil {
		return sql
	}
	return b.String()
}
