// Package sqltext provides lexical helpers shared by the validation
// stages: literal/comment masking, statement splitting, and keyword
// scanning. No stage ever inspects the contents of string literals or
// comments; everything operates on the masked form produced here.
package sqltext

import (
	"errors"
	"strings"
)

var (
	ErrUnterminatedLiteral = errors.New("unterminated string literal")
	ErrUnterminatedComment = errors.New("unterminated block comment")
)

// Mask returns a copy of sql with the contents of string literals,
// quoted identifiers, and comments replaced by spaces. The result has
// the same length as the input, so any index into the masked text is
// valid in the original. Quote characters themselves are preserved for
// literals and identifiers; comment delimiters are blanked along with
// the comment body.
//
// Single-quoted literals use '' as the escape for an embedded quote.
// Backslash escapes are intentionally not honored; a backslash inside
// a literal is just masked like any other character.
func Mask(sql string) (string, error) {
	out := []byte(sql)
	i := 0
	n := len(sql)

	for i < n {
		switch sql[i] {
		case '\'':
			j, ok := maskQuoted(out, sql, i, '\'')
			if !ok {
				return "", ErrUnterminatedLiteral
			}
			i = j
		case '"':
			j, ok := maskQuoted(out, sql, i, '"')
			if !ok {
				return "", ErrUnterminatedLiteral
			}
			i = j
		case '`':
			j, ok := maskQuoted(out, sql, i, '`')
			if !ok {
				return "", ErrUnterminatedLiteral
			}
			i = j
		case '-':
			if i+1 < n && sql[i+1] == '-' {
				j := i
				for j < n && sql[j] != '\n' {
					out[j] = ' '
					j++
				}
				i = j
				continue
			}
			i++
		case '/':
			if i+1 < n && sql[i+1] == '*' {
				end := strings.Index(sql[i+2:], "*/")
				if end < 0 {
					return "", ErrUnterminatedComment
				}
				for j := i; j < i+2+end+2; j++ {
					out[j] = ' '
				}
				i = i + 2 + end + 2
				continue
			}
			i++
		default:
			i++
		}
	}
	return string(out), nil
}

// maskQuoted blanks the interior of a quoted region starting at start
// (which must hold the quote character) and returns the index just past
// the closing quote. A doubled quote inside the region is treated as an
// escaped quote, not a terminator.
func maskQuoted(out []byte, sql string, start int, quote byte) (int, bool) {
	i := start + 1
	n := len(sql)
	for i < n {
		if sql[i] == quote {
			if i+1 < n && sql[i+1] == quote {
				out[i] = ' '
				out[i+1] = ' '
				i += 2
				continue
			}
			return i + 1, true
		}
		out[i] = ' '
		i++
	}
	return 0, false
}

// SplitStatements splits masked text on semicolons and returns the
// index ranges of the fragments that still contain visible content.
// Fragments that were entirely comments or whitespace are dropped, so
// a trailing semicolon does not count as a second statement.
func SplitStatements(masked string) [][2]int {
	var spans [][2]int
	start := 0
	for i := 0; i <= len(masked); i++ {
		if i == len(masked) || masked[i] == ';' {
			if strings.TrimSpace(masked[start:i]) != "" {
				spans = append(spans, [2]int{start, i})
			}
			start = i + 1
		}
	}
	return spans
}

// FirstKeyword returns the first SQL word in the masked text, uppercased,
// or "" if the text contains no word.
func FirstKeyword(masked string) string {
	i := 0
	for i < len(masked) && !isWordByte(masked[i]) {
		i++
	}
	j := i
	for j < len(masked) && isWordByte(masked[j]) {
		j++
	}
	return strings.ToUpper(masked[i:j])
}

// ContainsWord reports whether the uppercased masked text contains word
// as a whole token. "INSERT_DATE" does not contain the word "INSERT";
// underscores and alphanumerics extend the token.
func ContainsWord(upperMasked, word string) bool {
	idx := 0
	for {
		pos := strings.Index(upperMasked[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		before := pos - 1
		after := pos + len(word)
		leftOK := before < 0 || !isWordByte(upperMasked[before])
		rightOK := after >= len(upperMasked) || !isWordByte(upperMasked[after])
		if leftOK && rightOK {
			return true
		}
		idx = pos + 1
	}
}

// WordAt reports whether a whole word starts at position pos in the
// masked text. The comparison is case-insensitive.
func WordAt(masked string, pos int, word string) bool {
	if pos+len(word) > len(masked) {
		return false
	}
	if !strings.EqualFold(masked[pos:pos+len(word)], word) {
		return false
	}
	if pos > 0 && isWordByte(masked[pos-1]) {
		return false
	}
	after := pos + len(word)
	return after >= len(masked) || !isWordByte(masked[after])
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
