// Package token tokenizes WebAssembly Text format source.
package token

import "strings"

type Kind int

const (
	LParen Kind = iota
	RParen
	Atom
	String
	EOF
)

type Token struct {
	Kind Kind
	Text string // atom text, or decoded string contents
	Pos  int    // byte offset in source, for error reporting
}

// Tokenize splits source into tokens, dropping ;; line comments and
// (; ;) block comments. Malformed strings are terminated at end of input;
// the parser reports the resulting structural error.
func Tokenize(src string) []Token {
	var toks []Token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == ';' && i+1 < len(src) && src[i+1] == ';':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '(' && i+1 < len(src) && src[i+1] == ';':
			depth := 1
			i += 2
			for i < len(src) && depth > 0 {
				if src[i] == '(' && i+1 < len(src) && src[i+1] == ';' {
					depth++
					i += 2
				} else if src[i] == ';' && i+1 < len(src) && src[i+1] == ')' {
					depth--
					i += 2
				} else {
					i++
				}
			}
		case c == '(':
			toks = append(toks, Token{Kind: LParen, Pos: i})
			i++
		case c == ')':
			toks = append(toks, Token{Kind: RParen, Pos: i})
			i++
		case c == '"':
			start := i
			i++
			var b strings.Builder
			for i < len(src) && src[i] != '"' {
				if src[i] == '\\' && i+1 < len(src) {
					i++
					switch src[i] {
					case 'n':
						b.WriteByte('\n')
					case 't':
						b.WriteByte('\t')
					case 'r':
						b.WriteByte('\r')
					case '\\':
						b.WriteByte('\\')
					case '"':
						b.WriteByte('"')
					case '\'':
						b.WriteByte('\'')
					default:
						// Two-digit hex escape.
						if i+1 < len(src) {
							hi, ok1 := hexVal(src[i])
							lo, ok2 := hexVal(src[i+1])
							if ok1 && ok2 {
								b.WriteByte(hi<<4 | lo)
								i++
							}
						}
					}
					i++
				} else {
					b.WriteByte(src[i])
					i++
				}
			}
			i++ // closing quote
			toks = append(toks, Token{Kind: String, Text: b.String(), Pos: start})
		default:
			start := i
			for i < len(src) && !isDelim(src[i]) {
				i++
			}
			toks = append(toks, Token{Kind: Atom, Text: src[start:i], Pos: start})
		}
	}
	toks = append(toks, Token{Kind: EOF, Pos: len(src)})
	return toks
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '"', ';':
		return true
	}
	return false
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
