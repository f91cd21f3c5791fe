package wiql

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokField TokenKind = iota
	TokString
	TokNumber
	TokIdent
	TokMacro
	TokOp
	TokLParen
	TokRParen
	TokComma
	TokSemicolon
	TokPlaceholder
)

// Token is one lexical element with its byte span in the source.
type Token struct {
	Kind  TokenKind
	Text  string // raw source text
	Value string // field name or unquoted string literal
	Start int
	End   int
}

// Is reports whether t is the keyword kw, case-insensitively.
func (t Token) Is(kw string) bool {
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

// Tokenize splits a query into tokens. It fails on unterminated strings or
// field references and on characters outside the language.
func Tokenize(q string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(q) {
		c := q[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '[':
			end := strings.IndexByte(q[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated field reference at %d", i)
			}
			stop := i + 1 + end + 1
			toks = append(toks, Token{Kind: TokField, Text: q[i:stop], Value: strings.TrimSpace(q[i+1 : stop-1]), Start: i, End: stop})
			i = stop
		case c == '\'' || c == '"':
			stop, value, err := scanString(q, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: TokString, Text: q[i:stop], Value: value, Start: i, End: stop})
			i = stop
		case c == '{' && strings.HasPrefix(q[i:], "{{"):
			end := strings.Index(q[i:], "}}")
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at %d", i)
			}
			stop := i + end + 2
			toks = append(toks, Token{Kind: TokPlaceholder, Text: q[i:stop], Value: strings.TrimSpace(q[i+2 : stop-2]), Start: i, End: stop})
			i = stop
		case c >= '0' && c <= '9':
			stop := i
			for stop < len(q) && (q[stop] >= '0' && q[stop] <= '9' || q[stop] == '.') {
				stop++
			}
			toks = append(toks, Token{Kind: TokNumber, Text: q[i:stop], Value: q[i:stop], Start: i, End: stop})
			i = stop
		case c == '@':
			stop := i + 1
			for stop < len(q) && isIdentByte(q[stop]) {
				stop++
			}
			if stop == i+1 {
				return nil, fmt.Errorf("empty macro at %d", i)
			}
			toks = append(toks, Token{Kind: TokMacro, Text: q[i:stop], Value: q[i:stop], Start: i, End: stop})
			i = stop
		case isIdentStart(c):
			stop := i
			for stop < len(q) && isIdentByte(q[stop]) {
				stop++
			}
			toks = append(toks, Token{Kind: TokIdent, Text: q[i:stop], Value: strings.ToUpper(q[i:stop]), Start: i, End: stop})
			i = stop
		case c == '(':
			toks = append(toks, Token{Kind: TokLParen, Text: "(", Start: i, End: i + 1})
			i++
		case c == ')':
			toks = append(toks, Token{Kind: TokRParen, Text: ")", Start: i, End: i + 1})
			i++
		case c == ',':
			toks = append(toks, Token{Kind: TokComma, Text: ",", Start: i, End: i + 1})
			i++
		case c == ';':
			toks = append(toks, Token{Kind: TokSemicolon, Text: ";", Start: i, End: i + 1})
			i++
		default:
			if op := scanOp(q[i:]); op != "" {
				toks = append(toks, Token{Kind: TokOp, Text: op, Value: op, Start: i, End: i + len(op)})
				i += len(op)
				continue
			}
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	return toks, nil
}

func scanString(q string, start int) (int, string, error) {
	quote := q[start]
	var sb strings.Builder
	i := start + 1
	for i < len(q) {
		if q[i] == quote {
			if i+1 < len(q) && q[i+1] == quote {
				sb.WriteByte(quote)
				i += 2
				continue
			}
			return i + 1, sb.String(), nil
		}
		sb.WriteByte(q[i])
		i++
	}
	return 0, "", fmt.Errorf("unterminated string literal at %d", start)
}

func scanOp(s string) string {
	for _, op := range []string{"<>", "<=", ">=", "!=", "=", "<", ">", "+", "-"} {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}
