package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/katalvlaran/lvfit/errs"
)

// TokenKind classifies lexical tokens.
type TokenKind int

const (
	TokEOF     TokenKind = iota // end of input
	TokNumber                   // 3, 2.5, 1e-3, .5
	TokIdent                    // x, center, Gaussian, and
	TokDollar                   // $name (Text holds the name without '$')
	TokPercent                  // %name (Text holds the name without '%')
	TokAt                       // @0, @+, @* (Text holds "0", "+", "*")
	TokString                   // 'quoted text' (Text holds the unquoted text)
	TokOp                       // punctuation and operators
)

// Token is a single lexical unit with its byte offset in the source.
type Token struct {
	Kind TokenKind
	Text string
	Num  float64
	Pos  int
}

// String renders the token roughly as it appeared in the source.
func (t Token) String() string {
	switch t.Kind {
	case TokEOF:
		return "end of input"
	case TokDollar:
		return "$" + t.Text
	case TokPercent:
		return "%" + t.Text
	case TokAt:
		return "@" + t.Text
	case TokString:
		return "'" + t.Text + "'"
	default:
		return t.Text
	}
}

// SyntaxError reports a malformed formula or command.
type SyntaxError struct {
	Pos   int    // byte offset of the offending token
	Token string // offending token text
	Msg   string // what was expected
}

// Error implements error.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d near %q: %s", e.Pos, e.Token, e.Msg)
}

// Unwrap lets errors.Is match errs.ErrSyntax.
func (e *SyntaxError) Unwrap() error { return errs.ErrSyntax }

// twoCharOps are matched before single characters.
var twoCharOps = []string{"<=", ">=", "==", "!=", "+=", "&&", "||"}

const singleCharOps = "+-*/^()[]{},?:<>=;.~!"

// Tokenize splits src into tokens. Everything after an unquoted '#' is a
// comment. The returned slice always ends with a TokEOF token.
func Tokenize(src string) ([]Token, error) {
	var (
		toks []Token
		i    int
	)
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '#':
			// comment runs to end of line
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := scanNumber(src, i)
			v, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, &SyntaxError{Pos: i, Token: src[i:j], Msg: "malformed number"}
			}
			toks = append(toks, Token{Kind: TokNumber, Text: src[i:j], Num: v, Pos: i})
			i = j
		case isIdentStart(c):
			j := scanIdent(src, i)
			toks = append(toks, Token{Kind: TokIdent, Text: src[i:j], Pos: i})
			i = j
		case c == '$' || c == '%':
			j := scanIdent(src, i+1)
			if j == i+1 {
				return nil, &SyntaxError{Pos: i, Token: string(c), Msg: "expected a name"}
			}
			kind := TokDollar
			if c == '%' {
				kind = TokPercent
			}
			toks = append(toks, Token{Kind: kind, Text: src[i+1 : j], Pos: i})
			i = j
		case c == '@':
			j := i + 1
			if j < len(src) && (src[j] == '+' || src[j] == '*') {
				j++
			} else {
				for j < len(src) && isDigit(src[j]) {
					j++
				}
			}
			if j == i+1 {
				return nil, &SyntaxError{Pos: i, Token: "@", Msg: "expected dataset number, '+' or '*'"}
			}
			toks = append(toks, Token{Kind: TokAt, Text: src[i+1 : j], Pos: i})
			i = j
		case c == '\'' || c == '"':
			j := strings.IndexByte(src[i+1:], c)
			if j < 0 {
				return nil, &SyntaxError{Pos: i, Token: src[i:], Msg: "unterminated string"}
			}
			toks = append(toks, Token{Kind: TokString, Text: src[i+1 : i+1+j], Pos: i})
			i += j + 2
		default:
			op := ""
			for _, two := range twoCharOps {
				if strings.HasPrefix(src[i:], two) {
					op = two
					break
				}
			}
			if op == "" && strings.IndexByte(singleCharOps, c) >= 0 {
				op = string(c)
			}
			if op == "" {
				return nil, &SyntaxError{Pos: i, Token: string(c), Msg: "unexpected character"}
			}
			toks = append(toks, Token{Kind: TokOp, Text: op, Pos: i})
			i += len(op)
		}
	}
	toks = append(toks, Token{Kind: TokEOF, Pos: len(src)})

	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func scanIdent(src string, i int) int {
	for i < len(src) && isIdentChar(src[i]) {
		i++
	}

	return i
}

// scanNumber returns the end offset of the number starting at i.
// An exponent is consumed only when followed by digits, so "2e" lexes as 2, e.
func scanNumber(src string, i int) int {
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			i = j
		}
	}

	return i
}
