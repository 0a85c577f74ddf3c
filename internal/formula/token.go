package formula

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString

	TokenTrue
	TokenFalse
	TokenNull
	TokenIf
	TokenThen
	TokenElse

	TokenEq  // = or ==
	TokenNe  // != or <>
	TokenLt  // <
	TokenGt  // >
	TokenLe  // <=
	TokenGe  // >=
	TokenAnd // && or And
	TokenOr  // || or Or
	TokenNot // ! or Not

	TokenPlus  // +
	TokenMinus // -
	TokenMul   // *
	TokenDiv   // /
	TokenMod   // %

	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenDot      // .
	TokenComma    // ,
)

// Token carries its raw lexeme and the byte offset where it starts.
// Word-form operators (And, Or, Not) keep their original lexeme so
// error messages show what the user typed.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// keywordTypes maps lowercased word lexemes to their token types.
// Keyword recognition is case-insensitive; identifiers are not.
var keywordTypes = map[string]TokenType{
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
	"if":    TokenIf,
	"then":  TokenThen,
	"else":  TokenElse,
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
}

// Tokenize converts formula source into a token stream terminated by a
// TokenEOF entry. Lex failures carry the byte position of the offending
// character.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	i := 0

	for i < len(input) {
		for i < len(input) && unicode.IsSpace(rune(input[i])) {
			i++
		}
		if i >= len(input) {
			break
		}

		// Comments
		if input[i] == '/' && i+1 < len(input) {
			if input[i+1] == '/' {
				for i < len(input) && input[i] != '\n' {
					i++
				}
				continue
			}
			if input[i+1] == '*' {
				end := strings.Index(input[i+2:], "*/")
				if end < 0 {
					return nil, newError(CodeParse, Span{Start: i, End: len(input)}, "unterminated block comment")
				}
				i += 2 + end + 2
				continue
			}
		}

		// Two-char operators must be matched before their prefixes.
		if i+1 < len(input) {
			two := input[i : i+2]
			var tt TokenType
			switch two {
			case "==":
				tt = TokenEq
			case "!=", "<>":
				tt = TokenNe
			case "<=":
				tt = TokenLe
			case ">=":
				tt = TokenGe
			case "&&":
				tt = TokenAnd
			case "||":
				tt = TokenOr
			default:
				tt = TokenEOF
			}
			if tt != TokenEOF {
				tokens = append(tokens, Token{Type: tt, Value: two, Pos: i})
				i += 2
				continue
			}
		}

		pos := i
		switch c := input[i]; c {
		case '=':
			tokens = append(tokens, Token{Type: TokenEq, Value: "=", Pos: pos})
			i++
		case '<':
			tokens = append(tokens, Token{Type: TokenLt, Value: "<", Pos: pos})
			i++
		case '>':
			tokens = append(tokens, Token{Type: TokenGt, Value: ">", Pos: pos})
			i++
		case '!':
			tokens = append(tokens, Token{Type: TokenNot, Value: "!", Pos: pos})
			i++
		case '+':
			tokens = append(tokens, Token{Type: TokenPlus, Value: "+", Pos: pos})
			i++
		case '-':
			tokens = append(tokens, Token{Type: TokenMinus, Value: "-", Pos: pos})
			i++
		case '*':
			tokens = append(tokens, Token{Type: TokenMul, Value: "*", Pos: pos})
			i++
		case '/':
			tokens = append(tokens, Token{Type: TokenDiv, Value: "/", Pos: pos})
			i++
		case '%':
			tokens = append(tokens, Token{Type: TokenMod, Value: "%", Pos: pos})
			i++
		case '(':
			tokens = append(tokens, Token{Type: TokenLParen, Value: "(", Pos: pos})
			i++
		case ')':
			tokens = append(tokens, Token{Type: TokenRParen, Value: ")", Pos: pos})
			i++
		case '[':
			tokens = append(tokens, Token{Type: TokenLBracket, Value: "[", Pos: pos})
			i++
		case ']':
			tokens = append(tokens, Token{Type: TokenRBracket, Value: "]", Pos: pos})
			i++
		case '.':
			tokens = append(tokens, Token{Type: TokenDot, Value: ".", Pos: pos})
			i++
		case ',':
			tokens = append(tokens, Token{Type: TokenComma, Value: ",", Pos: pos})
			i++
		case '\'', '"':
			val, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Type: TokenString, Value: val, Pos: pos})
			i = next
		default:
			switch {
			case unicode.IsDigit(rune(c)):
				lit, next, err := scanNumber(input, i)
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, Token{Type: TokenNumber, Value: lit, Pos: pos})
				i = next
			case unicode.IsLetter(rune(c)) || c == '_':
				start := i
				for i < len(input) && isIdentChar(input[i]) {
					i++
				}
				word := input[start:i]
				if tt, ok := keywordTypes[strings.ToLower(word)]; ok {
					tokens = append(tokens, Token{Type: tt, Value: word, Pos: pos})
				} else {
					tokens = append(tokens, Token{Type: TokenIdent, Value: word, Pos: pos})
				}
			default:
				return nil, newError(CodeParse, Span{Start: i, End: i + 1}, "unexpected character %q", c)
			}
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(input)})
	return tokens, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// scanNumber accepts digits with optional fractional and exponent
// parts. A leading sign is lexed separately as a unary operator.
func scanNumber(input string, i int) (string, int, error) {
	start := i
	for i < len(input) && unicode.IsDigit(rune(input[i])) {
		i++
	}
	if i < len(input) && input[i] == '.' && i+1 < len(input) && unicode.IsDigit(rune(input[i+1])) {
		i++
		for i < len(input) && unicode.IsDigit(rune(input[i])) {
			i++
		}
	}
	if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
		j := i + 1
		if j < len(input) && (input[j] == '+' || input[j] == '-') {
			j++
		}
		if j >= len(input) || !unicode.IsDigit(rune(input[j])) {
			return "", 0, newError(CodeParse, Span{Start: i, End: i + 1}, "malformed exponent in number literal")
		}
		i = j
		for i < len(input) && unicode.IsDigit(rune(input[i])) {
			i++
		}
	}
	return input[start:i], i, nil
}

// scanString handles single- and double-quoted strings with the
// escapes \" \' \\ \n \t \r and \uXXXX.
func scanString(input string, i int) (string, int, error) {
	quote := input[i]
	start := i
	i++

	var sb strings.Builder
	for i < len(input) {
		c := input[i]
		if c == quote {
			return sb.String(), i + 1, nil
		}
		if c != '\\' {
			sb.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(input) {
			break
		}
		switch e := input[i+1]; e {
		case '"', '\'', '\\':
			sb.WriteByte(e)
			i += 2
		case 'n':
			sb.WriteByte('\n')
			i += 2
		case 't':
			sb.WriteByte('\t')
			i += 2
		case 'r':
			sb.WriteByte('\r')
			i += 2
		case 'u':
			if i+6 > len(input) {
				return "", 0, newError(CodeParse, Span{Start: i, End: len(input)}, "truncated \\u escape")
			}
			var cp uint32
			if _, err := fmt.Sscanf(input[i+2:i+6], "%04x", &cp); err != nil {
				return "", 0, newError(CodeParse, Span{Start: i, End: i + 6}, "invalid \\u escape %q", input[i:i+6])
			}
			r := rune(cp)
			if utf16.IsSurrogate(r) && i+12 <= len(input) && input[i+6] == '\\' && input[i+7] == 'u' {
				var lo uint32
				if _, err := fmt.Sscanf(input[i+8:i+12], "%04x", &lo); err == nil {
					if dec := utf16.DecodeRune(r, rune(lo)); dec != unicode.ReplacementChar {
						sb.WriteRune(dec)
						i += 12
						continue
					}
				}
			}
			sb.WriteRune(r)
			i += 6
		default:
			return "", 0, newError(CodeParse, Span{Start: i, End: i + 2}, "invalid escape \\%c", input[i+1])
		}
	}
	return "", 0, newError(CodeParse, Span{Start: start, End: len(input)}, "unterminated string")
}
