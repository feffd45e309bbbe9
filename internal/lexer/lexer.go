// Package lexer provides tokenization for peri source code.
//
// The lexer converts a .peri source string into a sequence of tokens,
// handling:
// - Keywords (declarations, statements, register widths)
// - Identifiers
// - Integer literals (decimal and hex, with '_' digit separators)
// - Operators and punctuation, including the '::' and '->' signature markers
// - Comments (line and block, with nesting)
package lexer

import "strings"

// ----------------------------------------------------------------------------
// Token Types
// ----------------------------------------------------------------------------

// TokenKind represents the type of a token.
type TokenKind uint8

const (
	TokError TokenKind = iota
	TokEOF

	// Literals
	TokIntLiteral
	TokTrue
	TokFalse

	// Identifiers
	TokIdent

	// Keywords
	TokPeripheral
	TokAt
	TokStates
	TokInitial
	TokRegisters
	TokFn
	TokLet
	TokIf
	TokElse
	TokWhile
	TokReturn
	TokU8
	TokU16
	TokU32
	TokI32

	// Operators
	TokPlus    // +
	TokMinus   // -
	TokStar    // *
	TokSlash   // /
	TokPercent // %
	TokAmp     // &
	TokPipe    // |
	TokCaret   // ^
	TokTilde   // ~
	TokBang    // !
	TokLt      // <
	TokGt      // >
	TokEq      // =
	TokDot     // .

	// Multi-char operators
	TokAmpAmp     // &&
	TokPipePipe   // ||
	TokLtLt       // <<
	TokGtGt       // >>
	TokLtEq       // <=
	TokGtEq       // >=
	TokEqEq       // ==
	TokBangEq     // !=
	TokArrow      // ->
	TokColonColon // ::

	// Delimiters
	TokLParen    // (
	TokRParen    // )
	TokLBrace    // {
	TokRBrace    // }
	TokSemicolon // ;
	TokColon     // :
	TokComma     // ,
)

// String returns the string representation of a token kind.
func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return "unknown"
}

var tokenNames = [...]string{
	TokError:      "error",
	TokEOF:        "EOF",
	TokIntLiteral: "integer",
	TokTrue:       "true",
	TokFalse:      "false",
	TokIdent:      "identifier",
	// Keywords
	TokPeripheral: "peripheral",
	TokAt:         "at",
	TokStates:     "states",
	TokInitial:    "initial",
	TokRegisters:  "registers",
	TokFn:         "fn",
	TokLet:        "let",
	TokIf:         "if",
	TokElse:       "else",
	TokWhile:      "while",
	TokReturn:     "return",
	TokU8:         "u8",
	TokU16:        "u16",
	TokU32:        "u32",
	TokI32:        "i32",
	// Operators
	TokPlus:       "+",
	TokMinus:      "-",
	TokStar:       "*",
	TokSlash:      "/",
	TokPercent:    "%",
	TokAmp:        "&",
	TokPipe:       "|",
	TokCaret:      "^",
	TokTilde:      "~",
	TokBang:       "!",
	TokLt:         "<",
	TokGt:         ">",
	TokEq:         "=",
	TokDot:        ".",
	TokAmpAmp:     "&&",
	TokPipePipe:   "||",
	TokLtLt:       "<<",
	TokGtGt:       ">>",
	TokLtEq:       "<=",
	TokGtEq:       ">=",
	TokEqEq:       "==",
	TokBangEq:     "!=",
	TokArrow:      "->",
	TokColonColon: "::",
	TokLParen:     "(",
	TokRParen:     ")",
	TokLBrace:     "{",
	TokRBrace:     "}",
	TokSemicolon:  ";",
	TokColon:      ":",
	TokComma:      ",",
}

// ----------------------------------------------------------------------------
// Token
// ----------------------------------------------------------------------------

// Token represents a lexical token.
type Token struct {
	Kind  TokenKind
	Start int    // Byte offset in source
	End   int    // Byte offset of end (exclusive)
	Value string // For identifiers, literals and error messages
}

// Text returns the source text of the token.
func (t Token) Text(source string) string {
	if t.Start >= 0 && t.End <= len(source) {
		return source[t.Start:t.End]
	}
	return ""
}

// Keywords maps keyword strings to their token kinds.
var Keywords = map[string]TokenKind{
	"peripheral": TokPeripheral,
	"at":         TokAt,
	"states":     TokStates,
	"initial":    TokInitial,
	"registers":  TokRegisters,
	"fn":         TokFn,
	"let":        TokLet,
	"if":         TokIf,
	"else":       TokElse,
	"while":      TokWhile,
	"return":     TokReturn,
	"true":       TokTrue,
	"false":      TokFalse,
	"u8":         TokU8,
	"u16":        TokU16,
	"u32":        TokU32,
	"i32":        TokI32,
}

// ----------------------------------------------------------------------------
// Lexer
// ----------------------------------------------------------------------------

// Lexer tokenizes peri source code.
type Lexer struct {
	source string
	pos    int
	tokens []Token
}

// New creates a new lexer for the given source.
func New(source string) *Lexer {
	return &Lexer{
		source: source,
		tokens: make([]Token, 0, len(source)/4),
	}
}

// Tokenize returns all tokens in the source. The last token is always
// TokEOF or TokError.
func (l *Lexer) Tokenize() []Token {
	for {
		tok := l.Next()
		l.tokens = append(l.tokens, tok)
		if tok.Kind == TokEOF || tok.Kind == TokError {
			break
		}
	}
	return l.tokens
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	if l.pos >= len(l.source) {
		return Token{Kind: TokEOF, Start: l.pos, End: l.pos}
	}

	ch := l.source[l.pos]
	if isIdentStart(ch) {
		return l.scanIdentOrKeyword()
	}
	if isDigit(ch) {
		return l.scanNumber()
	}
	return l.scanOperator()
}

// ----------------------------------------------------------------------------
// Scanning Helpers
// ----------------------------------------------------------------------------

// skipWhitespaceAndComments reports false with an error token when a block
// comment is left open at end of input.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for l.pos < len(l.source) {
		ch := l.source[l.pos]

		if ch == ' ' || ch == '\n' || ch == '\t' || ch == '\r' {
			l.pos++
			continue
		}

		if ch == '/' && l.pos+1 < len(l.source) && l.source[l.pos+1] == '/' {
			l.pos += 2
			for l.pos < len(l.source) && l.source[l.pos] != '\n' {
				l.pos++
			}
			continue
		}

		if ch == '/' && l.pos+1 < len(l.source) && l.source[l.pos+1] == '*' {
			start := l.pos
			l.pos += 2
			depth := 1
			for l.pos < len(l.source) && depth > 0 {
				switch {
				case strings.HasPrefix(l.source[l.pos:], "/*"):
					depth++
					l.pos += 2
				case strings.HasPrefix(l.source[l.pos:], "*/"):
					depth--
					l.pos += 2
				default:
					l.pos++
				}
			}
			if depth > 0 {
				return Token{Kind: TokError, Start: start, End: l.pos, Value: "unterminated block comment"}, false
			}
			continue
		}

		break
	}
	return Token{}, true
}

func (l *Lexer) scanIdentOrKeyword() Token {
	start := l.pos
	for l.pos < len(l.source) && isIdentContinue(l.source[l.pos]) {
		l.pos++
	}

	text := l.source[start:l.pos]
	if kind, ok := Keywords[text]; ok {
		return Token{Kind: kind, Start: start, End: l.pos, Value: text}
	}
	return Token{Kind: TokIdent, Start: start, End: l.pos, Value: text}
}

// scanNumber scans an integer literal. Value holds the literal with digit
// separators removed, so "0x4000_0000" yields "0x40000000".
func (l *Lexer) scanNumber() Token {
	start := l.pos
	digit := isDigit

	if l.pos+1 < len(l.source) && l.source[l.pos] == '0' &&
		(l.source[l.pos+1] == 'x' || l.source[l.pos+1] == 'X') {
		l.pos += 2
		digit = isHexDigit
		if l.pos >= len(l.source) || !isHexDigit(l.source[l.pos]) {
			return Token{Kind: TokError, Start: start, End: l.pos, Value: "hex literal has no digits"}
		}
	}

	for l.pos < len(l.source) && (digit(l.source[l.pos]) || l.source[l.pos] == '_') {
		l.pos++
	}

	if l.pos < len(l.source) && isIdentContinue(l.source[l.pos]) {
		for l.pos < len(l.source) && isIdentContinue(l.source[l.pos]) {
			l.pos++
		}
		return Token{Kind: TokError, Start: start, End: l.pos, Value: "invalid digit in integer literal"}
	}

	value := strings.ReplaceAll(l.source[start:l.pos], "_", "")
	return Token{Kind: TokIntLiteral, Start: start, End: l.pos, Value: value}
}

func (l *Lexer) scanOperator() Token {
	start := l.pos
	ch := l.source[l.pos]
	l.pos++

	var next byte
	if l.pos < len(l.source) {
		next = l.source[l.pos]
	}

	pair := func(kind TokenKind) Token {
		l.pos++
		return Token{Kind: kind, Start: start, End: l.pos}
	}
	single := func(kind TokenKind) Token {
		return Token{Kind: kind, Start: start, End: l.pos}
	}

	switch ch {
	case '+':
		return single(TokPlus)
	case '-':
		if next == '>' {
			return pair(TokArrow)
		}
		return single(TokMinus)
	case '*':
		return single(TokStar)
	case '/':
		return single(TokSlash)
	case '%':
		return single(TokPercent)
	case '&':
		if next == '&' {
			return pair(TokAmpAmp)
		}
		return single(TokAmp)
	case '|':
		if next == '|' {
			return pair(TokPipePipe)
		}
		return single(TokPipe)
	case '^':
		return single(TokCaret)
	case '~':
		return single(TokTilde)
	case '!':
		if next == '=' {
			return pair(TokBangEq)
		}
		return single(TokBang)
	case '<':
		if next == '<' {
			return pair(TokLtLt)
		}
		if next == '=' {
			return pair(TokLtEq)
		}
		return single(TokLt)
	case '>':
		if next == '>' {
			return pair(TokGtGt)
		}
		if next == '=' {
			return pair(TokGtEq)
		}
		return single(TokGt)
	case '=':
		if next == '=' {
			return pair(TokEqEq)
		}
		return single(TokEq)
	case ':':
		if next == ':' {
			return pair(TokColonColon)
		}
		return single(TokColon)
	case '.':
		return single(TokDot)
	case '(':
		return single(TokLParen)
	case ')':
		return single(TokRParen)
	case '{':
		return single(TokLBrace)
	case '}':
		return single(TokRBrace)
	case ';':
		return single(TokSemicolon)
	case ',':
		return single(TokComma)
	}

	return Token{Kind: TokError, Start: start, End: l.pos, Value: "unexpected character " + quoteByte(ch)}
}

func quoteByte(ch byte) string {
	if ch >= 0x20 && ch < 0x7f {
		return "'" + string(rune(ch)) + "'"
	}
	return "0x" + string("0123456789abcdef"[ch>>4]) + string("0123456789abcdef"[ch&0xf])
}

// ----------------------------------------------------------------------------
// Character Classification
// ----------------------------------------------------------------------------

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentContinue(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
