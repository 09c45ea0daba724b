package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for Lua syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Lua source code.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	lineStart int  // offset of current line start
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.lineStart = l.readPos
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// atEOF reports whether the whole input has been consumed. A NUL byte in
// the input is not EOF.
func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.pos - l.lineStart + 1,
	}
}

func (l *Lexer) errorToken(pos Position, format string, args ...any) Token {
	return Token{Type: TokenError, Literal: fmt.Sprintf(format, args...), Pos: pos}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	tok := l.scan()
	tok.End = l.position()
	return tok
}

func (l *Lexer) scan() Token {
	if tok, ok := l.skipWhitespaceAndComments(); !ok {
		return tok
	}

	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	switch ch := l.ch; {
	case isDigit(ch) || (ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(pos)

	case isLetter(ch):
		return l.readName(pos)

	case ch == '"' || ch == '\'':
		return l.readString(pos, ch)

	case ch == '[' && (l.peekChar() == '[' || l.peekChar() == '='):
		level, ok := l.longBracketLevel()
		if !ok {
			return l.errorToken(pos, "invalid long string delimiter")
		}
		s, ok := l.readLongBracket(level)
		if !ok {
			return l.errorToken(pos, "unfinished long string")
		}
		return Token{Type: TokenString, Literal: s, Pos: pos}
	}

	return l.readOperator(pos)
}

// readOperator reads punctuation, preferring the longest match.
func (l *Lexer) readOperator(pos Position) Token {
	ch := l.ch
	l.readChar()

	two := func(next rune, long, short TokenType) Token {
		if l.ch == next {
			l.readChar()
			return Token{Type: long, Literal: long.String(), Pos: pos}
		}
		return Token{Type: short, Literal: short.String(), Pos: pos}
	}

	switch ch {
	case '+':
		return Token{Type: TokenPlus, Literal: "+", Pos: pos}
	case '-':
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}
	case '*':
		return Token{Type: TokenStar, Literal: "*", Pos: pos}
	case '/':
		return two('/', TokenDSlash, TokenSlash)
	case '%':
		return Token{Type: TokenPercent, Literal: "%", Pos: pos}
	case '^':
		return Token{Type: TokenCaret, Literal: "^", Pos: pos}
	case '#':
		return Token{Type: TokenHash, Literal: "#", Pos: pos}
	case '&':
		return Token{Type: TokenAmp, Literal: "&", Pos: pos}
	case '~':
		return two('=', TokenNe, TokenTilde)
	case '|':
		return Token{Type: TokenPipe, Literal: "|", Pos: pos}
	case '<':
		if l.ch == '<' {
			l.readChar()
			return Token{Type: TokenShl, Literal: "<<", Pos: pos}
		}
		return two('=', TokenLe, TokenLt)
	case '>':
		if l.ch == '>' {
			l.readChar()
			return Token{Type: TokenShr, Literal: ">>", Pos: pos}
		}
		return two('=', TokenGe, TokenGt)
	case '=':
		return two('=', TokenEq, TokenAssign)
	case '(':
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}
	case ')':
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}
	case '{':
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}
	case '}':
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}
	case '[':
		return Token{Type: TokenLBracket, Literal: "[", Pos: pos}
	case ']':
		return Token{Type: TokenRBracket, Literal: "]", Pos: pos}
	case ';':
		return Token{Type: TokenSemi, Literal: ";", Pos: pos}
	case ':':
		return two(':', TokenDColon, TokenColon)
	case ',':
		return Token{Type: TokenComma, Literal: ",", Pos: pos}
	case '.':
		if l.ch != '.' {
			return Token{Type: TokenDot, Literal: ".", Pos: pos}
		}
		l.readChar()
		return two('.', TokenDots, TokenConcat)
	}

	return l.errorToken(pos, "unexpected symbol near '%c'", ch)
}

// skipWhitespaceAndComments skips whitespace, line comments and long
// comments. It returns false with an error token for an unfinished long
// comment.
func (l *Lexer) skipWhitespaceAndComments() (Token, bool) {
	for {
		for isSpace(l.ch) && !l.atEOF() {
			l.readChar()
		}

		if l.ch != '-' || l.peekChar() != '-' {
			return Token{}, true
		}

		pos := l.position()
		l.readChar() // first -
		l.readChar() // second -

		if l.ch == '[' {
			if level, ok := l.longBracketLevel(); ok {
				if _, ok := l.readLongBracket(level); !ok {
					return l.errorToken(pos, "unfinished long comment"), false
				}
				continue
			}
		}

		for l.ch != '\n' && !l.atEOF() {
			l.readChar()
		}
	}
}

// longBracketLevel consumes '[' '='* '[' and returns the number of '='
// signs. On a malformed opener it consumes nothing and reports false.
func (l *Lexer) longBracketLevel() (int, bool) {
	i := l.pos + 1
	for i < len(l.input) && l.input[i] == '=' {
		i++
	}
	if i >= len(l.input) || l.input[i] != '[' {
		return 0, false
	}
	level := i - l.pos - 1
	for l.pos <= i {
		l.readChar()
	}
	return level, true
}

// readLongBracket reads the body of a long string or comment after its
// opener, up to the matching closer. A newline directly after the opener
// is skipped.
func (l *Lexer) readLongBracket(level int) (string, bool) {
	if l.ch == '\r' || l.ch == '\n' {
		first := l.ch
		l.readChar()
		if (l.ch == '\r' || l.ch == '\n') && l.ch != first {
			l.readChar()
		}
	}

	closer := "]" + strings.Repeat("=", level) + "]"
	start := l.pos
	end := strings.Index(l.input[start:], closer)
	if end < 0 {
		for !l.atEOF() {
			l.readChar()
		}
		return "", false
	}
	stop := start + end + len(closer)
	for l.pos < stop {
		l.readChar()
	}
	return l.input[start : start+end], true
}

// readString reads a quoted string literal and decodes its escapes.
func (l *Lexer) readString(pos Position, quote rune) Token {
	l.readChar() // opening quote

	var sb strings.Builder
	for l.ch != quote {
		switch {
		case l.atEOF():
			return l.errorToken(pos, "unfinished string")
		case l.ch == '\n' || l.ch == '\r':
			return l.errorToken(pos, "unfinished string")
		case l.ch == '\\':
			if msg := l.readEscape(&sb); msg != "" {
				return l.errorToken(l.position(), "%s", msg)
			}
		default:
			sb.WriteString(l.input[l.pos:l.readPos])
			l.readChar()
		}
	}
	l.readChar() // closing quote

	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

var simpleEscapes = map[rune]byte{
	'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r', 't': '\t',
	'v': '\v', '\\': '\\', '"': '"', '\'': '\'',
}

// readEscape decodes one backslash escape into sb. It returns a non-empty
// message on a malformed escape.
func (l *Lexer) readEscape(sb *strings.Builder) string {
	l.readChar() // backslash

	if b, ok := simpleEscapes[l.ch]; ok {
		sb.WriteByte(b)
		l.readChar()
		return ""
	}

	switch {
	case l.ch == '\n' || l.ch == '\r':
		first := l.ch
		l.readChar()
		if (l.ch == '\n' || l.ch == '\r') && l.ch != first {
			l.readChar()
		}
		sb.WriteByte('\n')

	case l.ch == 'x':
		l.readChar()
		v := 0
		for i := 0; i < 2; i++ {
			d, ok := hexValue(l.ch)
			if !ok {
				return "hexadecimal digit expected"
			}
			v = v*16 + d
			l.readChar()
		}
		sb.WriteByte(byte(v))

	case l.ch == 'z':
		l.readChar()
		for isSpace(l.ch) && !l.atEOF() {
			l.readChar()
		}

	case l.ch == 'u':
		l.readChar()
		if l.ch != '{' {
			return "missing '{' in \\u{xxxx}"
		}
		l.readChar()
		var v uint64
		digits := 0
		for {
			d, ok := hexValue(l.ch)
			if !ok {
				break
			}
			v = v*16 + uint64(d)
			if v > 0x7FFFFFFF {
				return "UTF-8 value too large"
			}
			digits++
			l.readChar()
		}
		if digits == 0 {
			return "hexadecimal digit expected"
		}
		if l.ch != '}' {
			return "missing '}' in \\u{xxxx}"
		}
		l.readChar()
		sb.Write(utf8Escape(uint32(v)))

	case isDigit(l.ch):
		v := 0
		for i := 0; i < 3 && isDigit(l.ch); i++ {
			v = v*10 + int(l.ch-'0')
			l.readChar()
		}
		if v > 255 {
			return "decimal escape too large"
		}
		sb.WriteByte(byte(v))

	default:
		return "invalid escape sequence"
	}
	return ""
}

// utf8Escape encodes x using the original (up to six byte) UTF-8 scheme,
// which covers values beyond the Unicode range.
func utf8Escape(x uint32) []byte {
	if x < 0x80 {
		return []byte{byte(x)}
	}
	var buf [6]byte
	n := 1
	mfb := uint32(0x3f) // largest value that fits in the first byte
	for x > mfb {
		buf[6-n] = byte(0x80 | (x & 0x3f))
		n++
		x >>= 6
		mfb >>= 1
	}
	buf[6-n] = byte((^mfb << 1) | x)
	return buf[6-n:]
}

// readNumber reads a numeral. Conversion to a value happens in
// ParseNumber.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	isFloat := false
	expChars := "Ee"

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		expChars = "Pp"
	}

	for {
		switch {
		case strings.ContainsRune(expChars, l.ch):
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
		case l.ch == '.':
			isFloat = true
			l.readChar()
		case isHexDigit(l.ch):
			l.readChar()
		default:
			lit := l.input[start:l.pos]
			if isLetter(l.ch) || isDigit(l.ch) {
				return l.errorToken(pos, "malformed number near '%s'", lit)
			}
			if _, err := ParseNumber(lit); err != nil {
				return l.errorToken(pos, "malformed number near '%s'", lit)
			}
			if isFloat {
				return Token{Type: TokenFloat, Literal: lit, Pos: pos}
			}
			return Token{Type: TokenInteger, Literal: lit, Pos: pos}
		}
	}
}

func isHexLiteral(lit string) bool {
	return len(lit) > 1 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X')
}

// ParseNumber converts a numeral to an *IntLiteral or *FloatLiteral value.
// Decimal integers that overflow int64 become floats; hexadecimal integers
// wrap around.
func ParseNumber(lit string) (Expr, error) {
	if isHexLiteral(lit) {
		digits := lit[2:]
		if !strings.ContainsAny(digits, ".pP") {
			if digits == "" {
				return nil, fmt.Errorf("malformed number %q", lit)
			}
			var v uint64
			for _, r := range digits {
				d, ok := hexValue(r)
				if !ok {
					return nil, fmt.Errorf("malformed number %q", lit)
				}
				v = v<<4 | uint64(d)
			}
			return &IntLiteral{Value: int64(v)}, nil
		}
		if !strings.ContainsAny(digits, "pP") {
			lit += "p0"
		}
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil && !isRangeErr(err) {
			return nil, fmt.Errorf("malformed number %q", lit)
		}
		return &FloatLiteral{Value: f}, nil
	}

	if !strings.ContainsAny(lit, ".eE") {
		v, err := strconv.ParseInt(lit, 10, 64)
		if err == nil {
			return &IntLiteral{Value: v}, nil
		}
		if !isRangeErr(err) {
			return nil, fmt.Errorf("malformed number %q", lit)
		}
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !isRangeErr(err) {
		return nil, fmt.Errorf("malformed number %q", lit)
	}
	if math.IsNaN(f) {
		return nil, fmt.Errorf("malformed number %q", lit)
	}
	return &FloatLiteral{Value: f}, nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// readName reads a name or reserved word.
func (l *Lexer) readName(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenName, Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	_, ok := hexValue(r)
	return ok
}

func hexValue(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10, true
	}
	return 0, false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// Tokenize returns all tokens from the input, stopping after EOF or the
// first error.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
