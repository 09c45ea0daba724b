package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger // 42, 0xFF
	TokenFloat   // 3.14, 1e10, 0x1p4
	TokenString  // "hello", 'hello', [[hello]]
	TokenName    // foo

	// Operators
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenDSlash   // //
	TokenPercent  // %
	TokenCaret    // ^
	TokenHash     // #
	TokenAmp      // &
	TokenTilde    // ~
	TokenPipe     // |
	TokenShl      // <<
	TokenShr      // >>
	TokenEq       // ==
	TokenNe       // ~=
	TokenLe       // <=
	TokenGe       // >=
	TokenLt       // <
	TokenGt       // >
	TokenAssign   // =
	TokenConcat   // ..
	TokenDots     // ...
	TokenLParen   // (
	TokenRParen   // )
	TokenLBrace   // {
	TokenRBrace   // }
	TokenLBracket // [
	TokenRBracket // ]
	TokenSemi     // ;
	TokenColon    // :
	TokenDColon   // ::
	TokenComma    // ,
	TokenDot      // .

	// Reserved words
	TokenAnd
	TokenBreak
	TokenDo
	TokenElse
	TokenElseif
	TokenEnd
	TokenFalse
	TokenFor
	TokenFunction
	TokenGoto
	TokenIf
	TokenIn
	TokenLocal
	TokenNil
	TokenNot
	TokenOr
	TokenRepeat
	TokenReturn
	TokenThen
	TokenTrue
	TokenUntil
	TokenWhile
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "<eof>",
	TokenError:    "ERROR",
	TokenInteger:  "<integer>",
	TokenFloat:    "<number>",
	TokenString:   "<string>",
	TokenName:     "<name>",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenStar:     "*",
	TokenSlash:    "/",
	TokenDSlash:   "//",
	TokenPercent:  "%",
	TokenCaret:    "^",
	TokenHash:     "#",
	TokenAmp:      "&",
	TokenTilde:    "~",
	TokenPipe:     "|",
	TokenShl:      "<<",
	TokenShr:      ">>",
	TokenEq:       "==",
	TokenNe:       "~=",
	TokenLe:       "<=",
	TokenGe:       ">=",
	TokenLt:       "<",
	TokenGt:       ">",
	TokenAssign:   "=",
	TokenConcat:   "..",
	TokenDots:     "...",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBrace:   "{",
	TokenRBrace:   "}",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenSemi:     ";",
	TokenColon:    ":",
	TokenDColon:   "::",
	TokenComma:    ",",
	TokenDot:      ".",
	TokenAnd:      "and",
	TokenBreak:    "break",
	TokenDo:       "do",
	TokenElse:     "else",
	TokenElseif:   "elseif",
	TokenEnd:      "end",
	TokenFalse:    "false",
	TokenFor:      "for",
	TokenFunction: "function",
	TokenGoto:     "goto",
	TokenIf:       "if",
	TokenIn:       "in",
	TokenLocal:    "local",
	TokenNil:      "nil",
	TokenNot:      "not",
	TokenOr:       "or",
	TokenRepeat:   "repeat",
	TokenReturn:   "return",
	TokenThen:     "then",
	TokenTrue:     "true",
	TokenUntil:    "until",
	TokenWhile:    "while",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // raw text; the decoded value for strings
	Pos     Position // start position
	End     Position // position just past the token
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "<eof>"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// reservedWords maps keywords to their token types.
var reservedWords = map[string]TokenType{
	"and":      TokenAnd,
	"break":    TokenBreak,
	"do":       TokenDo,
	"else":     TokenElse,
	"elseif":   TokenElseif,
	"end":      TokenEnd,
	"false":    TokenFalse,
	"for":      TokenFor,
	"function": TokenFunction,
	"goto":     TokenGoto,
	"if":       TokenIf,
	"in":       TokenIn,
	"local":    TokenLocal,
	"nil":      TokenNil,
	"not":      TokenNot,
	"or":       TokenOr,
	"repeat":   TokenRepeat,
	"return":   TokenReturn,
	"then":     TokenThen,
	"true":     TokenTrue,
	"until":    TokenUntil,
	"while":    TokenWhile,
}

// IsReserved reports whether t is a reserved word.
func (t TokenType) IsReserved() bool {
	return t >= TokenAnd && t <= TokenWhile
}
