package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for Lua syntax
// ---------------------------------------------------------------------------

// Parser parses Lua source code into an AST. It stops at the first error.
type Parser struct {
	lexer     *Lexer
	source    string
	curToken  Token
	peekToken Token
	prevEnd   Position
	err       *SyntaxError

	// vararg tracks, per enclosing function, whether '...' is allowed.
	vararg []bool

	// level counts nested blocks and subexpressions.
	level int
}

// MaxSyntaxLevels bounds the nesting of blocks and subexpressions.
const MaxSyntaxLevels = 200

// NewParser creates a new parser for the given input. source names the
// chunk in error messages.
func NewParser(source, input string) *Parser {
	p := &Parser{
		lexer:  NewLexer(input),
		source: source,
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole chunk.
func Parse(source, input string) (*Block, error) {
	p := NewParser(source, input)
	block := p.ParseChunk()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return block, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.End
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("'%s' expected near %s", t, p.near())
	return false
}

// expectMatch is expect for a closing token, naming the opener's line when
// it differs from the current one.
func (p *Parser) expectMatch(closing, opening TokenType, line int) bool {
	if p.curTokenIs(closing) {
		p.nextToken()
		return true
	}
	if line == p.curToken.Pos.Line {
		p.errorf("'%s' expected near %s", closing, p.near())
	} else {
		p.errorf("'%s' expected (to close '%s' at line %d) near %s", closing, opening, line, p.near())
	}
	return false
}

// expectName consumes a name token and returns its text.
func (p *Parser) expectName() string {
	if !p.curTokenIs(TokenName) {
		p.errorf("<name> expected near %s", p.near())
		return ""
	}
	name := p.curToken.Literal
	p.nextToken()
	return name
}

// near renders the current token for error messages.
func (p *Parser) near() string {
	switch p.curToken.Type {
	case TokenEOF:
		return "<eof>"
	case TokenString, TokenName, TokenInteger, TokenFloat:
		return fmt.Sprintf("'%s'", p.curToken.Literal)
	}
	return fmt.Sprintf("'%s'", p.curToken.Type)
}

// errorf records a parse error at the current token. Only the first error
// is kept; a pending lexer error takes precedence over the parser's view.
func (p *Parser) errorf(format string, args ...any) {
	if p.err != nil {
		return
	}
	tok := p.curToken
	msg := fmt.Sprintf(format, args...)
	if tok.Type == TokenError {
		msg = tok.Literal
	}
	p.err = &SyntaxError{
		Source: p.source,
		Line:   tok.Pos.Line,
		Column: tok.Pos.Column,
		Msg:    msg,
	}
}

// enterLevel descends one nesting level, recording an error past
// MaxSyntaxLevels. Every call must be paired with leaveLevel.
func (p *Parser) enterLevel() bool {
	p.level++
	if p.level > MaxSyntaxLevels {
		p.errorf("chunk has too many syntax levels")
		return false
	}
	return true
}

func (p *Parser) leaveLevel() {
	p.level--
}

// errorAt records a parse error at pos.
func (p *Parser) errorAt(pos Position, format string, args ...any) {
	if p.err != nil {
		return
	}
	p.err = &SyntaxError{
		Source: p.source,
		Line:   pos.Line,
		Column: pos.Column,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// Err returns the first parse error, or nil.
func (p *Parser) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

func (p *Parser) spanFrom(start Position) Span {
	return MakeSpan(start, p.prevEnd)
}

// ---------------------------------------------------------------------------
// Blocks and statements
// ---------------------------------------------------------------------------

// ParseChunk parses the whole input as the body of a vararg main function.
func (p *Parser) ParseChunk() *Block {
	p.vararg = append(p.vararg, true)
	block := p.parseBlock()
	p.vararg = p.vararg[:len(p.vararg)-1]

	if !p.curTokenIs(TokenEOF) {
		p.errorf("'<eof>' expected near %s", p.near())
	}
	return block
}

// blockFollow reports whether the current token ends a block.
func (p *Parser) blockFollow() bool {
	switch p.curToken.Type {
	case TokenEOF, TokenEnd, TokenElse, TokenElseif, TokenUntil:
		return true
	}
	return false
}

func (p *Parser) parseBlock() *Block {
	start := p.curToken.Pos
	var stmts []Stmt

	defer p.leaveLevel()
	if !p.enterLevel() {
		return &Block{SpanVal: MakeSpan(start, p.curToken.Pos)}
	}

	for !p.blockFollow() && p.err == nil {
		if p.curTokenIs(TokenReturn) {
			if s := p.parseReturn(); s != nil {
				stmts = append(stmts, s)
			}
			break
		}
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}

	return &Block{SpanVal: MakeSpan(start, p.curToken.Pos), Stmts: stmts}
}

// parseStatement parses a single statement. It returns nil for an empty
// statement or on error.
func (p *Parser) parseStatement() Stmt {
	switch p.curToken.Type {
	case TokenSemi:
		p.nextToken()
		return nil
	case TokenLocal:
		return p.parseLocal()
	case TokenDo:
		return p.parseDo()
	case TokenFunction:
		return p.parseFunctionStat()
	case TokenIf, TokenWhile, TokenFor, TokenRepeat, TokenGoto, TokenBreak:
		p.errorf("'%s' statements are not supported", p.curToken.Type)
		return nil
	case TokenDColon:
		p.errorf("labels are not supported")
		return nil
	}
	return p.parseExprStat()
}

// parseLocal parses 'local namelist [= exprlist]' and
// 'local function name body'.
func (p *Parser) parseLocal() Stmt {
	start := p.curToken.Pos
	p.nextToken() // local

	if p.curTokenIs(TokenFunction) {
		fnStart := p.curToken.Pos
		p.nextToken()
		name := p.expectName()
		fn := p.parseFuncBody(fnStart, false)
		if fn == nil {
			return nil
		}
		return &LocalStat{SpanVal: p.spanFrom(start), Names: []string{name}, Exprs: []Expr{fn}}
	}

	names := []string{p.expectName()}
	for p.curTokenIs(TokenComma) && p.err == nil {
		p.nextToken()
		names = append(names, p.expectName())
	}

	var exprs []Expr
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		exprs = p.parseExprList()
	}
	if p.err != nil {
		return nil
	}
	return &LocalStat{SpanVal: p.spanFrom(start), Names: names, Exprs: exprs}
}

func (p *Parser) parseDo() Stmt {
	start := p.curToken.Pos
	p.nextToken() // do
	body := p.parseBlock()
	if !p.expectMatch(TokenEnd, TokenDo, start.Line) {
		return nil
	}
	return &DoStat{SpanVal: p.spanFrom(start), Body: body}
}

// parseFunctionStat parses 'function a.b:c body' as an assignment of a
// function literal.
func (p *Parser) parseFunctionStat() Stmt {
	start := p.curToken.Pos
	p.nextToken() // function

	nameTok := p.curToken
	nameStart := nameTok.Pos
	var target Expr = &Name{SpanVal: nameTok.Pos.span(nameTok.End), Name: p.expectName()}
	isMethod := false
	for (p.curTokenIs(TokenDot) || p.curTokenIs(TokenColon)) && p.err == nil {
		isMethod = p.curTokenIs(TokenColon)
		p.nextToken()
		keyTok := p.curToken
		key := p.expectName()
		target = &IndexExpr{
			SpanVal: p.spanFrom(nameStart),
			Object:  target,
			Key:     &StringLiteral{SpanVal: keyTok.Pos.span(keyTok.End), Value: key},
		}
		if isMethod {
			break
		}
	}

	fn := p.parseFuncBody(start, isMethod)
	if fn == nil {
		return nil
	}
	return &AssignStat{SpanVal: p.spanFrom(start), Targets: []Expr{target}, Exprs: []Expr{fn}}
}

func (p *Parser) parseReturn() Stmt {
	start := p.curToken.Pos
	p.nextToken() // return

	var exprs []Expr
	if !p.blockFollow() && !p.curTokenIs(TokenSemi) {
		exprs = p.parseExprList()
	}
	if p.curTokenIs(TokenSemi) {
		p.nextToken()
	}
	if p.err != nil {
		return nil
	}
	return &ReturnStat{SpanVal: p.spanFrom(start), Exprs: exprs}
}

// parseExprStat parses an assignment or a call statement.
func (p *Parser) parseExprStat() Stmt {
	start := p.curToken.Pos
	first := p.parseSuffixedExpr()
	if first == nil {
		return nil
	}

	if p.curTokenIs(TokenAssign) || p.curTokenIs(TokenComma) {
		targets := []Expr{first}
		p.checkAssignable(first)
		for p.curTokenIs(TokenComma) && p.err == nil {
			p.nextToken()
			t := p.parseSuffixedExpr()
			if t == nil {
				return nil
			}
			p.checkAssignable(t)
			targets = append(targets, t)
		}
		p.expect(TokenAssign)
		exprs := p.parseExprList()
		if p.err != nil {
			return nil
		}
		return &AssignStat{SpanVal: p.spanFrom(start), Targets: targets, Exprs: exprs}
	}

	call, ok := first.(*CallExpr)
	if !ok {
		p.errorf("syntax error near %s", p.near())
		return nil
	}
	return &CallStat{SpanVal: call.SpanVal, Call: call}
}

// checkAssignable rejects targets that are not variables.
func (p *Parser) checkAssignable(e Expr) {
	switch e.(type) {
	case *Name, *IndexExpr:
		return
	}
	p.errorAt(e.Span().Start, "syntax error near %s", p.near())
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

type binaryPriority struct {
	op          BinOp
	left, right int
}

// binaryPriorities holds left and right binding power per operator.
// Right-associative operators bind less tightly on the right.
var binaryPriorities = map[TokenType]binaryPriority{
	TokenOr:      {BinOr, 1, 1},
	TokenAnd:     {BinAnd, 2, 2},
	TokenLt:      {BinLt, 3, 3},
	TokenGt:      {BinGt, 3, 3},
	TokenLe:      {BinLe, 3, 3},
	TokenGe:      {BinGe, 3, 3},
	TokenNe:      {BinNe, 3, 3},
	TokenEq:      {BinEq, 3, 3},
	TokenPipe:    {BinBOr, 4, 4},
	TokenTilde:   {BinBXor, 5, 5},
	TokenAmp:     {BinBAnd, 6, 6},
	TokenShl:     {BinShl, 7, 7},
	TokenShr:     {BinShr, 7, 7},
	TokenConcat:  {BinConcat, 9, 8},
	TokenPlus:    {BinAdd, 10, 10},
	TokenMinus:   {BinSub, 10, 10},
	TokenStar:    {BinMul, 11, 11},
	TokenSlash:   {BinDiv, 11, 11},
	TokenDSlash:  {BinIDiv, 11, 11},
	TokenPercent: {BinMod, 11, 11},
	TokenCaret:   {BinPow, 14, 13},
}

const unaryPriority = 12

var unaryOps = map[TokenType]UnOp{
	TokenMinus: UnMinus,
	TokenTilde: UnBNot,
	TokenNot:   UnNot,
	TokenHash:  UnLen,
}

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseSubExpr(0)
}

func (p *Parser) parseExprList() []Expr {
	var exprs []Expr
	for {
		e := p.ParseExpression()
		if e == nil {
			return nil
		}
		exprs = append(exprs, e)
		if !p.curTokenIs(TokenComma) {
			return exprs
		}
		p.nextToken()
	}
}

// parseSubExpr parses an expression whose binary operators bind tighter
// than limit.
func (p *Parser) parseSubExpr(limit int) Expr {
	start := p.curToken.Pos

	defer p.leaveLevel()
	if !p.enterLevel() {
		return nil
	}

	var left Expr
	if op, ok := unaryOps[p.curToken.Type]; ok {
		p.nextToken()
		operand := p.parseSubExpr(unaryPriority)
		if operand == nil {
			return nil
		}
		left = &UnaryExpr{SpanVal: p.spanFrom(start), Op: op, Operand: operand}
	} else {
		left = p.parseSimpleExpr()
		if left == nil {
			return nil
		}
	}

	for {
		bp, ok := binaryPriorities[p.curToken.Type]
		if !ok || bp.left <= limit {
			return left
		}
		p.nextToken()
		right := p.parseSubExpr(bp.right)
		if right == nil {
			return nil
		}
		left = &BinaryExpr{SpanVal: p.spanFrom(start), Op: bp.op, Left: left, Right: right}
	}
}

func (p *Parser) parseSimpleExpr() Expr {
	tok := p.curToken
	span := tok.Pos.span(tok.End)

	switch tok.Type {
	case TokenInteger, TokenFloat:
		p.nextToken()
		e, err := ParseNumber(tok.Literal)
		if err != nil {
			p.errorAt(tok.Pos, "malformed number near '%s'", tok.Literal)
			return nil
		}
		switch n := e.(type) {
		case *IntLiteral:
			n.SpanVal = span
		case *FloatLiteral:
			n.SpanVal = span
		}
		return e

	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: span, Value: tok.Literal}

	case TokenNil:
		p.nextToken()
		return &NilLiteral{SpanVal: span}

	case TokenTrue:
		p.nextToken()
		return &TrueLiteral{SpanVal: span}

	case TokenFalse:
		p.nextToken()
		return &FalseLiteral{SpanVal: span}

	case TokenDots:
		if len(p.vararg) > 0 && !p.vararg[len(p.vararg)-1] {
			p.errorf("cannot use '...' outside a vararg function near '...'")
			return nil
		}
		p.nextToken()
		return &VarargExpr{SpanVal: span}

	case TokenLBrace:
		if t := p.parseTable(); t != nil {
			return t
		}
		return nil

	case TokenFunction:
		p.nextToken()
		if fn := p.parseFuncBody(tok.Pos, false); fn != nil {
			return fn
		}
		return nil
	}

	return p.parseSuffixedExpr()
}

// parsePrimaryExpr parses a name or a parenthesized expression.
func (p *Parser) parsePrimaryExpr() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenName:
		p.nextToken()
		return &Name{SpanVal: tok.Pos.span(tok.End), Name: tok.Literal}

	case TokenLParen:
		p.nextToken()
		inner := p.ParseExpression()
		if inner == nil {
			return nil
		}
		if !p.expectMatch(TokenRParen, TokenLParen, tok.Pos.Line) {
			return nil
		}
		return &ParenExpr{SpanVal: p.spanFrom(tok.Pos), Inner: inner}
	}

	p.errorf("unexpected symbol near %s", p.near())
	return nil
}

// parseSuffixedExpr parses a primary expression followed by any number of
// field accesses, index operations and calls.
func (p *Parser) parseSuffixedExpr() Expr {
	start := p.curToken.Pos
	e := p.parsePrimaryExpr()
	if e == nil {
		return nil
	}

	for p.err == nil {
		switch p.curToken.Type {
		case TokenDot:
			p.nextToken()
			keyTok := p.curToken
			key := p.expectName()
			e = &IndexExpr{
				SpanVal: p.spanFrom(start),
				Object:  e,
				Key:     &StringLiteral{SpanVal: keyTok.Pos.span(keyTok.End), Value: key},
			}

		case TokenLBracket:
			p.nextToken()
			key := p.ParseExpression()
			if key == nil || !p.expect(TokenRBracket) {
				return nil
			}
			e = &IndexExpr{SpanVal: p.spanFrom(start), Object: e, Key: key}

		case TokenColon:
			p.nextToken()
			method := p.expectName()
			args, ok := p.parseArgs()
			if !ok {
				return nil
			}
			e = &CallExpr{SpanVal: p.spanFrom(start), Func: e, Method: method, Args: args}

		case TokenLParen, TokenString, TokenLBrace:
			args, ok := p.parseArgs()
			if !ok {
				return nil
			}
			e = &CallExpr{SpanVal: p.spanFrom(start), Func: e, Args: args}

		default:
			return e
		}
	}
	return nil
}

// parseArgs parses call arguments: '(' [exprlist] ')', a table
// constructor, or a string literal.
func (p *Parser) parseArgs() ([]Expr, bool) {
	tok := p.curToken
	switch tok.Type {
	case TokenString:
		p.nextToken()
		return []Expr{&StringLiteral{SpanVal: tok.Pos.span(tok.End), Value: tok.Literal}}, true

	case TokenLBrace:
		t := p.parseTable()
		if t == nil {
			return nil, false
		}
		return []Expr{t}, true

	case TokenLParen:
		p.nextToken()
		var args []Expr
		if !p.curTokenIs(TokenRParen) {
			args = p.parseExprList()
			if args == nil {
				return nil, false
			}
		}
		return args, p.expectMatch(TokenRParen, TokenLParen, tok.Pos.Line)
	}

	p.errorf("function arguments expected near %s", p.near())
	return nil, false
}

// parseTable parses a table constructor.
func (p *Parser) parseTable() *TableExpr {
	start := p.curToken.Pos
	p.nextToken() // {

	var fields []TableField
	for !p.curTokenIs(TokenRBrace) && p.err == nil {
		switch {
		case p.curTokenIs(TokenLBracket):
			p.nextToken()
			key := p.ParseExpression()
			p.expect(TokenRBracket)
			p.expect(TokenAssign)
			value := p.ParseExpression()
			fields = append(fields, TableField{Key: key, Value: value})

		case p.curTokenIs(TokenName) && p.peekTokenIs(TokenAssign):
			keyTok := p.curToken
			p.nextToken()
			p.nextToken()
			value := p.ParseExpression()
			fields = append(fields, TableField{
				Key:   &StringLiteral{SpanVal: keyTok.Pos.span(keyTok.End), Value: keyTok.Literal},
				Value: value,
			})

		default:
			fields = append(fields, TableField{Value: p.ParseExpression()})
		}

		if !p.curTokenIs(TokenComma) && !p.curTokenIs(TokenSemi) {
			break
		}
		p.nextToken()
	}

	if !p.expectMatch(TokenRBrace, TokenLBrace, start.Line) || p.err != nil {
		return nil
	}
	return &TableExpr{SpanVal: p.spanFrom(start), Fields: fields}
}

// parseFuncBody parses '(' params ')' block 'end'. Methods get an implicit
// 'self' parameter.
func (p *Parser) parseFuncBody(start Position, isMethod bool) *FunctionExpr {
	fn := &FunctionExpr{}
	if isMethod {
		fn.Params = append(fn.Params, "self")
	}

	p.expect(TokenLParen)
	if !p.curTokenIs(TokenRParen) {
		for p.err == nil {
			if p.curTokenIs(TokenDots) {
				fn.IsVararg = true
				p.nextToken()
				break
			}
			fn.Params = append(fn.Params, p.expectName())
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	p.expect(TokenRParen)

	p.vararg = append(p.vararg, fn.IsVararg)
	fn.Body = p.parseBlock()
	p.vararg = p.vararg[:len(p.vararg)-1]

	if !p.expectMatch(TokenEnd, TokenFunction, start.Line) || p.err != nil {
		return nil
	}
	fn.SpanVal = p.spanFrom(start)
	return fn
}

// span makes a span from pos to end.
func (pos Position) span(end Position) Span {
	return MakeSpan(pos, end)
}
