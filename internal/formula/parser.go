package formula

import (
	"strconv"
)

// Parse converts formula source into an AST. The registry is used for
// parse-time arity checking of known function names; unknown names are
// deferred to evaluation so the library can be extended after parsing.
// A nil registry skips the arity check.
func Parse(source string, reg *Registry) (Expr, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, reg: reg}
	expr, perr := p.parseExpression()
	if perr != nil {
		return nil, perr
	}
	if p.current().Type != TokenEOF {
		tok := p.current()
		return nil, newError(CodeParse, Span{Start: tok.Pos, End: tok.Pos + len(tok.Value)}, "unexpected %q after expression", tok.Value)
	}
	return expr, nil
}

// Validate parses and discards the AST. It never evaluates.
func Validate(source string, reg *Registry) *Error {
	if _, err := Parse(source, reg); err != nil {
		if ferr, ok := err.(*Error); ok {
			return ferr
		}
		return &Error{Code: CodeParse, Message: err.Error()}
	}
	return nil
}

type parser struct {
	tokens []Token
	pos    int
	reg    *Registry
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// prevEnd is the byte offset just past the last consumed token.
func (p *parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	prev := p.tokens[p.pos-1]
	return prev.Pos + len(prev.Value)
}

func (p *parser) errHere(format string, args ...interface{}) *Error {
	tok := p.current()
	end := tok.Pos + len(tok.Value)
	if tok.Type == TokenEOF {
		end = tok.Pos
	}
	return newError(CodeParse, Span{Start: tok.Pos, End: end}, format, args...)
}

func (p *parser) parseExpression() (Expr, error) {
	// Keyword form: if <cond> then <a> else <b>. The function form
	// If(...) falls through to the call rule. `if (cond) then` is
	// ambiguous one token ahead, so the call reading is tried first and
	// the keyword form reparsed when a `then` follows it.
	if p.current().Type == TokenIf {
		if p.peek().Type != TokenLParen {
			return p.parseIf()
		}
		save := p.pos
		expr, err := p.parseOr()
		if err == nil && p.current().Type != TokenThen {
			return expr, nil
		}
		after := p.pos
		p.pos = save
		if ifExpr, ifErr := p.parseIf(); ifErr == nil {
			return ifExpr, nil
		}
		p.pos = after
		return expr, err
	}
	return p.parseOr()
}

func (p *parser) parseIf() (Expr, error) {
	start := p.advance().Pos // consume if
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenThen {
		return nil, p.errHere("expected 'then' in if expression")
	}
	p.advance()
	thenExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenElse {
		return nil, p.errHere("expected 'else' in if expression")
	}
	p.advance()
	elseExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &IfExpr{Cond: cond, Then: thenExpr, Else: elseExpr, span: Span{Start: start, End: p.prevEnd()}}, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right, span: Span{Start: left.Span().Start, End: p.prevEnd()}}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenAnd {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right, span: Span{Start: left.Span().Start, End: p.prevEnd()}}
	}
	return left, nil
}

func (p *parser) parseEquality() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.current().Type {
		case TokenEq:
			op = OpEq
		case TokenNe:
			op = OpNe
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, span: Span{Start: left.Span().Start, End: p.prevEnd()}}
	}
}

func comparisonOp(t TokenType) (BinaryOp, bool) {
	switch t {
	case TokenLt:
		return OpLt, true
	case TokenLe:
		return OpLe, true
	case TokenGt:
		return OpGt, true
	case TokenGe:
		return OpGe, true
	}
	return "", false
}

// parseComparison is non-associative: `a < b < c` is rejected with a
// pointer at the second operator.
func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOp(p.current().Type)
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, chained := comparisonOp(p.current().Type); chained {
		return nil, p.errHere("comparison operators cannot be chained; use And to combine conditions")
	}
	return &BinaryExpr{Op: op, Left: left, Right: right, span: Span{Start: left.Span().Start, End: p.prevEnd()}}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.current().Type {
		case TokenPlus:
			op = OpAdd
		case TokenMinus:
			op = OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, span: Span{Start: left.Span().Start, End: p.prevEnd()}}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.current().Type {
		case TokenMul:
			op = OpMul
		case TokenDiv:
			op = OpDiv
		case TokenMod:
			op = OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, span: Span{Start: left.Span().Start, End: p.prevEnd()}}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.current().Type {
	case TokenNot:
		// `Not(x)` is a call, `Not x` and `!x` are unary.
		if p.peek().Type == TokenLParen && p.current().Value != "!" {
			break
		}
		start := p.advance().Pos
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: UnaryNot, Operand: operand, span: Span{Start: start, End: p.prevEnd()}}, nil
	case TokenMinus:
		start := p.advance().Pos
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: UnaryNeg, Operand: operand, span: Span{Start: start, End: p.prevEnd()}}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current().Type {
		case TokenDot:
			p.advance()
			if p.current().Type != TokenIdent {
				return nil, p.errHere("expected field name after '.'")
			}
			field := p.advance()
			expr = &FieldExpr{Object: expr, Field: field.Value, span: Span{Start: expr.Span().Start, End: p.prevEnd()}}
		case TokenLBracket:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if p.current().Type != TokenRBracket {
				return nil, p.errHere("expected ']'")
			}
			p.advance()
			expr = &IndexExpr{Object: expr, Index: index, span: Span{Start: expr.Span().Start, End: p.prevEnd()}}
		default:
			return expr, nil
		}
	}
}

// callable reports whether a token in primary position can start a
// function call. The word operators double as function names (And(a,b)
// alongside a And b); If is both a keyword and a callable.
func callable(t Token) bool {
	switch t.Type {
	case TokenIdent, TokenIf, TokenAnd, TokenOr, TokenNot:
		return true
	}
	return false
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.current()
	switch tok.Type {
	case TokenNumber:
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, newError(CodeParse, Span{Start: tok.Pos, End: tok.Pos + len(tok.Value)}, "invalid number literal %q", tok.Value)
		}
		p.advance()
		return &LiteralExpr{Val: NumberValue{Val: val}, span: Span{Start: tok.Pos, End: p.prevEnd()}}, nil
	case TokenString:
		p.advance()
		return &LiteralExpr{Val: TextValue{Val: tok.Value}, span: Span{Start: tok.Pos, End: p.prevEnd()}}, nil
	case TokenTrue:
		p.advance()
		return &LiteralExpr{Val: BoolValue{Val: true}, span: Span{Start: tok.Pos, End: p.prevEnd()}}, nil
	case TokenFalse:
		p.advance()
		return &LiteralExpr{Val: BoolValue{Val: false}, span: Span{Start: tok.Pos, End: p.prevEnd()}}, nil
	case TokenNull:
		p.advance()
		return &LiteralExpr{Val: NullValue{}, span: Span{Start: tok.Pos, End: p.prevEnd()}}, nil
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TokenRParen {
			return nil, p.errHere("expected ')'")
		}
		p.advance()
		return expr, nil
	}

	if callable(tok) {
		p.advance()
		if p.current().Type == TokenLParen {
			return p.parseCall(tok)
		}
		if tok.Type != TokenIdent {
			return nil, newError(CodeParse, Span{Start: tok.Pos, End: tok.Pos + len(tok.Value)}, "unexpected keyword %q", tok.Value)
		}
		return &VarRefExpr{Name: tok.Value, span: Span{Start: tok.Pos, End: p.prevEnd()}}, nil
	}

	if tok.Type == TokenEOF {
		return nil, p.errHere("unexpected end of expression")
	}
	return nil, p.errHere("unexpected %q", tok.Value)
}

func (p *parser) parseCall(name Token) (Expr, error) {
	p.advance() // consume (
	var args []Expr
	for p.current().Type != TokenRParen {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		switch p.current().Type {
		case TokenComma:
			p.advance()
		case TokenRParen:
		default:
			return nil, p.errHere("expected ',' or ')' in argument list")
		}
	}
	p.advance() // consume )

	span := Span{Start: name.Pos, End: p.prevEnd()}
	if p.reg != nil {
		if d, ok := p.reg.Lookup(name.Value); ok {
			if err := d.CheckArity(len(args)); err != nil {
				return nil, newError(CodeArity, span, "%s", err.Error())
			}
		}
	}
	return &CallExpr{Name: name.Value, Args: args, span: span}, nil
}
