package compiler

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: recursive-descent, precedence-climbing parser for the documented
// Python subset. Unlike the teacher's two-token-lookahead Smalltalk parser
// (message sends need only one token of lookahead to disambiguate unary
// from binary/keyword sends), Python's grammar needs occasional deeper
// peeks (`is not`, `not in`, keyword-vs-positional call arguments), so
// Parser leans on Lexer's flat token buffer via PeekToken rather than
// threading a second pre-fetched token through every call site.
// ---------------------------------------------------------------------------

type Parser struct {
	lx  *Lexer
	cur Token
}

// NewParser returns a parser positioned at the first token of src.
func NewParser(src string) (*Parser, error) {
	lx, err := NewLexer(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{lx: lx}
	p.cur = p.lx.NextToken()
	return p, nil
}

// ParseModule parses a complete compilation unit.
func ParseModule(src string) (*Module, error) {
	p, err := NewParser(src)
	if err != nil {
		return nil, err
	}
	return p.parseModule()
}

func (p *Parser) advance() Token {
	t := p.cur
	p.cur = p.lx.NextToken()
	return t
}

func (p *Parser) peek(ahead int) Token { return p.lx.PeekToken(ahead) }

func (p *Parser) at(tt TokenType) bool { return p.cur.Type == tt }

func (p *Parser) accept(tt TokenType) (Token, bool) {
	if p.at(tt) {
		return p.advance(), true
	}
	return Token{}, false
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	if p.at(tt) {
		return p.advance(), nil
	}
	return Token{}, p.errf("expected %s, found %s", tt, p.cur)
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", p.cur.Span.Start.Line, fmt.Sprintf(format, args...))
}

// atExprEnd reports whether cur cannot start another expression, used to
// recognize bare `return`/`yield`/empty-slice-bound forms.
func (p *Parser) atExprEnd() bool {
	switch p.cur.Type {
	case TokNewline, TokEOF, TokRParen, TokRBracket, TokRBrace, TokSemicolon, TokColon:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Module / statements
// ---------------------------------------------------------------------------

func (p *Parser) parseModule() (*Module, error) {
	start := p.cur.Span.Start
	var body []Stmt
	for !p.at(TokEOF) {
		if _, ok := p.accept(TokNewline); ok {
			continue
		}
		stmts, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	return &Module{SpanVal: MakeSpan(start, p.cur.Span.End), Body: body}, nil
}

func single(s Stmt, err error) ([]Stmt, error) {
	if err != nil {
		return nil, err
	}
	return []Stmt{s}, nil
}

func (p *Parser) parseStatement() ([]Stmt, error) {
	switch p.cur.Type {
	case TokIf:
		return single(p.parseIf())
	case TokWhile:
		return single(p.parseWhile())
	case TokFor:
		return single(p.parseFor())
	case TokDef:
		return single(p.parseFunctionDef(false))
	case TokAsync:
		p.advance()
		if _, err := p.expect(TokDef); err != nil {
			return nil, err
		}
		return single(p.parseFunctionDef(true))
	case TokClass:
		return single(p.parseClassDef())
	case TokTry:
		return single(p.parseTry())
	case TokWith:
		return single(p.parseWith())
	default:
		return p.parseSimpleStmtLine()
	}
}

// parseSuite parses either an indented block (after NEWLINE INDENT) or a
// same-line simple statement list, matching Python's compound-statement
// grammar where `if x: y` is legal without a block.
func (p *Parser) parseSuite() ([]Stmt, error) {
	if _, ok := p.accept(TokNewline); ok {
		if _, err := p.expect(TokIndent); err != nil {
			return nil, err
		}
		var body []Stmt
		for !p.at(TokDedent) && !p.at(TokEOF) {
			if _, ok := p.accept(TokNewline); ok {
				continue
			}
			stmts, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
		}
		if _, err := p.expect(TokDedent); err != nil {
			return nil, err
		}
		return body, nil
	}
	return p.parseSimpleStmtLine()
}

func (p *Parser) parseSimpleStmtLine() ([]Stmt, error) {
	var stmts []Stmt
	for {
		st, err := p.parseSmallStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
		if _, ok := p.accept(TokSemicolon); ok {
			if p.at(TokNewline) || p.at(TokEOF) {
				break
			}
			continue
		}
		break
	}
	if _, ok := p.accept(TokNewline); !ok && !p.at(TokEOF) {
		return nil, p.errf("expected newline, found %s", p.cur)
	}
	return stmts, nil
}

func (p *Parser) parseSmallStmt() (Stmt, error) {
	switch p.cur.Type {
	case TokPass:
		t := p.advance()
		return &Pass{SpanVal: t.Span}, nil
	case TokBreak:
		t := p.advance()
		return &Break{SpanVal: t.Span}, nil
	case TokContinue:
		t := p.advance()
		return &Continue{SpanVal: t.Span}, nil
	case TokReturn:
		return p.parseReturn()
	case TokRaise:
		return p.parseRaise()
	case TokGlobal:
		return p.parseGlobal()
	case TokNonlocal:
		return p.parseNonlocal()
	case TokDel:
		return p.parseDelete()
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *Parser) parseReturn() (Stmt, error) {
	start := p.advance().Span.Start
	if p.atExprEnd() {
		return &Return{SpanVal: MakeSpan(start, start)}, nil
	}
	val, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return &Return{SpanVal: MakeSpan(start, val.Span().End), Value: val}, nil
}

func (p *Parser) parseRaise() (Stmt, error) {
	start := p.advance().Span.Start
	if p.atExprEnd() {
		return &Raise{SpanVal: MakeSpan(start, start)}, nil
	}
	exc, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	end := exc.Span().End
	var cause Expr
	if _, ok := p.accept(TokFrom); ok {
		cause, err = p.parseTest()
		if err != nil {
			return nil, err
		}
		end = cause.Span().End
	}
	return &Raise{SpanVal: MakeSpan(start, end), Exc: exc, Cause: cause}, nil
}

func (p *Parser) parseNameList() ([]string, Span, error) {
	start := p.cur.Span.Start
	var names []string
	for {
		tok, err := p.expect(TokName)
		if err != nil {
			return nil, Span{}, err
		}
		names = append(names, tok.Literal)
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		break
	}
	return names, MakeSpan(start, p.cur.Span.Start), nil
}

func (p *Parser) parseGlobal() (Stmt, error) {
	start := p.advance().Span.Start
	names, _, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	return &Global{SpanVal: MakeSpan(start, p.cur.Span.Start), Names: names}, nil
}

func (p *Parser) parseNonlocal() (Stmt, error) {
	start := p.advance().Span.Start
	names, _, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	return &Nonlocal{SpanVal: MakeSpan(start, p.cur.Span.Start), Names: names}, nil
}

func (p *Parser) parseDelete() (Stmt, error) {
	start := p.advance().Span.Start
	e, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return &Delete{SpanVal: MakeSpan(start, e.Span().End), Targets: flattenTuple(e)}, nil
}

func flattenTuple(e Expr) []Expr {
	if t, ok := e.(*TupleExpr); ok {
		return t.Elts
	}
	return []Expr{e}
}

var augAssignOps = map[TokenType]string{
	TokPlusEq: "+", TokMinusEq: "-", TokStarEq: "*", TokSlashEq: "/",
	TokDoubleSlashEq: "//", TokPercentEq: "%", TokDoubleStarEq: "**",
	TokAmpEq: "&", TokPipeEq: "|", TokCaretEq: "^", TokLShiftEq: "<<", TokRShiftEq: ">>",
}

func (p *Parser) parseExprOrAssignStmt() (Stmt, error) {
	start := p.cur.Span.Start
	first, err := p.parseExprOrYield()
	if err != nil {
		return nil, err
	}
	if op, ok := augAssignOps[p.cur.Type]; ok {
		p.advance()
		val, err := p.parseExprOrYield()
		if err != nil {
			return nil, err
		}
		return &AugAssign{SpanVal: MakeSpan(start, val.Span().End), Target: first, Op: op, Value: val}, nil
	}
	if p.at(TokAssign) {
		targets := []Expr{first}
		for {
			p.advance()
			val, err := p.parseExprOrYield()
			if err != nil {
				return nil, err
			}
			if p.at(TokAssign) {
				targets = append(targets, val)
				continue
			}
			return &Assign{SpanVal: MakeSpan(start, val.Span().End), Targets: targets, Value: val}, nil
		}
	}
	return &ExprStmt{SpanVal: MakeSpan(start, first.Span().End), Value: first}, nil
}

// ---------------------------------------------------------------------------
// Compound statements
// ---------------------------------------------------------------------------

func (p *Parser) parseIf() (Stmt, error) {
	start := p.advance().Span.Start
	return p.parseIfRest(start)
}

func (p *Parser) parseIfRest(start Position) (Stmt, error) {
	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	var orelse []Stmt
	if p.at(TokElif) {
		elifStart := p.advance().Span.Start
		inner, err := p.parseIfRest(elifStart)
		if err != nil {
			return nil, err
		}
		orelse = []Stmt{inner}
	} else if _, ok := p.accept(TokElse); ok {
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		orelse, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	end := lastEnd(orelse, lastEnd(body, start))
	return &If{SpanVal: MakeSpan(start, end), Test: test, Body: body, Orelse: orelse}, nil
}

func lastEnd(stmts []Stmt, fallback Position) Position {
	if len(stmts) == 0 {
		return fallback
	}
	return stmts[len(stmts)-1].Span().End
}

func (p *Parser) parseWhile() (Stmt, error) {
	start := p.advance().Span.Start
	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	var orelse []Stmt
	if _, ok := p.accept(TokElse); ok {
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		orelse, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	return &While{SpanVal: MakeSpan(start, lastEnd(orelse, lastEnd(body, start))), Test: test, Body: body, Orelse: orelse}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	start := p.advance().Span.Start
	tstart := p.cur.Span.Start
	var elts []Expr
	for {
		e, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
		if _, ok := p.accept(TokComma); !ok || p.at(TokIn) {
			break
		}
	}
	var target Expr = elts[0]
	if len(elts) > 1 {
		target = &TupleExpr{SpanVal: MakeSpan(tstart, elts[len(elts)-1].Span().End), Elts: elts}
	}
	if _, err := p.expect(TokIn); err != nil {
		return nil, err
	}
	iter, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	var orelse []Stmt
	if _, ok := p.accept(TokElse); ok {
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		orelse, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	return &For{SpanVal: MakeSpan(start, lastEnd(orelse, lastEnd(body, start))), Target: target, Iter: iter, Body: body, Orelse: orelse}, nil
}

func (p *Parser) parseWith() (Stmt, error) {
	start := p.advance().Span.Start
	var items []WithItem
	for {
		ctx, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		name := ""
		if _, ok := p.accept(TokAs); ok {
			tok, err := p.expect(TokName)
			if err != nil {
				return nil, err
			}
			name = tok.Literal
		}
		items = append(items, WithItem{Context: ctx, Optional: name})
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		break
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &With{SpanVal: MakeSpan(start, lastEnd(body, start)), Items: items, Body: body}, nil
}

func (p *Parser) parseTry() (Stmt, error) {
	start := p.advance().Span.Start
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	var handlers []ExceptHandler
	for p.at(TokExcept) {
		hStart := p.advance().Span.Start
		var typ Expr
		name := ""
		if !p.at(TokColon) {
			typ, err = p.parseTest()
			if err != nil {
				return nil, err
			}
			if _, ok := p.accept(TokAs); ok {
				tok, err := p.expect(TokName)
				if err != nil {
					return nil, err
				}
				name = tok.Literal
			}
		}
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		hbody, err := p.parseSuite()
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, ExceptHandler{SpanVal: MakeSpan(hStart, lastEnd(hbody, hStart)), Type: typ, Name: name, Body: hbody})
	}
	var orelse, finalbody []Stmt
	if _, ok := p.accept(TokElse); ok {
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		orelse, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	if _, ok := p.accept(TokFinally); ok {
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		finalbody, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	end := lastEnd(finalbody, lastEnd(orelse, lastEnd(body, start)))
	if len(handlers) > 0 {
		end = lastEnd(handlers[len(handlers)-1].Body, end)
	}
	return &Try{SpanVal: MakeSpan(start, end), Body: body, Handlers: handlers, Orelse: orelse, Finalbody: finalbody}, nil
}

func (p *Parser) parseParamList() (*Arguments, error) {
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	args := &Arguments{}
	for !p.at(TokRParen) {
		switch {
		case p.at(TokDoubleStar):
			p.advance()
			tok, err := p.expect(TokName)
			if err != nil {
				return nil, err
			}
			args.Kwarg = tok.Literal
		case p.at(TokStar):
			p.advance()
			if p.at(TokName) {
				tok, err := p.expect(TokName)
				if err != nil {
					return nil, err
				}
				args.Vararg = tok.Literal
			}
		default:
			tok, err := p.expect(TokName)
			if err != nil {
				return nil, err
			}
			args.Args = append(args.Args, tok.Literal)
			if _, ok := p.accept(TokAssign); ok {
				def, err := p.parseTest()
				if err != nil {
					return nil, err
				}
				args.Defaults = append(args.Defaults, def)
			} else if len(args.Defaults) > 0 {
				return nil, p.errf("non-default argument follows default argument")
			}
		}
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseFunctionDef(isAsync bool) (Stmt, error) {
	start := p.advance().Span.Start // 'def'
	nameTok, err := p.expect(TokName)
	if err != nil {
		return nil, err
	}
	args, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &FunctionDef{
		SpanVal: MakeSpan(start, lastEnd(body, start)), Name: nameTok.Literal, Args: args, Body: body,
		IsGenerator: containsYield(body), IsCoroutine: isAsync,
	}, nil
}

func (p *Parser) parseClassDef() (Stmt, error) {
	start := p.advance().Span.Start
	nameTok, err := p.expect(TokName)
	if err != nil {
		return nil, err
	}
	var bases []Expr
	if _, ok := p.accept(TokLParen); ok {
		for !p.at(TokRParen) {
			b, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			bases = append(bases, b)
			if _, ok := p.accept(TokComma); ok {
				continue
			}
			break
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ClassDef{SpanVal: MakeSpan(start, lastEnd(body, start)), Name: nameTok.Literal, Bases: bases, Body: body}, nil
}

// containsYield reports whether stmts contains a `yield`/`yield from` not
// nested inside another function/class/lambda body, which is what makes
// the enclosing def a generator.
func containsYield(stmts []Stmt) bool {
	found := false
	var walkStmts func([]Stmt)
	var walkExpr func(Expr)
	walkExpr = func(e Expr) {
		if found || e == nil {
			return
		}
		switch n := e.(type) {
		case *Yield, *YieldFrom:
			found = true
		case *BinOp:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *UnaryOp:
			walkExpr(n.Operand)
		case *BoolOp:
			for _, v := range n.Values {
				walkExpr(v)
			}
		case *Compare:
			walkExpr(n.Left)
			for _, c := range n.Comparators {
				walkExpr(c)
			}
		case *Call:
			walkExpr(n.Func)
			for _, a := range n.Args {
				walkExpr(a)
			}
			for _, kw := range n.Keywords {
				walkExpr(kw.Value)
			}
		case *Attribute:
			walkExpr(n.Value)
		case *Subscript:
			walkExpr(n.Value)
			walkExpr(n.Index)
		case *IfExp:
			walkExpr(n.Test)
			walkExpr(n.Body)
			walkExpr(n.Orelse)
		case *TupleExpr:
			for _, el := range n.Elts {
				walkExpr(el)
			}
		case *ListExpr:
			for _, el := range n.Elts {
				walkExpr(el)
			}
		case *SetExpr:
			for _, el := range n.Elts {
				walkExpr(el)
			}
		case *DictExpr:
			for i, k := range n.Keys {
				walkExpr(k)
				walkExpr(n.Values[i])
			}
		case *Starred:
			walkExpr(n.Value)
		case *Await:
			walkExpr(n.Value)
		}
	}
	walkStmts = func(stmts []Stmt) {
		for _, st := range stmts {
			if found {
				return
			}
			switch n := st.(type) {
			case *ExprStmt:
				walkExpr(n.Value)
			case *Assign:
				walkExpr(n.Value)
			case *AugAssign:
				walkExpr(n.Value)
			case *Return:
				walkExpr(n.Value)
			case *If:
				walkExpr(n.Test)
				walkStmts(n.Body)
				walkStmts(n.Orelse)
			case *While:
				walkExpr(n.Test)
				walkStmts(n.Body)
				walkStmts(n.Orelse)
			case *For:
				walkExpr(n.Iter)
				walkStmts(n.Body)
				walkStmts(n.Orelse)
			case *Try:
				walkStmts(n.Body)
				for _, h := range n.Handlers {
					walkStmts(h.Body)
				}
				walkStmts(n.Orelse)
				walkStmts(n.Finalbody)
			case *With:
				for _, it := range n.Items {
					walkExpr(it.Context)
				}
				walkStmts(n.Body)
				// FunctionDef, ClassDef, Lambda introduce a new scope: not walked.
			}
		}
	}
	walkStmts(stmts)
	return found
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExprOrYield is the entry point used wherever a yield expression is
// syntactically permitted: assignment RHS, return values, expr-statements.
func (p *Parser) parseExprOrYield() (Expr, error) {
	if p.at(TokYield) {
		return p.parseYield()
	}
	return p.parseExprList()
}

func (p *Parser) parseYield() (Expr, error) {
	start := p.advance().Span.Start
	if _, ok := p.accept(TokFrom); ok {
		val, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &YieldFrom{SpanVal: MakeSpan(start, val.Span().End), Value: val}, nil
	}
	if p.atExprEnd() {
		return &Yield{SpanVal: MakeSpan(start, start)}, nil
	}
	val, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return &Yield{SpanVal: MakeSpan(start, val.Span().End), Value: val}, nil
}

// parseExprList parses one or more comma-separated tests, collapsing to a
// bare Expr when there is exactly one and no trailing comma, else wrapping
// in a TupleExpr (covers both tuple display and unparenthesized unpacking).
func (p *Parser) parseExprList() (Expr, error) {
	start := p.cur.Span.Start
	first, err := p.parseTestOrStar()
	if err != nil {
		return nil, err
	}
	if !p.at(TokComma) {
		return first, nil
	}
	elts := []Expr{first}
	for {
		if _, ok := p.accept(TokComma); ok {
			if p.atExprEnd() {
				break
			}
			e, err := p.parseTestOrStar()
			if err != nil {
				return nil, err
			}
			elts = append(elts, e)
			continue
		}
		break
	}
	return &TupleExpr{SpanVal: MakeSpan(start, elts[len(elts)-1].Span().End), Elts: elts}, nil
}

func (p *Parser) parseTestOrStar() (Expr, error) {
	if p.at(TokStar) {
		start := p.advance().Span.Start
		val, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &Starred{SpanVal: MakeSpan(start, val.Span().End), Value: val}, nil
	}
	return p.parseTest()
}

func (p *Parser) parseTest() (Expr, error) {
	if p.at(TokLambda) {
		return p.parseLambda()
	}
	body, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept(TokIf); ok {
		test, err := p.parseOrTest()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokElse); err != nil {
			return nil, err
		}
		orelse, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &IfExp{SpanVal: MakeSpan(body.Span().Start, orelse.Span().End), Test: test, Body: body, Orelse: orelse}, nil
	}
	return body, nil
}

func (p *Parser) parseLambdaArgs() (*Arguments, error) {
	args := &Arguments{}
	for !p.at(TokColon) {
		switch {
		case p.at(TokDoubleStar):
			p.advance()
			tok, err := p.expect(TokName)
			if err != nil {
				return nil, err
			}
			args.Kwarg = tok.Literal
		case p.at(TokStar):
			p.advance()
			if p.at(TokName) {
				tok, err := p.expect(TokName)
				if err != nil {
					return nil, err
				}
				args.Vararg = tok.Literal
			}
		default:
			tok, err := p.expect(TokName)
			if err != nil {
				return nil, err
			}
			args.Args = append(args.Args, tok.Literal)
			if _, ok := p.accept(TokAssign); ok {
				def, err := p.parseTest()
				if err != nil {
					return nil, err
				}
				args.Defaults = append(args.Defaults, def)
			}
		}
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		break
	}
	return args, nil
}

func (p *Parser) parseLambda() (Expr, error) {
	start := p.advance().Span.Start
	args, err := p.parseLambdaArgs()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	body, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &Lambda{SpanVal: MakeSpan(start, body.Span().End), Args: args, Body: body}, nil
}

func (p *Parser) parseOrTest() (Expr, error) {
	left, err := p.parseAndTest()
	if err != nil {
		return nil, err
	}
	if !p.at(TokOr) {
		return left, nil
	}
	values := []Expr{left}
	for {
		if _, ok := p.accept(TokOr); ok {
			v, err := p.parseAndTest()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			continue
		}
		break
	}
	return &BoolOp{SpanVal: MakeSpan(left.Span().Start, values[len(values)-1].Span().End), Op: "or", Values: values}, nil
}

func (p *Parser) parseAndTest() (Expr, error) {
	left, err := p.parseNotTest()
	if err != nil {
		return nil, err
	}
	if !p.at(TokAnd) {
		return left, nil
	}
	values := []Expr{left}
	for {
		if _, ok := p.accept(TokAnd); ok {
			v, err := p.parseNotTest()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			continue
		}
		break
	}
	return &BoolOp{SpanVal: MakeSpan(left.Span().Start, values[len(values)-1].Span().End), Op: "and", Values: values}, nil
}

func (p *Parser) parseNotTest() (Expr, error) {
	if p.at(TokNot) {
		start := p.advance().Span.Start
		operand, err := p.parseNotTest()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{SpanVal: MakeSpan(start, operand.Span().End), Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) compareOpSymbol() (string, bool) {
	switch p.cur.Type {
	case TokLt:
		p.advance()
		return "<", true
	case TokGt:
		p.advance()
		return ">", true
	case TokLe:
		p.advance()
		return "<=", true
	case TokGe:
		p.advance()
		return ">=", true
	case TokEq:
		p.advance()
		return "==", true
	case TokNe:
		p.advance()
		return "!=", true
	case TokIn:
		p.advance()
		return "in", true
	case TokIs:
		p.advance()
		if _, ok := p.accept(TokNot); ok {
			return "is not", true
		}
		return "is", true
	case TokNot:
		if p.peek(0).Type == TokIn {
			p.advance()
			p.advance()
			return "not in", true
		}
		return "", false
	}
	return "", false
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comps []Expr
	for {
		op, ok := p.compareOpSymbol()
		if !ok {
			break
		}
		right, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comps = append(comps, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &Compare{SpanVal: MakeSpan(left.Span().Start, comps[len(comps)-1].Span().End), Left: left, Ops: ops, Comparators: comps}, nil
}

func (p *Parser) parseBinLevel(next func(*Parser) (Expr, error), ops map[TokenType]string) (Expr, error) {
	left, err := next(p)
	if err != nil {
		return nil, err
	}
	for {
		sym, ok := ops[p.cur.Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next(p)
		if err != nil {
			return nil, err
		}
		left = &BinOp{SpanVal: MakeSpan(left.Span().Start, right.Span().End), Op: sym, Left: left, Right: right}
	}
}

func (p *Parser) parseBitOr() (Expr, error) {
	return p.parseBinLevel((*Parser).parseBitXor, map[TokenType]string{TokPipe: "|"})
}
func (p *Parser) parseBitXor() (Expr, error) {
	return p.parseBinLevel((*Parser).parseBitAnd, map[TokenType]string{TokCaret: "^"})
}
func (p *Parser) parseBitAnd() (Expr, error) {
	return p.parseBinLevel((*Parser).parseShift, map[TokenType]string{TokAmp: "&"})
}
func (p *Parser) parseShift() (Expr, error) {
	return p.parseBinLevel((*Parser).parseArith, map[TokenType]string{TokLShift: "<<", TokRShift: ">>"})
}
func (p *Parser) parseArith() (Expr, error) {
	return p.parseBinLevel((*Parser).parseTerm, map[TokenType]string{TokPlus: "+", TokMinus: "-"})
}
func (p *Parser) parseTerm() (Expr, error) {
	return p.parseBinLevel((*Parser).parseFactor, map[TokenType]string{
		TokStar: "*", TokSlash: "/", TokDoubleSlash: "//", TokPercent: "%", TokAt: "@",
	})
}

var unaryOpSymbol = map[TokenType]string{TokPlus: "+", TokMinus: "-", TokTilde: "~"}

func (p *Parser) parseFactor() (Expr, error) {
	if sym, ok := unaryOpSymbol[p.cur.Type]; ok {
		start := p.advance().Span.Start
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{SpanVal: MakeSpan(start, operand.Span().End), Op: sym, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (Expr, error) {
	left, err := p.parseAwaitOrTrailer()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept(TokDoubleStar); ok {
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &BinOp{SpanVal: MakeSpan(left.Span().Start, right.Span().End), Op: "**", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseAwaitOrTrailer() (Expr, error) {
	if p.at(TokAwait) {
		start := p.advance().Span.Start
		val, err := p.parseAtomTrailer()
		if err != nil {
			return nil, err
		}
		return &Await{SpanVal: MakeSpan(start, val.Span().End), Value: val}, nil
	}
	return p.parseAtomTrailer()
}

func (p *Parser) parseAtomTrailer() (Expr, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Type {
		case TokDot:
			p.advance()
			tok, err := p.expect(TokName)
			if err != nil {
				return nil, err
			}
			atom = &Attribute{SpanVal: MakeSpan(atom.Span().Start, tok.Span.End), Value: atom, Attr: tok.Literal}
		case TokLParen:
			atom, err = p.parseCallTrailer(atom)
			if err != nil {
				return nil, err
			}
		case TokLBracket:
			atom, err = p.parseSubscriptTrailer(atom)
			if err != nil {
				return nil, err
			}
		default:
			return atom, nil
		}
	}
}

func (p *Parser) parseCallTrailer(fn Expr) (Expr, error) {
	p.advance() // '('
	call := &Call{Func: fn}
	for !p.at(TokRParen) {
		switch {
		case p.at(TokDoubleStar):
			p.advance()
			e, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			call.KwArg = e
		case p.at(TokStar):
			p.advance()
			e, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			call.StarArg = e
		case p.at(TokName) && p.peek(0).Type == TokAssign:
			nameTok := p.advance()
			p.advance() // '='
			val, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, Keyword{Arg: nameTok.Literal, Value: val})
		default:
			e, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, e)
		}
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		break
	}
	end, err := p.expect(TokRParen)
	if err != nil {
		return nil, err
	}
	call.SpanVal = MakeSpan(fn.Span().Start, end.Span.End)
	return call, nil
}

func (p *Parser) parseSubscriptTrailer(target Expr) (Expr, error) {
	p.advance() // '['
	idx, err := p.parseSliceItem()
	if err != nil {
		return nil, err
	}
	if p.at(TokComma) {
		elts := []Expr{idx}
		for {
			if _, ok := p.accept(TokComma); ok {
				if p.at(TokRBracket) {
					break
				}
				e, err := p.parseSliceItem()
				if err != nil {
					return nil, err
				}
				elts = append(elts, e)
				continue
			}
			break
		}
		idx = &TupleExpr{SpanVal: MakeSpan(elts[0].Span().Start, elts[len(elts)-1].Span().End), Elts: elts}
	}
	end, err := p.expect(TokRBracket)
	if err != nil {
		return nil, err
	}
	return &Subscript{SpanVal: MakeSpan(target.Span().Start, end.Span.End), Value: target, Index: idx}, nil
}

// parseSliceItem parses one element of a (possibly multi-dimensional)
// subscript: a plain test or a `lower:upper:step` slice.
func (p *Parser) parseSliceItem() (Expr, error) {
	start := p.cur.Span.Start
	var lower, upper, step Expr
	var err error
	if !p.at(TokColon) {
		lower, err = p.parseTest()
		if err != nil {
			return nil, err
		}
	}
	if !p.at(TokColon) {
		return lower, nil
	}
	p.advance()
	if !p.at(TokColon) && !p.at(TokRBracket) && !p.at(TokComma) {
		upper, err = p.parseTest()
		if err != nil {
			return nil, err
		}
	}
	if _, ok := p.accept(TokColon); ok {
		if !p.at(TokRBracket) && !p.at(TokComma) {
			step, err = p.parseTest()
			if err != nil {
				return nil, err
			}
		}
	}
	return &SliceExpr{SpanVal: MakeSpan(start, p.cur.Span.Start), Lower: lower, Upper: upper, Step: step}, nil
}

// ---------------------------------------------------------------------------
// Atoms
// ---------------------------------------------------------------------------

func (p *Parser) parseAtom() (Expr, error) {
	switch p.cur.Type {
	case TokName:
		t := p.advance()
		return &Name{SpanVal: t.Span, Id: t.Literal}, nil
	case TokInt, TokFloat, TokImaginary:
		return p.parseNumber()
	case TokString:
		t := p.advance()
		return &StrLiteral{SpanVal: t.Span, Value: t.Literal}, nil
	case TokBytes:
		t := p.advance()
		return &BytesLiteral{SpanVal: t.Span, Value: []byte(t.Literal)}, nil
	case TokTrue:
		t := p.advance()
		return &BoolLiteral{SpanVal: t.Span, Value: true}, nil
	case TokFalse:
		t := p.advance()
		return &BoolLiteral{SpanVal: t.Span, Value: false}, nil
	case TokNone:
		t := p.advance()
		return &NoneLiteral{SpanVal: t.Span}, nil
	case TokEllipsis:
		t := p.advance()
		return &EllipsisLiteral{SpanVal: t.Span}, nil
	case TokLParen:
		return p.parseParenAtom()
	case TokLBracket:
		return p.parseListAtom()
	case TokLBrace:
		return p.parseBraceAtom()
	}
	return nil, p.errf("unexpected token %s", p.cur)
}

func (p *Parser) parseNumber() (Expr, error) {
	t := p.advance()
	switch t.Type {
	case TokInt:
		v := new(big.Int)
		if _, ok := v.SetString(t.Literal, 10); !ok {
			return nil, p.errf("invalid integer literal %q", t.Literal)
		}
		return &NumLiteral{SpanVal: t.Span, Int: v}, nil
	case TokFloat:
		f, err := strconv.ParseFloat(t.Literal, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %q", t.Literal)
		}
		return &NumLiteral{SpanVal: t.Span, IsFloat: true, Float: f}, nil
	case TokImaginary:
		f, err := strconv.ParseFloat(strings.TrimSuffix(t.Literal, "j"), 64)
		if err != nil {
			return nil, p.errf("invalid imaginary literal %q", t.Literal)
		}
		return &NumLiteral{SpanVal: t.Span, IsImag: true, Float: f}, nil
	}
	return nil, p.errf("unreachable number token %s", t)
}

func (p *Parser) parseParenAtom() (Expr, error) {
	start := p.advance().Span.Start // '('
	if p.at(TokRParen) {
		end := p.advance().Span.End
		return &TupleExpr{SpanVal: MakeSpan(start, end)}, nil
	}
	if p.at(TokYield) {
		val, err := p.parseYield()
		if err != nil {
			return nil, err
		}
		end, err := p.expect(TokRParen)
		if err != nil {
			return nil, err
		}
		_ = end
		return val, nil
	}
	first, err := p.parseTestOrStar()
	if err != nil {
		return nil, err
	}
	if !p.at(TokComma) {
		end, err := p.expect(TokRParen)
		if err != nil {
			return nil, err
		}
		_ = end
		return first, nil
	}
	elts := []Expr{first}
	for {
		if _, ok := p.accept(TokComma); ok {
			if p.at(TokRParen) {
				break
			}
			e, err := p.parseTestOrStar()
			if err != nil {
				return nil, err
			}
			elts = append(elts, e)
			continue
		}
		break
	}
	end, err := p.expect(TokRParen)
	if err != nil {
		return nil, err
	}
	return &TupleExpr{SpanVal: MakeSpan(start, end.Span.End), Elts: elts}, nil
}

func (p *Parser) parseListAtom() (Expr, error) {
	start := p.advance().Span.Start // '['
	var elts []Expr
	for !p.at(TokRBracket) {
		e, err := p.parseTestOrStar()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		break
	}
	end, err := p.expect(TokRBracket)
	if err != nil {
		return nil, err
	}
	return &ListExpr{SpanVal: MakeSpan(start, end.Span.End), Elts: elts}, nil
}

// parseBraceAtom parses {}, a set display {a, b}, or a dict display
// {k: v, ...}; the empty form is always a dict, matching Python.
func (p *Parser) parseBraceAtom() (Expr, error) {
	start := p.advance().Span.Start // '{'
	if p.at(TokRBrace) {
		end := p.advance().Span.End
		return &DictExpr{SpanVal: MakeSpan(start, end)}, nil
	}
	if _, ok := p.accept(TokDoubleStar); ok {
		first, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return p.parseDictRest(start, nil, []Expr{first})
	}
	firstKeyOrElt, err := p.parseTestOrStar()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept(TokColon); ok {
		val, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return p.parseDictRest(start, []Expr{firstKeyOrElt}, []Expr{val})
	}
	return p.parseSetRest(start, firstKeyOrElt)
}

func (p *Parser) parseDictRest(start Position, keys, values []Expr) (Expr, error) {
	for {
		if _, ok := p.accept(TokComma); ok {
			if p.at(TokRBrace) {
				break
			}
			if _, ok := p.accept(TokDoubleStar); ok {
				v, err := p.parseTest()
				if err != nil {
					return nil, err
				}
				keys = append(keys, nil)
				values = append(values, v)
				continue
			}
			k, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokColon); err != nil {
				return nil, err
			}
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
			values = append(values, v)
			continue
		}
		break
	}
	end, err := p.expect(TokRBrace)
	if err != nil {
		return nil, err
	}
	return &DictExpr{SpanVal: MakeSpan(start, end.Span.End), Keys: keys, Values: values}, nil
}

func (p *Parser) parseSetRest(start Position, first Expr) (Expr, error) {
	elts := []Expr{first}
	for {
		if _, ok := p.accept(TokComma); ok {
			if p.at(TokRBrace) {
				break
			}
			e, err := p.parseTestOrStar()
			if err != nil {
				return nil, err
			}
			elts = append(elts, e)
			continue
		}
		break
	}
	end, err := p.expect(TokRBrace)
	if err != nil {
		return nil, err
	}
	return &SetExpr{SpanVal: MakeSpan(start, end.Span.End), Elts: elts}, nil
}
