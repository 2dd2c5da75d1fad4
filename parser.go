package lua

import "fmt"

// Recursive-descent parser (§1: "conventional... specified here only
// at the shape the evaluator needs"). Operator precedence follows the
// Lua 5.4 manual's table exactly (and, or; comparisons; |; ~; &;
// shifts; ..; +/-; */, //, %; unary; ^), the same climbing-precedence
// structure the teacher's own recursive-descent parser.go used before
// it was narrowed to bytecode-emission duties.

type parser struct {
	lx   *lexer
	tok  token
	ahead *token
	src  string
}

func parseChunk(src, source string) (block *Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			if le, ok := r.(*LuaError); ok {
				err = le
				return
			}
			panic(r)
		}
	}()
	p := &parser{lx: newLexer(src, source), src: source}
	p.advance()
	b := p.parseBlock()
	p.expect(tkEOF, "<eof>")
	return b, nil
}

func (p *parser) advance() {
	if p.ahead != nil {
		p.tok = *p.ahead
		p.ahead = nil
		return
	}
	p.tok = p.lx.next()
}

func (p *parser) peekAhead() token {
	if p.ahead == nil {
		t := p.lx.next()
		p.ahead = &t
	}
	return *p.ahead
}

func (p *parser) errorf(format string, args ...interface{}) {
	panic(&LuaError{Value: fmt.Sprintf("%s:%d: %s", p.src, p.tok.line, fmt.Sprintf(format, args...))})
}

func (p *parser) expect(kind tokenKind, what string) token {
	if p.tok.kind != kind {
		p.errorf("'%s' expected", what)
	}
	t := p.tok
	p.advance()
	return t
}

func (p *parser) accept(kind tokenKind) bool {
	if p.tok.kind == kind {
		p.advance()
		return true
	}
	return false
}

// blockEnd reports whether the current token terminates a block.
func (p *parser) blockEnd() bool {
	switch p.tok.kind {
	case tkEOF, tkEnd, tkElse, tkElseif, tkUntil:
		return true
	}
	return false
}

func (p *parser) parseBlock() *Block {
	b := &Block{pos: pos{p.tok.line}}
	for !p.blockEnd() {
		if p.tok.kind == tkReturn {
			b.Stmts = append(b.Stmts, p.parseReturn())
			break
		}
		s := p.parseStatement()
		if s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	return b
}

func (p *parser) parseReturn() Stmt {
	line := p.tok.line
	p.advance() // return
	var exprs []Expr
	if !p.blockEnd() && p.tok.kind != tkSemi {
		exprs = p.parseExprList()
	}
	p.accept(tkSemi)
	return &ReturnStmt{pos: pos{line}, Exprs: exprs}
}

func (p *parser) parseStatement() Stmt {
	line := p.tok.line
	switch p.tok.kind {
	case tkSemi:
		p.advance()
		return nil
	case tkIf:
		return p.parseIf()
	case tkWhile:
		return p.parseWhile()
	case tkDo:
		p.advance()
		body := p.parseBlock()
		p.expect(tkEnd, "end")
		return &DoStmt{pos: pos{line}, Body: body}
	case tkFor:
		return p.parseFor()
	case tkRepeat:
		return p.parseRepeat()
	case tkFunction:
		return p.parseFunctionStmt()
	case tkLocal:
		return p.parseLocal()
	case tkDColon:
		p.advance()
		name := p.expect(tkName, "<name>").str
		p.expect(tkDColon, "::")
		return &LabelStmt{pos: pos{line}, Name: name}
	case tkBreak:
		p.advance()
		return &BreakStmt{pos: pos{line}}
	case tkGoto:
		p.advance()
		name := p.expect(tkName, "<name>").str
		return &GotoStmt{pos: pos{line}, Label: name}
	default:
		return p.parseExprStatement()
	}
}

func (p *parser) parseIf() Stmt {
	line := p.tok.line
	p.advance() // if
	cond := p.parseExpr()
	p.expect(tkThen, "then")
	then := p.parseBlock()
	stmt := &IfStmt{pos: pos{line}, Cond: cond, Then: then}
	switch p.tok.kind {
	case tkElseif:
		stmt.Else = p.parseElseIf()
		return stmt
	case tkElse:
		p.advance()
		elseBlock := p.parseBlock()
		p.expect(tkEnd, "end")
		stmt.Else = elseBlock
		return stmt
	default:
		p.expect(tkEnd, "end")
		return stmt
	}
}

// parseElseIf parses an "elseif" clause (the current token) and the
// rest of its chain as a nested IfStmt; the last clause of the chain
// consumes the whole if statement's closing "end", so parseIf does not
// expect one after calling it.
func (p *parser) parseElseIf() Stmt {
	line := p.tok.line
	p.advance() // elseif
	cond := p.parseExpr()
	p.expect(tkThen, "then")
	then := p.parseBlock()
	stmt := &IfStmt{pos: pos{line}, Cond: cond, Then: then}
	switch p.tok.kind {
	case tkElseif:
		stmt.Else = p.parseElseIf()
	case tkElse:
		p.advance()
		elseBlock := p.parseBlock()
		p.expect(tkEnd, "end")
		stmt.Else = elseBlock
	default:
		p.expect(tkEnd, "end")
	}
	return stmt
}

func (p *parser) parseWhile() Stmt {
	line := p.tok.line
	p.advance()
	cond := p.parseExpr()
	p.expect(tkDo, "do")
	body := p.parseBlock()
	p.expect(tkEnd, "end")
	return &WhileStmt{pos: pos{line}, Cond: cond, Body: body}
}

func (p *parser) parseRepeat() Stmt {
	line := p.tok.line
	p.advance()
	body := p.parseBlock()
	p.expect(tkUntil, "until")
	cond := p.parseExpr()
	return &RepeatStmt{pos: pos{line}, Body: body, Cond: cond}
}

func (p *parser) parseFor() Stmt {
	line := p.tok.line
	p.advance() // for
	name1 := p.expect(tkName, "<name>").str
	if p.tok.kind == tkAssign {
		p.advance()
		start := p.parseExpr()
		p.expect(tkComma, ",")
		limit := p.parseExpr()
		var step Expr
		if p.accept(tkComma) {
			step = p.parseExpr()
		}
		p.expect(tkDo, "do")
		body := p.parseBlock()
		p.expect(tkEnd, "end")
		return &NumericForStmt{pos: pos{line}, Var: name1, Start: start, Limit: limit, Step: step, Body: body}
	}
	names := []string{name1}
	for p.accept(tkComma) {
		names = append(names, p.expect(tkName, "<name>").str)
	}
	p.expect(tkIn, "in")
	exprs := p.parseExprList()
	p.expect(tkDo, "do")
	body := p.parseBlock()
	p.expect(tkEnd, "end")
	return &GenericForStmt{pos: pos{line}, Names: names, Exprs: exprs, Body: body}
}

func (p *parser) parseFunctionStmt() Stmt {
	line := p.tok.line
	p.advance() // function
	var target Expr = &IdentExpr{pos: pos{p.tok.line}, Name: p.expect(tkName, "<name>").str}
	name := target.(*IdentExpr).Name
	isMethod := false
	for p.tok.kind == tkDot || p.tok.kind == tkColon {
		isColon := p.tok.kind == tkColon
		p.advance()
		field := p.expect(tkName, "<name>").str
		name = name + "." + field
		target = &IndexExpr{pos: pos{p.tok.line}, Target: target, Key: &StringExpr{Value: field}}
		if isColon {
			isMethod = true
			break
		}
	}
	fn := p.parseFunctionBody(line, name, isMethod)
	return &FunctionDeclStmt{pos: pos{line}, Target: target, IsMethod: isMethod, Fn: fn}
}

func (p *parser) parseLocal() Stmt {
	line := p.tok.line
	p.advance() // local
	if p.tok.kind == tkFunction {
		p.advance()
		name := p.expect(tkName, "<name>").str
		fn := p.parseFunctionBody(line, name, false)
		return &LocalFunctionStmt{pos: pos{line}, Name: name, Fn: fn}
	}
	var names []string
	var attrs []Attribute
	names = append(names, p.expect(tkName, "<name>").str)
	attrs = append(attrs, p.parseAttrib())
	for p.accept(tkComma) {
		names = append(names, p.expect(tkName, "<name>").str)
		attrs = append(attrs, p.parseAttrib())
	}
	var exprs []Expr
	if p.accept(tkAssign) {
		exprs = p.parseExprList()
	}
	return &LocalStmt{pos: pos{line}, Names: names, Attributes: attrs, Exprs: exprs}
}

func (p *parser) parseAttrib() Attribute {
	if !p.accept(tkLt) {
		return AttrNone
	}
	name := p.expect(tkName, "<name>").str
	p.expect(tkGt, ">")
	switch name {
	case "const":
		return AttrConst
	case "close":
		return AttrClose
	}
	p.errorf("unknown attribute '%s'", name)
	return AttrNone
}

func (p *parser) parseExprStatement() Stmt {
	line := p.tok.line
	first := p.parseSuffixedExpr()
	if p.tok.kind == tkAssign || p.tok.kind == tkComma {
		targets := []Expr{first}
		for p.accept(tkComma) {
			targets = append(targets, p.parseSuffixedExpr())
		}
		p.expect(tkAssign, "=")
		exprs := p.parseExprList()
		for _, t := range targets {
			switch t.(type) {
			case *IdentExpr, *IndexExpr:
			default:
				p.errorf("syntax error (cannot assign)")
			}
		}
		return &AssignStmt{pos: pos{line}, Targets: targets, Exprs: exprs}
	}
	switch first.(type) {
	case *CallExpr, *MethodCallExpr:
		return &CallStmt{pos: pos{line}, Call: first}
	}
	p.errorf("syntax error (expression statement must be a call)")
	return nil
}

func (p *parser) parseExprList() []Expr {
	exprs := []Expr{p.parseExpr()}
	for p.accept(tkComma) {
		exprs = append(exprs, p.parseExpr())
	}
	return exprs
}

func (p *parser) parseFunctionBody(line int, name string, isMethod bool) *FunctionExpr {
	p.expect(tkLParen, "(")
	var params []string
	if isMethod {
		params = append(params, "self")
	}
	vararg := false
	if p.tok.kind != tkRParen {
		for {
			if p.tok.kind == tkDots {
				p.advance()
				vararg = true
				break
			}
			params = append(params, p.expect(tkName, "<name>").str)
			if !p.accept(tkComma) {
				break
			}
		}
	}
	p.expect(tkRParen, ")")
	body := p.parseBlock()
	p.expect(tkEnd, "end")
	return &FunctionExpr{pos: pos{line}, Params: params, IsVararg: vararg, Body: body, Name: name, Source: p.src}
}

// ---- Expression parsing: precedence climbing per the Lua manual ----

type binOpInfo struct{ left, right int }

var binPrec = map[tokenKind]binOpInfo{
	tkOr:      {1, 1},
	tkAnd:     {2, 2},
	tkLt:      {3, 3}, tkGt: {3, 3}, tkLe: {3, 3}, tkGe: {3, 3}, tkNe: {3, 3}, tkEq: {3, 3},
	tkPipe:    {4, 4},
	tkTilde:   {5, 5},
	tkAmp:     {6, 6},
	tkLtLt:    {7, 7}, tkGtGt: {7, 7},
	tkConcat:  {9, 8}, // right-associative
	tkPlus:    {10, 10}, tkMinus: {10, 10},
	tkStar:    {11, 11}, tkSlash: {11, 11}, tkDSlash: {11, 11}, tkPercent: {11, 11},
	tkCaret:   {14, 13}, // right-associative, binds tighter than unary
}

const unaryPrec = 12

var binOpSymbol = map[tokenKind]string{
	tkOr: "or", tkAnd: "and", tkLt: "<", tkGt: ">", tkLe: "<=", tkGe: ">=", tkNe: "~=", tkEq: "==",
	tkPipe: "|", tkTilde: "~", tkAmp: "&", tkLtLt: "<<", tkGtGt: ">>", tkConcat: "..",
	tkPlus: "+", tkMinus: "-", tkStar: "*", tkSlash: "/", tkDSlash: "//", tkPercent: "%", tkCaret: "^",
}

func (p *parser) parseExpr() Expr { return p.parseSubExpr(0) }

func (p *parser) parseSubExpr(limit int) Expr {
	var left Expr
	line := p.tok.line
	if isUnaryOp(p.tok.kind) {
		op := unaryOpSymbol(p.tok.kind)
		p.advance()
		operand := p.parseSubExpr(unaryPrec)
		left = &UnaryExpr{pos: pos{line}, Op: op, Operand: operand}
	} else {
		left = p.parseSimpleExpr()
	}
	for {
		info, ok := binPrec[p.tok.kind]
		if !ok || info.left <= limit {
			break
		}
		opLine := p.tok.line
		sym := binOpSymbol[p.tok.kind]
		p.advance()
		right := p.parseSubExpr(info.right)
		left = &BinaryExpr{pos: pos{opLine}, Op: sym, Left: left, Right: right}
	}
	return left
}

func isUnaryOp(k tokenKind) bool {
	switch k {
	case tkNot, tkMinus, tkHash, tkTilde:
		return true
	}
	return false
}

func unaryOpSymbol(k tokenKind) string {
	switch k {
	case tkNot:
		return "not"
	case tkMinus:
		return "-"
	case tkHash:
		return "#"
	case tkTilde:
		return "~"
	}
	return ""
}

func (p *parser) parseSimpleExpr() Expr {
	line := p.tok.line
	switch p.tok.kind {
	case tkNumber:
		v := p.tok.num
		p.advance()
		return &NumberExpr{pos: pos{line}, Value: v}
	case tkString:
		s := p.tok.str
		p.advance()
		return &StringExpr{pos: pos{line}, Value: s}
	case tkNil:
		p.advance()
		return &NilExpr{pos: pos{line}}
	case tkTrue:
		p.advance()
		return &TrueExpr{pos: pos{line}}
	case tkFalse:
		p.advance()
		return &FalseExpr{pos: pos{line}}
	case tkDots:
		p.advance()
		return &VarargExpr{pos: pos{line}}
	case tkFunction:
		p.advance()
		return p.parseFunctionBody(line, "", false)
	case tkLBrace:
		return p.parseTableConstructor()
	default:
		return p.parseSuffixedExpr()
	}
}

// parsePrimaryExpr handles a name or a parenthesized expression, the
// base of a suffixed-expression chain.
func (p *parser) parsePrimaryExpr() Expr {
	line := p.tok.line
	switch p.tok.kind {
	case tkName:
		name := p.tok.str
		p.advance()
		return &IdentExpr{pos: pos{line}, Name: name}
	case tkLParen:
		p.advance()
		inner := p.parseExpr()
		p.expect(tkRParen, ")")
		return &GroupedExpr{pos: pos{line}, Inner: inner}
	}
	p.errorf("unexpected symbol")
	return nil
}

// parseSuffixedExpr parses a primary expression followed by any chain
// of .name / [expr] / :name(args) / (args) / tablector / string-call
// suffixes (§4.5: calls and indexing share one left-recursive chain).
func (p *parser) parseSuffixedExpr() Expr {
	e := p.parsePrimaryExpr()
	for {
		line := p.tok.line
		switch p.tok.kind {
		case tkDot:
			p.advance()
			name := p.expect(tkName, "<name>").str
			e = &IndexExpr{pos: pos{line}, Target: e, Key: &StringExpr{Value: name}}
		case tkLBracket:
			p.advance()
			key := p.parseExpr()
			p.expect(tkRBracket, "]")
			e = &IndexExpr{pos: pos{line}, Target: e, Key: key}
		case tkColon:
			p.advance()
			method := p.expect(tkName, "<name>").str
			args := p.parseCallArgs()
			e = &MethodCallExpr{pos: pos{line}, Object: e, Method: method, Args: args}
		case tkLParen, tkString, tkLBrace:
			args := p.parseCallArgs()
			e = &CallExpr{pos: pos{line}, Fn: e, Args: args}
		default:
			return e
		}
	}
}

func (p *parser) parseCallArgs() []Expr {
	switch p.tok.kind {
	case tkString:
		s := p.tok.str
		line := p.tok.line
		p.advance()
		return []Expr{&StringExpr{pos: pos{line}, Value: s}}
	case tkLBrace:
		return []Expr{p.parseTableConstructor()}
	case tkLParen:
		p.advance()
		if p.accept(tkRParen) {
			return nil
		}
		args := p.parseExprList()
		p.expect(tkRParen, ")")
		return args
	}
	p.errorf("function arguments expected")
	return nil
}

func (p *parser) parseTableConstructor() Expr {
	line := p.tok.line
	p.expect(tkLBrace, "{")
	var fields []TableField
	for p.tok.kind != tkRBrace {
		switch {
		case p.tok.kind == tkLBracket:
			p.advance()
			key := p.parseExpr()
			p.expect(tkRBracket, "]")
			p.expect(tkAssign, "=")
			val := p.parseExpr()
			fields = append(fields, TableField{Key: key, Value: val})
		case p.tok.kind == tkName && p.peekAhead().kind == tkAssign:
			name := p.tok.str
			p.advance()
			p.advance() // =
			val := p.parseExpr()
			fields = append(fields, TableField{Key: &StringExpr{Value: name}, Value: val})
		default:
			val := p.parseExpr()
			fields = append(fields, TableField{Value: val})
		}
		if !p.accept(tkComma) && !p.accept(tkSemi) {
			break
		}
	}
	p.expect(tkRBrace, "}")
	return &TableExpr{pos: pos{line}, Fields: fields}
}
