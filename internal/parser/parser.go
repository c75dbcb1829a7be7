// Package parser implements the native-surface recursive-descent parser
// described in §4.2: tokens to AST, precedence-climbing expressions, a
// single accumulated error, and a recursion-depth guard.
package parser

import (
	"strconv"

	"github.com/opal-lang/xmd/internal/ast"
	"github.com/opal-lang/xmd/internal/lexer"
	"github.com/opal-lang/xmd/internal/token"
)

// maxExprDepth is the recursion-depth guard required by §4.2.
const maxExprDepth = 100

// Parser turns a native-surface token stream into a Program.
type Parser struct {
	tokens []token.Token
	pos    int
	err    *ParseError
	depth  int
}

// Parse lexes and parses source in one call.
func Parse(source string, opts ...lexer.Option) (*ast.Program, error) {
	toks := lexer.New(source, opts...).Tokens()
	p := &Parser{tokens: toks}
	prog := p.parseProgram()
	if p.err != nil {
		return prog, p.err
	}
	return prog, nil
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[idx]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

// skipNewlines consumes any run of blank statement separators.
func (p *Parser) skipNewlines() {
	for p.cur().Type == token.NEWLINE {
		p.advance()
	}
}

func (p *Parser) fail(msg string) {
	if p.err != nil {
		return // at most one error (§4.2)
	}
	pe := &ParseError{Message: msg, Pos: p.cur().Pos}
	if p.cur().Type == token.ILLEGAL || p.cur().Type == token.IDENT {
		pe.Suggestion = suggestKeyword(p.cur().Literal)
	}
	p.err = pe
}

func (p *Parser) expect(tt token.Type) token.Token {
	if p.cur().Type != tt {
		p.fail("expected " + tt.String() + ", found " + p.cur().Type.String())
		return p.cur()
	}
	return p.advance()
}

// parseProgram parses top-level statements until EOF.
func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	prog.Statements = p.parseStatementsUntil()
	return prog
}

// blockTerminators are tokens that close an indented block without
// themselves being consumed by parseStatementsUntil; the caller consumes
// them afterward.
var blockTerminators = map[token.Type]bool{
	token.ELIF: true, token.ELSE: true, token.ENDIF: true,
	token.ENDFOR: true, token.ENDWHILE: true, token.EOF: true,
}

func (p *Parser) parseStatementsUntil() []ast.Node {
	var out []ast.Node
	p.skipNewlines()
	for !blockTerminators[p.cur().Type] && p.err == nil {
		stmt := p.parseStatement()
		if stmt != nil {
			out = append(out, stmt)
		}
		if p.err != nil {
			break
		}
		p.skipNewlines()
	}
	return out
}

func (p *Parser) parseStatement() ast.Node {
	switch p.cur().Type {
	case token.SET:
		return p.parseSet()
	case token.IF:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	case token.WHILE:
		return p.parseWhile()
	case token.BREAK:
		pos := p.advance().Pos
		return &ast.Break{Base: ast.NewBase(pos)}
	case token.CONTINUE:
		pos := p.advance().Pos
		return &ast.Continue{Base: ast.NewBase(pos)}
	case token.RETURN:
		return p.parseReturn()
	case token.IMPORT:
		return p.parseImport()
	case token.FUNCTION:
		return p.parseFunction()
	case token.IDENT:
		return p.parseIdentStatement()
	default:
		expr := p.parseExpression()
		return expr
	}
}

func (p *Parser) parseSet() ast.Node {
	pos := p.advance().Pos // 'set'
	name := p.expect(token.IDENT)
	op := ast.AssignSet
	switch p.cur().Type {
	case token.ASSIGN:
		p.advance()
	case token.PLUSEQ:
		p.advance()
		op = ast.AssignAdd
	default:
		p.fail("expected '=' or '+=' after identifier in set statement")
	}
	val := p.parseExpression()
	return &ast.Assignment{Base: ast.NewBase(pos), Name: name.Literal, Op: op, Value: val}
}

// parseIdentStatement handles `name = expr`, `name += expr`, and bare
// expression statements beginning with an identifier (function calls,
// member chains) — the assignment-vs-equality disambiguation of §4.2.
func (p *Parser) parseIdentStatement() ast.Node {
	if p.peekAt(1).Type == token.ASSIGN {
		pos := p.cur().Pos
		name := p.advance().Literal
		p.advance() // '='
		val := p.parseExpression()
		return &ast.Assignment{Base: ast.NewBase(pos), Name: name, Op: ast.AssignSet, Value: val}
	}
	if p.peekAt(1).Type == token.PLUSEQ {
		pos := p.cur().Pos
		name := p.advance().Literal
		p.advance() // '+='
		val := p.parseExpression()
		return &ast.Assignment{Base: ast.NewBase(pos), Name: name, Op: ast.AssignAdd, Value: val}
	}
	return p.parseExpression()
}

func (p *Parser) parseReturn() ast.Node {
	pos := p.advance().Pos
	if p.cur().Type == token.NEWLINE || p.cur().Type == token.EOF || blockTerminators[p.cur().Type] {
		return &ast.Return{Base: ast.NewBase(pos)}
	}
	val := p.parseExpression()
	return &ast.Return{Base: ast.NewBase(pos), Value: val}
}

func (p *Parser) parseImport() ast.Node {
	pos := p.advance().Pos
	path := p.parseExpression()
	return &ast.Import{Base: ast.NewBase(pos), Path: path}
}

// parseIf implements both the block and single-line forms of §4.2.
func (p *Parser) parseIf() ast.Node {
	pos := p.advance().Pos // 'if'
	cond := p.parseExpression()
	hadThen := false
	if p.cur().Type == token.THEN {
		p.advance()
		hadThen = true
	}

	if p.cur().Type != token.NEWLINE {
		// Single-line form: `if X then Y`.
		if !hadThen {
			p.fail("expected 'then' or newline after if condition")
		}
		stmt := p.parseStatement()
		var body []ast.Node
		if stmt != nil {
			body = []ast.Node{stmt}
		}
		return &ast.Conditional{Base: ast.NewBase(pos), Cond: cond, Then: body}
	}

	p.advance() // NEWLINE
	thenBody := p.parseStatementsUntil()

	node := &ast.Conditional{Base: ast.NewBase(pos), Cond: cond, Then: thenBody}
	p.parseElifElseEndif(node)
	return node
}

func (p *Parser) parseElifElseEndif(node *ast.Conditional) {
	switch p.cur().Type {
	case token.ELIF:
		elifPos := p.advance().Pos
		elifCond := p.parseExpression()
		if p.cur().Type == token.THEN {
			p.advance()
		}
		if p.cur().Type == token.NEWLINE {
			p.advance()
		}
		elifBody := p.parseStatementsUntil()
		nested := &ast.Conditional{Base: ast.NewBase(elifPos), Cond: elifCond, Then: elifBody}
		p.parseElifElseEndif(nested)
		node.Else = []ast.Node{nested}
	case token.ELSE:
		p.advance()
		if p.cur().Type == token.NEWLINE {
			p.advance()
		}
		node.Else = p.parseStatementsUntil()
		if p.cur().Type == token.ENDIF {
			p.advance()
		}
	case token.ENDIF:
		p.advance()
	default:
		// Optional endif omitted (§4.2); nothing further to consume.
	}
}

func (p *Parser) parseFor() ast.Node {
	pos := p.advance().Pos // 'for'
	name := p.expect(token.IDENT)
	p.expect(token.IN)
	iterable := p.parseExpression()
	if p.cur().Type == token.NEWLINE {
		p.advance()
	}
	body := p.parseStatementsUntil()
	if p.cur().Type == token.ENDFOR {
		p.advance()
	}
	return &ast.Loop{Base: ast.NewBase(pos), Kind: ast.LoopForIn, VarName: name.Literal, Iterable: iterable, Body: body}
}

func (p *Parser) parseWhile() ast.Node {
	pos := p.advance().Pos // 'while'
	cond := p.parseExpression()
	if p.cur().Type == token.NEWLINE {
		p.advance()
	}
	body := p.parseStatementsUntil()
	if p.cur().Type == token.ENDWHILE {
		p.advance()
	}
	return &ast.Loop{Base: ast.NewBase(pos), Kind: ast.LoopWhile, Cond: cond, Body: body}
}

// parseFunction parses `function name(p1, p2)` followed by an indented
// body. Unlike if/for/while, the keyword set has no "endfunction"
// terminator, so the body is closed by dedent (see DESIGN.md: function
// bodies rely purely on indentation).
func (p *Parser) parseFunction() ast.Node {
	tok := p.cur()
	pos := p.advance().Pos // 'function'
	name := p.expect(token.IDENT)
	p.expect(token.LPAREN)
	var params []string
	if p.cur().Type != token.RPAREN {
		params = append(params, p.expect(token.IDENT).Literal)
		for p.cur().Type == token.COMMA {
			p.advance()
			params = append(params, p.expect(token.IDENT).Literal)
		}
	}
	p.expect(token.RPAREN)
	if p.cur().Type == token.NEWLINE {
		p.advance()
	}
	body := p.parseIndentedBlock(tok.Indent)
	return &ast.FunctionDecl{Base: ast.NewBase(pos), Name: name.Literal, Params: params, Body: body}
}

// parseIndentedBlock parses statements whose leading token is indented
// strictly more than baseIndent, stopping at the first dedent, a block
// terminator keyword, or EOF.
func (p *Parser) parseIndentedBlock(baseIndent int) []ast.Node {
	var out []ast.Node
	p.skipNewlines()
	for p.err == nil && !blockTerminators[p.cur().Type] && p.cur().Type != token.EOF {
		if p.cur().Indent <= baseIndent {
			break
		}
		stmt := p.parseStatement()
		if stmt != nil {
			out = append(out, stmt)
		}
		if p.err != nil {
			break
		}
		p.skipNewlines()
	}
	return out
}

// ---- expressions ----

func (p *Parser) enterExpr() bool {
	p.depth++
	if p.depth > maxExprDepth {
		p.fail("expression nesting exceeds maximum depth")
		return false
	}
	return true
}

func (p *Parser) exitExpr() { p.depth-- }

func (p *Parser) parseExpression() ast.Node {
	if !p.enterExpr() {
		defer p.exitExpr()
		return &ast.Literal{Kind: ast.LitNull}
	}
	defer p.exitExpr()
	return p.parseRange()
}

// parseRange handles `a..b` which only makes grammatical sense directly
// inside a for-in iterable position, but is parsed generically here; the
// evaluator rejects it elsewhere.
func (p *Parser) parseRange() ast.Node {
	left := p.parseOr()
	if p.cur().Type == token.RANGE {
		pos := p.advance().Pos
		right := p.parseOr()
		return &ast.RangeExpr{Base: ast.NewBase(pos), From: left, To: right}
	}
	return left
}

func (p *Parser) parseOr() ast.Node {
	left := p.parseAnd()
	for p.cur().Type == token.OR {
		pos := p.advance().Pos
		right := p.parseAnd()
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: ast.OpOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Node {
	left := p.parseEq()
	for p.cur().Type == token.AND {
		pos := p.advance().Pos
		right := p.parseEq()
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: ast.OpAnd, Left: left, Right: right}
	}
	return left
}

// parseEq implements the documented stable quirk of §4.2: both '==' and
// bare '=' are accepted as equality at this precedence level.
func (p *Parser) parseEq() ast.Node {
	left := p.parseRel()
	for p.cur().Type == token.EQ || p.cur().Type == token.ASSIGN || p.cur().Type == token.NEQ {
		op := ast.OpEq
		if p.cur().Type == token.NEQ {
			op = ast.OpNeq
		}
		pos := p.advance().Pos
		right := p.parseRel()
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseRel() ast.Node {
	left := p.parseAdd()
	for {
		var op ast.BinOp
		switch p.cur().Type {
		case token.LT:
			op = ast.OpLt
		case token.LTE:
			op = ast.OpLte
		case token.GT:
			op = ast.OpGt
		case token.GTE:
			op = ast.OpGte
		default:
			return left
		}
		pos := p.advance().Pos
		right := p.parseAdd()
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdd() ast.Node {
	left := p.parseMul()
	for p.cur().Type == token.PLUS || p.cur().Type == token.MINUS {
		op := ast.OpAdd
		if p.cur().Type == token.MINUS {
			op = ast.OpSub
		}
		pos := p.advance().Pos
		right := p.parseMul()
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMul() ast.Node {
	left := p.parseUnary()
	for p.cur().Type == token.STAR || p.cur().Type == token.SLASH {
		op := ast.OpMul
		if p.cur().Type == token.SLASH {
			op = ast.OpDiv
		}
		pos := p.advance().Pos
		right := p.parseUnary()
		left = &ast.BinaryOp{Base: ast.NewBase(pos), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Node {
	if !p.enterExpr() {
		defer p.exitExpr()
		return &ast.Literal{Kind: ast.LitNull}
	}
	defer p.exitExpr()

	switch p.cur().Type {
	case token.NOT:
		pos := p.advance().Pos
		operand := p.parseUnary()
		return &ast.UnaryOp{Base: ast.NewBase(pos), Op: ast.OpNot, Operand: operand}
	case token.MINUS:
		pos := p.advance().Pos
		operand := p.parseUnary()
		return &ast.UnaryOp{Base: ast.NewBase(pos), Op: ast.OpNeg, Operand: operand}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() ast.Node {
	tok := p.cur()
	switch tok.Type {
	case token.NUMBER:
		p.advance()
		return &ast.Literal{Base: ast.NewBase(tok.Pos), Kind: ast.LitNumber, Num: parseNumberLiteral(tok.Literal)}
	case token.STRING:
		p.advance()
		return &ast.Literal{Base: ast.NewBase(tok.Pos), Kind: ast.LitString, Str: tok.Literal}
	case token.TRUE:
		p.advance()
		return &ast.Literal{Base: ast.NewBase(tok.Pos), Kind: ast.LitBool, Bool: true}
	case token.FALSE:
		p.advance()
		return &ast.Literal{Base: ast.NewBase(tok.Pos), Kind: ast.LitBool, Bool: false}
	case token.NULL:
		p.advance()
		return &ast.Literal{Base: ast.NewBase(tok.Pos), Kind: ast.LitNull}
	case token.PRINT:
		return p.parseKeywordCall("print")
	case token.CMD:
		return p.parseKeywordCall("cmd")
	case token.LPAREN:
		p.advance()
		expr := p.parseExpression()
		p.expect(token.RPAREN)
		return expr
	case token.LBRACKET:
		return p.parseArrayLiteral()
	case token.LBRACE:
		return p.parseObjectLiteral()
	case token.IDENT:
		return p.parseIdentPrimary()
	default:
		p.fail("unexpected token " + tok.Type.String() + " in expression")
		p.advance()
		return &ast.Literal{Base: ast.NewBase(tok.Pos), Kind: ast.LitNull}
	}
}

func (p *Parser) parseKeywordCall(name string) ast.Node {
	pos := p.advance().Pos
	p.expect(token.LPAREN)
	var args []ast.Node
	if p.cur().Type != token.RPAREN {
		args = p.parseArgs()
	}
	p.expect(token.RPAREN)
	return &ast.FunctionCall{Base: ast.NewBase(pos), Name: name, Args: args}
}

func (p *Parser) parseArgs() []ast.Node {
	var args []ast.Node
	args = append(args, p.parseExpression())
	for p.cur().Type == token.COMMA {
		p.advance()
		args = append(args, p.parseExpression())
	}
	return args
}

func (p *Parser) parseArrayLiteral() ast.Node {
	pos := p.advance().Pos // '['
	var elems []ast.Node
	if p.cur().Type != token.RBRACKET {
		elems = append(elems, p.parseExpression())
		for p.cur().Type == token.COMMA {
			p.advance()
			elems = append(elems, p.parseExpression())
		}
	}
	p.expect(token.RBRACKET)
	return &ast.ArrayLiteral{Base: ast.NewBase(pos), Elements: elems}
}

// parseObjectLiteral parses `{k1: v1, k2: v2}`. Keys are either bareword
// identifiers or string literals; trailing commas are not permitted.
func (p *Parser) parseObjectLiteral() ast.Node {
	pos := p.advance().Pos // '{'
	var entries []ast.ObjectEntry
	if p.cur().Type != token.RBRACE {
		entries = append(entries, p.parseObjectEntry())
		for p.cur().Type == token.COMMA {
			p.advance()
			entries = append(entries, p.parseObjectEntry())
		}
	}
	p.expect(token.RBRACE)
	return &ast.ObjectLiteral{Base: ast.NewBase(pos), Entries: entries}
}

func (p *Parser) parseObjectEntry() ast.ObjectEntry {
	var key string
	switch p.cur().Type {
	case token.STRING:
		key = p.advance().Literal
	case token.IDENT:
		key = p.advance().Literal
	default:
		tok := p.cur()
		p.fail("expected object key, got " + tok.Type.String())
		p.advance()
	}
	p.expect(token.COLON)
	value := p.parseExpression()
	return ast.ObjectEntry{Key: key, Value: value}
}

// parseIdentPrimary parses an identifier and its trailers, including the
// dotted-namespace call form used by json.stringify/parse and
// yaml.stringify/parse (§4.3).
func (p *Parser) parseIdentPrimary() ast.Node {
	tok := p.advance()
	var node ast.Node = &ast.VariableRef{Base: ast.NewBase(tok.Pos), Name: tok.Literal}

	for {
		switch p.cur().Type {
		case token.LBRACKET:
			pos := p.advance().Pos
			idx := p.parseExpression()
			p.expect(token.RBRACKET)
			node = &ast.ArrayAccess{Base: ast.NewBase(pos), Array: node, Index: idx}
		case token.DOT:
			pos := p.advance().Pos
			key := p.expect(token.IDENT)
			if p.cur().Type == token.LPAREN {
				// Dotted call: only the json/yaml codec namespace is
				// meaningful, but any ns.member(...) lowers the same way
				// so the evaluator can report an unknown-function error.
				if ref, ok := node.(*ast.VariableRef); ok {
					p.advance() // '('
					var args []ast.Node
					if p.cur().Type != token.RPAREN {
						args = p.parseArgs()
					}
					p.expect(token.RPAREN)
					node = &ast.FunctionCall{Base: ast.NewBase(pos), Name: ref.Name + "." + key.Literal, Args: args}
					continue
				}
			}
			node = &ast.ObjectAccess{Base: ast.NewBase(pos), Object: node, Key: key.Literal}
		case token.LPAREN:
			pos := p.advance().Pos
			var args []ast.Node
			if p.cur().Type != token.RPAREN {
				args = p.parseArgs()
			}
			p.expect(token.RPAREN)
			if ref, ok := node.(*ast.VariableRef); ok {
				node = &ast.FunctionCall{Base: ast.NewBase(pos), Name: ref.Name, Args: args}
			} else {
				node = &ast.FunctionCall{Base: ast.NewBase(pos), Name: "<call>", Args: args}
			}
		default:
			return node
		}
	}
}

func parseNumberLiteral(lit string) float64 {
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0
	}
	return n
}
