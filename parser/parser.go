// Package parser implements the recursive-descent parser from tokens to
// AST. It walks the block-indented sourcecode.Code directly: a "follow
// block" (the body of an if/while/struct/function/...) is simply the
// child block referenced by the line that introduces it.
package parser

import (
	"fmt"

	"github.com/upplang/upp/ast"
	"github.com/upplang/upp/sourcecode"
	"github.com/upplang/upp/token"
)

// Diagnostic is one parser error: a message paired with the token range it
// covers. Unit is a field for the compilation unit (module/file) name;
// Parse leaves it empty (compiler.Diagnostic carries the unit name).
type Diagnostic struct {
	Unit    string
	Message string
	Range   ast.TokenRange
}

// precedence groups: logical-and binds loosest, then logical-or, equality,
// comparison, additive, multiplicative, modulo tightest. This inverts the
// usual && binds-tighter-than-|| convention -- see DESIGN.md.
const (
	precNone = iota
	precAnd
	precOr
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precModulo
)

var binaryPrecedence = map[token.Operator]int{
	token.AND_AND: precAnd,
	token.OR_OR:   precOr,
	token.EQ:      precEquality,
	token.NEQ:     precEquality,
	token.PTR_EQ:  precEquality,
	token.PTR_NEQ: precEquality,
	token.LT:      precComparison,
	token.GT:      precComparison,
	token.LTE:     precComparison,
	token.GTE:     precComparison,
	token.PLUS:    precAdditive,
	token.MINUS:   precAdditive,
	token.STAR:    precMultiplicative,
	token.SLASH:   precMultiplicative,
	token.PERCENT: precModulo,
}

// cursor is the parser's current position: the block currently being
// parsed plus a line/token offset within it.
type cursor struct {
	block sourcecode.BlockIndex
	line  int
	tok   int
}

// Parser is one recursive-descent parsing pass over a sourcecode.Code.
type Parser struct {
	code       *sourcecode.Code
	arena      *ast.Arena
	errors     []Diagnostic
	predefined map[string]bool

	cur cursor
}

// Parse runs the parser from the root block and returns the Module node,
// the arena that owns it, and any diagnostics. predefinedIDs names
// identifiers the analyser will bind externally (e.g.
// hardcoded functions) so the parser can treat them as ordinary reads.
func Parse(code *sourcecode.Code, predefinedIDs []string) (*ast.Arena, ast.NodeID, []Diagnostic) {
	p := &Parser{
		code:       code,
		arena:      ast.NewArena(),
		predefined: make(map[string]bool, len(predefinedIDs)),
	}
	for _, id := range predefinedIDs {
		p.predefined[id] = true
	}
	p.cur = cursor{block: sourcecode.RootBlock}
	mod := p.parseModule()
	if err := ast.CorrectTokenRanges(p.arena, mod); err != nil {
		p.errors = append(p.errors, Diagnostic{Message: err.Error()})
	}
	return p.arena, mod, p.errors
}

// ---- cursor plumbing ------------------------------------------------------

func (p *Parser) checkpoint() (cursor, int, int) {
	return p.cur, p.arena.Len(), len(p.errors)
}

func (p *Parser) rollback(cp cursor, arenaMark, errMark int) {
	p.cur = cp
	p.arena.Truncate(arenaMark)
	p.errors = p.errors[:errMark]
}

func (p *Parser) curLineIdx() sourcecode.LineIndex {
	return sourcecode.LineIndex{Block: p.cur.block, Line: p.cur.line}
}

func (p *Parser) lineCount() int {
	return p.code.LineCount(p.cur.block)
}

func (p *Parser) atBlockEnd() bool {
	return p.cur.line >= p.lineCount()
}

func (p *Parser) curLine() sourcecode.Line {
	return p.code.LineAt(p.curLineIdx())
}

// atLineEnd reports whether the cursor has consumed every token on the
// current text line (or the line has no tokens at all, or the block ended).
func (p *Parser) atLineEnd() bool {
	if p.atBlockEnd() {
		return true
	}
	line := p.curLine()
	if line.IsBlockRef {
		return true
	}
	if p.cur.tok >= len(line.Tokens) {
		return true
	}
	return line.Tokens[p.cur.tok].Kind == token.COMMENT
}

// pos returns the token_index the cursor currently names, used to stamp
// node Ranges.
func (p *Parser) pos() sourcecode.TokenIndex {
	return sourcecode.TokenIndex{Line: p.curLineIdx(), Token: p.cur.tok}
}

// peek returns the token at the cursor without consuming it.
func (p *Parser) peek() (token.Token, bool) {
	if p.atBlockEnd() {
		return token.Token{}, false
	}
	line := p.curLine()
	if line.IsBlockRef || p.cur.tok >= len(line.Tokens) {
		return token.Token{}, false
	}
	return line.Tokens[p.cur.tok], true
}

func (p *Parser) peekAt(offset int) (token.Token, bool) {
	if p.atBlockEnd() {
		return token.Token{}, false
	}
	line := p.curLine()
	idx := p.cur.tok + offset
	if line.IsBlockRef || idx >= len(line.Tokens) {
		return token.Token{}, false
	}
	return line.Tokens[idx], true
}

func (p *Parser) advance() {
	p.cur.tok++
}

// nextLine moves to the next line of the current block, resetting the
// token cursor; it does not descend into block-reference lines.
func (p *Parser) nextLine() {
	p.cur.line++
	p.cur.tok = 0
}

// skipTrivialLines advances over fully-consumed, empty, and comment-only
// text lines until a line with unread non-comment tokens or a block
// reference is reached, or the block ends. A line comment always runs to
// end of line, so seeing one at the cursor means there is nothing else
// left to parse on that line.
func (p *Parser) skipTrivialLines() {
	for !p.atBlockEnd() {
		line := p.curLine()
		if line.IsBlockRef {
			return
		}
		if p.cur.tok < len(line.Tokens) && line.Tokens[p.cur.tok].Kind != token.COMMENT {
			return
		}
		p.nextLine()
	}
}

func (p *Parser) errorf(rng ast.TokenRange, format string, args ...any) {
	p.errors = append(p.errors, Diagnostic{Message: fmt.Sprintf(format, args...), Range: rng})
}

func (p *Parser) lineEndPos() sourcecode.TokenIndex {
	line := p.curLine()
	return sourcecode.TokenIndex{Line: p.curLineIdx(), Token: len(line.Tokens)}
}

// finishLine closes out one iteration of a line-driving loop (parseModule,
// parseCodeBlock, and the member lists of struct/enum/switch). before is
// the line index the iteration started on. If parsing a follow block moved
// the cursor past before already (enterFollowBlock leaves it on the first
// unconsumed line, token 0), there is nothing left to do; otherwise this
// checks for leftover tokens and advances exactly one line, the way plain
// single-line statements are driven.
func (p *Parser) finishLine(before int) {
	if p.cur.line != before {
		return
	}
	if !p.atLineEnd() {
		p.errorf(ast.TokenRange{Start: p.pos(), End: p.lineEndPos()}, "unexpected trailing tokens")
	}
	p.nextLine()
}

// ---- follow blocks ---------------------------------------------------------

// enterFollowBlock asserts the line immediately following the cursor's
// current line is a block reference (a "follow block") and returns its
// child, leaving the outer cursor positioned just after the
// reference line. It is called right after a header line (the `if`
// condition, a definition's value, ...) has been parsed but before the
// statement-loop driver has advanced past that header line itself.
func (p *Parser) enterFollowBlock() (sourcecode.BlockIndex, bool) {
	nextIdx := p.cur.line + 1
	if nextIdx >= p.lineCount() {
		return 0, false
	}
	line := p.code.LineAt(sourcecode.LineIndex{Block: p.cur.block, Line: nextIdx})
	if !line.IsBlockRef {
		return 0, false
	}
	p.cur.line = nextIdx + 1
	p.cur.tok = 0
	return line.ChildBlock, true
}

func (p *Parser) withBlock(block sourcecode.BlockIndex, fn func()) {
	saved := p.cur
	p.cur = cursor{block: block}
	fn()
	p.cur = saved
}

// ---- module & definitions --------------------------------------------------

func (p *Parser) parseModule() ast.NodeID {
	start := p.pos()
	var defs []ast.NodeID
	for !p.atBlockEnd() {
		p.skipTrivialLines()
		if p.atBlockEnd() {
			break
		}
		line := p.curLine()
		if line.IsBlockRef {
			p.errorf(ast.TokenRange{Start: p.pos(), End: p.pos()}, "unexpected indented block at module scope")
			p.nextLine()
			continue
		}
		before := p.cur.line
		def := p.parseDefinitionLine()
		if def != ast.NoNode {
			defs = append(defs, def)
		}
		p.finishLine(before)
	}
	end := p.pos()
	return p.arena.New(ast.KindModule, ast.NoNode, ast.TokenRange{Start: start, End: end}, ast.ModuleData{Definitions: defs})
}

// parseDefinitionLine parses `name :: value`, `name := value`, or
// `name : TypeExpr [= value]` and -- if a follow block immediately
// succeeds a function-signature value -- attaches it as the function body.
func (p *Parser) parseDefinitionLine() ast.NodeID {
	start := p.pos()
	tok, ok := p.peek()
	if !ok || tok.Kind != token.IDENTIFIER {
		p.errorf(ast.TokenRange{Start: start, End: start}, "expected a definition name")
		return ast.NoNode
	}
	name := *tok.Identifier
	p.advance()

	op, ok := p.peek()
	if !ok || op.Kind != token.OPERATOR {
		p.errorf(ast.TokenRange{Start: start, End: p.pos()}, "expected ':', ':=' or '::' after %q", name)
		return ast.NoNode
	}

	var isComptime bool
	typeExpr := ast.NoNode
	valueExpr := ast.NoNode

	switch op.Operator {
	case token.DOUBLE_COLON:
		p.advance()
		isComptime = true
		valueExpr = p.parseExpression(precNone + 1)
	case token.DEFINE_INFER:
		p.advance()
		valueExpr = p.parseExpression(precNone + 1)
	case token.COLON:
		p.advance()
		typeExpr = p.parseExpression(precNone + 1)
		if assign, ok := p.peek(); ok && assign.Kind == token.OPERATOR && assign.Operator == token.ASSIGN {
			p.advance()
			valueExpr = p.parseExpression(precNone + 1)
		}
	default:
		p.errorf(ast.TokenRange{Start: start, End: p.pos()}, "expected ':', ':=' or '::' after %q", name)
		return ast.NoNode
	}

	if valueExpr != ast.NoNode && p.arena.Node(valueExpr).Kind == ast.KindExprFunctionSignature {
		if body, ok := p.enterFollowBlock(); ok {
			var bodyBlock ast.NodeID
			p.withBlock(body, func() {
				bodyBlock = p.parseCodeBlock()
			})
			fnRange := p.arena.Node(valueExpr).Range
			valueExpr = p.arena.New(ast.KindExprFunction, ast.NoNode, fnRange, ast.ExprFunctionData{
				Signature: valueExpr, Body: bodyBlock,
			})
		}
	}

	end := p.pos()
	return p.arena.New(ast.KindDefinition, ast.NoNode, ast.TokenRange{Start: start, End: end}, ast.DefinitionData{
		Name: name, IsComptime: isComptime, TypeExpr: typeExpr, ValueExpr: valueExpr, Resolved: ast.NoSymbol,
	})
}

// ---- code blocks & statements ----------------------------------------------

func (p *Parser) parseCodeBlock() ast.NodeID {
	start := p.pos()
	var stmts []ast.NodeID
	for !p.atBlockEnd() {
		p.skipTrivialLines()
		if p.atBlockEnd() {
			break
		}
		if p.curLine().IsBlockRef {
			p.errorf(ast.TokenRange{Start: p.pos(), End: p.pos()}, "unexpected indented block")
			p.nextLine()
			continue
		}
		before := p.cur.line
		stmt := p.parseStatement()
		if stmt != ast.NoNode {
			stmts = append(stmts, stmt)
		}
		p.finishLine(before)
	}
	end := p.pos()
	return p.arena.New(ast.KindCodeBlock, ast.NoNode, ast.TokenRange{Start: start, End: end}, ast.CodeBlockData{Statements: stmts})
}

func (p *Parser) parseStatement() ast.NodeID {
	start := p.pos()
	tok, ok := p.peek()
	if !ok {
		return ast.NoNode
	}
	if tok.Kind == token.KEYWORD {
		switch tok.Keyword {
		case token.IF:
			return p.parseIf()
		case token.WHILE:
			return p.parseWhile()
		case token.SWITCH:
			return p.parseSwitch()
		case token.DEFER:
			p.advance()
			body := p.parseStatement()
			return p.arena.New(ast.KindStmtDefer, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtDeferData{Body: body})
		case token.BREAK:
			p.advance()
			label := p.optionalLabel()
			return p.arena.New(ast.KindStmtBreak, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtBreakData{Label: label})
		case token.CONTINUE:
			p.advance()
			label := p.optionalLabel()
			return p.arena.New(ast.KindStmtContinue, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtContinueData{Label: label})
		case token.RETURN:
			p.advance()
			value := ast.NoNode
			if !p.atLineEnd() {
				value = p.parseExpression(precNone + 1)
			}
			return p.arena.New(ast.KindStmtReturn, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtReturnData{Value: value})
		case token.DELETE:
			p.advance()
			operand := p.parseExpression(precNone + 1)
			return p.arena.New(ast.KindStmtDelete, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtDeleteData{Operand: operand})
		}
	}

	// `name :: ...` / `name := ...` / `name : Type ...` -- a nested definition.
	if tok.Kind == token.IDENTIFIER && p.isDefinitionStart() {
		def := p.parseDefinitionLine()
		return p.arena.New(ast.KindStmtDefinition, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtDefinitionData{Definition: def})
	}

	expr := p.parseExpression(precNone + 1)
	if assignOp, ok := p.peek(); ok && assignOp.Kind == token.OPERATOR && isAssignOperator(assignOp.Operator) {
		p.advance()
		value := p.parseExpression(precNone + 1)
		return p.arena.New(ast.KindStmtAssignment, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtAssignmentData{
			Target: expr, Operator: assignOp.Operator, Value: value,
		})
	}
	return p.arena.New(ast.KindStmtExpression, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtExpressionData{Expr: expr})
}

func isAssignOperator(op token.Operator) bool {
	switch op {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		return true
	default:
		return false
	}
}

// isDefinitionStart peeks one token ahead of the current identifier for a
// definition operator, without mutating the cursor.
func (p *Parser) isDefinitionStart() bool {
	t, ok := p.peekAt(1)
	if !ok || t.Kind != token.OPERATOR {
		return false
	}
	switch t.Operator {
	case token.DOUBLE_COLON, token.DEFINE_INFER, token.COLON:
		return true
	default:
		return false
	}
}

func (p *Parser) optionalLabel() string {
	if tok, ok := p.peek(); ok && tok.Kind == token.IDENTIFIER {
		p.advance()
		return *tok.Identifier
	}
	return ""
}

func (p *Parser) parseIf() ast.NodeID {
	start := p.pos()
	p.advance() // `if`
	cond := p.parseExpression(precNone + 1)
	then := ast.NoNode
	if body, ok := p.enterFollowBlock(); ok {
		p.withBlock(body, func() { then = p.parseCodeBlock() })
	}
	elseNode := ast.NoNode
	if !p.atBlockEnd() {
		saved, arenaMark, errMark := p.checkpoint()
		p.skipTrivialLines()
		if tok, ok := p.peek(); ok && tok.Kind == token.KEYWORD && tok.Keyword == token.ELSE {
			p.advance()
			if nextIf, ok := p.peek(); ok && nextIf.Kind == token.KEYWORD && nextIf.Keyword == token.IF {
				elseNode = p.parseIf()
			} else if body, ok := p.enterFollowBlock(); ok {
				p.withBlock(body, func() { elseNode = p.parseCodeBlock() })
			}
		} else {
			p.rollback(saved, arenaMark, errMark)
		}
	}
	return p.arena.New(ast.KindStmtIf, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtIfData{
		Condition: cond, Then: then, Else: elseNode,
	})
}

func (p *Parser) parseWhile() ast.NodeID {
	start := p.pos()
	p.advance()
	cond := p.parseExpression(precNone + 1)
	body := ast.NoNode
	if b, ok := p.enterFollowBlock(); ok {
		p.withBlock(b, func() { body = p.parseCodeBlock() })
	}
	return p.arena.New(ast.KindStmtWhile, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtWhileData{Condition: cond, Body: body})
}

func (p *Parser) parseSwitch() ast.NodeID {
	start := p.pos()
	p.advance()
	subject := p.parseExpression(precNone + 1)
	var cases []ast.NodeID
	if body, ok := p.enterFollowBlock(); ok {
		p.withBlock(body, func() {
			for !p.atBlockEnd() {
				p.skipTrivialLines()
				if p.atBlockEnd() || p.curLine().IsBlockRef {
					break
				}
				before := p.cur.line
				cases = append(cases, p.parseSwitchCase())
				p.finishLine(before)
			}
		})
	}
	return p.arena.New(ast.KindStmtSwitch, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.StmtSwitchData{Subject: subject, Cases: cases})
}

func (p *Parser) parseSwitchCase() ast.NodeID {
	start := p.pos()
	isDefault := false
	var values []ast.NodeID
	if tok, ok := p.peek(); ok && tok.Kind == token.KEYWORD && tok.Keyword == token.DEFAULT {
		p.advance()
		isDefault = true
	} else if ok && tok.Kind == token.KEYWORD && tok.Keyword == token.CASE {
		p.advance()
		values = append(values, p.parseExpression(precNone+1))
		for tok, ok := p.peek(); ok && tok.Kind == token.OPERATOR && tok.Operator == token.COMMA; tok, ok = p.peek() {
			p.advance()
			values = append(values, p.parseExpression(precNone+1))
		}
	}
	body := ast.NoNode
	if b, ok := p.enterFollowBlock(); ok {
		p.withBlock(b, func() { body = p.parseCodeBlock() })
	}
	return p.arena.New(ast.KindSwitchCase, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.SwitchCaseData{
		Values: values, Body: body, Default: isDefault,
	})
}

// ---- expressions ------------------------------------------------------------
//
// Standard precedence-climbing: parseExpression(minPrec)
// parses a unary/postfix operand, then repeatedly consumes a binary
// operator whose precedence is >= minPrec, recursing with minPrec set one
// above that operator's own precedence -- which yields left-associativity
// for runs of equal-precedence operators ("ties break left-associatively").

func (p *Parser) parseExpression(minPrec int) ast.NodeID {
	left := p.parseUnary()
	for {
		tok, ok := p.peek()
		if !ok || tok.Kind != token.OPERATOR {
			return left
		}
		prec, known := binaryPrecedence[tok.Operator]
		if !known || prec < minPrec {
			return left
		}
		op := tok.Operator
		start := p.arena.Node(left).Range.Start
		p.advance()
		right := p.parseExpression(prec + 1)
		left = p.arena.New(ast.KindExprBinop, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprBinopData{
			Left: left, Operator: op, Right: right,
		})
	}
}

var prefixUnaryOperators = map[token.Operator]bool{
	token.MINUS:         true,
	token.BANG:          true,
	token.TILDE_PTR:     true,
	token.TILDE_PTR_PTR: true,
}

func (p *Parser) parseUnary() ast.NodeID {
	start := p.pos()
	if tok, ok := p.peek(); ok && tok.Kind == token.OPERATOR && prefixUnaryOperators[tok.Operator] {
		op := tok.Operator
		p.advance()
		operand := p.parseUnary()
		return p.arena.New(ast.KindExprUnop, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprUnopData{Operator: op, Operand: operand})
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parsePostfix(left ast.NodeID) ast.NodeID {
	for {
		tok, ok := p.peek()
		if !ok || (tok.Kind != token.OPERATOR && tok.Kind != token.PARENTHESIS) {
			return left
		}
		start := p.arena.Node(left).Range.Start
		switch {
		case tok.Kind == token.OPERATOR && tok.Operator == token.DOT:
			p.advance()
			if nextTok, ok := p.peek(); ok && nextTok.Kind == token.PARENTHESIS && nextTok.Paren.IsOpen {
				switch nextTok.Paren.Kind {
				case token.CURLY:
					left = p.parseStructInitTail(left, start)
					continue
				case token.SQUARE:
					left = p.parseArrayInitTail(left, start)
					continue
				}
			}
			nameTok, ok := p.peek()
			if !ok || nameTok.Kind != token.IDENTIFIER {
				p.errorf(ast.TokenRange{Start: p.pos(), End: p.pos()}, "expected a member name after '.'")
				return left
			}
			p.advance()
			left = p.arena.New(ast.KindExprMember, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprMemberData{
				Receiver: left, Name: *nameTok.Identifier,
			})
		case tok.Kind == token.PARENTHESIS && tok.Paren.IsOpen && tok.Paren.Kind == token.ROUND:
			left = p.parseCallTail(left, start)
		case tok.Kind == token.PARENTHESIS && tok.Paren.IsOpen && tok.Paren.Kind == token.SQUARE:
			p.advance()
			index := p.parseExpression(precNone + 1)
			p.expectCloseParen(token.SQUARE)
			left = p.arena.New(ast.KindExprIndex, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprIndexData{Receiver: left, Index: index})
		default:
			return left
		}
	}
}

func (p *Parser) parseCallTail(callee ast.NodeID, start sourcecode.TokenIndex) ast.NodeID {
	p.advance() // '('
	args := p.parseArgumentList(token.ROUND)
	return p.arena.New(ast.KindExprCall, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprCallData{Callee: callee, Arguments: args})
}

func (p *Parser) parseStructInitTail(typeExpr ast.NodeID, start sourcecode.TokenIndex) ast.NodeID {
	p.advance() // '{'
	args := p.parseArgumentList(token.CURLY)
	return p.arena.New(ast.KindExprStructInit, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprStructInitData{Type: typeExpr, Arguments: args})
}

func (p *Parser) parseArrayInitTail(typeExpr ast.NodeID, start sourcecode.TokenIndex) ast.NodeID {
	p.advance() // '['
	var values []ast.NodeID
	for {
		if p.recoverIfClosed(token.SQUARE) {
			break
		}
		v := p.parseExpressionRecovering(token.SQUARE)
		if v != ast.NoNode {
			values = append(values, v)
		}
		if !p.consumeCommaOrBreak(token.SQUARE) {
			break
		}
	}
	return p.arena.New(ast.KindExprArrayInit, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprArrayInitData{Type: typeExpr, Values: values})
}

// parseArgumentList parses a parenthesised comma list of (optionally named)
// arguments. On a per-item failure it resumes at the next unmatched comma
// or closing parenthesis at the current nesting depth.
func (p *Parser) parseArgumentList(kind token.ParenKind) []ast.NodeID {
	var args []ast.NodeID
	for {
		if p.recoverIfClosed(kind) {
			break
		}
		start := p.pos()
		name := ""
		if id, ok := p.peek(); ok && id.Kind == token.IDENTIFIER {
			if colon, ok2 := p.peekAt(1); ok2 && colon.Kind == token.OPERATOR && colon.Operator == token.COLON {
				name = *id.Identifier
				p.advance()
				p.advance()
			}
		}
		value := p.parseExpressionRecovering(kind)
		args = append(args, p.arena.New(ast.KindArgument, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ArgumentData{Name: name, Value: value}))
		if !p.consumeCommaOrBreak(kind) {
			break
		}
	}
	return args
}

// recoverIfClosed consumes and reports the closing parenthesis of kind if
// the cursor is sitting on it (an empty list), returning true to stop the
// caller's loop; it also stops (with a diagnostic) if the line runs out
// before a close is found.
func (p *Parser) recoverIfClosed(kind token.ParenKind) bool {
	if tok, ok := p.peek(); ok && tok.Kind == token.PARENTHESIS && !tok.Paren.IsOpen && tok.Paren.Kind == kind {
		p.advance()
		return true
	}
	if p.atLineEnd() {
		p.errorf(ast.TokenRange{Start: p.pos(), End: p.pos()}, "unterminated list: missing closing parenthesis")
		return true
	}
	return false
}

// parseExpressionRecovering parses one list item; on failure it searches
// forward for the next comma or the matching close paren of kind.
func (p *Parser) parseExpressionRecovering(kind token.ParenKind) ast.NodeID {
	start := p.pos()
	if p.atLineEnd() {
		return ast.NoNode
	}
	if tok, ok := p.peek(); ok && tok.Kind == token.PARENTHESIS && !tok.Paren.IsOpen && tok.Paren.Kind == kind {
		return ast.NoNode
	}
	v := p.parseExpression(precNone + 1)
	if v == ast.NoNode {
		p.errorf(ast.TokenRange{Start: start, End: p.pos()}, "expected an expression in list")
		p.skipToCommaOrClose(kind)
	}
	return v
}

func (p *Parser) skipToCommaOrClose(kind token.ParenKind) {
	depth := 0
	for !p.atLineEnd() {
		tok, _ := p.peek()
		if tok.Kind == token.PARENTHESIS {
			if tok.Paren.IsOpen {
				depth++
			} else {
				if depth == 0 && tok.Paren.Kind == kind {
					return
				}
				depth--
			}
		}
		if tok.Kind == token.OPERATOR && tok.Operator == token.COMMA && depth == 0 {
			return
		}
		p.advance()
	}
}

func (p *Parser) consumeCommaOrBreak(kind token.ParenKind) bool {
	if tok, ok := p.peek(); ok && tok.Kind == token.OPERATOR && tok.Operator == token.COMMA {
		p.advance()
		return !p.recoverIfClosed(kind)
	}
	p.recoverIfClosed(kind)
	return false
}

func (p *Parser) expectCloseParen(kind token.ParenKind) {
	if tok, ok := p.peek(); ok && tok.Kind == token.PARENTHESIS && !tok.Paren.IsOpen && tok.Paren.Kind == kind {
		p.advance()
		return
	}
	p.errorf(ast.TokenRange{Start: p.pos(), End: p.pos()}, "expected closing parenthesis")
}

func (p *Parser) parsePrimary() ast.NodeID {
	start := p.pos()
	tok, ok := p.peek()
	if !ok {
		p.errorf(ast.TokenRange{Start: start, End: start}, "expected an expression")
		return p.arena.New(ast.KindExprError, ast.NoNode, ast.TokenRange{Start: start, End: start}, ast.ExprErrorData{})
	}

	switch tok.Kind {
	case token.LITERAL:
		p.advance()
		return p.arena.New(ast.KindExprLiteral, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprLiteralData{Literal: tok.Literal})
	case token.IDENTIFIER:
		return p.parseSymbolRead()
	case token.PARENTHESIS:
		if tok.Paren.IsOpen && tok.Paren.Kind == token.ROUND {
			if sig, ok := p.tryParseFunctionSignature(); ok {
				return sig
			}
			p.advance()
			inner := p.parseExpression(precNone + 1)
			p.expectCloseParen(token.ROUND)
			return inner
		}
	case token.KEYWORD:
		switch tok.Keyword {
		case token.NEW:
			return p.parseNew()
		case token.CAST, token.CAST_PTR, token.CAST_RAW:
			return p.parseCast()
		case token.STRUCT, token.UNION, token.C_UNION:
			return p.parseStructLike()
		case token.ENUM:
			return p.parseEnum()
		case token.MODULE:
			return p.parseModuleExpr()
		case token.BAKE:
			return p.parseBake()
		}
	}

	p.errorf(ast.TokenRange{Start: start, End: p.lineEndPos()}, "unexpected token in expression")
	p.advance()
	return p.arena.New(ast.KindExprError, ast.NoNode, ast.TokenRange{Start: start, End: start}, ast.ExprErrorData{})
}

// parseSymbolRead consumes an `A~B~c` tilde-separated symbol path,
// flattening it directly into Path rather than a linked list.
func (p *Parser) parseSymbolRead() ast.NodeID {
	start := p.pos()
	first, _ := p.peek()
	p.advance()
	path := []string{*first.Identifier}
	for {
		tok, ok := p.peek()
		if !ok || tok.Kind != token.OPERATOR || tok.Operator != token.TILDE {
			break
		}
		nameTok, ok := p.peekAt(1)
		if !ok || nameTok.Kind != token.IDENTIFIER {
			break
		}
		p.advance()
		p.advance()
		path = append(path, *nameTok.Identifier)
	}
	return p.arena.New(ast.KindExprSymbolRead, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprSymbolReadData{Path: path, Resolved: ast.NoSymbol})
}

func (p *Parser) parseNew() ast.NodeID {
	start := p.pos()
	p.advance() // `new`
	count := ast.NoNode
	if tok, ok := p.peek(); ok && tok.Kind == token.PARENTHESIS && tok.Paren.IsOpen && tok.Paren.Kind == token.SQUARE {
		p.advance()
		count = p.parseExpression(precNone + 1)
		p.expectCloseParen(token.SQUARE)
	}
	typeExpr := p.parseExpression(precModulo)
	return p.arena.New(ast.KindExprNew, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprNewData{Type: typeExpr, Count: count})
}

func (p *Parser) parseCast() ast.NodeID {
	start := p.pos()
	tok, _ := p.peek()
	variant := ast.CastNumeric
	switch tok.Keyword {
	case token.CAST_PTR:
		variant = ast.CastPtr
	case token.CAST_RAW:
		variant = ast.CastRaw
	}
	p.advance()
	toType := ast.NoNode
	if pTok, ok := p.peek(); ok && pTok.Kind == token.PARENTHESIS && pTok.Paren.IsOpen && pTok.Paren.Kind == token.ROUND {
		p.advance()
		toType = p.parseExpression(precNone + 1)
		p.expectCloseParen(token.ROUND)
	}
	operand := p.parseExpression(precModulo)
	return p.arena.New(ast.KindExprCast, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprCastData{Variant: variant, ToType: toType, Operand: operand})
}

func (p *Parser) parseStructLike() ast.NodeID {
	start := p.pos()
	tok, _ := p.peek()
	kind := ast.KindExprStruct
	switch tok.Keyword {
	case token.UNION:
		kind = ast.KindExprUnion
	case token.C_UNION:
		kind = ast.KindExprCUnion
	}
	p.advance()
	var members []ast.NodeID
	if body, ok := p.enterFollowBlock(); ok {
		p.withBlock(body, func() {
			for !p.atBlockEnd() {
				p.skipTrivialLines()
				if p.atBlockEnd() || p.curLine().IsBlockRef {
					break
				}
				before := p.cur.line
				members = append(members, p.parseDefinitionLine())
				p.finishLine(before)
			}
		})
	}
	return p.arena.New(kind, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprStructData{Members: members})
}

func (p *Parser) parseEnum() ast.NodeID {
	start := p.pos()
	p.advance()
	var members []ast.NodeID
	if body, ok := p.enterFollowBlock(); ok {
		p.withBlock(body, func() {
			for !p.atBlockEnd() {
				p.skipTrivialLines()
				if p.atBlockEnd() || p.curLine().IsBlockRef {
					break
				}
				before := p.cur.line
				members = append(members, p.parseEnumMember())
				p.finishLine(before)
			}
		})
	}
	return p.arena.New(ast.KindExprEnum, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprEnumData{Members: members})
}

func (p *Parser) parseEnumMember() ast.NodeID {
	start := p.pos()
	nameTok, ok := p.peek()
	if !ok || nameTok.Kind != token.IDENTIFIER {
		p.errorf(ast.TokenRange{Start: start, End: start}, "expected an enum member name")
		return p.arena.New(ast.KindExprError, ast.NoNode, ast.TokenRange{Start: start, End: start}, ast.ExprErrorData{})
	}
	p.advance()
	value := ast.NoNode
	if eqTok, ok := p.peek(); ok && eqTok.Kind == token.OPERATOR && eqTok.Operator == token.ASSIGN {
		p.advance()
		value = p.parseExpression(precNone + 1)
	}
	return p.arena.New(ast.KindEnumMember, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.EnumMemberData{Name: *nameTok.Identifier, Value: value})
}

func (p *Parser) parseModuleExpr() ast.NodeID {
	start := p.pos()
	p.advance()
	body := ast.NoNode
	if b, ok := p.enterFollowBlock(); ok {
		p.withBlock(b, func() { body = p.parseCodeBlock() })
	}
	return p.arena.New(ast.KindExprModule, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprModuleData{Body: body})
}

func (p *Parser) parseBake() ast.NodeID {
	start := p.pos()
	p.advance()
	if body, ok := p.enterFollowBlock(); ok {
		var block ast.NodeID
		p.withBlock(body, func() { block = p.parseCodeBlock() })
		return p.arena.New(ast.KindExprBakeBlock, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprBakeBlockData{Body: block})
	}
	expr := p.parseExpression(precNone + 1)
	return p.arena.New(ast.KindExprBakeExpr, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprBakeExprData{Expr: expr})
}

// tryParseFunctionSignature attempts `(params) -> ReturnType` at the
// cursor; on failure it rolls back and returns ok=false so the caller can
// fall back to a parenthesised-expression parse.
func (p *Parser) tryParseFunctionSignature() (ast.NodeID, bool) {
	cp, arenaMark, errMark := p.checkpoint()
	start := p.pos()
	p.advance() // '('

	var params []ast.NodeID
	for {
		if tok, ok := p.peek(); ok && tok.Kind == token.PARENTHESIS && !tok.Paren.IsOpen && tok.Paren.Kind == token.ROUND {
			p.advance()
			break
		}
		param, ok := p.tryParseParameter()
		if !ok {
			p.rollback(cp, arenaMark, errMark)
			return ast.NoNode, false
		}
		params = append(params, param)
		if tok, ok := p.peek(); ok && tok.Kind == token.OPERATOR && tok.Operator == token.COMMA {
			p.advance()
			continue
		}
		if tok, ok := p.peek(); ok && tok.Kind == token.PARENTHESIS && !tok.Paren.IsOpen && tok.Paren.Kind == token.ROUND {
			p.advance()
			break
		}
		p.rollback(cp, arenaMark, errMark)
		return ast.NoNode, false
	}

	ret := ast.NoNode
	if arrow, ok := p.peek(); ok && arrow.Kind == token.OPERATOR && arrow.Operator == token.ARROW {
		p.advance()
		ret = p.parseExpression(precModulo)
	}
	return p.arena.New(ast.KindExprFunctionSignature, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ExprFunctionSignatureData{
		Parameters: params, Return: ret,
	}), true
}

func (p *Parser) tryParseParameter() (ast.NodeID, bool) {
	start := p.pos()
	isComptime := false
	if tok, ok := p.peek(); ok && tok.Kind == token.OPERATOR && tok.Operator == token.DOLLAR {
		isComptime = true
		p.advance()
	}
	nameTok, ok := p.peek()
	if !ok || nameTok.Kind != token.IDENTIFIER {
		return ast.NoNode, false
	}
	p.advance()
	colon, ok := p.peek()
	if !ok || colon.Kind != token.OPERATOR || colon.Operator != token.COLON {
		return ast.NoNode, false
	}
	p.advance()
	typeExpr := p.parseExpression(precModulo)
	defaultValue := ast.NoNode
	if eq, ok := p.peek(); ok && eq.Kind == token.OPERATOR && eq.Operator == token.ASSIGN {
		p.advance()
		defaultValue = p.parseExpression(precNone + 1)
	}
	return p.arena.New(ast.KindParameter, ast.NoNode, ast.TokenRange{Start: start, End: p.pos()}, ast.ParameterData{
		Name: *nameTok.Identifier, TypeExpr: typeExpr, IsComptime: isComptime, DefaultValue: defaultValue,
	}), true
}
