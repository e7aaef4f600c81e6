package config

import (
	"fmt"
	"os"
)

// Parser turns a token stream from one file into a statement list, per
// spec.md §4.1's "curly-brace-delimited DSL" grammar. One Parser instance
// handles one already-preprocessed file (conditional directives are stripped
// before parsing, see directive.go); #include pulls in a nested Parser run whose
// statements are spliced inline, matching the reference implementation's
// depth-counted recursive Parse().
type Parser struct {
	lex    *Lexer
	file   string
	tok    Token
	err    *ParseError
	loader *Loader
}

// MaxIncludeDepth bounds #include recursion, per spec.md §4.1 ("cycles
// prevented by a depth cap (128)").
const MaxIncludeDepth = 128

// NewParser returns a Parser with its own fresh Loader, for parsing a
// single self-contained file with no #include directives expected to
// participate in shared #define/#once state. Load (config.go) uses
// newParserWithLoader instead so the whole include tree shares one Loader.
func NewParser(file, src string) *Parser {
	return newParserWithLoader(file, src, NewLoader())
}

func newParserWithLoader(file, src string, loader *Loader) *Parser {
	p := &Parser{lex: NewLexer(file, src), file: file, loader: loader}
	p.next()
	return p
}

func (p *Parser) next() {
	if p.err != nil {
		return
	}
	tok, err := p.lex.Next()
	if err != nil {
		p.err = err
		return
	}
	p.tok = tok
}

func (p *Parser) errorf(code int, format string, args ...interface{}) *ParseError {
	return &ParseError{Code: code, File: p.file, Row: p.tok.Row, Col: p.tok.Col, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(kind TokenKind) (Token, *ParseError) {
	if p.err != nil {
		return Token{}, p.err
	}
	if p.tok.Kind != kind {
		return Token{}, p.errorf(ErrUnexpectedCharInValue, "expected %s, found %s", kind, p.tok.Kind)
	}
	t := p.tok
	p.next()
	return t, p.err
}

// Parse consumes the entire file and returns its statement list.
func (p *Parser) Parse() ([]Statement, *ParseError) {
	var stmts []Statement
	for {
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.Kind == TokEOF {
			return stmts, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
}

func (p *Parser) parseStatement() (Statement, *ParseError) {
	switch p.tok.Kind {
	case TokDot:
		return p.parseAssign(false)
	case TokCaret:
		return p.parseAssign(true)
	case TokAppend:
		return p.parseUnnamedConcat()
	case TokBraceOpen:
		return p.parseScope()
	case TokIdent:
		return p.parseFuncCall()
	case TokHash:
		return p.parseDirective()
	default:
		return nil, p.errorf(ErrUnknownConstruct, "unexpected token %s", p.tok.Kind)
	}
}

// parseDirective handles the statement-level directives that survive
// stripConditionals' textual pass (#include, #import, #once). #define,
// #undef, #if, #else, and #endif never reach the parser: they are resolved
// entirely as text before lexing (directive.go).
func (p *Parser) parseDirective() (Statement, *ParseError) {
	row, col := p.tok.Row, p.tok.Col
	p.next() // consume '#'
	nameTok, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}

	switch nameTok.Text {
	case "once":
		p.loader.onceVisited[p.file] = true
		return &IncludeStmt{Row: row, Col: col}, nil

	case "import":
		envTok, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		value, _ := os.LookupEnv(envTok.Text)
		return &AssignStmt{
			Name: envTok.Text, Row: row, Col: col,
			Value: &StringExpr{Raw: value, NoSubstitute: true, Row: row, Col: col},
		}, nil

	case "include":
		pathTok, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		resolved := resolveInclude(p.file, pathTok.Text)
		if p.loader.onceVisited[resolved] {
			return &IncludeStmt{Row: row, Col: col}, nil
		}
		p.loader.depth++
		body, includeErr := p.loader.load(resolved)
		p.loader.depth--
		if includeErr != nil {
			return nil, includeErr
		}
		return &IncludeStmt{Body: body, Row: row, Col: col}, nil

	default:
		return nil, &ParseError{Code: ErrUnknownDirective, File: p.file, Row: row, Col: col,
			Message: fmt.Sprintf("unknown directive #%s", nameTok.Text)}
	}
}

func (p *Parser) parseAssign(toParent bool) (Statement, *ParseError) {
	row, col := p.tok.Row, p.tok.Col
	p.next() // consume '.' or '^'
	if p.err != nil {
		return nil, p.err
	}
	nameTok, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if len(nameTok.Text) > 255 {
		return nil, &ParseError{Code: ErrVariableNameTooLong, File: p.file, Row: row, Col: col,
			Message: fmt.Sprintf("variable name %q exceeds maximum length", nameTok.Text)}
	}

	isAppend := false
	switch p.tok.Kind {
	case TokAssign:
		p.next()
	case TokAppend:
		isAppend = true
		p.next()
	default:
		return nil, p.errorf(ErrUnexpectedCharInValue, "expected '=' or '+' after variable name")
	}
	if p.err != nil {
		return nil, p.err
	}

	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &AssignStmt{Name: nameTok.Text, ToParent: toParent, Append: isAppend, Value: value, Row: row, Col: col}, nil
}

func (p *Parser) parseUnnamedConcat() (Statement, *ParseError) {
	row, col := p.tok.Row, p.tok.Col
	p.next() // consume '+'
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &UnnamedConcatStmt{Value: value, Row: row, Col: col}, nil
}

func (p *Parser) parseScope() (Statement, *ParseError) {
	row, col := p.tok.Row, p.tok.Col
	body, err := p.parseBraceBody()
	if err != nil {
		return nil, err
	}
	return &ScopeStmt{Body: body, Row: row, Col: col}, nil
}

// parseBraceBody consumes a '{' ... '}' block and returns its statements.
func (p *Parser) parseBraceBody() ([]Statement, *ParseError) {
	openRow, openCol := p.tok.Row, p.tok.Col
	if _, err := p.expect(TokBraceOpen); err != nil {
		return nil, err
	}
	var stmts []Statement
	for {
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.Kind == TokBraceClose {
			p.next()
			return stmts, p.err
		}
		if p.tok.Kind == TokEOF {
			return nil, &ParseError{Code: ErrMissingScopeCloseToken, File: p.file, Row: openRow, Col: openCol,
				Message: "missing closing '}' for scope opened here"}
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
}

func (p *Parser) parseFuncCall() (Statement, *ParseError) {
	row, col := p.tok.Row, p.tok.Col
	name := p.tok.Text
	p.next() // consume identifier

	if name == "ForEach" {
		return p.parseForEach(row, col)
	}

	if _, err := p.expect(TokParenOpen); err != nil {
		return nil, err
	}
	var header []Expr
	for p.tok.Kind != TokParenClose {
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.Kind == TokEOF {
			return nil, &ParseError{Code: ErrFunctionRequiresHeader, File: p.file, Row: row, Col: col,
				Message: fmt.Sprintf("unterminated header for function %q", name)}
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		header = append(header, e)
		if p.tok.Kind == TokComma {
			p.next()
		}
	}
	p.next() // consume ')'
	if p.err != nil {
		return nil, p.err
	}

	var body []Statement
	if p.tok.Kind == TokBraceOpen {
		b, err := p.parseBraceBody()
		if err != nil {
			return nil, err
		}
		body = b
	}
	return &FuncCallStmt{Name: name, Header: header, Body: body, Row: row, Col: col}, nil
}

// parseForEach handles ForEach's distinctive header grammar:
// `ForEach( .Item in .List ) { body }`.
func (p *Parser) parseForEach(row, col int) (Statement, *ParseError) {
	if _, err := p.expect(TokParenOpen); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokDot); err != nil {
		return nil, err
	}
	itemTok, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokIdent || p.tok.Text != "in" {
		return nil, p.errorf(ErrUnexpectedCharInValue, "expected 'in' in ForEach header")
	}
	p.next() // consume 'in'
	listExpr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokParenClose); err != nil {
		return nil, err
	}
	body, err := p.parseBraceBody()
	if err != nil {
		return nil, err
	}
	return &FuncCallStmt{
		Name: "ForEach", ForEachVar: itemTok.Text, ForEachList: listExpr,
		Body: body, Row: row, Col: col,
	}, nil
}

func (p *Parser) parseExpr() (Expr, *ParseError) {
	row, col := p.tok.Row, p.tok.Col
	switch p.tok.Kind {
	case TokString:
		text := p.tok.Text
		p.next()
		return &StringExpr{Raw: text, Row: row, Col: col}, p.err
	case TokInteger:
		text := p.tok.Text
		p.next()
		n, err := parseInt(text)
		if err != nil {
			return nil, &ParseError{Code: ErrIntegerCouldNotBeParsed, File: p.file, Row: row, Col: col,
				Message: fmt.Sprintf("could not parse integer %q", text)}
		}
		return &IntExpr{Value: n, Row: row, Col: col}, p.err
	case TokDot:
		p.next()
		nameTok, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		return &VarRefExpr{Name: nameTok.Text, Row: row, Col: col}, nil
	case TokIdent:
		if p.tok.Text == "true" || p.tok.Text == "false" {
			b := p.tok.Text == "true"
			p.next()
			return &BoolExpr{Value: b, Row: row, Col: col}, p.err
		}
		return nil, p.errorf(ErrUnexpectedCharInValue, "unexpected identifier %q in expression", p.tok.Text)
	case TokBracketOpen:
		return p.parseArray(row, col)
	case TokBraceOpen:
		body, err := p.parseBraceBody()
		if err != nil {
			return nil, err
		}
		return &StructExpr{Body: body, Row: row, Col: col}, nil
	default:
		return nil, p.errorf(ErrUnexpectedCharInValue, "unexpected token %s in expression", p.tok.Kind)
	}
}

func (p *Parser) parseArray(row, col int) (Expr, *ParseError) {
	p.next() // consume '['
	var elems []Expr
	for p.tok.Kind != TokBracketClose {
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.Kind == TokEOF {
			return nil, &ParseError{Code: ErrMatchingCloseTokenNotFound, File: p.file, Row: row, Col: col,
				Message: "missing closing ']' for array opened here"}
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.tok.Kind == TokComma {
			p.next()
		}
	}
	p.next() // consume ']'
	return &ArrayExpr{Elements: elems, Row: row, Col: col}, p.err
}

func parseInt(s string) (int64, error) {
	var n int64
	if len(s) == 0 {
		return 0, fmt.Errorf("empty integer literal")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid digit %q", c)
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}
