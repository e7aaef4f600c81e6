package config

// Expr is a value-producing expression: a string (with unresolved $Var$
// substitution markers), an integer, a variable reference, an array
// literal, or a brace-block evaluated as a struct literal.
type Expr interface{ exprNode() }

type StringExpr struct {
	Raw      string // lexed text, escape sequences already resolved except $ substitution
	Row, Col int

	// NoSubstitute skips $Var$ scanning entirely. Set only for synthetic
	// StringExprs the parser builds itself (#import's environment-variable
	// value), since that text was never lexed and may contain a literal
	// '$' that isn't an escape-sequence survivor.
	NoSubstitute bool
}

type IntExpr struct {
	Value    int64
	Row, Col int
}

type BoolExpr struct {
	Value    bool
	Row, Col int
}

// VarRefExpr resolves a named variable from the current scope at
// evaluation time (the RHS shorthand `.Name = .Other`).
type VarRefExpr struct {
	Name     string
	Row, Col int
}

type ArrayExpr struct {
	Elements []Expr
	Row, Col int
}

// StructExpr is a brace block evaluated as a fresh child scope whose
// resulting variables become a Struct's fields (this DSL's struct-literal
// form, see scope.go's doc comment on Scope.Push).
type StructExpr struct {
	Body     []Statement
	Row, Col int
}

func (*StringExpr) exprNode() {}
func (*IntExpr) exprNode()    {}
func (*BoolExpr) exprNode()   {}
func (*VarRefExpr) exprNode() {}
func (*ArrayExpr) exprNode()  {}
func (*StructExpr) exprNode() {}

// Statement is a top-level or nested DSL construct.
type Statement interface{ stmtNode() }

type AssignStmt struct {
	Name      string
	ToParent  bool // ^Name = ... instead of .Name = ...
	Append    bool // .Name + value instead of .Name = value
	Value     Expr
	Row, Col  int
}

// UnnamedConcatStmt is a bare `+ value` statement, appending to the scope's
// most recently assigned variable.
type UnnamedConcatStmt struct {
	Value    Expr
	Row, Col int
}

type ScopeStmt struct {
	Body     []Statement
	Row, Col int
}

// FuncCallStmt is `FunctionName( header ) { body }`. Header holds the
// parenthesized arguments (usually a single alias string, occasionally a
// condition expression for If/ForEach). Body is nil for functions with no
// braces (Print, Error).
type FuncCallStmt struct {
	Name     string
	Header   []Expr
	Body     []Statement
	Row, Col int

	// ForEachVar/ForEachList are populated only when Name == "ForEach";
	// the parser recognizes ForEach's special "(.Item in .List)" header
	// grammar instead of a plain argument list.
	ForEachVar  string
	ForEachList Expr
}

func (*AssignStmt) stmtNode()        {}
func (*UnnamedConcatStmt) stmtNode() {}
func (*ScopeStmt) stmtNode()         {}
func (*FuncCallStmt) stmtNode()      {}

// IncludeStmt splices another file's already-parsed statements inline, per
// spec.md §4.1's "#include \"path\"". Body is nil when the include was
// skipped (an already-#once'd file) or for a bare #once marker line.
type IncludeStmt struct {
	Body     []Statement
	Row, Col int
}

func (*IncludeStmt) stmtNode() {}
