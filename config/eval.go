package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder is implemented by functions.go's per-node-kind constructors. Each
// takes the evaluator, the call site's already-evaluated header arguments
// and header scope, and the function body's own child scope (already
// executed), and is responsible for registering whatever graph nodes the
// call produces.
type Builder func(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError

// Evaluator walks a parsed statement list against a scope tree, resolving
// $Var$ substitution and dispatching FunctionName(...) { ... } calls to
// either a built-in special form (If, ForEach, Print, Error) or a
// registered Builder, per spec.md §4.1's "one-to-one with node kinds".
// Builders are registered by the caller (config.go's Load, via
// functions.go's RegisterBuilders) once the target *graph.Graph exists, so
// this package never imports graph/nodes' concrete builder helpers itself.
type Evaluator struct {
	builders map[string]Builder
	printf   func(string)
}

// NewEvaluator returns an evaluator with no builders registered and
// fmt.Println-based Print output. Callers register node-kind builders via
// Register (see functions.go's RegisterBuilders).
func NewEvaluator() *Evaluator {
	return &Evaluator{builders: map[string]Builder{}, printf: func(s string) { fmt.Println(s) }}
}

// Register binds name (e.g. "Library", "Copy") to a Builder.
func (ev *Evaluator) Register(name string, b Builder) { ev.builders[name] = b }

// Run executes stmts against scope (typically a fresh root scope).
func (ev *Evaluator) Run(stmts []Statement, scope *Scope) *ParseError {
	for _, stmt := range stmts {
		if err := ev.execStmt(stmt, scope); err != nil {
			return err
		}
	}
	return nil
}

func (ev *Evaluator) execStmt(stmt Statement, scope *Scope) *ParseError {
	switch s := stmt.(type) {
	case *AssignStmt:
		v, err := ev.evalExpr(s.Value, scope)
		if err != nil {
			return err
		}
		if s.Append {
			prior, ok := scope.Get(s.Name)
			if !ok {
				return &ParseError{Code: ErrCannotConcatenate, File: "", Row: s.Row, Col: s.Col,
					Message: fmt.Sprintf("cannot append to undefined variable %q", s.Name)}
			}
			merged, mergeErr := Append(prior, v)
			if mergeErr != nil {
				return &ParseError{Code: ErrCannotConcatenate, Row: s.Row, Col: s.Col, Message: mergeErr.Error()}
			}
			v = merged
		}
		if s.ToParent {
			scope.SetParent(s.Name, v)
		} else {
			scope.Set(s.Name, v)
		}
		return nil

	case *UnnamedConcatStmt:
		name, ok := scope.LastVar()
		if !ok {
			return &ParseError{Code: ErrCannotConcatenate, Row: s.Row, Col: s.Col,
				Message: "unnamed '+' with no preceding variable assignment"}
		}
		v, err := ev.evalExpr(s.Value, scope)
		if err != nil {
			return err
		}
		prior, _ := scope.Get(name)
		merged, mergeErr := Append(prior, v)
		if mergeErr != nil {
			return &ParseError{Code: ErrCannotConcatenate, Row: s.Row, Col: s.Col, Message: mergeErr.Error()}
		}
		scope.Set(name, merged)
		return nil

	case *ScopeStmt:
		child := scope.Push()
		return ev.Run(s.Body, child)

	case *FuncCallStmt:
		return ev.execFuncCall(s, scope)

	case *IncludeStmt:
		return ev.Run(s.Body, scope)

	default:
		return &ParseError{Code: ErrUnknownConstruct, Message: "unhandled statement type"}
	}
}

func (ev *Evaluator) execFuncCall(call *FuncCallStmt, scope *Scope) *ParseError {
	switch call.Name {
	case "Print":
		for _, h := range call.Header {
			v, err := ev.evalExpr(h, scope)
			if err != nil {
				return err
			}
			ev.printf(displayValue(v))
		}
		return nil

	case "Error":
		var msgs []string
		for _, h := range call.Header {
			v, err := ev.evalExpr(h, scope)
			if err != nil {
				return err
			}
			msgs = append(msgs, displayValue(v))
		}
		return &ParseError{Code: ErrUserError, Row: call.Row, Col: call.Col, Message: strings.Join(msgs, " ")}

	case "If":
		if len(call.Header) != 1 {
			return &ParseError{Code: ErrFunctionRequiresHeader, Row: call.Row, Col: call.Col,
				Message: "If requires exactly one condition expression"}
		}
		v, err := ev.evalExpr(call.Header[0], scope)
		if err != nil {
			return err
		}
		if truthy(v) {
			return ev.Run(call.Body, scope.Push())
		}
		return nil

	case "ForEach":
		listVal, err := ev.evalExpr(call.ForEachList, scope)
		if err != nil {
			return err
		}
		items, convErr := listVal.AsStringSlice()
		if convErr != nil {
			return &ParseError{Code: ErrUnexpectedCharInValue, Row: call.Row, Col: call.Col, Message: convErr.Error()}
		}
		for _, item := range items {
			iter := scope.Push()
			iter.Set(call.ForEachVar, StringValue(item))
			if err := ev.Run(call.Body, iter); err != nil {
				return err
			}
		}
		return nil

	default:
		builder, ok := ev.builders[call.Name]
		if !ok {
			return &ParseError{Code: ErrUnknownFunction, Row: call.Row, Col: call.Col,
				Message: fmt.Sprintf("unknown function %q", call.Name)}
		}
		child := scope.Push()
		if err := ev.Run(call.Body, child); err != nil {
			return err
		}
		return builder(ev, call, child)
	}
}

func (ev *Evaluator) evalExpr(e Expr, scope *Scope) (Value, *ParseError) {
	switch x := e.(type) {
	case *StringExpr:
		if x.NoSubstitute {
			return StringValue(x.Raw), nil
		}
		resolved, err := substitute(x.Raw, scope, x.Row, x.Col)
		if err != nil {
			return Value{}, err
		}
		return StringValue(resolved), nil
	case *IntExpr:
		return IntValue(x.Value), nil
	case *BoolExpr:
		return BoolValue(x.Value), nil
	case *VarRefExpr:
		v, ok := scope.Get(x.Name)
		if !ok {
			return Value{}, &ParseError{Code: ErrUnknownVariable, Row: x.Row, Col: x.Col,
				Message: fmt.Sprintf("undefined variable %q", x.Name)}
		}
		return v, nil
	case *ArrayExpr:
		return ev.evalArray(x, scope)
	case *StructExpr:
		child := scope.Push()
		if err := ev.Run(x.Body, child); err != nil {
			return Value{}, err
		}
		st := NewStruct()
		for name, v := range child.vars {
			st.Set(name, v)
		}
		return StructValue(st), nil
	default:
		return Value{}, &ParseError{Message: "unhandled expression type"}
	}
}

func (ev *Evaluator) evalArray(x *ArrayExpr, scope *Scope) (Value, *ParseError) {
	if len(x.Elements) == 0 {
		return StringArrayValue(nil), nil
	}
	var first Value
	var strs []string
	var structs []*Struct
	isStruct := false
	for i, elemExpr := range x.Elements {
		v, err := ev.evalExpr(elemExpr, scope)
		if err != nil {
			return Value{}, err
		}
		if i == 0 {
			first = v
			isStruct = v.Kind == KindStruct
		} else if (v.Kind == KindStruct) != isStruct {
			return Value{}, &ParseError{Code: ErrCannotConcatenate, Row: x.Row, Col: x.Col,
				Message: "array elements must be all strings or all structs, never mixed"}
		}
		if isStruct {
			structs = append(structs, v.Struct)
		} else {
			strs = append(strs, v.Str)
		}
	}
	_ = first
	if isStruct {
		return Value{Kind: KindArrayOfStructs, Structs: structs}, nil
	}
	return StringArrayValue(strs), nil
}

// substitute resolves every "$Name$" marker in raw against scope, then
// converts escapedDollarSentinel bytes (see lexer.go) back to literal '$'.
func substitute(raw string, scope *Scope, row, col int) (string, *ParseError) {
	var sb strings.Builder
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c == '$' {
			end := strings.IndexByte(raw[i+1:], '$')
			if end < 0 {
				return "", &ParseError{Code: ErrUnexpectedCharInValue, Row: row, Col: col,
					Message: "unterminated '$' substitution marker"}
			}
			name := raw[i+1 : i+1+end]
			v, ok := scope.Get(name)
			if !ok {
				return "", &ParseError{Code: ErrUnknownVariable, Row: row, Col: col,
					Message: fmt.Sprintf("undefined variable %q in substitution", name)}
			}
			sb.WriteString(displayValue(v))
			i = i + 1 + end + 1
			continue
		}
		if c == escapedDollarSentinel {
			sb.WriteByte('$')
			i++
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), nil
}

func displayValue(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindArrayOfStrings:
		return "[" + strings.Join(v.Strs, ", ") + "]"
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

func truthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str != ""
	case KindInt:
		return v.Int != 0
	case KindArrayOfStrings:
		return len(v.Strs) > 0
	default:
		return false
	}
}
