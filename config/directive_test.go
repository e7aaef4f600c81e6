package config

import "testing"

func TestStripConditionalsDefineAndIf(t *testing.T) {
	defines := map[string]bool{}
	src := "#define FOO\n#if FOO\n.A = \"yes\"\n#else\n.A = \"no\"\n#endif\n"
	out, err := stripConditionals("test.bff", src, defines)
	if err != nil {
		t.Fatalf("strip error: %v", err)
	}
	p := NewParser("test.bff", out)
	stmts, perr := p.Parse()
	if perr != nil {
		t.Fatalf("parse error: %v", perr)
	}
	ev := NewEvaluator()
	scope := NewScope()
	if err := ev.Run(stmts, scope); err != nil {
		t.Fatalf("eval error: %v", err)
	}
	v, _ := scope.Get("A")
	if v.Str != "yes" {
		t.Fatalf("got %q, want %q", v.Str, "yes")
	}
}

func TestStripConditionalsPreservesLineCount(t *testing.T) {
	defines := map[string]bool{}
	src := "#if NOPE\n.A = \"x\"\n#endif\n.B = \"y\"\n"
	out, err := stripConditionals("test.bff", src, defines)
	if err != nil {
		t.Fatalf("strip error: %v", err)
	}
	p := NewParser("test.bff", out)
	stmts, perr := p.Parse()
	if perr != nil {
		t.Fatalf("parse error: %v", perr)
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1 (the #if block is skipped)", len(stmts))
	}
	assign := stmts[0].(*AssignStmt)
	if assign.Row != 4 {
		t.Fatalf("got row %d, want row 4 (line count must survive blanking)", assign.Row)
	}
}

func TestStripConditionalsUnterminatedIfErrors(t *testing.T) {
	_, err := stripConditionals("test.bff", "#if FOO\n.A = \"x\"\n", map[string]bool{})
	if err == nil || err.Code != ErrUnterminatedIfDirective {
		t.Fatalf("expected ErrUnterminatedIfDirective, got %v", err)
	}
}

func TestStripConditionalsElseWithoutIfErrors(t *testing.T) {
	_, err := stripConditionals("test.bff", "#else\n", map[string]bool{})
	if err == nil {
		t.Fatal("expected error for #else without #if")
	}
}

func TestEvalBoolExprAndOrNot(t *testing.T) {
	defines := map[string]bool{"A": true, "B": false}
	cases := []struct {
		expr string
		want bool
	}{
		{"A && !B", true},
		{"A || B", true},
		{"!A", false},
		{"(A && B) || !B", true},
	}
	for _, c := range cases {
		got, err := evalBoolExpr("test.bff", 1, c.expr, defines, ".")
		if err != nil {
			t.Fatalf("%q: %v", c.expr, err)
		}
		if got != c.want {
			t.Errorf("%q: got %v, want %v", c.expr, got, c.want)
		}
	}
}
