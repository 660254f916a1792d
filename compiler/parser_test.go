package compiler

import "testing"

func parseOrFatal(t *testing.T, src string) *Module {
	t.Helper()
	mod, err := ParseModule(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return mod
}

func TestParserLiterals(t *testing.T) {
	cases := []struct {
		src   string
		check func(Expr) bool
	}{
		{"42", func(e Expr) bool { return e.(*NumLiteral).Int.Int64() == 42 }},
		{"3.14", func(e Expr) bool { return e.(*NumLiteral).IsFloat && e.(*NumLiteral).Float == 3.14 }},
		{`"hi"`, func(e Expr) bool { return e.(*StrLiteral).Value == "hi" }},
		{"True", func(e Expr) bool { return e.(*BoolLiteral).Value }},
		{"False", func(e Expr) bool { return !e.(*BoolLiteral).Value }},
		{"None", func(e Expr) bool { _, ok := e.(*NoneLiteral); return ok }},
	}
	for _, c := range cases {
		mod := parseOrFatal(t, c.src)
		if len(mod.Body) != 1 {
			t.Fatalf("parse %q: got %d statements, want 1", c.src, len(mod.Body))
		}
		es, ok := mod.Body[0].(*ExprStmt)
		if !ok {
			t.Fatalf("parse %q: body[0] = %T, want *ExprStmt", c.src, mod.Body[0])
		}
		if !c.check(es.Value) {
			t.Errorf("parse %q: unexpected value %#v", c.src, es.Value)
		}
	}
}

func TestParserBinOpPrecedence(t *testing.T) {
	mod := parseOrFatal(t, "1 + 2 * 3")
	es := mod.Body[0].(*ExprStmt)
	top, ok := es.Value.(*BinOp)
	if !ok || top.Op != "+" {
		t.Fatalf("top op = %#v, want + at the root (lower precedence binds looser)", es.Value)
	}
	right, ok := top.Right.(*BinOp)
	if !ok || right.Op != "*" {
		t.Fatalf("right = %#v, want 2 * 3", top.Right)
	}
}

func TestParserAssign(t *testing.T) {
	mod := parseOrFatal(t, "x = 1")
	assign, ok := mod.Body[0].(*Assign)
	if !ok {
		t.Fatalf("body[0] = %T, want *Assign", mod.Body[0])
	}
	if len(assign.Targets) != 1 {
		t.Fatalf("targets = %v, want 1", assign.Targets)
	}
	name, ok := assign.Targets[0].(*Name)
	if !ok || name.Id != "x" {
		t.Fatalf("target = %#v, want Name(x)", assign.Targets[0])
	}
}

func TestParserChainedAssign(t *testing.T) {
	mod := parseOrFatal(t, "a = b = 1")
	assign := mod.Body[0].(*Assign)
	if len(assign.Targets) != 2 {
		t.Fatalf("targets = %v, want 2", assign.Targets)
	}
}

func TestParserIfElif(t *testing.T) {
	src := "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n"
	mod := parseOrFatal(t, src)
	ifStmt, ok := mod.Body[0].(*If)
	if !ok {
		t.Fatalf("body[0] = %T, want *If", mod.Body[0])
	}
	if len(ifStmt.Orelse) != 1 {
		t.Fatalf("orelse = %v, want 1 (the elif desugars to a nested If)", ifStmt.Orelse)
	}
	if _, ok := ifStmt.Orelse[0].(*If); !ok {
		t.Fatalf("orelse[0] = %T, want *If (elif)", ifStmt.Orelse[0])
	}
}

func TestParserFunctionDef(t *testing.T) {
	src := "def add(a, b):\n    return a + b\n"
	mod := parseOrFatal(t, src)
	fn, ok := mod.Body[0].(*FunctionDef)
	if !ok {
		t.Fatalf("body[0] = %T, want *FunctionDef", mod.Body[0])
	}
	if fn.Name != "add" {
		t.Errorf("name = %q, want add", fn.Name)
	}
	if len(fn.Args.Args) != 2 || fn.Args.Args[0] != "a" || fn.Args.Args[1] != "b" {
		t.Errorf("args = %v, want [a b]", fn.Args.Args)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("body = %v, want 1 statement", fn.Body)
	}
	if _, ok := fn.Body[0].(*Return); !ok {
		t.Fatalf("body[0] = %T, want *Return", fn.Body[0])
	}
}

func TestParserClassDef(t *testing.T) {
	src := "class Point:\n    def __init__(self, x):\n        self.x = x\n"
	mod := parseOrFatal(t, src)
	cls, ok := mod.Body[0].(*ClassDef)
	if !ok {
		t.Fatalf("body[0] = %T, want *ClassDef", mod.Body[0])
	}
	if cls.Name != "Point" {
		t.Errorf("name = %q, want Point", cls.Name)
	}
	if len(cls.Body) != 1 {
		t.Fatalf("class body = %v, want 1 method", cls.Body)
	}
}

func TestParserForLoop(t *testing.T) {
	src := "for x in items:\n    total = total + x\n"
	mod := parseOrFatal(t, src)
	forStmt, ok := mod.Body[0].(*For)
	if !ok {
		t.Fatalf("body[0] = %T, want *For", mod.Body[0])
	}
	if name, ok := forStmt.Target.(*Name); !ok || name.Id != "x" {
		t.Errorf("target = %#v, want Name(x)", forStmt.Target)
	}
}

func TestParserTryExcept(t *testing.T) {
	src := "try:\n    risky()\nexcept ValueError as e:\n    handle(e)\n"
	mod := parseOrFatal(t, src)
	tryStmt, ok := mod.Body[0].(*Try)
	if !ok {
		t.Fatalf("body[0] = %T, want *Try", mod.Body[0])
	}
	if len(tryStmt.Handlers) != 1 {
		t.Fatalf("handlers = %v, want 1", tryStmt.Handlers)
	}
	if tryStmt.Handlers[0].Name != "e" {
		t.Errorf("handler name = %q, want e", tryStmt.Handlers[0].Name)
	}
}

func TestParserListDictCall(t *testing.T) {
	mod := parseOrFatal(t, "f([1, 2], {\"a\": 1})")
	es := mod.Body[0].(*ExprStmt)
	call, ok := es.Value.(*Call)
	if !ok {
		t.Fatalf("value = %T, want *Call", es.Value)
	}
	if len(call.Args) != 2 {
		t.Fatalf("args = %v, want 2", call.Args)
	}
	if _, ok := call.Args[0].(*ListExpr); !ok {
		t.Errorf("args[0] = %T, want *ListExpr", call.Args[0])
	}
	if _, ok := call.Args[1].(*DictExpr); !ok {
		t.Errorf("args[1] = %T, want *DictExpr", call.Args[1])
	}
}

func TestParserLambda(t *testing.T) {
	mod := parseOrFatal(t, "f = lambda x: x + 1")
	assign := mod.Body[0].(*Assign)
	lam, ok := assign.Value.(*Lambda)
	if !ok {
		t.Fatalf("value = %T, want *Lambda", assign.Value)
	}
	if len(lam.Args.Args) != 1 || lam.Args.Args[0] != "x" {
		t.Errorf("args = %v, want [x]", lam.Args.Args)
	}
}

func TestParserInvalidIndentationErrors(t *testing.T) {
	_, err := ParseModule("if x:\n    y = 1\n  z = 2\n")
	if err == nil {
		t.Fatal("expected an error for a dedent to a width not on the indent stack")
	}
}
