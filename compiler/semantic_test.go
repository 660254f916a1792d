package compiler

import "testing"

func resolveOrFatal(t *testing.T, src string) (*Module, *Resolution) {
	t.Helper()
	mod, err := ParseModule(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return mod, Resolve(mod)
}

func findFunc(mod *Module, name string) *FunctionDef {
	for _, st := range mod.Body {
		if fn, ok := st.(*FunctionDef); ok && fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestResolveSimpleLocal(t *testing.T) {
	src := "def f():\n    x = 1\n    return x\n"
	mod, res := resolveOrFatal(t, src)
	fn := findFunc(mod, "f")
	scope := res.byFunc[fn]
	if !scope.locals["x"] {
		t.Errorf("locals = %v, want x to be local", scope.locals)
	}
	if len(scope.freeVars) != 0 {
		t.Errorf("freeVars = %v, want none", scope.freeVars)
	}
}

func TestResolveClosureCapturesOuterLocal(t *testing.T) {
	src := "def outer():\n    x = 1\n    def inner():\n        return x\n    return inner\n"
	mod, res := resolveOrFatal(t, src)
	outer := findFunc(mod, "outer")
	outerScope := res.byFunc[outer]
	if !outerScope.cellVars["x"] {
		t.Errorf("outer cellVars = %v, want x (captured by inner)", outerScope.cellVars)
	}

	var inner *FunctionDef
	for _, st := range outer.Body {
		if fn, ok := st.(*FunctionDef); ok {
			inner = fn
		}
	}
	if inner == nil {
		t.Fatal("did not find nested function inner")
	}
	innerScope := res.byFunc[inner]
	if len(innerScope.freeVars) != 1 || innerScope.freeVars[0] != "x" {
		t.Errorf("inner freeVars = %v, want [x]", innerScope.freeVars)
	}
}

func TestResolveGlobalDeclSkipsLocal(t *testing.T) {
	src := "counter = 0\ndef bump():\n    global counter\n    counter = counter + 1\n"
	mod, res := resolveOrFatal(t, src)
	fn := findFunc(mod, "bump")
	scope := res.byFunc[fn]
	if scope.locals["counter"] {
		t.Errorf("locals = %v, want counter excluded (declared global)", scope.locals)
	}
	if !scope.globalDecl["counter"] {
		t.Errorf("globalDecl = %v, want counter", scope.globalDecl)
	}
}

func TestResolveNonlocalReachesEnclosingFunction(t *testing.T) {
	src := "def outer():\n    x = 1\n    def inner():\n        nonlocal x\n        x = 2\n    inner()\n    return x\n"
	mod, res := resolveOrFatal(t, src)
	outer := findFunc(mod, "outer")
	var inner *FunctionDef
	for _, st := range outer.Body {
		if fn, ok := st.(*FunctionDef); ok {
			inner = fn
		}
	}
	innerScope := res.byFunc[inner]
	if !innerScope.nonlocalDecl["x"] {
		t.Errorf("nonlocalDecl = %v, want x", innerScope.nonlocalDecl)
	}
	if len(innerScope.freeVars) != 1 || innerScope.freeVars[0] != "x" {
		t.Errorf("inner freeVars = %v, want [x]", innerScope.freeVars)
	}
}

func TestResolveClassBodyInvisibleToNestedMethodFreeVars(t *testing.T) {
	src := "class C:\n    label = 1\n    def m(self):\n        return label\n"
	mod, res := resolveOrFatal(t, src)
	cls := mod.Body[0].(*ClassDef)
	var method *FunctionDef
	for _, st := range cls.Body {
		if fn, ok := st.(*FunctionDef); ok {
			method = fn
		}
	}
	if method == nil {
		t.Fatal("did not find method m")
	}
	// label is referenced but not bound anywhere reachable through an
	// enclosing function scope (the class body isn't visible to nested
	// methods), so it resolves as a module global/builtin lookup, not a
	// captured free variable.
	if fv := res.byFunc[method].freeVars; len(fv) != 0 {
		t.Errorf("method freeVars = %v, want none", fv)
	}
}

func TestResolveParamsAreLocal(t *testing.T) {
	src := "def f(a, b):\n    return a + b\n"
	mod, res := resolveOrFatal(t, src)
	fn := findFunc(mod, "f")
	scope := res.byFunc[fn]
	if !scope.locals["a"] || !scope.locals["b"] {
		t.Errorf("locals = %v, want a and b", scope.locals)
	}
}
