package vm_test

import (
	"math/big"
	"testing"

	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
)

func TestControlFlowWhileLoop(t *testing.T) {
	src := "i = 0\ntotal = 0\nwhile i < 5:\n    total = total + i\n    i = i + 1\ntotal\n"
	if got := runExpr(t, src); got != "10" {
		t.Errorf("while-loop sum = %s, want 10", got)
	}
}

func TestControlFlowForLoopOverList(t *testing.T) {
	src := "total = 0\nfor x in [1, 2, 3, 4]:\n    total = total + x\ntotal\n"
	if got := runExpr(t, src); got != "10" {
		t.Errorf("for-loop sum = %s, want 10", got)
	}
}

func TestControlFlowBreakAndContinue(t *testing.T) {
	src := "total = 0\nfor x in [1, 2, 3, 4, 5]:\n    if x == 2:\n        continue\n    if x == 4:\n        break\n    total = total + x\ntotal\n"
	if got := runExpr(t, src); got != "4" {
		t.Errorf("result = %s, want 4 (1 + 3, skipping 2, stopping before 5)", got)
	}
}

func TestRaiseAndExceptCatchesSpecificType(t *testing.T) {
	src := "caught = None\ntry:\n    1 / 0\nexcept ZeroDivisionError as e:\n    caught = str(e)\ncaught\n"
	got := runExpr(t, src)
	if got == "None" {
		t.Errorf("expected ZeroDivisionError to be caught, got %s", got)
	}
}

func TestExceptClauseSkippedWhenTypeMismatches(t *testing.T) {
	chunk := compileOrFatal(t, "try:\n    1 / 0\nexcept ValueError:\n    pass\n")
	machine := newVM()
	_, perr := machine.Run(chunk, nil, nil)
	if perr == nil {
		t.Fatalf("expected ZeroDivisionError to propagate past an unrelated except clause")
	}
}

func TestFinallyAlwaysRuns(t *testing.T) {
	src := "ran = False\ntry:\n    1 / 0\nexcept ZeroDivisionError:\n    pass\nfinally:\n    ran = True\nran\n"
	if got := runExpr(t, src); got != "True" {
		t.Errorf("finally flag = %s, want True", got)
	}
}

func TestUserRaisedExceptionCarriesMessage(t *testing.T) {
	src := "try:\n    raise ValueError('bad input')\nexcept ValueError as e:\n    result = str(e)\nresult\n"
	if got := runExpr(t, src); got != "'bad input'" && got != `bad input` {
		t.Errorf("caught message repr = %s, want it to mention 'bad input'", got)
	}
}

func TestRecursionDepthLimitBreaches(t *testing.T) {
	src := "def f(n):\n    return f(n + 1)\nf(0)\n"
	chunk := compileOrFatal(t, src)
	machine := vm.New(vm.Limits{MaxRecursionDepth: 10})
	_, perr := machine.Run(chunk, nil, nil)
	if perr == nil {
		t.Fatalf("expected unbounded recursion to breach the recursion-depth limit")
	}
}

// TestClassDefinitionAndMethodCall exercises plain obj.method(args)
// dispatch, which requires getattribute to bind the looked-up function
// into a BoundMethod with self already attached — without that binding,
// bump()'s self parameter goes unfilled and BindArguments raises
// TypeError: missing required positional argument: 'self'.
func TestClassDefinitionAndMethodCall(t *testing.T) {
	src := "class Counter:\n    def __init__(self, start):\n        self.n = start\n    def bump(self):\n        self.n = self.n + 1\n        return self.n\nc = Counter(10)\nc.bump()\nc.bump()\n"
	if got := runExpr(t, src); got != "12" {
		t.Errorf("result = %s, want 12", got)
	}
}

// TestDiamondInheritanceFollowsC3LinearizationOrder exercises the exact
// shape a depth-first flatten gets wrong: D and E share base A, and only
// E overrides who(). The correct C3 MRO is [B, D, E, A], so E's override
// is found before D falls through to A's. A naive DFS flatten instead
// produces [B, D, A, E] (A spliced in ahead of E), which would
// incorrectly resolve to A's who() and return 'A'.
func TestDiamondInheritanceFollowsC3LinearizationOrder(t *testing.T) {
	src := "class A:\n    def who(self):\n        return 'A'\nclass D(A):\n    pass\nclass E(A):\n    def who(self):\n        return 'E'\nclass B(D, E):\n    pass\nb = B()\nb.who()\n"
	if got := runExpr(t, src); got != "'E'" {
		t.Errorf("result = %s, want 'E' (C3 MRO [B, D, E, A] must resolve who() through E's override, not fall through to A's)", got)
	}
}

func TestClosureCapturesEnclosingVariable(t *testing.T) {
	src := "def make_adder(n):\n    def add(x):\n        return x + n\n    return add\nadd5 = make_adder(5)\nadd5(10)\n"
	if got := runExpr(t, src); got != "15" {
		t.Errorf("result = %s, want 15", got)
	}
}

func TestGeneratorYieldsValues(t *testing.T) {
	src := "def gen():\n    yield 1\n    yield 2\n    yield 3\ntotal = 0\nfor v in gen():\n    total = total + v\ntotal\n"
	if got := runExpr(t, src); got != "6" {
		t.Errorf("generator sum = %s, want 6", got)
	}
}

func TestExternalCallSuspendsAndResumes(t *testing.T) {
	chunk, err := compiler.Compile("host_double(21)", compiler.CompileOptions{
		ScriptName:    "test",
		ExternalNames: []string{"host_double"},
	})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	machine := newVM()
	_, perr := machine.Run(chunk, nil, nil)
	if perr != nil {
		t.Fatalf("run error before suspension: %v", perr)
	}
	if machine.Suspension.Kind != vm.SuspendExternalCall {
		t.Fatalf("expected the VM to suspend on the external call, got kind %v", machine.Suspension.Kind)
	}
	if machine.Suspension.Call == nil || machine.Suspension.Call.Name != "host_double" {
		t.Fatalf("suspended call = %+v, want name host_double", machine.Suspension.Call)
	}

	intVal := heap.HeapRef(heap.KindInt, machine.Heap.NewInt(big.NewInt(42)))
	result, perr := machine.Resume(intVal)
	if perr != nil {
		t.Fatalf("resume error: %v", perr)
	}
	repr, perr := machine.Repr(result)
	if perr != nil {
		t.Fatalf("repr error: %v", perr)
	}
	if repr != "42" {
		t.Errorf("result after resume = %s, want 42", repr)
	}
}

func TestExternalCallResumeWithExceptionPropagates(t *testing.T) {
	chunk, err := compiler.Compile("host_fail()", compiler.CompileOptions{
		ScriptName:    "test",
		ExternalNames: []string{"host_fail"},
	})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	machine := newVM()
	if _, perr := machine.Run(chunk, nil, nil); perr != nil {
		t.Fatalf("run error before suspension: %v", perr)
	}

	exc := machine.NewExceptionMsg("RuntimeError", "host call failed")
	if _, perr := machine.ResumeWithException(exc); perr == nil {
		t.Errorf("expected the injected exception to propagate out of Resume")
	}
}
