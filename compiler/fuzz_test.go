package compiler

import "testing"

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		`( ) [ ] { } : , .`,
		`42`, `0`, `-123`, `0x1F`, `0o17`, `0b101`,
		`3.14`, `0.5`, `-2.5`, `1e10`, `1.5e-3`, `2.0E+5`,
		`"hello"`, `'hello world'`, `""`, `'it\'s'`,
		`b"bytes"`, `b'more bytes'`,
		`foo`, `FooBar`, `foo123`, `_private`, `self`, `True`, `False`, `None`,
		`def`, `class`, `return`, `yield`, `lambda`, `try`, `except`, `finally`,
		`+`, `-`, `*`, `/`, `//`, `%`, `**`, `<`, `>`, `<=`, `>=`, `==`, `!=`,
		`# a comment`, "x = 1  # trailing comment\n",
		"x = 42\n",
		"def f(x):\n    return x + 1\n",
		"if a:\n    b\nelse:\n    c\n",
		"for x in xs:\n    pass\n",
		`...`, `...#`,
		``,
		`   `, "\t\n\r",
		`+-*/\~<>=%|&?!,`,
		"'unterminated",
		`"""triple"""`,
		"こんにちは", "café", "naïve",
		"\t\tif x:\n  y = 1\n",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		lx, err := NewLexer(data)
		if err != nil {
			return // lexical errors are fine, panics are not
		}
		for i := 0; i < len(data)+100; i++ {
			tok := lx.NextToken()
			if tok.Type == TokEOF {
				break
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: ensure the parser never panics on arbitrary input. Parse
// errors are acceptable; panics are not.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	seeds := []string{
		`42`, `-5`, `3.14`, `"hello"`, `True`, `None`,
		`foo`, `self`,
		`a + b * c`,
		`arr[1]`, `arr[1:2]`,
		`x = 42`, `x = y = z`,
		`lambda x: x + 1`,
		"def f(x):\n    return x + 1\n",
		"if a:\n    b\nelif c:\n    d\nelse:\n    e\n",
		"for x in xs:\n    pass\n",
		"while True:\n    break\n",
		"class C:\n    def m(self):\n        return 1\n",
		"try:\n    f()\nexcept ValueError as e:\n    pass\nfinally:\n    pass\n",
		`[1, 2, 3]`, `(1, 2, 3)`, `{1: 2}`, `{1, 2, 3}`,
		`f(1, 2, a=3)`,
		`a.b.c`,
		``, `(`, `)`, `[`, `]`, `{`, `}`, `:`, `.`, `,`,
		"def f(:\n",
		"if :\n",
		"class :\n",
		"def f(x):\n  y = 1\n    z = 2\n",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()
		_, _ = ParseModule(data)
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: feed arbitrary module bodies through the full pipeline
// (parse -> resolve -> codegen). Compile errors are fine, panics are not.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		`42`,
		`"hello"`,
		`None`,
		`True`,
		`self`,
		`3 + 4`,
		"x = 42\nx\n",
		"def f(x):\n    return x + 1\nf(5)\n",
		"def fib(n):\n    if n < 2: return n\n    return fib(n - 1) + fib(n - 2)\nfib(10)\n",
		"class C:\n    def m(self):\n        return 1\nC().m()\n",
		`[1, 2, 3]`,
		`{1: 2}`,
		"for x in [1, 2]:\n    pass\n",
		"try:\n    1 / 0\nexcept ZeroDivisionError:\n    pass\n",
		"def gen():\n    yield 1\n    yield 2\n",
		"lambda x: x + 1\n",
		``, "def f():\n    pass\n",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Compile panicked on input %q: %v", data, r)
			}
		}()
		_, _ = Compile(data, CompileOptions{ScriptName: "fuzz"})
	})
}

// ---------------------------------------------------------------------------
// FuzzSemantic: ensure scope resolution never panics on arbitrary parseable
// input. Unresolved/odd scoping is acceptable; panics are bugs.
// ---------------------------------------------------------------------------

func FuzzSemantic(f *testing.F) {
	seeds := []string{
		"def f():\n    return 1\n",
		"def f(x, y):\n    return x + y\n",
		"x = 1\ndef f():\n    global x\n    x = 2\n",
		"def outer():\n    x = 1\n    def inner():\n        nonlocal x\n        x = 2\n    return inner\n",
		"class C:\n    x = 1\n    def m(self):\n        return x\n",
		"def f():\n    return undefined_name\n",
		"def f():\n    def g():\n        def h():\n            return 1\n        return h\n    return g\n",
		"lambda x: lambda y: x + y\n",
		"def f(a, b, c):\n    global a\n    nonlocal b\n",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Resolve panicked on input %q: %v", data, r)
			}
		}()
		mod, err := ParseModule(data)
		if err != nil || mod == nil {
			return // parse errors are fine
		}
		_ = Resolve(mod)
	})
}
