package vm_test

import "testing"

func TestReprLiterals(t *testing.T) {
	cases := map[string]string{
		"1":               "1",
		"1.5":             "1.5",
		"2.0":             "2.0",
		"True":            "True",
		"False":           "False",
		"None":            "None",
		`"abc"`:           "'abc'",
		`'it\'s'`:         `"it's"`,
		"[1, 2, 3]":       "[1, 2, 3]",
		"(1,)":            "(1,)",
		"(1, 2)":          "(1, 2)",
		`{"a": 1}`:        "{'a': 1}",
		"b\"xy\"":         "b'xy'",
	}
	for code, want := range cases {
		if got := runExpr(t, code); got != want {
			t.Errorf("repr(%s) = %s, want %s", code, got, want)
		}
	}
}

func TestStrUnquotesStrings(t *testing.T) {
	chunk := compileOrFatal(t, `str("hello")`)
	machine := newVM()
	result, perr := machine.Run(chunk, nil, nil)
	if perr != nil {
		t.Fatal(perr)
	}
	s, perr := machine.Str(result)
	if perr != nil {
		t.Fatal(perr)
	}
	if s != "hello" {
		t.Errorf("str(\"hello\") via Str = %s, want hello", s)
	}
}

func TestReprEmptySetAndFrozenset(t *testing.T) {
	if got := runExpr(t, "set()"); got != "set()" {
		t.Errorf("set() = %s, want set()", got)
	}
	if got := runExpr(t, "frozenset()"); got != "frozenset()" {
		t.Errorf("frozenset() = %s, want frozenset()", got)
	}
}
