package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ouros-lang/ouros/heap"
)

// Repr renders v as Python's repr() would (spec §4.2): unambiguous where
// possible, round-trippable for literals, falling through to a user
// __repr__ override for instances and to the default "<ClassName object>"
// shape when none is defined.
func (vm *VM) Repr(v heap.Value) (string, *PyError) {
	return vm.render(v, true, map[heap.HeapId]bool{})
}

// Str renders v as Python's str() would: identical to Repr except that
// strings are unquoted and instances prefer __str__ over __repr__.
func (vm *VM) Str(v heap.Value) (string, *PyError) {
	return vm.render(v, false, map[heap.HeapId]bool{})
}

func (vm *VM) render(v heap.Value, repr bool, seen map[heap.HeapId]bool) (string, *PyError) {
	switch v.Kind {
	case heap.KindNone:
		return "None", nil
	case heap.KindBool:
		if v.Bool {
			return "True", nil
		}
		return "False", nil
	case heap.KindEllipsis:
		return "Ellipsis", nil
	case heap.KindNotImplemented:
		return "NotImplemented", nil
	}

	if seen[v.Id] {
		return "...", nil
	}

	_, obj, err := vm.Heap.Read(v.Id)
	if err != nil {
		return "", vm.NewExceptionMsg("RuntimeError", err.Error())
	}

	switch v.Kind {
	case heap.KindInt:
		return obj.Int.String(), nil
	case heap.KindFloat:
		return ReprFloat(obj.Float), nil
	case heap.KindComplex:
		return reprComplex(obj.Complex), nil
	case heap.KindStr:
		if repr {
			return pyQuote(obj.Str), nil
		}
		return obj.Str, nil
	case heap.KindBytes:
		return "b" + pyQuote(string(obj.Bytes)), nil
	case heap.KindByteArray:
		return "bytearray(b" + pyQuote(string(obj.Bytes)) + ")", nil
	case heap.KindTuple:
		return vm.renderSeq(obj.Elems, "(", ")", len(obj.Elems) == 1, seen, v.Id)
	case heap.KindList:
		return vm.renderSeq(obj.Elems, "[", "]", false, seen, v.Id)
	case heap.KindSet:
		if len(obj.Elems) == 0 {
			return "set()", nil
		}
		return vm.renderSeq(obj.Elems, "{", "}", false, seen, v.Id)
	case heap.KindFrozenSet:
		inner, perr := vm.renderSeq(obj.Elems, "{", "}", false, seen, v.Id)
		if perr != nil {
			return "", perr
		}
		if len(obj.Elems) == 0 {
			inner = "()"
		}
		return "frozenset(" + inner + ")", nil
	case heap.KindDict:
		return vm.renderDict(obj.Dict, seen, v.Id)
	case heap.KindSlice:
		return vm.renderSlice(obj.Slice)
	case heap.KindRange:
		return fmt.Sprintf("range(%s, %s, %s)", obj.Range.Start, obj.Range.Stop, obj.Range.Step), nil
	case heap.KindFunction:
		name := "<lambda>"
		if obj.Function != nil {
			name = obj.Function.Name
		}
		return fmt.Sprintf("<function %s>", name), nil
	case heap.KindBoundMethod:
		return "<bound method>", nil
	case heap.KindClass:
		name := "?"
		if obj.Class != nil {
			name = obj.Class.Name
		}
		return fmt.Sprintf("<class '%s'>", name), nil
	case heap.KindModule:
		name := "?"
		if obj.Module != nil {
			name = obj.Module.Name
		}
		return fmt.Sprintf("<module '%s'>", name), nil
	case heap.KindIterator:
		return "<iterator>", nil
	case heap.KindGenerator:
		return "<generator>", nil
	case heap.KindCoroutine:
		return "<coroutine>", nil
	case heap.KindExitStack:
		return "<contextlib.ExitStack>", nil
	case heap.KindException:
		if !repr && obj.Exception != nil && len(obj.Exception.Args) <= 1 {
			if len(obj.Exception.Args) == 0 {
				return "", nil
			}
			return vm.render(obj.Exception.Args[0], false, seen)
		}
		return vm.renderException(obj.Exception, seen, v.Id)
	case heap.KindInstance:
		return vm.renderInstance(v, obj, repr, seen)
	}
	return fmt.Sprintf("<%s object>", v.Kind), nil
}

// renderInstance prefers the user's __repr__ (and, for Str, __str__ first)
// before falling back to a default "<ClassName object at id>" shape,
// matching Python's object.__repr__/object.__str__ defaults.
func (vm *VM) renderInstance(v heap.Value, obj *heap.Object, repr bool, seen map[heap.HeapId]bool) (string, *PyError) {
	if obj.Instance == nil {
		return "<instance>", nil
	}
	dunder := "__repr__"
	if !repr {
		dunder = "__str__"
	}
	entry, err := vm.Heap.LookupTypeDunder(obj.Instance.Class, dunder)
	if err == nil && !entry.Absent {
		seen[v.Id] = true
		result, perr := vm.CallValue(entry.Value, []heap.Value{v}, nil)
		delete(seen, v.Id)
		if perr != nil {
			return "", perr
		}
		if result.Kind != heap.KindStr {
			return "", vm.NewExceptionMsg("TypeError", fmt.Sprintf("%s returned non-string", dunder))
		}
		_, rObj, rerr := vm.Heap.Read(result.Id)
		if rerr != nil {
			return "", vm.NewExceptionMsg("RuntimeError", rerr.Error())
		}
		return rObj.Str, nil
	}
	if !repr {
		if s, perr := vm.render(v, true, seen); perr == nil {
			return s, nil
		}
	}
	name, _ := vm.Heap.ClassName(obj.Instance.Class)
	return fmt.Sprintf("<%s object at 0x%08x>", name, uint32(v.Id)), nil
}

func (vm *VM) renderSeq(elems []heap.Value, open, close string, trailingComma bool, seen map[heap.HeapId]bool, self heap.HeapId) (string, *PyError) {
	seen[self] = true
	defer delete(seen, self)
	parts := make([]string, len(elems))
	for i, e := range elems {
		s, perr := vm.render(e, true, seen)
		if perr != nil {
			return "", perr
		}
		parts[i] = s
	}
	body := strings.Join(parts, ", ")
	if trailingComma {
		body += ","
	}
	return open + body + close, nil
}

func (vm *VM) renderDict(d *heap.DictObj, seen map[heap.HeapId]bool, self heap.HeapId) (string, *PyError) {
	seen[self] = true
	defer delete(seen, self)
	keys, vals := d.Items()
	parts := make([]string, 0, len(keys))
	for i, k := range keys {
		ks, perr := vm.render(k, true, seen)
		if perr != nil {
			return "", perr
		}
		vs, perr := vm.render(vals[i], true, seen)
		if perr != nil {
			return "", perr
		}
		parts = append(parts, ks+": "+vs)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

func (vm *VM) renderSlice(s heap.SliceVal) (string, *PyError) {
	lo, perr := vm.render(s.Start, true, nil)
	if perr != nil {
		return "", perr
	}
	hi, perr := vm.render(s.Stop, true, nil)
	if perr != nil {
		return "", perr
	}
	st, perr := vm.render(s.Step, true, nil)
	if perr != nil {
		return "", perr
	}
	return fmt.Sprintf("slice(%s, %s, %s)", lo, hi, st), nil
}

func (vm *VM) renderException(e *heap.ExceptionObj, seen map[heap.HeapId]bool, self heap.HeapId) (string, *PyError) {
	if e == nil {
		return "<exception>", nil
	}
	name, _ := vm.Heap.ClassName(e.Class)
	seen[self] = true
	defer delete(seen, self)
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		s, perr := vm.render(a, true, seen)
		if perr != nil {
			return "", perr
		}
		parts[i] = s
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", ")), nil
}

func reprComplex(c complex128) string {
	re, im := real(c), imag(c)
	if re == 0 {
		return ReprFloat(im) + "j"
	}
	sign := "+"
	imPart := im
	if imPart < 0 {
		sign = "-"
		imPart = -imPart
	}
	return fmt.Sprintf("(%s%s%sj)", ReprFloat(re), sign, ReprFloat(imPart))
}

// pyQuote renders s as a Python string literal, preferring single quotes
// and switching to double quotes only when s contains a single quote but
// no double quote, matching CPython's repr() quote-selection rule.
func pyQuote(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch r {
		case rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if strconv.IsPrint(r) {
				b.WriteRune(r)
			} else {
				fmt.Fprintf(&b, `\x%02x`, r)
			}
		}
	}
	b.WriteByte(quote)
	return b.String()
}
