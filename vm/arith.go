package vm

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ouros-lang/ouros/heap"
)

// nativeNumeric reports whether v is a concrete built-in numeric the fast
// path can operate on directly (spec §4.4.2 step 1); bool counts as an
// int, matching Python's numeric tower.
func nativeNumeric(v heap.Value) bool {
	return v.Kind == heap.KindInt || v.Kind == heap.KindFloat || v.Kind == heap.KindBool
}

func (vm *VM) asFloat(v heap.Value) (float64, bool) {
	switch v.Kind {
	case heap.KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case heap.KindInt:
		_, obj, err := vm.Heap.Read(v.Id)
		if err != nil {
			return 0, false
		}
		f := new(big.Float).SetInt(obj.Int)
		out, _ := f.Float64()
		return out, true
	case heap.KindFloat:
		_, obj, err := vm.Heap.Read(v.Id)
		if err != nil {
			return 0, false
		}
		return obj.Float, true
	}
	return 0, false
}

func (vm *VM) asBigInt(v heap.Value) (*big.Int, bool) {
	switch v.Kind {
	case heap.KindBool:
		if v.Bool {
			return big.NewInt(1), true
		}
		return big.NewInt(0), true
	case heap.KindInt:
		_, obj, err := vm.Heap.Read(v.Id)
		if err != nil {
			return nil, false
		}
		return obj.Int, true
	}
	return nil, false
}

func (vm *VM) isFloatKind(v heap.Value) bool { return v.Kind == heap.KindFloat }

// fastArith implements the numeric fast path for +, -, *, and the
// division family, when both operands are int/float/bool. Returns
// (result, true, nil) on success, (_, false, nil) when the fast path
// doesn't apply (falls through to dunder dispatch), or (_, _, err) on a
// genuine arithmetic error (e.g. division by zero).
func (vm *VM) fastArith(op string, l, r heap.Value) (heap.Value, bool, *PyError) {
	if !nativeNumeric(l) || !nativeNumeric(r) {
		return heap.Value{}, false, nil
	}
	bothInt := (l.Kind == heap.KindInt || l.Kind == heap.KindBool) && (r.Kind == heap.KindInt || r.Kind == heap.KindBool)

	if bothInt && op != "/" {
		lb, _ := vm.asBigInt(l)
		rb, _ := vm.asBigInt(r)
		result := new(big.Int)
		switch op {
		case "+":
			result.Add(lb, rb)
		case "-":
			result.Sub(lb, rb)
		case "*":
			result.Mul(lb, rb)
		case "//":
			if rb.Sign() == 0 {
				return heap.Value{}, true, vm.NewExceptionMsg("ZeroDivisionError", "integer division or modulo by zero")
			}
			result.Div(lb, rb) // Euclidean, matches Python's floor-division sign rule for big.Int's Div
		case "%":
			if rb.Sign() == 0 {
				return heap.Value{}, true, vm.NewExceptionMsg("ZeroDivisionError", "integer modulo by zero")
			}
			result.Mod(lb, rb)
		case "**":
			if rb.Sign() < 0 {
				lf, _ := vm.asFloat(l)
				rf, _ := vm.asFloat(r)
				return vm.floatValue(math.Pow(lf, rf)), true, nil
			}
			result.Exp(lb, rb, nil)
		case "<<":
			if rb.Sign() < 0 {
				return heap.Value{}, true, vm.NewExceptionMsg("ValueError", "negative shift count")
			}
			result.Lsh(lb, uint(rb.Uint64()))
		case ">>":
			if rb.Sign() < 0 {
				return heap.Value{}, true, vm.NewExceptionMsg("ValueError", "negative shift count")
			}
			result.Rsh(lb, uint(rb.Uint64()))
		case "&":
			result.And(lb, rb)
		case "|":
			result.Or(lb, rb)
		case "^":
			result.Xor(lb, rb)
		default:
			return heap.Value{}, false, nil
		}
		return heap.HeapRef(heap.KindInt, vm.Heap.NewInt(result)), true, nil
	}

	lf, _ := vm.asFloat(l)
	rf, _ := vm.asFloat(r)
	switch op {
	case "+":
		return vm.floatValue(lf + rf), true, nil
	case "-":
		return vm.floatValue(lf - rf), true, nil
	case "*":
		return vm.floatValue(lf * rf), true, nil
	case "/":
		if rf == 0 {
			return heap.Value{}, true, vm.NewExceptionMsg("ZeroDivisionError", "division by zero")
		}
		return vm.floatValue(lf / rf), true, nil
	case "//":
		if rf == 0 {
			return heap.Value{}, true, vm.NewExceptionMsg("ZeroDivisionError", "float floor division by zero")
		}
		return vm.floatValue(math.Floor(lf / rf)), true, nil
	case "%":
		if rf == 0 {
			return heap.Value{}, true, vm.NewExceptionMsg("ZeroDivisionError", "float modulo")
		}
		return vm.floatValue(math.Mod(lf, rf)), true, nil
	case "**":
		return vm.floatValue(math.Pow(lf, rf)), true, nil
	default:
		return heap.Value{}, false, nil
	}
}

func (vm *VM) floatValue(f float64) heap.Value {
	return heap.HeapRef(heap.KindFloat, vm.Heap.Alloc(heap.KindFloat, heap.Object{Float: f}))
}

// fastCompareNumeric implements the numeric-cohort ordering fast path so
// that e.g. `1 < 2.5` never touches dispatch, and gives True == 1 == 1.0
// the identity-normalized equality spec §4.1 requires for hashing to stay
// consistent with equality.
func (vm *VM) fastCompareNumeric(op string, l, r heap.Value) (bool, bool) {
	if !nativeNumeric(l) || !nativeNumeric(r) {
		return false, false
	}
	lf, _ := vm.asFloat(l)
	rf, _ := vm.asFloat(r)
	switch op {
	case "==":
		return lf == rf, true
	case "!=":
		return lf != rf, true
	case "<":
		return lf < rf, true
	case "<=":
		return lf <= rf, true
	case ">":
		return lf > rf, true
	case ">=":
		return lf >= rf, true
	default:
		return false, false
	}
}

// ReprFloat formats a float the way spec §4.2/§8 requires: -0.0, inf,
// nan, and minimal round-trip decimal digits.
func ReprFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := fmt.Sprintf("%g", f)
	if f == math.Trunc(f) && !containsExp(s) {
		s += ".0"
	}
	return s
}

func containsExp(s string) bool {
	for _, r := range s {
		if r == 'e' || r == 'E' {
			return true
		}
	}
	return false
}
