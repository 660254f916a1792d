package server

import (
	"fmt"
	"math/big"

	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
)

// jsonToValue materializes a decoded JSON value onto machine's heap, so an
// HTTP caller can bind plain JSON (numbers, strings, bools, null, arrays,
// objects) as execute/call_session input variables (spec §6's "inputs"
// map) without reaching into heap internals itself. Only JSON's own shapes
// are supported; anything requiring heap identity (functions, classes,
// instances) has no JSON representation and so can never be sent this way.
func jsonToValue(machine *vm.VM, v any) (heap.Value, error) {
	switch val := v.(type) {
	case nil:
		return heap.None, nil
	case bool:
		return heap.FromBool(val), nil
	case float64:
		if val == float64(int64(val)) {
			return heap.HeapRef(heap.KindInt, machine.Heap.NewInt(big.NewInt(int64(val)))), nil
		}
		return heap.HeapRef(heap.KindFloat, machine.Heap.Alloc(heap.KindFloat, heap.Object{Float: val})), nil
	case string:
		return heap.HeapRef(heap.KindStr, machine.Heap.NewString(val)), nil
	case []any:
		elems := make([]heap.Value, len(val))
		for i, e := range val {
			ev, err := jsonToValue(machine, e)
			if err != nil {
				return heap.Value{}, err
			}
			elems[i] = ev
		}
		return heap.HeapRef(heap.KindList, machine.Heap.Alloc(heap.KindList, heap.Object{Elems: elems})), nil
	case map[string]any:
		dictVal := heap.HeapRef(heap.KindDict, machine.Heap.Alloc(heap.KindDict, heap.Object{Dict: heap.NewDictObj()}))
		for k, e := range val {
			kv := heap.HeapRef(heap.KindStr, machine.Heap.NewString(k))
			ev, err := jsonToValue(machine, e)
			if err != nil {
				return heap.Value{}, err
			}
			if perr := machine.StoreSubscript(dictVal, kv, ev); perr != nil {
				return heap.Value{}, perr
			}
		}
		return dictVal, nil
	default:
		return heap.Value{}, fmt.Errorf("server: unsupported JSON input type %T", v)
	}
}
