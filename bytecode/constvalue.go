package bytecode

import "github.com/ouros-lang/ouros/heap"

// ToValue materializes a compile-time Const into a heap Value, interning
// where the kind calls for it. Code constants are never materialized this
// way; MAKE_FUNCTION builds the Function object directly from the Chunk.
func (c Const) ToValue(h *heap.Heap) heap.Value {
	switch c.Kind {
	case ConstNone:
		return heap.None
	case ConstBool:
		return heap.FromBool(c.Bool)
	case ConstInt:
		return heap.HeapRef(heap.KindInt, h.NewInt(c.Int))
	case ConstFloat:
		return heap.HeapRef(heap.KindFloat, h.Alloc(heap.KindFloat, heap.Object{Float: c.Float}))
	case ConstStr:
		return heap.HeapRef(heap.KindStr, h.InternString(c.Str))
	case ConstBytes:
		return heap.HeapRef(heap.KindBytes, h.Alloc(heap.KindBytes, heap.Object{Bytes: append([]byte(nil), c.Bytes...)}))
	case ConstTuple:
		elems := make([]heap.Value, len(c.Tuple))
		for i, e := range c.Tuple {
			elems[i] = e.ToValue(h)
		}
		return heap.HeapRef(heap.KindTuple, h.Alloc(heap.KindTuple, heap.Object{Elems: elems}))
	case ConstCode:
		return heap.None
	default:
		return heap.None
	}
}
