package heap

import (
	"fmt"
	"hash/maphash"
	"math"
	"math/big"
)

var hashSeed = maphash.MakeSeed()

// Hash computes (and caches) id's hash, per spec §4.1: identity hash for
// mutable instances without a __hash__ override, structural hash for
// tuples/frozensets, a SipHash-style hash for strings/bytes, an
// identity-normalized hash for the numeric equality cohort (True == 1 ==
// 1.0), and user __hash__ dispatch otherwise.
func (h *Heap) Hash(id HeapId) (int64, error) {
	h.mu.Lock()
	if int(id) >= len(h.slots) || !h.slots[id].occupied {
		h.mu.Unlock()
		return 0, fmt.Errorf("heap: hash of invalid slot %d", id)
	}
	if h.slots[id].hash != nil {
		v := *h.slots[id].hash
		h.mu.Unlock()
		return v, nil
	}
	kind := h.slots[id].kind
	obj := h.slots[id].obj
	h.mu.Unlock()

	var v int64
	var err error

	switch kind {
	case KindInt:
		v = hashBigInt(obj.Int)
	case KindFloat:
		v = hashFloat(obj.Float)
	case KindStr:
		v = hashBytes([]byte(obj.Str))
	case KindBytes, KindByteArray:
		v = hashBytes(obj.Bytes)
	case KindTuple, KindFrozenSet:
		v, err = h.hashSequence(obj.Elems)
	case KindInstance:
		v, err = h.hashInstance(id, obj)
	default:
		// identity hash: stable and distinct per HeapId for the lifetime of
		// the process, as required of any hashable mutable default.
		v = int64(id) * 2654435761 % math.MaxInt64
	}
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	if int(id) < len(h.slots) && h.slots[id].occupied {
		h.slots[id].hash = &v
	}
	h.mu.Unlock()
	return v, nil
}

func (h *Heap) hashSequence(elems []Value) (int64, error) {
	acc := int64(0x345678)
	for _, e := range elems {
		var eh int64
		var err error
		if e.IsInline() {
			eh = inlineHash(e)
		} else {
			eh, err = h.Hash(e.Id)
		}
		if err != nil {
			return 0, err
		}
		acc = (acc*1000003 + eh) & math.MaxInt64
	}
	return acc, nil
}

func inlineHash(v Value) int64 {
	switch v.Kind {
	case KindNone:
		return 0
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindEllipsis:
		return 0x0e11 // distinct unremarkable constant, no referent to hash
	case KindNotImplemented:
		return 0x0077
	}
	return 0
}

// hashInstance runs the unhashability rule (§4.1) via the class's dunder
// map before ever considering dispatch: the MRO walk is the single source
// of truth and must run before attempting the __hash__ call.
func (h *Heap) hashInstance(id HeapId, obj Object) (int64, error) {
	inst := obj.Instance
	if inst == nil {
		return int64(id) * 2654435761 % math.MaxInt64, nil
	}
	entry, err := h.LookupTypeDunder(inst.Class, "__hash__")
	if err != nil {
		return 0, err
	}
	if entry.Unhashable {
		name, _ := h.ClassName(inst.Class)
		return 0, &TypeError{Msg: fmt.Sprintf("unhashable type: %q", name)}
	}
	if entry.Absent {
		return int64(id) * 2654435761 % math.MaxInt64, nil
	}
	if h.Hooks == nil {
		return 0, fmt.Errorf("heap: no dispatch hook installed to run __hash__")
	}
	return h.Hooks.Hash(h, id)
}

// TypeError mirrors the sandbox-visible Python TypeError at the heap
// layer; package vm wraps it into a full ExceptionObj when it propagates.
type TypeError struct{ Msg string }

func (e *TypeError) Error() string { return "TypeError: " + e.Msg }

func hashBigInt(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	if v.IsInt64() {
		return v.Int64()
	}
	// Large magnitudes: fold the big.Int's bytes, matching the spirit of
	// CPython's modular-reduction hash without reimplementing it exactly —
	// the spec only requires `a == b => hash(a) == hash(b)`, which a
	// magnitude+sign dependent fold over the same byte representation
	// already guarantees for equal big.Ints.
	bs := v.Bytes()
	acc := int64(v.Sign())
	for _, b := range bs {
		acc = (acc*131 + int64(b)) & math.MaxInt64
	}
	return acc
}

func hashFloat(f float64) int64 {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	bits := math.Float64bits(f)
	return int64(bits & math.MaxInt64)
}

func hashBytes(b []byte) int64 {
	var s maphash.Hash
	s.SetSeed(hashSeed)
	s.Write(b)
	return int64(s.Sum64() & math.MaxInt64)
}
