package heap

import "fmt"

// recognizedDunders are the protocol names whose resolution is cached in
// a class's DunderMap; anything else falls through to an ordinary
// attribute lookup and is never cached here.
var recognizedDunders = map[string]bool{
	"__add__": true, "__radd__": true, "__iadd__": true,
	"__sub__": true, "__rsub__": true, "__isub__": true,
	"__mul__": true, "__rmul__": true, "__imul__": true,
	"__truediv__": true, "__rtruediv__": true, "__itruediv__": true,
	"__floordiv__": true, "__rfloordiv__": true, "__ifloordiv__": true,
	"__mod__": true, "__rmod__": true, "__imod__": true,
	"__pow__": true, "__rpow__": true, "__ipow__": true,
	"__eq__": true, "__ne__": true, "__lt__": true, "__le__": true,
	"__gt__": true, "__ge__": true, "__hash__": true,
	"__bool__": true, "__len__": true, "__contains__": true,
	"__getattribute__": true, "__getattr__": true, "__setattr__": true,
	"__delattr__": true, "__getitem__": true, "__setitem__": true,
	"__delitem__": true, "__index__": true, "__class_getitem__": true,
	"__iter__": true, "__next__": true, "__call__": true,
	"__enter__": true, "__exit__": true, "__aenter__": true, "__aexit__": true,
	"__new__": true, "__init__": true, "__repr__": true, "__str__": true,
	"__instancecheck__": true, "__subclasscheck__": true,
	"__set_name__": true, "__init_subclass__": true, "__mro_entries__": true,
	"__prepare__": true,
}

// ClassName returns a class's simple name for diagnostics.
func (h *Heap) ClassName(classID HeapId) (string, error) {
	_, obj, err := h.Read(classID)
	if err != nil {
		return "", err
	}
	if obj.Class == nil {
		return "", fmt.Errorf("heap: %d is not a class", classID)
	}
	return obj.Class.Name, nil
}

// LookupTypeDunder walks the MRO of the type identified by classID and
// returns the first bound value for name, applying the §4.1 unhashability
// rule first when name == "__hash__". The result is cached on the class
// and invalidated by InvalidateDunderCache.
func (h *Heap) LookupTypeDunder(classID HeapId, name string) (DunderEntry, error) {
	_, obj, err := h.Read(classID)
	if err != nil {
		return DunderEntry{}, err
	}
	cls := obj.Class
	if cls == nil {
		return DunderEntry{}, fmt.Errorf("heap: %d is not a class", classID)
	}
	if cls.DunderMap == nil {
		cls.DunderMap = make(map[string]DunderEntry)
	}
	if cached, ok := cls.DunderMap[name]; ok && recognizedDunders[name] {
		return cached, nil
	}

	if name == "__hash__" {
		entry, err := h.resolveHashDunder(cls)
		if err != nil {
			return DunderEntry{}, err
		}
		cls.DunderMap[name] = entry
		return entry, nil
	}

	entry := DunderEntry{Absent: true}
	for i, ancestor := range cls.MRO {
		_, aObj, err := h.Read(ancestor)
		if err != nil {
			return DunderEntry{}, err
		}
		ac := aObj.Class
		if ac == nil {
			continue
		}
		if v, ok := ac.Namespace[name]; ok {
			entry = DunderEntry{Value: v, DefiningMRO: i}
			break
		}
	}
	if recognizedDunders[name] {
		cls.DunderMap[name] = entry
	}
	return entry, nil
}

// resolveHashDunder implements spec §4.1's unhashability rule: unhashable
// when the MRO walk finds __hash__ explicitly bound to None, or finds
// __eq__ defined in a subclass with no __hash__ override later in the
// MRO (Python sets __hash__ = None implicitly in that case at class
// creation time; this is the dunder-map-level enforcement of the same
// rule for classes built without going through that codegen path).
func (h *Heap) resolveHashDunder(cls *ClassObj) (DunderEntry, error) {
	sawEqWithoutHash := -1
	for i, ancestor := range cls.MRO {
		_, aObj, err := h.Read(ancestor)
		if err != nil {
			return DunderEntry{}, err
		}
		ac := aObj.Class
		if ac == nil {
			continue
		}
		if hv, ok := ac.Namespace["__hash__"]; ok {
			if hv.IsNone() {
				return DunderEntry{Unhashable: true}, nil
			}
			return DunderEntry{Value: hv, DefiningMRO: i}, nil
		}
		if _, ok := ac.Namespace["__eq__"]; ok && sawEqWithoutHash < 0 {
			sawEqWithoutHash = i
		}
	}
	if sawEqWithoutHash >= 0 {
		return DunderEntry{Unhashable: true}, nil
	}
	return DunderEntry{Absent: true}, nil
}

// InvalidateDunderCache clears classID's cached dunder map. Must be
// called on any write to classID's namespace; since the cache is also
// consulted by every *subclass* walking through classID in its MRO, and
// those subclasses keep their own independent cache, the caller is
// responsible for invalidating every live subclass too (package vm does
// this by keeping a reverse MRO index).
func (h *Heap) InvalidateDunderCache(classID HeapId) error {
	_, obj, err := h.Read(classID)
	if err != nil {
		return err
	}
	if obj.Class == nil {
		return fmt.Errorf("heap: %d is not a class", classID)
	}
	obj.Class.DunderMap = nil
	obj.Class.DunderGen++
	return nil
}

// LookupMetaclassDunder performs the same walk against the metaclass of
// class, filtering out root-class fallbacks so only user-defined
// metaclass overrides are observed (spec §4.4.1).
func (h *Heap) LookupMetaclassDunder(classID HeapId, name string, rootFallbacks map[string]bool) (DunderEntry, error) {
	_, obj, err := h.Read(classID)
	if err != nil {
		return DunderEntry{}, err
	}
	cls := obj.Class
	if cls == nil || cls.Metaclass == NoHeapId {
		return DunderEntry{Absent: true}, nil
	}
	entry, err := h.LookupTypeDunder(cls.Metaclass, name)
	if err != nil {
		return DunderEntry{}, err
	}
	if !entry.Absent && rootFallbacks[name] {
		return DunderEntry{Absent: true}, nil
	}
	return entry, nil
}
