package bytecode

import "github.com/ouros-lang/ouros/heap"

// TryFrame is one active try/with block on a frame's handler stack,
// tracking enough to run `finally` and to support `with`'s exit-on-exception
// protocol uniformly with ordinary exception unwinding.
type TryFrame struct {
	Handler    TryHandler
	SavedStack int // operand-stack depth to restore to before jumping to HandlerPC
}

// Frame is one call's worth of VM state: C3 in full, plus the
// continuation registers spec §5 requires for resuming iteration and
// subscripting protocols mid-flight across a pushed frame. Binary-dunder
// dispatch (§4.4.2-§4.4.3) has no continuation register of its own: it
// runs synchronously via CallValue (see vm.BinaryOp's doc comment), so
// there is nothing here to resume for that protocol specifically.
type Frame struct {
	Chunk *Chunk
	IP    int

	Stack []heap.Value // operand stack, grown lazily, never shrunk below cap
	SP    int

	Locals []heap.Value
	Cells  []heap.HeapId // indices into the heap for this frame's own cells

	Globals heap.HeapId // the module object backing global lookups
	Func    heap.Value  // the Function value this frame is running, for tracebacks

	TryStack []TryFrame

	ForIterTarget  int // jump offset to resume at if the pending __next__ frame raises StopIteration
	IndexRewindPC  int // -1 unless a __index__ call is in flight for subscripting; rewinds IP here on return
	GeneratorYield bool
}

// NewFrame allocates a frame for chunk with locals/cells pre-sized.
func NewFrame(chunk *Chunk, globals heap.HeapId) *Frame {
	return &Frame{
		Chunk:         chunk,
		Stack:         make([]heap.Value, 0, 16),
		Locals:        make([]heap.Value, chunk.NumLocals),
		Globals:       globals,
		IndexRewindPC: -1,
	}
}

func (f *Frame) Push(v heap.Value) { f.Stack = append(f.Stack, v) }

func (f *Frame) Pop() heap.Value {
	n := len(f.Stack)
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

func (f *Frame) Peek() heap.Value { return f.Stack[len(f.Stack)-1] }

func (f *Frame) Depth() int { return len(f.Stack) }

// TruncateTo pops down to depth, returning the popped values in push
// order, used by exception unwinding which must decref every orphaned
// entry exactly once.
func (f *Frame) TruncateTo(depth int) []heap.Value {
	if depth >= len(f.Stack) {
		return nil
	}
	dropped := append([]heap.Value(nil), f.Stack[depth:]...)
	f.Stack = f.Stack[:depth]
	return dropped
}

// PushTry installs a try-handler scope at the frame's current stack depth.
func (f *Frame) PushTry(h TryHandler) {
	f.TryStack = append(f.TryStack, TryFrame{Handler: h, SavedStack: len(f.Stack)})
}

func (f *Frame) PopTry() (TryFrame, bool) {
	n := len(f.TryStack)
	if n == 0 {
		return TryFrame{}, false
	}
	t := f.TryStack[n-1]
	f.TryStack = f.TryStack[:n-1]
	return t, true
}

// FrameStack is the call-frame vector: a growable stack of Frames forming
// the currently-executing call chain.
type FrameStack struct {
	Frames []*Frame
}

func (s *FrameStack) Push(f *Frame) { s.Frames = append(s.Frames, f) }

func (s *FrameStack) Pop() *Frame {
	n := len(s.Frames)
	f := s.Frames[n-1]
	s.Frames = s.Frames[:n-1]
	return f
}

func (s *FrameStack) Top() *Frame {
	if len(s.Frames) == 0 {
		return nil
	}
	return s.Frames[len(s.Frames)-1]
}

func (s *FrameStack) Depth() int { return len(s.Frames) }
