package bytecode

import (
	"testing"

	"github.com/ouros-lang/ouros/heap"
)

func TestFramePushPopPeek(t *testing.T) {
	chunk := NewChunk("<module>")
	f := NewFrame(chunk, heap.NoHeapId)

	f.Push(heap.None)
	f.Push(heap.True)
	if f.Depth() != 2 {
		t.Fatalf("Depth = %d, want 2", f.Depth())
	}
	if top := f.Peek(); !top.Equal(heap.True) {
		t.Errorf("Peek = %v, want True", top)
	}
	if v := f.Pop(); !v.Equal(heap.True) {
		t.Errorf("Pop = %v, want True", v)
	}
	if f.Depth() != 1 {
		t.Errorf("Depth after pop = %d, want 1", f.Depth())
	}
}

func TestFrameTruncateToReturnsDroppedInPushOrder(t *testing.T) {
	chunk := NewChunk("<module>")
	f := NewFrame(chunk, heap.NoHeapId)
	f.Push(heap.None)
	f.Push(heap.True)
	f.Push(heap.False)

	dropped := f.TruncateTo(1)
	if len(dropped) != 2 {
		t.Fatalf("dropped len = %d, want 2", len(dropped))
	}
	if !dropped[0].Equal(heap.True) || !dropped[1].Equal(heap.False) {
		t.Errorf("dropped = %v, want [True False]", dropped)
	}
	if f.Depth() != 1 {
		t.Errorf("Depth after truncate = %d, want 1", f.Depth())
	}
}

func TestFrameTruncateToNoopWhenAtOrBelowDepth(t *testing.T) {
	chunk := NewChunk("<module>")
	f := NewFrame(chunk, heap.NoHeapId)
	f.Push(heap.None)

	if dropped := f.TruncateTo(5); dropped != nil {
		t.Errorf("TruncateTo beyond current depth should return nil, got %v", dropped)
	}
}

func TestFramePushPopTry(t *testing.T) {
	chunk := NewChunk("<module>")
	f := NewFrame(chunk, heap.NoHeapId)
	f.Push(heap.None)

	f.PushTry(TryHandler{Start: 0, End: 10, HandlerPC: 5})
	tf, ok := f.PopTry()
	if !ok {
		t.Fatalf("expected a try frame to be popped")
	}
	if tf.SavedStack != 1 {
		t.Errorf("SavedStack = %d, want 1 (the depth at PushTry time)", tf.SavedStack)
	}
	if _, ok := f.PopTry(); ok {
		t.Errorf("expected no more try frames")
	}
}

func TestFrameStackPushPopTop(t *testing.T) {
	var s FrameStack
	chunk := NewChunk("<module>")
	f1 := NewFrame(chunk, heap.NoHeapId)
	f2 := NewFrame(chunk, heap.NoHeapId)

	s.Push(f1)
	s.Push(f2)
	if s.Depth() != 2 {
		t.Fatalf("Depth = %d, want 2", s.Depth())
	}
	if s.Top() != f2 {
		t.Errorf("Top should be the most recently pushed frame")
	}
	if popped := s.Pop(); popped != f2 {
		t.Errorf("Pop should return the most recently pushed frame")
	}
	if s.Top() != f1 {
		t.Errorf("Top after pop should be f1")
	}
}

func TestFrameStackTopOnEmptyIsNil(t *testing.T) {
	var s FrameStack
	if s.Top() != nil {
		t.Errorf("Top of an empty FrameStack should be nil")
	}
}
