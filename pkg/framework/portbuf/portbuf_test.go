package portbuf

import (
	"testing"

	"github.com/go-audio/audio"
)

func TestSampleAtomRefcounting(t *testing.T) {
	a := NewSampleAtom(&audio.FloatBuffer{Data: []float64{0, 1, 0, -1}})
	if got := a.Sample.RefCount(); got != 1 {
		t.Fatalf("refcount after construction = %d, want 1", got)
	}

	a.AddRef()
	if got := a.Sample.RefCount(); got != 2 {
		t.Fatalf("refcount after AddRef = %d, want 2", got)
	}

	if got := a.Release(); got != 1 {
		t.Fatalf("refcount after first Release = %d, want 1", got)
	}
	if got := a.Release(); got != 0 {
		t.Fatalf("refcount after second Release = %d, want 0", got)
	}
}

func TestHandleAtomRefcounting(t *testing.T) {
	a := NewHandleAtom("scope buffer")
	a.AddRef()
	a.AddRef()
	if got := a.Handle.RefCount(); got != 3 {
		t.Fatalf("refcount after two AddRefs = %d, want 3", got)
	}
	for i := 0; i < 3; i++ {
		a.Release()
	}
	if got := a.Handle.RefCount(); got != 0 {
		t.Fatalf("refcount after releasing every owner = %d, want 0", got)
	}
}

func TestAtomReleaseOnNonRefCountedKindsIsANoop(t *testing.T) {
	for _, a := range []Atom{NewIntAtom(1), NewFloatAtom(1.5), NewStringAtom("x")} {
		a.AddRef() // must not panic
		if got := a.Release(); got != 1 {
			t.Errorf("Release on kind %v = %d, want the no-owner sentinel 1", a.Kind, got)
		}
	}
}
