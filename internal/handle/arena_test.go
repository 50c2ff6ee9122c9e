package handle

import "testing"

func TestArenaCreateReleaseDestroy(t *testing.T) {
	a := NewArena[string]()
	destroyed := ""
	ref := a.Create("hello")

	v, ok := a.Get(ref)
	if !ok || v != "hello" {
		t.Fatalf("expected live value, got %q ok=%v", v, ok)
	}

	a.Retain(ref)
	a.Release(ref, func(s string) { destroyed = s })
	if _, ok := a.Get(ref); !ok {
		t.Fatalf("expected still live after one of two releases")
	}
	a.Release(ref, func(s string) { destroyed = s })
	if _, ok := a.Get(ref); ok {
		t.Fatalf("expected dead after refcount reached zero")
	}
	if destroyed != "hello" {
		t.Fatalf("destroy callback did not run, got %q", destroyed)
	}
}

func TestArenaGenerationPreventsStaleRef(t *testing.T) {
	a := NewArena[int]()
	r1 := a.Create(1)
	a.Release(r1, nil)
	r2 := a.Create(2)
	if r2.index != r1.index {
		t.Fatalf("expected slot reuse")
	}
	if _, ok := a.Get(r1); ok {
		t.Fatalf("stale ref must not resolve after slot reuse")
	}
	if v, ok := a.Get(r2); !ok || v != 2 {
		t.Fatalf("fresh ref must resolve to new value")
	}
}
