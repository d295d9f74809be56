package yalloc

import "testing"

func TestDefaultHeap(t *testing.T) {
	if Default() != Default() {
		t.Errorf("expected one default heap")
	}

	ptr, err := Malloc(100)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	} else if x := Usablesize(ptr); x < 100 {
		t.Errorf("expected at least %v, got %v", 100, x)
	}
	block := (*[100]byte)(ptr)[:]
	for i := range block {
		block[i] = byte(i)
	}

	ptr, err = Realloc(ptr, 4096)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	}
	block = (*[100]byte)(ptr)[:]
	for i := range block {
		if block[i] != byte(i) {
			t.Fatalf("byte %v: expected %v, got %v", i, byte(i), block[i])
		}
	}
	Free(ptr)

	ptr, err = Calloc(100, 8)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	}
	zeros := (*[800]byte)(ptr)[:]
	for i, b := range zeros {
		if b != 0 {
			t.Fatalf("byte %v: expected zero, got %v", i, b)
		}
	}
	Free(ptr)

	ptr, err = AlignedAlloc(4096, 4096)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	} else if uintptr(ptr)%4096 != 0 {
		t.Errorf("pointer %x not page aligned", uintptr(ptr))
	}
	Free(ptr)

	ptr, err = Memalign(16, 100)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	}
	Free(ptr)

	Default().Validate()
}
