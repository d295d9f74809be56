package lib

import "testing"
import "unsafe"

func TestMemcpy(t *testing.T) {
	src, dst := make([]byte, 100), make([]byte, 100)
	for i := range src {
		src[i] = byte(i)
	}
	n := Memcpy(unsafe.Pointer(&dst[0]), unsafe.Pointer(&src[0]), len(src))
	if n != 100 {
		t.Errorf("expected %v, got %v", 100, n)
	}
	for i := range dst {
		if dst[i] != byte(i) {
			t.Fatalf("expected %v, got %v at %v", byte(i), dst[i], i)
		}
	}
}

func TestMemzero(t *testing.T) {
	block := make([]byte, 77)
	for i := range block {
		block[i] = 0xff
	}
	Memzero(unsafe.Pointer(&block[0]), len(block))
	for i, c := range block {
		if c != 0 {
			t.Fatalf("expected %v, got %v at %v", 0, c, i)
		}
	}
}

func TestMemfill(t *testing.T) {
	block := make([]byte, 33)
	Memfill(unsafe.Pointer(&block[0]), len(block), 0xde)
	for i, c := range block {
		if c != 0xde {
			t.Fatalf("expected %v, got %v at %v", 0xde, c, i)
		}
	}
}

func TestCeil(t *testing.T) {
	if x := Ceil(10, 5); x != 2 {
		t.Errorf("expected %v, got %v", 2, x)
	} else if x = Ceil(11, 5); x != 3 {
		t.Errorf("expected %v, got %v", 3, x)
	} else if x = Ceil(0, 5); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
}

func TestAlignUp(t *testing.T) {
	if x := AlignUp(0, 16); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	} else if x = AlignUp(1, 16); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if x = AlignUp(16, 16); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if x = AlignUp(17, 16); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	}
}

func TestIspowerof2(t *testing.T) {
	for _, n := range []int64{1, 2, 4, 8, 4096, 1 << 40} {
		if Ispowerof2(n) == false {
			t.Errorf("expected power of 2 for %v", n)
		}
	}
	for _, n := range []int64{0, -1, 3, 6, 4095} {
		if Ispowerof2(n) {
			t.Errorf("unexpected power of 2 for %v", n)
		}
	}
}
