package yalloc

import "testing"

import s "github.com/bnclabs/gosettings"

func TestDefaultsettings(t *testing.T) {
	setts := Defaultsettings()
	validatesettings(setts)
	if x := setts.Int64("minblock"); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	} else if x := setts.Int64("capacity"); x != Maxheapsize {
		t.Errorf("expected %v, got %v", Maxheapsize, x)
	} else if x := setts.String("allocator"); x != "flist" {
		t.Errorf("expected %q, got %q", "flist", x)
	} else if setts.Bool("retain.regions") == true {
		t.Errorf("expected retain.regions off")
	}
}

func TestValidatesettings(t *testing.T) {
	testcases := []s.Settings{
		{"capacity": int64(0)},
		{"capacity": Maxheapsize + 1},
		{"minblock": int64(48)},
		{"minblock": int64(-32)},
		{"small.threshold": int64(0)},
		{"large.threshold": int64(128)},
		{"large.threshold": int64(128*1024 + 16)},
		{"region.pages": int64(4)},
		{"cache.depth": int64(0)},
		{"cache.batch": int64(128)},
		{"allocator": "slab"},
	}
	for i, tcase := range testcases {
		setts := Defaultsettings().Mixin(tcase)
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("case %v: expected panic", i)
				}
			}()
			validatesettings(setts)
		}()
	}
}

func TestNewPanics(t *testing.T) {
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		New(s.Settings{"allocator": "tcmalloc"})
	}()
}
