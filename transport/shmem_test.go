package transport

import (
	"os"
	"testing"
)

func TestParseMemName(t *testing.T) {
	cases := []struct {
		name    string
		wantOK  bool
		wantKey int64
		wantKnd memKind
	}{
		{"shm:4660", true, 4660, memSysV},
		{"shm:0x1234", true, 0x1234, memSysV},
		{"mem:1000", true, 0x1000, memDev},
		{"trivial", false, 0, 0},
		{"shm:", false, 0, 0},
	}
	for _, c := range cases {
		kind, key, ok := parseMemName(c.name)
		if ok != c.wantOK {
			t.Errorf("parseMemName(%q) ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if key != c.wantKey || kind != c.wantKnd {
			t.Errorf("parseMemName(%q) = (%v, %v), want (%v, %v)", c.name, kind, key, c.wantKnd, c.wantKey)
		}
	}
}

func TestIsMemName(t *testing.T) {
	if !IsMemName("shm:10") || !IsMemName("mem:ff") {
		t.Fatal("expected shm:/mem: names to be recognized")
	}
	if IsMemName("trivial") {
		t.Fatal("plain names must not be treated as memory transports")
	}
}

func TestRegionSizeRoundsUpToPage(t *testing.T) {
	page := os.Getpagesize()
	if got := regionSize(1); got != page {
		t.Fatalf("regionSize(1) = %d, want one page (%d)", got, page)
	}
	if got := regionSize(page + 1); got != 2*page {
		t.Fatalf("regionSize(%d) = %d, want two pages (%d)", page+1, got, 2*page)
	}
	if regionSize(0) != 0 && regionSize(0)%1 != 0 {
		t.Fatalf("regionSize(0) = %d", regionSize(0))
	}
	if got := regionSize(1); got < 1 {
		t.Fatalf("regionSize(1) = %d, want >= 1", got)
	}
}

func TestSetPollIntervalRejectsNonPositive(t *testing.T) {
	if err := SetPollInterval(0); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if err := SetPollInterval(-1); err == nil {
		t.Fatal("expected error for negative interval")
	}
}
