package utils

import "testing"

func TestAlignTo(t *testing.T) {
	tests := []struct {
		val, align, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{5, 1, 5},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := AlignTo(tt.val, tt.align); got != tt.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", tt.val, tt.align, got, tt.want)
		}
	}
}

func TestAddDashes(t *testing.T) {
	if got := AddDashes("o"); len(got) != 1 || got[0] != "-o" {
		t.Errorf("AddDashes(o) = %v", got)
	}
	got := AddDashes("verbose")
	if len(got) != 2 || got[0] != "-verbose" || got[1] != "--verbose" {
		t.Errorf("AddDashes(verbose) = %v", got)
	}
}

func TestRemovePrefix(t *testing.T) {
	if s, ok := RemovePrefix("-lfoo", "-l"); !ok || s != "foo" {
		t.Errorf("got %q, %v", s, ok)
	}
	if s, ok := RemovePrefix("a.o", "-l"); ok || s != "a.o" {
		t.Errorf("got %q, %v", s, ok)
	}
}
