package bits

import (
	"testing"
)

func TestSetIsSet(t *testing.T) {
	tests := []struct {
		nbits int
		codes []int
	}{
		{nbits: 8, codes: []int{0, 3, 7}},
		{nbits: 32, codes: []int{0, 8, 9, 31}},
		{nbits: 64, codes: []int{1, 16, 33, 63}},
		{nbits: 0x300, codes: []int{0x130, 0x13c, 0x2ff}},
	}

	for i, test := range tests {
		b := New(test.nbits)
		if !b.IsEmpty() {
			t.Errorf("%d: new vector not empty", i)
		}
		for _, code := range test.codes {
			if !b.Set(code) {
				t.Errorf("%d: Set(%#x) reported no change", i, code)
			}
			if b.Set(code) {
				t.Errorf("%d: second Set(%#x) reported change", i, code)
			}
		}
		for _, code := range test.codes {
			if !b.IsSet(code) {
				t.Errorf("%d: IsSet(%#x) = false", i, code)
			}
		}
		if got := b.CountSet(); got != len(test.codes) {
			t.Errorf("%d: CountSet = %d, want %d", i, got, len(test.codes))
		}
	}
}

func TestEachSetAscending(t *testing.T) {
	b := New(0x40)
	want := []int{2, 5, 17, 40, 63}
	// set out of order
	for _, code := range []int{40, 2, 63, 17, 5} {
		b.Set(code)
	}
	var got []int
	b.EachSet(func(code int) bool {
		got = append(got, code)
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("EachSet visited %d codes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EachSet[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestEachSetStop(t *testing.T) {
	b := New(16)
	b.Set(1)
	b.Set(2)
	b.Set(3)
	visited := 0
	b.EachSet(func(code int) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("EachSet visited %d codes after stop, want 1", visited)
	}
}

func TestFromBytes(t *testing.T) {
	// EVIOCGBIT layout: bit N of byte N/8 is code N.
	b := FromBytes([]byte{0b00000011, 0b10000000})
	for _, code := range []int{0, 1, 15} {
		if !b.IsSet(code) {
			t.Errorf("IsSet(%d) = false", code)
		}
	}
	for _, code := range []int{2, 7, 8, 14} {
		if b.IsSet(code) {
			t.Errorf("IsSet(%d) = true", code)
		}
	}
	if b.Len() != 16 {
		t.Errorf("Len = %d, want 16", b.Len())
	}
}

func TestOutOfRange(t *testing.T) {
	b := New(8)
	if b.IsSet(8) || b.IsSet(-1) {
		t.Error("IsSet out of range = true")
	}
	if b.Set(8) || b.Set(-1) {
		t.Error("Set out of range reported change")
	}
	if b.Clear(8) || b.Clear(-1) {
		t.Error("Clear out of range reported change")
	}
}

func TestClearAndClone(t *testing.T) {
	b := New(16)
	b.Set(4)
	b.Set(12)
	c := b.Clone()
	if !b.Equal(c) {
		t.Error("clone not equal to original")
	}
	if !b.Clear(4) {
		t.Error("Clear(4) reported no change")
	}
	if b.Clear(4) {
		t.Error("second Clear(4) reported change")
	}
	if !c.IsSet(4) {
		t.Error("clearing original mutated the clone")
	}
	if b.Equal(c) {
		t.Error("vectors equal after divergence")
	}
}
