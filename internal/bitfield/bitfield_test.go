package bitfield

import "testing"

func TestSetIsMSBFirst(t *testing.T) {
	bf := New(10)
	bf.Set(3)
	if bf.Bytes()[0] != 0x10 {
		t.Fatalf("got %08b", bf.Bytes()[0])
	}
	if !bf.Test(3) {
		t.Fatal("bit 3 should be set")
	}
	for i := 0; i < 10; i++ {
		if i != 3 && bf.Test(i) {
			t.Fatalf("bit %d unexpectedly set", i)
		}
	}
}

func TestBitfieldThenHave(t *testing.T) {
	// Mirrors scenario 6: bitfield of all zeros, then have(3).
	n := 20
	bf, err := NewBytes(make([]byte, numBytes(n)), n)
	if err != nil {
		t.Fatal(err)
	}
	bf.Set(3)
	for i := 0; i < n; i++ {
		want := i == 3
		if bf.Test(i) != want {
			t.Fatalf("bit %d: got %v want %v", i, bf.Test(i), want)
		}
	}
}

func TestCountAndAll(t *testing.T) {
	bf := New(5)
	if bf.Count() != 0 || bf.All() {
		t.Fatal("expected empty bitfield")
	}
	for i := 0; i < 5; i++ {
		bf.Set(i)
	}
	if bf.Count() != 5 || !bf.All() {
		t.Fatal("expected full bitfield")
	}
}

func TestNewBytesLengthMismatch(t *testing.T) {
	if _, err := NewBytes(make([]byte, 1), 20); err == nil {
		t.Fatal("expected error")
	}
}
