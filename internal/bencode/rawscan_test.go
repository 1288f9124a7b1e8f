package bencode

import "testing"

func TestScanTopLevelDictValueReturnsRawSubstring(t *testing.T) {
	data := "d4:infod4:name3:fooee"
	got, err := ScanTopLevelDictValue([]byte(data), "info")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "d4:name3:fooe" {
		t.Fatalf("got %q", got)
	}
}

func TestScanTopLevelDictValuePreservesNonCanonicalOrder(t *testing.T) {
	// "b" sorts before "a" here - a canonicalizing re-encode would swap
	// them, but the scanner must return exactly the authored bytes.
	data := "d1:bi1e1:ai2ee"
	got, err := ScanTopLevelDictValue([]byte(data), "a")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "i2e" {
		t.Fatalf("got %q", got)
	}
}

func TestScanTopLevelDictValueMissingKey(t *testing.T) {
	_, err := ScanTopLevelDictValue([]byte("d1:ai1ee"), "info")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestScanTopLevelDictValueNotADict(t *testing.T) {
	_, err := ScanTopLevelDictValue([]byte("i5e"), "info")
	if err == nil {
		t.Fatal("expected error for non-dictionary input")
	}
}

func TestScanTopLevelDictValueSkipsNestedStructures(t *testing.T) {
	data := "d1:al1:a1:be1:bi9ee"
	got, err := ScanTopLevelDictValue([]byte(data), "b")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "i9e" {
		t.Fatalf("got %q", got)
	}
}
