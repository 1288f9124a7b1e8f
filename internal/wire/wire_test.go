package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadWriteInt(t *testing.T) {
	buf := make([]byte, 8)
	if err := WriteInt(0x0102030405060708, buf, 8, 0); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(buf, want) {
		t.Fatalf("got %x want %x", buf, want)
	}
	v, err := ReadInt(buf, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x0102030405060708 {
		t.Fatalf("got %x", v)
	}
}

func TestWriteIntTruncates(t *testing.T) {
	buf := make([]byte, 4)
	if err := WriteInt(0xAABBCCDDEE, buf, 4, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0xBB, 0xCC, 0xDD, 0xEE}) {
		t.Fatalf("got %x", buf)
	}
}

func TestWriteIntOffOverflow(t *testing.T) {
	buf := make([]byte, 4)
	if err := WriteInt(1, buf, 4, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadN(t *testing.T) {
	r := strings.NewReader("hello world")
	b, err := ReadN(r, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Fatalf("got %q", b)
	}
}

func TestReadNShort(t *testing.T) {
	r := strings.NewReader("hi")
	_, err := ReadN(r, 5, nil)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("got %v", err)
	}
}

func TestEncodeDecodeBinaryData(t *testing.T) {
	cases := [][]byte{
		[]byte("abcdefghijklmnopqrst"),
		{0, 1, 2, 255, 254, '/', '%', ' '},
		[]byte("ABCDEFGHIJKLMNOPQRST"),
	}
	for _, c := range cases {
		enc := EncodeBinaryData(c)
		dec, err := DecodeBinaryData(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if !bytes.Equal(dec, c) {
			t.Fatalf("round trip mismatch: got %x want %x", dec, c)
		}
	}
}

func TestEncodeBinaryDataSafeCharsPassthrough(t *testing.T) {
	in := []byte("az09-._~")
	if got := EncodeBinaryData(in); got != string(in) {
		t.Fatalf("got %q", got)
	}
}
