package bencode

import (
	"bytes"
	"reflect"
	"testing"
)

func decodeString(t *testing.T, s string) interface{} {
	t.Helper()
	v, err := NewDecoder(bytes.NewReader([]byte(s))).Decode()
	if err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestDecodeString(t *testing.T) {
	v := decodeString(t, "4:spam")
	b, ok := v.([]byte)
	if !ok || string(b) != "spam" {
		t.Fatalf("got %#v", v)
	}
}

func TestDecodeInt(t *testing.T) {
	cases := map[string]int64{
		"i3e":    3,
		"i-3e":   -3,
		"i0e":    0,
		"i600e":  600,
		"i-600e": -600,
	}
	for s, want := range cases {
		v := decodeString(t, s)
		n, ok := v.(int64)
		if !ok || n != want {
			t.Fatalf("%q: got %#v want %d", s, v, want)
		}
	}
}

func TestDecodeIntRejectsMalformed(t *testing.T) {
	bad := []string{"i01e", "i-0e", "ie", "i--1e", "iae"}
	for _, s := range bad {
		_, err := NewDecoder(bytes.NewReader([]byte(s))).Decode()
		if err == nil {
			t.Fatalf("%q: expected error", s)
		}
	}
}

func TestDecodeListAndDict(t *testing.T) {
	v := decodeString(t, "l4:spam4:eggse")
	list, ok := v.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("got %#v", v)
	}

	v = decodeString(t, "d3:cow3:moo4:spam4:eggse")
	dict, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("got %#v", v)
	}
	if string(dict["cow"].([]byte)) != "moo" {
		t.Fatalf("got %#v", dict)
	}
	if string(dict["spam"].([]byte)) != "eggs" {
		t.Fatalf("got %#v", dict)
	}
}

func TestDecodeTruncated(t *testing.T) {
	bad := []string{"4:sp", "i3", "l4:spam", "d3:cow3:moo", ""}
	for _, s := range bad {
		_, err := NewDecoder(bytes.NewReader([]byte(s))).Decode()
		if err == nil {
			t.Fatalf("%q: expected error", s)
		}
	}
}

func TestEncodeSortsDictKeys(t *testing.T) {
	b, err := Marshal(map[string]interface{}{
		"spam": "eggs",
		"cow":  "moo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "d3:cow3:moo4:spam4:eggse" {
		t.Fatalf("got %q", b)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []interface{}{
		[]byte("hello world"),
		int64(42),
		int64(-1),
		[]interface{}{[]byte("a"), int64(1), []interface{}{[]byte("nested")}},
		map[string]interface{}{
			"a": int64(1),
			"b": []byte("two"),
			"c": map[string]interface{}{"z": int64(0), "a": int64(1)},
		},
	}
	for _, c := range cases {
		enc, err := Marshal(c)
		if err != nil {
			t.Fatalf("marshal %#v: %v", c, err)
		}
		dec, err := NewDecoder(bytes.NewReader(enc)).Decode()
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if !reflect.DeepEqual(c, dec) {
			t.Fatalf("round trip mismatch: got %#v want %#v", dec, c)
		}
	}
}

func TestMarshalStructTags(t *testing.T) {
	type resp struct {
		Complete   int64  `bencode:"complete"`
		Incomplete int64  `bencode:"incomplete"`
		Interval   int64  `bencode:"interval"`
		Peers      []byte `bencode:"peers"`
		Ignored    string `bencode:"-"`
	}
	r := resp{Complete: 1, Incomplete: 2, Interval: 900, Peers: []byte{1, 2, 3, 4, 5, 6}, Ignored: "x"}
	b, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var out resp
	if err := Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	out.Ignored = "x" // field is never encoded, so it round-trips as zero value
	if !reflect.DeepEqual(r, out) {
		t.Fatalf("got %#v want %#v", out, r)
	}
}

func TestScrapeRoundTrip(t *testing.T) {
	hash := string(bytes.Repeat([]byte{0xAB}, 20))
	enc, err := EncodeScrape(map[string]ScrapeFile{
		hash: {Complete: 1, Downloaded: 2, Incomplete: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeScrape(enc)
	if err != nil {
		t.Fatal(err)
	}
	sf, ok := dec[hash]
	if !ok {
		t.Fatalf("missing hash key in %#v", dec)
	}
	if sf.Complete != 1 || sf.Downloaded != 2 || sf.Incomplete != 3 {
		t.Fatalf("got %#v", sf)
	}
}
