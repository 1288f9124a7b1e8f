package metainfo

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/arlogilbert/gorrent/internal/bencode"
)

func buildTorrentBytes(t *testing.T, info map[string]interface{}, extra map[string]interface{}) []byte {
	t.Helper()
	top := map[string]interface{}{
		"announce": "http://tracker.example/announce",
		"info":     info,
	}
	for k, v := range extra {
		top[k] = v
	}
	b, err := bencode.Marshal(top)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func singleFileInfo(total, pieceLen int64) map[string]interface{} {
	n := total / pieceLen
	if total%pieceLen != 0 {
		n++
	}
	pieces := bytes.Repeat([]byte{0xAA}, int(n)*20)
	return map[string]interface{}{
		"piece length": pieceLen,
		"pieces":       pieces,
		"name":         "file.bin",
		"length":       total,
	}
}

func TestParseMetainfoSingleFile(t *testing.T) {
	data := buildTorrentBytes(t, singleFileInfo(32*1024, 16*1024), nil)
	mi, err := ParseMetainfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if mi.Info.NumPieces() != 2 {
		t.Fatalf("got %d pieces", mi.Info.NumPieces())
	}
	if mi.Info.TotalLength() != 32*1024 {
		t.Fatalf("got total %d", mi.Info.TotalLength())
	}
	if mi.Announce != "http://tracker.example/announce" {
		t.Fatalf("got announce %q", mi.Announce)
	}
}

func TestInfoHashDeterministic(t *testing.T) {
	data := buildTorrentBytes(t, singleFileInfo(32*1024, 16*1024), nil)
	mi1, err := ParseMetainfo(data)
	if err != nil {
		t.Fatal(err)
	}
	mi2, err := ParseMetainfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if mi1.InfoHash != mi2.InfoHash {
		t.Fatalf("info-hash not deterministic: %x != %x", mi1.InfoHash, mi2.InfoHash)
	}
}

func TestParseMetainfoMultiFile(t *testing.T) {
	pieceLen := int64(16 * 1024)
	total := int64(3 * 16 * 1024)
	n := total / pieceLen
	pieces := bytes.Repeat([]byte{0xBB}, int(n)*20)
	info := map[string]interface{}{
		"piece length": pieceLen,
		"pieces":       pieces,
		"name":         "dir",
		"files": []interface{}{
			map[string]interface{}{"length": int64(16 * 1024), "path": []interface{}{"a.txt"}},
			map[string]interface{}{"length": int64(32 * 1024), "path": []interface{}{"sub", "b.txt"}},
		},
	}
	data := buildTorrentBytes(t, info, nil)
	mi, err := ParseMetainfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if !mi.Info.IsMultiFile() {
		t.Fatal("expected multi-file torrent")
	}
	if mi.Info.TotalLength() != total {
		t.Fatalf("got %d want %d", mi.Info.TotalLength(), total)
	}
	if len(mi.Info.Files) != 2 || mi.Info.Files[1].Path[0] != "sub" {
		t.Fatalf("got %#v", mi.Info.Files)
	}
}

func TestParseMetainfoRejectsMissingPieceLength(t *testing.T) {
	info := map[string]interface{}{
		"pieces": bytes.Repeat([]byte{0xAA}, 20),
		"name":   "file.bin",
		"length": int64(16 * 1024),
	}
	data := buildTorrentBytes(t, info, nil)
	if _, err := ParseMetainfo(data); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseMetainfoRejectsBadPieceCount(t *testing.T) {
	info := map[string]interface{}{
		"piece length": int64(16 * 1024),
		"pieces":       bytes.Repeat([]byte{0xAA}, 20), // only 1 piece, but content needs 2
		"name":         "file.bin",
		"length":       int64(32 * 1024),
	}
	data := buildTorrentBytes(t, info, nil)
	if _, err := ParseMetainfo(data); err == nil {
		t.Fatal("expected error")
	}
}

func TestPieceEffectiveLength(t *testing.T) {
	info := InfoDict{
		PieceLength: 16 * 1024,
		Pieces:      make([][20]byte, 3),
		Length:      16*1024*2 + 100,
	}
	l, err := info.PieceEffectiveLength(0)
	if err != nil || l != 16*1024 {
		t.Fatalf("got %d, %v", l, err)
	}
	l, err = info.PieceEffectiveLength(2)
	if err != nil || l != 100 {
		t.Fatalf("got %d, %v", l, err)
	}
}

// TestInfoHashUsesRawBytesNotCanonicalReencoding builds a torrent whose
// info dictionary has a non-sorted key order. A conforming decoder
// still accepts it, so the info-hash must be the SHA-1 of the literal
// bytes as authored, not of a re-marshaled (sorted-key) copy - those
// two differ whenever the source file wasn't itself canonical.
func TestInfoHashUsesRawBytesNotCanonicalReencoding(t *testing.T) {
	pieces := bytes.Repeat([]byte{0xCC}, 20)
	rawInfo := "d4:name8:file.bin6:lengthi1024e12:piece lengthi16384e6:pieces20:" + string(pieces) + "e"
	data := "d8:announce31:http://tracker.example/announce4:info" + rawInfo + "e"

	mi, err := ParseMetainfo([]byte(data))
	if err != nil {
		t.Fatalf("ParseMetainfo: %v", err)
	}

	want := sha1.Sum([]byte(rawInfo))
	if mi.InfoHash != want {
		t.Fatalf("info-hash %x, want %x (sha1 of raw non-canonical info dict)", mi.InfoHash, want)
	}

	// A re-marshal of the decoded dict would sort keys and therefore
	// produce a different hash; confirm the two actually diverge so
	// this test would catch a regression to the re-encoding approach.
	reencoded, err := bencode.Marshal(map[string]interface{}{
		"name":         []byte("file.bin"),
		"length":       int64(1024),
		"piece length": int64(16384),
		"pieces":       pieces,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sha1.Sum(reencoded) == want {
		t.Fatal("test fixture is canonical already; rewrite it to actually exercise non-canonical ordering")
	}
}

func TestPrivateDefaultsToZero(t *testing.T) {
	data := buildTorrentBytes(t, singleFileInfo(16*1024, 16*1024), nil)
	mi, err := ParseMetainfo(data)
	if err != nil {
		t.Fatal(err)
	}
	if mi.Info.Private != 0 {
		t.Fatalf("got %d", mi.Info.Private)
	}
}
