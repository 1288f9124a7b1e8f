package trackerserver

import (
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arlogilbert/gorrent/internal/bencode"
	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/wire"
)

func TestRawBinaryParams(t *testing.T) {
	infoHash := wire.EncodeBinaryData([]byte("abcdefghijklmnopqrst"))
	peerID := wire.EncodeBinaryData([]byte("ABCDEFGHIJKLMNOPQRST"))
	raw := "info_hash=" + infoHash + "&peer_id=" + peerID + "&port=6881&left=100"

	gotInfoHashes, gotPeerID, gotKey, rest, err := rawBinaryParams(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotInfoHashes) != 1 || string(gotInfoHashes[0]) != "abcdefghijklmnopqrst" {
		t.Fatalf("info_hash: got %q", gotInfoHashes)
	}
	if string(gotPeerID) != "ABCDEFGHIJKLMNOPQRST" {
		t.Fatalf("peer_id: got %q", gotPeerID)
	}
	if gotKey != nil {
		t.Fatalf("key: got %q, want nil", gotKey)
	}
	if rest.Get("port") != "6881" || rest.Get("left") != "100" {
		t.Fatalf("rest: got %v", rest)
	}
}

func TestHTTPAnnounceHandler(t *testing.T) {
	out := make(chan Request, 1)
	l := &httpListener{out: out, log: logger.NewRequest("test")}

	go func() {
		req := (<-out).(*AnnounceRequest)
		req.Respond(AnnounceResult{
			Interval:   900 * time.Second,
			Complete:   0,
			Incomplete: 1,
			Peers:      []Peer{{IP: net.IPv4(192, 168, 0, 42), Port: 8080}},
		})
	}()

	infoHash := wire.EncodeBinaryData([]byte("abcdefghijklmnopqrst"))
	peerID := wire.EncodeBinaryData([]byte("ABCDEFGHIJKLMNOPQRST"))
	rawQuery := "info_hash=" + infoHash + "&peer_id=" + peerID +
		"&port=6881&uploaded=1&downloaded=2&left=3&compact=1"

	req, _ := http.NewRequest(http.MethodGet, "http://tracker.example/announce?"+rawQuery, nil)
	rec := httptest.NewRecorder()
	l.serveAnnounce(rec, req)

	raw, err := bencode.NewDecoder(rec.Body).Decode()
	if err != nil {
		t.Fatal(err)
	}
	dict := raw.(map[string]interface{})
	if dict["complete"].(int64) != 0 || dict["incomplete"].(int64) != 1 {
		t.Fatalf("got %+v", dict)
	}
	peersBytes := dict["peers"].([]byte)
	if len(peersBytes) != 6 {
		t.Fatalf("got %d peer bytes, want 6", len(peersBytes))
	}
}

func TestHTTPScrapeHandler(t *testing.T) {
	out := make(chan Request, 1)
	l := &httpListener{out: out, log: logger.NewRequest("test")}

	hashA := []byte("aaaaaaaaaaaaaaaaaaaa")
	hashB := []byte("bbbbbbbbbbbbbbbbbbbb")
	var wantA, wantB [20]byte
	copy(wantA[:], hashA)
	copy(wantB[:], hashB)

	go func() {
		req := (<-out).(*ScrapeRequest)
		req.Respond(map[[20]byte]ScrapeResult{
			wantA: {Complete: 1, Incomplete: 2, Downloaded: 3},
			wantB: {Complete: 4, Incomplete: 5, Downloaded: 6},
		})
	}()

	rawQuery := "info_hash=" + wire.EncodeBinaryData(hashA) + "&info_hash=" + wire.EncodeBinaryData(hashB)
	req, _ := http.NewRequest(http.MethodGet, "http://tracker.example/scrape?"+rawQuery, nil)
	rec := httptest.NewRecorder()
	l.serveScrape(rec, req)

	raw, err := bencode.NewDecoder(rec.Body).Decode()
	if err != nil {
		t.Fatal(err)
	}
	files := raw.(map[string]interface{})["files"].(map[string]interface{})
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	a := files[string(hashA)].(map[string]interface{})
	if a["complete"].(int64) != 1 || a["incomplete"].(int64) != 2 || a["downloaded"].(int64) != 3 {
		t.Fatalf("got %+v", a)
	}
}

// TestHTTPScrapeHandlerRawPercentByte exercises an info_hash containing
// a literal 0x25 ('%') byte: a handler that ran the raw query through
// url.ParseQuery before undoing the BitTorrent URL-binary escape would
// double-decode that byte and corrupt the hash.
func TestHTTPScrapeHandlerRawPercentByte(t *testing.T) {
	out := make(chan Request, 1)
	l := &httpListener{out: out, log: logger.NewRequest("test")}

	hash := append([]byte("aaaaaaaaaaaaaaaaaaa"), 0x25)
	var want [20]byte
	copy(want[:], hash)

	go func() {
		req := (<-out).(*ScrapeRequest)
		if len(req.InfoHashes) != 1 || req.InfoHashes[0] != want {
			t.Errorf("got %x, want %x", req.InfoHashes, want)
		}
		req.Respond(map[[20]byte]ScrapeResult{want: {Complete: 1}})
	}()

	rawQuery := "info_hash=" + wire.EncodeBinaryData(hash)
	req, _ := http.NewRequest(http.MethodGet, "http://tracker.example/scrape?"+rawQuery, nil)
	rec := httptest.NewRecorder()
	l.serveScrape(rec, req)
}

func TestHTTPAnnounceMalformedRequest(t *testing.T) {
	out := make(chan Request, 1)
	l := &httpListener{out: out, log: logger.NewRequest("test")}

	req, _ := http.NewRequest(http.MethodGet, "http://tracker.example/announce?port=6881", nil)
	rec := httptest.NewRecorder()
	l.serveAnnounce(rec, req)

	raw, err := bencode.NewDecoder(rec.Body).Decode()
	if err != nil {
		t.Fatal(err)
	}
	dict := raw.(map[string]interface{})
	if _, ok := dict["failure reason"]; !ok {
		t.Fatalf("got %+v, want failure reason", dict)
	}
}

func TestUDPConnectThenAnnounce(t *testing.T) {
	out := make(chan Request, 1)
	l, err := newUDPListener("127.0.0.1:0", out, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.close()

	clientConn, err := net.DialUDP("udp", nil, l.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer clientConn.Close()

	go l.serve()
	go func() {
		req := (<-out).(*AnnounceRequest)
		req.Respond(AnnounceResult{Interval: 900 * time.Second, Incomplete: 1})
	}()

	connectReq := make([]byte, 16)
	binary.BigEndian.PutUint64(connectReq[0:8], udpProtocolMagic)
	binary.BigEndian.PutUint32(connectReq[8:12], udpConnectAction)
	binary.BigEndian.PutUint32(connectReq[12:16], 111)
	clientConn.Write(connectReq)

	buf := make([]byte, 64)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	connID := binary.BigEndian.Uint64(buf[8:n])

	announceReq := make([]byte, 98)
	binary.BigEndian.PutUint64(announceReq[0:8], connID)
	binary.BigEndian.PutUint32(announceReq[8:12], udpAnnounceAction)
	binary.BigEndian.PutUint32(announceReq[12:16], 222)
	clientConn.Write(announceReq)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = clientConn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != udpAnnounceAction {
		t.Fatalf("action = %d, want %d", binary.BigEndian.Uint32(buf[0:4]), udpAnnounceAction)
	}
	if binary.BigEndian.Uint32(buf[12:16]) != 1 {
		t.Fatalf("incomplete = %d, want 1", binary.BigEndian.Uint32(buf[12:16]))
	}
}

func TestUnknownConnectionIDIsDropped(t *testing.T) {
	out := make(chan Request, 1)
	l, err := newUDPListener("127.0.0.1:0", out, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.close()

	clientConn, err := net.DialUDP("udp", nil, l.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer clientConn.Close()

	go l.serve()

	announceReq := make([]byte, 98)
	binary.BigEndian.PutUint64(announceReq[0:8], 0xffffffffffffffff) // never issued
	binary.BigEndian.PutUint32(announceReq[8:12], udpAnnounceAction)
	binary.BigEndian.PutUint32(announceReq[12:16], 333)
	clientConn.Write(announceReq)

	select {
	case <-out:
		t.Fatal("expected no request to be forwarded for an unknown connection id")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFilterListRejectsUnknownHash(t *testing.T) {
	var allowed [20]byte
	copy(allowed[:], "aaaaaaaaaaaaaaaaaaaa")
	f := NewFilterList([][20]byte{allowed})

	if !f.Allows(allowed) {
		t.Fatal("expected allowed hash to pass")
	}
	var other [20]byte
	copy(other[:], "bbbbbbbbbbbbbbbbbbbb")
	if f.Allows(other) {
		t.Fatal("expected unlisted hash to be rejected")
	}
	var nilFilter *FilterList
	if !nilFilter.Allows(other) {
		t.Fatal("nil filter should allow everything")
	}
}
