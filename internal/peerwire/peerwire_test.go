package peerwire

import (
	"bytes"
	"net"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var h Handshake
	copy(h.InfoHash[:], bytes.Repeat([]byte{0xAB}, 20))
	copy(h.PeerID[:], bytes.Repeat([]byte{0xCD}, 20))

	var buf bytes.Buffer
	if err := WriteHandshake(&buf, &h); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 68 {
		t.Fatalf("handshake length = %d, want 68", buf.Len())
	}

	got, err := ReadHandshake(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.InfoHash != h.InfoHash || got.PeerID != h.PeerID {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestHandshakeBadPstr(t *testing.T) {
	raw := []byte{19}
	raw = append(raw, "not the right string"[:19]...)
	raw = append(raw, make([]byte, 48)...)
	_, err := ReadHandshake(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for bad protocol string")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	w := NewWriter(a)
	r := NewReader(b)

	go func() {
		_ = w.WriteChoke()
		_ = w.WriteHave(7)
		_ = w.WriteBitfield([]byte{0xFF, 0x00})
		_ = w.WriteRequest(1, 16384, 16384)
		_ = w.WritePiece(1, 0, []byte("hello block"))
		_ = w.WriteKeepAlive()
	}()

	msg, err := r.ReadMessage()
	if err != nil || msg.ID != Choke {
		t.Fatalf("choke: got %+v, err %v", msg, err)
	}

	msg, err = r.ReadMessage()
	if err != nil || msg.ID != Have || msg.PieceIndex != 7 {
		t.Fatalf("have: got %+v, err %v", msg, err)
	}

	msg, err = r.ReadMessage()
	if err != nil || msg.ID != Bitfield || !bytes.Equal(msg.Bitfield, []byte{0xFF, 0x00}) {
		t.Fatalf("bitfield: got %+v, err %v", msg, err)
	}

	msg, err = r.ReadMessage()
	if err != nil || msg.ID != Request || msg.Index != 1 || msg.Begin != 16384 || msg.Length != 16384 {
		t.Fatalf("request: got %+v, err %v", msg, err)
	}

	msg, err = r.ReadMessage()
	if err != nil || msg.ID != Piece || msg.Index != 1 || msg.Begin != 0 || string(msg.Block) != "hello block" {
		t.Fatalf("piece: got %+v, err %v", msg, err)
	}

	msg, err = r.ReadMessage()
	if err != nil || !msg.KeepAlive {
		t.Fatalf("keepalive: got %+v, err %v", msg, err)
	}
}

func TestReadMessageRejectsWrongLength(t *testing.T) {
	// A "have" message (id 4) must carry exactly 4 bytes of body.
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 2}) // length = 2: id + 1 byte, too short for have
	buf.WriteByte(byte(Have))
	buf.WriteByte(0x00)

	r := NewReader(&buf)
	if _, err := r.ReadMessage(); err == nil {
		t.Fatal("expected error for malformed have message")
	}
}

func TestReadMessageSkipsUnknownID(t *testing.T) {
	var buf bytes.Buffer
	// Unknown id 20 with a 3-byte body, then a real choke message.
	buf.Write([]byte{0, 0, 0, 4})
	buf.WriteByte(20)
	buf.Write([]byte{1, 2, 3})
	buf.Write([]byte{0, 0, 0, 1})
	buf.WriteByte(byte(Choke))

	r := NewReader(&buf)
	msg, err := r.ReadMessage()
	if err != nil || msg.ID != Choke {
		t.Fatalf("got %+v, err %v; want choke after skipping unknown id", msg, err)
	}
}
