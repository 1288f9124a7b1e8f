// Package peerwire implements the BitTorrent peer wire protocol:
// the 68-byte handshake and the length-prefixed message framing, plus
// typed readers/writers for each message.
package peerwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/arlogilbert/gorrent/internal/wire"
)

const pstr = "BitTorrent protocol"

// ErrHandshakeMismatch is returned when a handshake's protocol string,
// length prefix, or info-hash does not match what is expected.
var ErrHandshakeMismatch = errors.New("peerwire: handshake mismatch")

// Handshake is the 68-byte BitTorrent handshake: a 1-byte pstrlen, the
// pstr, 8 reserved bytes, a 20-byte info-hash, and a 20-byte peer id.
type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// Bytes serializes the handshake.
func (h *Handshake) Bytes() []byte {
	buf := make([]byte, 0, 68)
	buf = append(buf, byte(len(pstr)))
	buf = append(buf, pstr...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// WriteHandshake writes h to w.
func WriteHandshake(w io.Writer, h *Handshake) error {
	_, err := w.Write(h.Bytes())
	return err
}

// ReadHandshake reads a handshake from r, validating the pstrlen and
// pstr but not the info-hash or peer id — those are the caller's
// responsibility (the upper layer verifies the info-hash against a
// known torrent and, for outbound dials, the peer id against what the
// tracker advertised).
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lenByte, err := wire.ReadN(r, 1, nil)
	if err != nil {
		return nil, err
	}
	if lenByte[0] != byte(len(pstr)) {
		return nil, fmt.Errorf("%w: pstrlen %d, want %d", ErrHandshakeMismatch, lenByte[0], len(pstr))
	}
	pstrBytes, err := wire.ReadN(r, len(pstr), nil)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pstrBytes, []byte(pstr)) {
		return nil, fmt.Errorf("%w: unexpected protocol string %q", ErrHandshakeMismatch, pstrBytes)
	}
	var h Handshake
	reserved, err := wire.ReadN(r, 8, nil)
	if err != nil {
		return nil, err
	}
	copy(h.Reserved[:], reserved)
	infoHash, err := wire.ReadN(r, 20, nil)
	if err != nil {
		return nil, err
	}
	copy(h.InfoHash[:], infoHash)
	peerID, err := wire.ReadN(r, 20, nil)
	if err != nil {
		return nil, err
	}
	copy(h.PeerID[:], peerID)
	return &h, nil
}
