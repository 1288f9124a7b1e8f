package peerwire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessageLength guards against a peer claiming an absurd message
// length, which would otherwise make ReadMessage allocate without
// bound before discovering the stream is garbage.
const maxMessageLength = 1 << 20 // 1 MiB; largest legitimate message is a 16 KiB block plus header

// Reader reads framed peer wire messages (u32 length prefix, u8 id,
// body) off an underlying stream.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewReader wraps r for reading peer wire messages.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 16*1024+64)}
}

// ReadMessage reads and decodes the next message. Unknown ids (those
// not declared in messages.go) are drained and skipped rather than
// returned, since the protocol requires peers to ignore extensions
// they don't understand; ReadMessage loops internally until it has a
// recognized message or the stream errors.
func (r *Reader) ReadMessage() (*Message, error) {
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
			return nil, err
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length == 0 {
			return &Message{KeepAlive: true}, nil
		}
		if length > maxMessageLength {
			return nil, fmt.Errorf("peerwire: message length %d exceeds max %d", length, maxMessageLength)
		}
		idByte, err := r.r.ReadByte()
		if err != nil {
			return nil, err
		}
		id := MessageID(idByte)
		bodyLen := int(length) - 1
		if bodyLen < 0 {
			return nil, fmt.Errorf("peerwire: negative body length for id %d", id)
		}

		want := fixedLength(id)
		if want >= 0 && bodyLen != want {
			return nil, fmt.Errorf("peerwire: %s message has length %d, want %d", id, bodyLen, want)
		}

		switch id {
		case Choke, Unchoke, Interested, NotInterested:
			return &Message{ID: id}, nil

		case Have:
			body, err := r.readN(bodyLen)
			if err != nil {
				return nil, err
			}
			return &Message{ID: id, PieceIndex: binary.BigEndian.Uint32(body)}, nil

		case Bitfield:
			body, err := r.readN(bodyLen)
			if err != nil {
				return nil, err
			}
			bf := make([]byte, len(body))
			copy(bf, body)
			return &Message{ID: id, Bitfield: bf}, nil

		case Request, Cancel:
			body, err := r.readN(bodyLen)
			if err != nil {
				return nil, err
			}
			return &Message{
				ID:     id,
				Index:  binary.BigEndian.Uint32(body[0:4]),
				Begin:  binary.BigEndian.Uint32(body[4:8]),
				Length: binary.BigEndian.Uint32(body[8:12]),
			}, nil

		case Piece:
			if bodyLen < 8 {
				return nil, fmt.Errorf("peerwire: piece message has length %d, want >= 8", bodyLen)
			}
			header, err := r.readN(8)
			if err != nil {
				return nil, err
			}
			block := make([]byte, bodyLen-8)
			if _, err := io.ReadFull(r.r, block); err != nil {
				return nil, err
			}
			return &Message{
				ID:    id,
				Index: binary.BigEndian.Uint32(header[0:4]),
				Begin: binary.BigEndian.Uint32(header[4:8]),
				Block: block,
			}, nil

		default:
			// Unknown id: drain the body and try the next message.
			if err := r.discard(bodyLen); err != nil {
				return nil, err
			}
		}
	}
}

func (r *Reader) readN(n int) ([]byte, error) {
	if cap(r.buf) < n {
		r.buf = make([]byte, n)
	}
	buf := r.buf[:n]
	_, err := io.ReadFull(r.r, buf)
	return buf, err
}

func (r *Reader) discard(n int) error {
	_, err := r.r.Discard(n)
	return err
}
