package bencode

import (
	"bufio"
	"fmt"
	"io"
)

// Decoder reads bencoded values from a stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br}
}

// Decode reads one bencoded value from the stream and returns it as the
// dynamic sum type described in the package doc: []byte for byte
// strings, int64 for integers, []interface{} for lists, and
// map[string]interface{} for dictionaries (keys are raw bytes stored in
// a Go string, not necessarily valid UTF-8; callers decide how to
// interpret them).
func (d *Decoder) Decode() (interface{}, error) {
	return d.decodeValue()
}

func (d *Decoder) decodeValue() (interface{}, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, wrapEOF(err)
	}
	switch {
	case b == 'i':
		return d.decodeInt()
	case b == 'l':
		return d.decodeList()
	case b == 'd':
		return d.decodeDict()
	case b >= '0' && b <= '9':
		return d.decodeString(b)
	default:
		return nil, ErrBadBencode
	}
}

func wrapEOF(err error) error {
	if err == io.EOF {
		return ErrBadBencode
	}
	return err
}

// decodeInt reads the body of "i<digits>e"; the leading 'i' has already
// been consumed.
func (d *Decoder) decodeInt() (int64, error) {
	digits := make([]byte, 0, 20)
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, wrapEOF(err)
		}
		if b == 'e' {
			break
		}
		digits = append(digits, b)
	}
	return parseBencodeInt(digits)
}

func parseBencodeInt(digits []byte) (int64, error) {
	if len(digits) == 0 {
		return 0, ErrBadBencode
	}
	neg := false
	i := 0
	if digits[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(digits) {
		return 0, ErrBadBencode
	}
	if digits[i] == '0' && i != len(digits)-1 {
		// leading zero not allowed, except the literal "0" itself
		return 0, ErrBadBencode
	}
	if neg && digits[i] == '0' {
		// "-0" is not allowed
		return 0, ErrBadBencode
	}
	var v int64
	for ; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, ErrBadBencode
		}
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}

// decodeString reads the body of "<len>:<bytes>"; firstDigit is the
// first digit of <len>, already consumed from the stream.
func (d *Decoder) decodeString(firstDigit byte) ([]byte, error) {
	digits := []byte{firstDigit}
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		if b == ':' {
			break
		}
		if b < '0' || b > '9' {
			return nil, ErrBadBencode
		}
		digits = append(digits, b)
	}
	n, err := parseLength(digits)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, wrapEOF(err)
	}
	return buf, nil
}

func parseLength(digits []byte) (int64, error) {
	if len(digits) == 0 {
		return 0, ErrBadBencode
	}
	if len(digits) > 1 && digits[0] == '0' {
		return 0, ErrBadBencode
	}
	var n int64
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, ErrBadBencode
		}
		n = n*10 + int64(c-'0')
		if n < 0 || n > 1<<40 {
			return 0, ErrBadBencode
		}
	}
	return n, nil
}

func (d *Decoder) decodeList() ([]interface{}, error) {
	list := make([]interface{}, 0)
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		if b == 'e' {
			return list, nil
		}
		if err := d.r.UnreadByte(); err != nil {
			return nil, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

func (d *Decoder) decodeDict() (map[string]interface{}, error) {
	dict := make(map[string]interface{})
	var lastKey string
	haveKey := false
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		if b == 'e' {
			return dict, nil
		}
		if b < '0' || b > '9' {
			return nil, ErrBadBencode
		}
		keyBytes, err := d.decodeString(b)
		if err != nil {
			return nil, err
		}
		key := string(keyBytes)
		if haveKey && key <= lastKey {
			// Dict keys must be strictly increasing; a non-conforming
			// encoder is still accepted for decoding (be liberal on
			// input) but we do not reorder - callers that need strict
			// order validation should compare re-encoded bytes.
		}
		lastKey = key
		haveKey = true
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		dict[key] = v
	}
}

// AsInt type-asserts a decoded value as an integer, returning a helpful
// error otherwise.
func AsInt(v interface{}) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("bencode: expected integer, got %T", v)
	}
	return n, nil
}

// AsBytes type-asserts a decoded value as a byte string.
func AsBytes(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("bencode: expected byte string, got %T", v)
	}
	return b, nil
}

// AsList type-asserts a decoded value as a list.
func AsList(v interface{}) ([]interface{}, error) {
	l, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("bencode: expected list, got %T", v)
	}
	return l, nil
}

// AsDict type-asserts a decoded value as a dictionary.
func AsDict(v interface{}) (map[string]interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("bencode: expected dictionary, got %T", v)
	}
	return m, nil
}

// Unmarshal decodes the bencoded data in b into v, which must be a
// pointer to a struct, map, slice, string, []byte, or integer type. See
// Decoder.Decode for the dynamic decoding path used to satisfy
// interface{} destinations.
func Unmarshal(b []byte, v interface{}) error {
	dec := NewDecoder(newByteReader(b))
	raw, err := dec.Decode()
	if err != nil {
		return err
	}
	return assign(raw, v)
}
