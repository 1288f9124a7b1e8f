package bencode

import "fmt"

// ScanTopLevelDictValue returns the raw bencoded bytes (including the
// value's own type prefix, e.g. "d...e" or "20:...") stored under key
// in the top-level dictionary encoded in data. The returned slice
// aliases data; nothing is re-encoded.
//
// This is how an info-hash must be derived: BEP 3 defines it as the
// SHA-1 of the literal bencoded substring of the "info" dictionary as
// it appears in the .torrent file, not of a re-marshaled copy. A
// decoder that tolerates non-canonical input (ours does not require
// sorted dict keys) would otherwise normalize the bytes on re-encode
// and silently compute a different info-hash than every other peer
// and tracker that kept the original bytes.
func ScanTopLevelDictValue(data []byte, key string) ([]byte, error) {
	if len(data) == 0 || data[0] != 'd' {
		return nil, fmt.Errorf("bencode: not a dictionary")
	}
	i := 1
	for i < len(data) {
		if data[i] == 'e' {
			return nil, fmt.Errorf("bencode: key %q not found", key)
		}
		k, next, err := scanString(data, i)
		if err != nil {
			return nil, err
		}
		valStart := next
		valEnd, err := scanValue(data, valStart)
		if err != nil {
			return nil, err
		}
		if string(k) == key {
			return data[valStart:valEnd], nil
		}
		i = valEnd
	}
	return nil, fmt.Errorf("bencode: truncated dictionary")
}

// scanString parses the bencoded byte string starting at i, returning
// its decoded bytes and the index immediately following it.
func scanString(data []byte, i int) ([]byte, int, error) {
	start := i
	for i < len(data) && data[i] != ':' {
		if data[i] < '0' || data[i] > '9' {
			return nil, 0, fmt.Errorf("bencode: malformed string length")
		}
		i++
	}
	if i >= len(data) || i == start {
		return nil, 0, fmt.Errorf("bencode: truncated string length")
	}
	n, err := parseUintBytes(data[start:i])
	if err != nil {
		return nil, 0, err
	}
	i++ // skip ':'
	end := i + n
	if n < 0 || end > len(data) {
		return nil, 0, fmt.Errorf("bencode: truncated string body")
	}
	return data[i:end], end, nil
}

// scanValue returns the index immediately following the bencoded value
// starting at i without decoding it into a Go value.
func scanValue(data []byte, i int) (int, error) {
	if i >= len(data) {
		return 0, fmt.Errorf("bencode: truncated value")
	}
	switch {
	case data[i] == 'i':
		j := i + 1
		for j < len(data) && data[j] != 'e' {
			j++
		}
		if j >= len(data) {
			return 0, fmt.Errorf("bencode: truncated integer")
		}
		return j + 1, nil
	case data[i] == 'l':
		j := i + 1
		for j < len(data) && data[j] != 'e' {
			var err error
			j, err = scanValue(data, j)
			if err != nil {
				return 0, err
			}
		}
		if j >= len(data) {
			return 0, fmt.Errorf("bencode: truncated list")
		}
		return j + 1, nil
	case data[i] == 'd':
		j := i + 1
		for j < len(data) && data[j] != 'e' {
			_, next, err := scanString(data, j)
			if err != nil {
				return 0, err
			}
			j, err = scanValue(data, next)
			if err != nil {
				return 0, err
			}
		}
		if j >= len(data) {
			return 0, fmt.Errorf("bencode: truncated dictionary")
		}
		return j + 1, nil
	case data[i] >= '0' && data[i] <= '9':
		_, end, err := scanString(data, i)
		return end, err
	default:
		return 0, fmt.Errorf("bencode: invalid type prefix %q", data[i])
	}
}

func parseUintBytes(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("bencode: empty length")
	}
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n, nil
}
