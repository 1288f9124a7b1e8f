// Package bencode implements the bencode serialization format used by
// .torrent metainfo files and the HTTP/UDP tracker wire protocols: byte
// strings, integers, lists and dictionaries with lexicographically
// sorted byte-string keys.
package bencode

import "errors"

// ErrBadBencode is returned for any malformed bencode input: a
// truncated value, a bad length prefix, a missing terminating 'e', or a
// non-numeric integer body.
var ErrBadBencode = errors.New("bencode: malformed input")
