// Package metainfo parses and validates .torrent files: the info
// dictionary (piece geometry, single/multi-file layout) and the
// surrounding metainfo dictionary, and computes the SHA-1 info-hash
// that identifies a swarm.
package metainfo

import (
	"errors"
	"fmt"
)

// BlockSize is the wire block size: pieces are downloaded/uploaded in
// BlockSize chunks except possibly the final block of the final piece.
const BlockSize = 16 * 1024

// ErrMalformedTorrent is returned when a .torrent's info dictionary
// does not satisfy the expected shape or geometry invariants.
var ErrMalformedTorrent = errors.New("metainfo: malformed torrent")

// FileEntry is one file in a multi-file torrent's "files" list.
type FileEntry struct {
	Length int64
	Path   []string
}

// InfoDict is the parsed and validated "info" dictionary. It is
// immutable after ParseMetainfo returns.
type InfoDict struct {
	PieceLength int64
	Pieces      [][20]byte
	Private     int
	Name        string

	// Length is the single-file total length; zero when Files is set.
	Length int64
	// Files is the ordered multi-file list; nil for a single-file torrent.
	Files []FileEntry
}

// IsMultiFile reports whether this is a multi-file torrent.
func (i *InfoDict) IsMultiFile() bool {
	return i.Files != nil
}

// TotalLength returns the sum of all file lengths.
func (i *InfoDict) TotalLength() int64 {
	if !i.IsMultiFile() {
		return i.Length
	}
	var total int64
	for _, f := range i.Files {
		total += f.Length
	}
	return total
}

// NumPieces returns the number of pieces described by Pieces.
func (i *InfoDict) NumPieces() int {
	return len(i.Pieces)
}

// PieceEffectiveLength returns the number of content bytes covered by
// piece index: PieceLength for every piece except possibly the last,
// which is TotalLength() mod PieceLength (or PieceLength itself when
// that remainder is zero).
func (i *InfoDict) PieceEffectiveLength(index int) (int64, error) {
	if index < 0 || index >= i.NumPieces() {
		return 0, fmt.Errorf("metainfo: piece index %d out of range [0,%d)", index, i.NumPieces())
	}
	if index != i.NumPieces()-1 {
		return i.PieceLength, nil
	}
	rem := i.TotalLength() % i.PieceLength
	if rem == 0 {
		return i.PieceLength, nil
	}
	return rem, nil
}

// validate checks the geometry invariants: positive piece length,
// pieces partitioned into exactly-20-byte digests, exactly one of
// Length/Files set, and BlockSize dividing PieceLength except possibly
// in the tail of the last piece.
func (i *InfoDict) validate() error {
	if i.PieceLength <= 0 {
		return fmt.Errorf("%w: non-positive piece length", ErrMalformedTorrent)
	}
	if i.NumPieces() == 0 {
		return fmt.Errorf("%w: no pieces", ErrMalformedTorrent)
	}
	if i.IsMultiFile() && i.Length != 0 {
		return fmt.Errorf("%w: both length and files set", ErrMalformedTorrent)
	}
	if !i.IsMultiFile() && i.Length <= 0 {
		return fmt.Errorf("%w: non-positive length", ErrMalformedTorrent)
	}
	if i.IsMultiFile() {
		for _, f := range i.Files {
			if f.Length < 0 {
				return fmt.Errorf("%w: negative file length", ErrMalformedTorrent)
			}
			if len(f.Path) == 0 {
				return fmt.Errorf("%w: empty file path", ErrMalformedTorrent)
			}
			for _, c := range f.Path {
				if c == "" {
					return fmt.Errorf("%w: empty path component", ErrMalformedTorrent)
				}
			}
		}
	}
	total := i.TotalLength()
	wantPieces := total / i.PieceLength
	if total%i.PieceLength != 0 {
		wantPieces++
	}
	if wantPieces == 0 {
		wantPieces = 1
	}
	if int64(i.NumPieces()) != wantPieces {
		return fmt.Errorf("%w: piece count %d does not match content length", ErrMalformedTorrent, i.NumPieces())
	}
	if i.PieceLength%BlockSize != 0 {
		return fmt.Errorf("%w: piece length not a multiple of block size", ErrMalformedTorrent)
	}
	return nil
}
