// Package blockvalidator enforces the piece/block geometry rules that
// guard the boundary between the wire protocol and storage: a request
// or a received block must stay within its piece's effective length and
// align to BlockSize, or the peer session is torn down.
package blockvalidator

import (
	"errors"
	"fmt"

	"github.com/arlogilbert/gorrent/internal/metainfo"
)

// ErrInvalidBlock is returned for any request or piece message that
// violates the piece/block geometry rules. The caller MUST tear down
// the owning peer session on this error.
var ErrInvalidBlock = errors.New("blockvalidator: invalid block")

// ValidateRequest checks a request(index, offset, length) message
// against the torrent's info dictionary: index must be in range,
// length must be positive, and offset+length must fit within the
// piece's effective length.
func ValidateRequest(info *metainfo.InfoDict, index int, offset, length int64) error {
	if index < 0 || index >= info.NumPieces() {
		return fmt.Errorf("%w: piece index %d out of range", ErrInvalidBlock, index)
	}
	if length <= 0 {
		return fmt.Errorf("%w: non-positive length %d", ErrInvalidBlock, length)
	}
	if offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidBlock, offset)
	}
	effLen, err := info.PieceEffectiveLength(index)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if offset+length > effLen {
		return fmt.Errorf("%w: offset %d + length %d exceeds piece %d effective length %d", ErrInvalidBlock, offset, length, index, effLen)
	}
	return nil
}

// ValidatePiece checks a received piece(index, offset, block) message:
// the offset must be block-aligned, and the block length must equal
// BlockSize except for the final block of the final piece, which must
// equal the residual tail length.
func ValidatePiece(info *metainfo.InfoDict, index int, offset int64, blockLen int) error {
	if index < 0 || index >= info.NumPieces() {
		return fmt.Errorf("%w: piece index %d out of range", ErrInvalidBlock, index)
	}
	if offset < 0 || offset%metainfo.BlockSize != 0 {
		return fmt.Errorf("%w: offset %d is not block-aligned", ErrInvalidBlock, offset)
	}
	effLen, err := info.PieceEffectiveLength(index)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if offset >= effLen {
		return fmt.Errorf("%w: offset %d beyond piece %d effective length %d", ErrInvalidBlock, offset, index, effLen)
	}
	want := int64(metainfo.BlockSize)
	isLastPiece := index == info.NumPieces()-1
	isLastBlock := offset+metainfo.BlockSize >= effLen
	if isLastPiece && isLastBlock {
		want = effLen - offset
	}
	if int64(blockLen) != want {
		return fmt.Errorf("%w: block length %d at piece %d offset %d, want %d", ErrInvalidBlock, blockLen, index, offset, want)
	}
	return nil
}
