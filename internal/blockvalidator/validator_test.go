package blockvalidator

import (
	"testing"

	"github.com/arlogilbert/gorrent/internal/metainfo"
)

func testInfo() *metainfo.InfoDict {
	return &metainfo.InfoDict{
		PieceLength: 32 * 1024,
		Pieces:      make([][20]byte, 3),
		Length:      2*32*1024 + 10*1024, // last piece is 10 KiB
	}
}

func TestValidateRequestOK(t *testing.T) {
	info := testInfo()
	if err := ValidateRequest(info, 0, 0, metainfo.BlockSize); err != nil {
		t.Fatal(err)
	}
	if err := ValidateRequest(info, 2, 0, 10*1024); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRequestOutOfRange(t *testing.T) {
	info := testInfo()
	cases := []struct {
		index         int
		offset, length int64
	}{
		{3, 0, 1},                    // bad index
		{0, 0, 0},                    // zero length
		{0, 0, -1},                   // negative length
		{0, -1, 1},                   // negative offset
		{2, 0, 10*1024 + 1},          // exceeds last piece's effective length
		{0, 32*1024 - 1, 2},          // exceeds piece boundary
	}
	for _, c := range cases {
		if err := ValidateRequest(info, c.index, c.offset, c.length); err == nil {
			t.Fatalf("case %+v: expected error", c)
		}
	}
}

func TestValidatePieceOK(t *testing.T) {
	info := testInfo()
	if err := ValidatePiece(info, 0, 0, metainfo.BlockSize); err != nil {
		t.Fatal(err)
	}
	// last block of the last (short) piece
	if err := ValidatePiece(info, 2, 0, 10*1024); err != nil {
		t.Fatal(err)
	}
}

func TestValidatePieceRejectsMisalignment(t *testing.T) {
	info := testInfo()
	if err := ValidatePiece(info, 0, 1, metainfo.BlockSize); err == nil {
		t.Fatal("expected error for non-aligned offset")
	}
}

func TestValidatePieceRejectsWrongLength(t *testing.T) {
	info := testInfo()
	if err := ValidatePiece(info, 0, 0, metainfo.BlockSize-1); err == nil {
		t.Fatal("expected error: full block must equal BlockSize")
	}
	if err := ValidatePiece(info, 2, 0, 10*1024-1); err == nil {
		t.Fatal("expected error: tail block must equal residual length")
	}
}

func TestValidatePieceMultiBlockLastPiece(t *testing.T) {
	info := &metainfo.InfoDict{
		PieceLength: 48 * 1024,
		Pieces:      make([][20]byte, 2),
		Length:      48*1024 + 2*metainfo.BlockSize + 5000,
	}
	// Last piece has 3 blocks: BlockSize, BlockSize, 5000.
	if err := ValidatePiece(info, 1, 0, metainfo.BlockSize); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePiece(info, 1, metainfo.BlockSize, metainfo.BlockSize); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePiece(info, 1, 2*metainfo.BlockSize, 5000); err != nil {
		t.Fatal(err)
	}
}
