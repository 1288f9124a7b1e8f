package torrent

import (
	"crypto/sha1"

	"github.com/arlogilbert/gorrent/internal/metainfo"
)

// maxPipelineDepth bounds how many outstanding block requests a single
// peer may owe us at once, so one slow or stalled peer doesn't tie up
// blocks that a faster peer could otherwise serve.
const maxPipelineDepth = 10

type blockStatus int

const (
	blockMissing blockStatus = iota
	blockRequested
	blockHave
)

// newPieceBlocks builds the per-piece, per-block progress table implied
// by info's geometry: every piece except possibly the last has exactly
// PieceLength/BlockSize blocks, and the last piece's block count is
// derived from its effective (possibly shorter) length.
func newPieceBlocks(info *metainfo.InfoDict) [][]blockStatus {
	out := make([][]blockStatus, info.NumPieces())
	for i := range out {
		n, err := numBlocksInPiece(info, i)
		if err != nil {
			n = 0
		}
		out[i] = make([]blockStatus, n)
	}
	return out
}

func numBlocksInPiece(info *metainfo.InfoDict, index int) (int, error) {
	effLen, err := info.PieceEffectiveLength(index)
	if err != nil {
		return 0, err
	}
	n := effLen / metainfo.BlockSize
	if effLen%metainfo.BlockSize != 0 {
		n++
	}
	return int(n), nil
}

// blockLength returns the wire length of block blockIdx within piece
// index: BlockSize, except for the final block of the final piece.
func (t *Torrent) blockLength(index, blockIdx int) int64 {
	effLen, err := t.mi.Info.PieceEffectiveLength(index)
	if err != nil {
		return 0
	}
	begin := int64(blockIdx) * metainfo.BlockSize
	if remaining := effLen - begin; remaining < metainfo.BlockSize {
		return remaining
	}
	return metainfo.BlockSize
}

// blockKey packs (index, begin) into a single map key for a peer's
// pendingRequests set.
func blockKey(index int, begin uint32) uint64 {
	return uint64(index)<<32 | uint64(begin)
}

// blockIndex recovers the block-within-piece index from a wire begin
// offset.
func blockIndex(begin uint32) int {
	return int(begin) / metainfo.BlockSize
}

// updateInterest recomputes whether we are interested in p: true if p
// has at least one piece we are still missing.
func (t *Torrent) updateInterest(p *Peer) {
	want := false
	for i := 0; i < t.bitfield.Len(); i++ {
		if !t.bitfield.Test(i) && p.peerBitfield.Test(i) {
			want = true
			break
		}
	}
	if want && !p.amInterested {
		p.amInterested = true
		p.sendInterested()
	} else if !want && p.amInterested {
		p.amInterested = false
		p.sendNotInterested()
	}
}

// fillPipeline requests missing blocks from p, up to maxPipelineDepth
// outstanding requests, for pieces p has advertised and we don't yet
// have. Block selection is a simple in-order scan: the sophisticated
// rarest-first/end-game piece economics are an external concern this
// package does not implement, but blocks still need to flow for a
// download to complete at all.
func (t *Torrent) fillPipeline(p *Peer) {
	if p.isChoking || !p.amInterested {
		return
	}
	for len(p.pendingRequests) < maxPipelineDepth {
		index, blockIdx, ok := t.nextMissingBlock(p)
		if !ok {
			return
		}
		begin := uint32(blockIdx * metainfo.BlockSize)
		length := uint32(t.blockLength(index, blockIdx))
		t.pieceBlocks[index][blockIdx] = blockRequested
		p.pendingRequests[blockKey(index, begin)] = struct{}{}
		p.sendRequest(uint32(index), begin, length)
	}
}

// nextMissingBlock finds the first block, in piece/block order, that p
// has available and is not already have/requested.
func (t *Torrent) nextMissingBlock(p *Peer) (index, blockIdx int, ok bool) {
	for i, blocks := range t.pieceBlocks {
		if t.bitfield.Test(i) || !p.peerBitfield.Test(i) {
			continue
		}
		for b, st := range blocks {
			if st == blockMissing {
				return i, b, true
			}
		}
	}
	return 0, 0, false
}

// pieceComplete reports whether every block of piece index has been
// received.
func (t *Torrent) pieceComplete(index int) bool {
	for _, st := range t.pieceBlocks[index] {
		if st != blockHave {
			return false
		}
	}
	return len(t.pieceBlocks[index]) > 0
}

// verifyAndFinishPiece reads the whole piece back from storage and
// checks it against its SHA-1 digest from the info dictionary. On
// success it marks the piece in our bitfield and broadcasts Have; on
// failure the piece's blocks are reset to missing so it gets
// re-requested, possibly from a different peer.
func (t *Torrent) verifyAndFinishPiece(index int) {
	effLen, err := t.mi.Info.PieceEffectiveLength(index)
	if err != nil {
		t.resetPiece(index)
		return
	}
	offset := int64(index) * t.mi.Info.PieceLength
	data, err := t.storage.Get(offset, effLen)
	if err != nil || data == nil {
		t.log.Warningln("piece readback failed, redownloading:", index, err)
		t.resetPiece(index)
		return
	}
	sum := sha1.Sum(data)
	if sum != t.mi.Info.Pieces[index] {
		t.log.Warningln("piece hash mismatch, redownloading:", index)
		t.resetPiece(index)
		return
	}

	t.bitfield.Set(index)
	for p := range t.peers {
		p.sendHave(uint32(index))
		t.updateInterest(p)
	}
	if t.bitfield.All() {
		t.completed = true
		t.log.Infoln("download complete")
	}
}

// resetPiece marks every block of a piece missing again, e.g. after a
// failed hash check, so it re-enters the selection pool.
func (t *Torrent) resetPiece(index int) {
	blocks := t.pieceBlocks[index]
	for i := range blocks {
		blocks[i] = blockMissing
	}
}

// releasePeerRequests returns every block p owed us back to the
// missing pool, called when p chokes us or disconnects with requests
// still outstanding.
func (t *Torrent) releasePeerRequests(p *Peer) {
	for key := range p.pendingRequests {
		index := int(key >> 32)
		begin := uint32(key)
		if index >= len(t.pieceBlocks) {
			continue
		}
		bi := blockIndex(begin)
		if bi < len(t.pieceBlocks[index]) && t.pieceBlocks[index][bi] == blockRequested {
			t.pieceBlocks[index][bi] = blockMissing
		}
	}
	p.pendingRequests = make(map[uint64]struct{})
}
