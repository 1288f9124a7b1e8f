// Package torrent ties together the wire protocol, tracker client, and
// storage/bitfield collaborators into a Peer session, a per-torrent
// event loop, and a Client that manages many torrents.
package torrent

import (
	"net"

	"github.com/arlogilbert/gorrent/internal/bitfield"
	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/peerwire"
)

// peerMessage pairs a decoded wire message with the peer it arrived
// from, so the Torrent event loop can dispatch without the Peer
// needing a back-reference to its owning Torrent (per the design note
// on per-peer back-references: route events through the owner
// instead).
type peerMessage struct {
	peer *Peer
	msg  *peerwire.Message
}

// Peer is one connection's session state: choke/interest flags
// in both directions plus the peer's view of piece availability.
type Peer struct {
	conn net.Conn
	id   [20]byte

	reader *peerwire.Reader
	writer *peerwire.Writer
	log    logger.Logger

	isChoking     bool
	isInterested  bool
	amChoking     bool
	amInterested  bool
	bitfieldSet   bool
	peerBitfield  *bitfield.Bitfield
	numPieces     int

	optimisticUnchoked           bool
	bytesUploadedInChokePeriod   int64
	bytesDownloadedInChokePeriod int64

	// pendingRequests holds the blocks this peer owes us a piece
	// message for, keyed by blockKey(index, begin). It is only ever
	// touched from the owning Torrent's event loop.
	pendingRequests map[uint64]struct{}

	outC    chan *peerwire.Message
	closeC  chan struct{}
	closedC chan struct{}
}

// newPeer wraps conn, whose handshake has already been performed and
// validated by the caller.
func newPeer(conn net.Conn, id [20]byte, numPieces int, l logger.Logger) *Peer {
	return &Peer{
		conn:            conn,
		id:              id,
		reader:          peerwire.NewReader(conn),
		writer:          peerwire.NewWriter(conn),
		log:             l,
		isChoking:       true,
		amChoking:       true,
		peerBitfield:    bitfield.New(numPieces),
		numPieces:       numPieces,
		pendingRequests: make(map[uint64]struct{}),
		outC:            make(chan *peerwire.Message, 2*maxPipelineDepth),
		closeC:          make(chan struct{}),
		closedC:         make(chan struct{}),
	}
}

// ID returns the peer's handshake-reported peer id.
func (p *Peer) ID() [20]byte { return p.id }

// String identifies the peer by remote address, for logging.
func (p *Peer) String() string { return p.conn.RemoteAddr().String() }

// send enqueues a message for the write loop; it never blocks the
// caller beyond the outC buffer, matching the "no shared-memory
// parallelism, only async suspension" model — a full outC simply
// means this peer will be closed for being too slow.
func (p *Peer) send(msg *peerwire.Message) {
	select {
	case p.outC <- msg:
	default:
		p.log.Warningln("peer output queue full, closing:", p)
		go p.Close()
	}
}

func (p *Peer) sendChoke()         { p.send(&peerwire.Message{ID: peerwire.Choke}) }
func (p *Peer) sendUnchoke()       { p.send(&peerwire.Message{ID: peerwire.Unchoke}) }
func (p *Peer) sendInterested()    { p.send(&peerwire.Message{ID: peerwire.Interested}) }
func (p *Peer) sendNotInterested() { p.send(&peerwire.Message{ID: peerwire.NotInterested}) }
func (p *Peer) sendHave(index uint32) {
	p.send(&peerwire.Message{ID: peerwire.Have, PieceIndex: index})
}
func (p *Peer) sendBitfield(bf []byte) {
	p.send(&peerwire.Message{ID: peerwire.Bitfield, Bitfield: bf})
}
func (p *Peer) sendRequest(index, begin, length uint32) {
	p.send(&peerwire.Message{ID: peerwire.Request, Index: index, Begin: begin, Length: length})
}
func (p *Peer) sendPiece(index, begin uint32, block []byte) {
	p.send(&peerwire.Message{ID: peerwire.Piece, Index: index, Begin: begin, Block: block})
}

// Close tears down the connection and waits for both loops to exit.
func (p *Peer) Close() {
	select {
	case <-p.closeC:
	default:
		close(p.closeC)
	}
	<-p.closedC
}

// run starts the read and write loops and forwards every decoded
// message to msgC until the connection errors or Close is called.
func (p *Peer) run(msgC chan<- peerMessage, removeC chan<- *Peer) {
	defer close(p.closedC)
	defer func() { removeC <- p }()
	defer p.conn.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		p.writeLoop()
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.readLoop(msgC)
	}()

	select {
	case <-p.closeC:
	case <-readerDone:
	case <-writerDone:
	}
}

func (p *Peer) readLoop(msgC chan<- peerMessage) {
	for {
		msg, err := p.reader.ReadMessage()
		if err != nil {
			p.log.Debugln("peer read error:", err)
			return
		}
		if msg.KeepAlive {
			continue
		}
		select {
		case msgC <- peerMessage{peer: p, msg: msg}:
		case <-p.closeC:
			return
		}
	}
}

func (p *Peer) writeLoop() {
	for {
		select {
		case msg := <-p.outC:
			var err error
			switch msg.ID {
			case peerwire.Choke:
				err = p.writer.WriteChoke()
			case peerwire.Unchoke:
				err = p.writer.WriteUnchoke()
			case peerwire.Interested:
				err = p.writer.WriteInterested()
			case peerwire.NotInterested:
				err = p.writer.WriteNotInterested()
			case peerwire.Have:
				err = p.writer.WriteHave(msg.PieceIndex)
			case peerwire.Bitfield:
				err = p.writer.WriteBitfield(msg.Bitfield)
			case peerwire.Request:
				err = p.writer.WriteRequest(msg.Index, msg.Begin, msg.Length)
			case peerwire.Piece:
				err = p.writer.WritePiece(msg.Index, msg.Begin, msg.Block)
				if err == nil {
					p.bytesUploadedInChokePeriod += int64(len(msg.Block))
				}
			}
			if err != nil {
				p.log.Debugln("peer write error:", err)
				return
			}
		case <-p.closeC:
			return
		}
	}
}
