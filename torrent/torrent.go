package torrent

import (
	"fmt"
	"net"
	"sort"
	"time"

	metrics "github.com/rcrowley/go-metrics"
	uuid "github.com/satori/go.uuid"

	"github.com/arlogilbert/gorrent/internal/bitfield"
	"github.com/arlogilbert/gorrent/internal/blockvalidator"
	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/metainfo"
	"github.com/arlogilbert/gorrent/internal/peerwire"
	"github.com/arlogilbert/gorrent/internal/storage"
	"github.com/arlogilbert/gorrent/internal/trackerclient"
)

const (
	unchokeInterval           = 10 * time.Second
	optimisticUnchokeInterval = 30 * time.Second
	unchokedPeers             = 4
	optimisticUnchokedPeers   = 1

	// speedSampleInterval is how often the EWMA rate counters are fed
	// and ticked. go-metrics' EWMA is calibrated for a 5-second tick.
	speedSampleInterval = 5 * time.Second

	// resumeSaveInterval is how often a Resumer-capable storage
	// backend's bitfield and transfer counters are checkpointed, so a
	// crash loses at most this much re-download/re-verify work.
	resumeSaveInterval = 30 * time.Second
)

// Torrent manages one swarm: peer registry, announcer, and the
// choking algorithm. It runs its own event loop goroutine; all
// mutations to its state happen on that goroutine, so no locks are
// needed.
type Torrent struct {
	id       uuid.UUID
	mi       *metainfo.Metainfo
	storage  storage.Storage
	peerID   [20]byte
	port     uint16
	log      logger.Logger

	bitfield *bitfield.Bitfield
	peers    map[*Peer]struct{}

	// pieceBlocks tracks block-level download progress, indexed
	// [piece][block]. A block only ever moves missing -> requested ->
	// have; requested reverts to missing if the owning peer chokes us
	// or disconnects before delivering it, or if storing the delivered
	// block fails, and a failed hash check
	// resets every block of that piece back to missing.
	pieceBlocks [][]blockStatus

	// connectedPeerIPs de-duplicates connections by remote IP: at most
	// one peer connection per address, inbound or outbound, is kept.
	connectedPeerIPs map[string]struct{}

	uploaded, downloaded                     int64
	uploadedAtLastSample, downloadedAtLastSample int64
	downloadSpeed, uploadSpeed               metrics.EWMA

	newPeerC    chan *Peer
	removePeerC chan *Peer
	msgC        chan peerMessage
	announceC   chan *trackerclient.AnnounceResponse
	wakeC       chan struct{}
	statsC      chan chan Stats
	stopC       chan struct{}
	stoppedC    chan struct{}

	optimisticUnchokedPeers []*Peer
	completed               bool
}

// Stats is a snapshot of a Torrent's transfer counters and throughput,
// sampled every speedSampleInterval.
type Stats struct {
	Uploaded, Downloaded int64
	Left                 int64
	DownloadRate         float64 // bytes/sec, 1-minute EWMA
	UploadRate           float64 // bytes/sec, 1-minute EWMA
	Peers                int
}

// ID returns the torrent's opaque per-registration id, distinct from
// its info-hash: a client may add the same info-hash twice (e.g. to
// two different destinations) and each gets its own id.
func (t *Torrent) ID() uuid.UUID { return t.id }

// Stats returns a snapshot of the torrent's current transfer state. It
// asks the event loop for the snapshot rather than reading fields
// directly, since those are only safe to touch from that goroutine.
func (t *Torrent) Stats() Stats {
	replyC := make(chan Stats, 1)
	select {
	case t.statsC <- replyC:
		return <-replyC
	case <-t.stoppedC:
		return Stats{}
	}
}

// New creates a Torrent ready to Run. storage must already be wired to
// a backend sized for mi's content.
func New(mi *metainfo.Metainfo, st storage.Storage, peerID [20]byte, port uint16) *Torrent {
	return &Torrent{
		id:               uuid.NewV4(),
		mi:               mi,
		storage:          st,
		peerID:           peerID,
		port:             port,
		log:              logger.New("torrent " + mi.Info.Name),
		bitfield:         bitfield.New(mi.Info.NumPieces()),
		peers:            make(map[*Peer]struct{}),
		pieceBlocks:      newPieceBlocks(&mi.Info),
		connectedPeerIPs: make(map[string]struct{}),
		downloadSpeed:    metrics.NewEWMA1(),
		uploadSpeed:      metrics.NewEWMA1(),
		newPeerC:         make(chan *Peer),
		removePeerC:      make(chan *Peer),
		msgC:             make(chan peerMessage, 64),
		announceC:        make(chan *trackerclient.AnnounceResponse),
		wakeC:            make(chan struct{}, 1),
		statsC:           make(chan chan Stats),
		stopC:            make(chan struct{}),
		stoppedC:         make(chan struct{}),
	}
}

// InfoHash returns the torrent's info-hash.
func (t *Torrent) InfoHash() [20]byte { return t.mi.InfoHash }

// remaining estimates the bytes left to download, from the local
// bitfield's missing pieces, for the announce request's "left" field.
func (t *Torrent) remaining() int64 {
	total := t.mi.Info.TotalLength()
	have := int64(0)
	for i := 0; i < t.bitfield.Len(); i++ {
		if t.bitfield.Test(i) {
			n, err := t.mi.Info.PieceEffectiveLength(i)
			if err == nil {
				have += n
			}
		}
	}
	left := total - have
	if left < 0 {
		left = 0
	}
	return left
}

// AddPeer registers a connection whose handshake has already been
// validated against this torrent's info-hash.
func (t *Torrent) AddPeer(conn net.Conn, id [20]byte) {
	p := newPeer(conn, id, t.mi.Info.NumPieces(), logger.New("peer "+conn.RemoteAddr().String()))
	select {
	case t.newPeerC <- p:
		go p.run(t.msgC, t.removePeerC)
	case <-t.stopC:
		conn.Close()
	}
}

// RequestMorePeers wakes the announcer early and asks it to request a
// full batch of new peers on its next announce.
func (t *Torrent) RequestMorePeers() {
	select {
	case t.wakeC <- struct{}{}:
	default:
	}
}

// Stop ends the event loop and the announcer, closing every peer.
func (t *Torrent) Stop() {
	close(t.stopC)
	<-t.stoppedC
}

// Run is the torrent's event loop; call it in its own goroutine. It
// also starts the announcer as a child task, stopping it when Run
// returns.
func (t *Torrent) Run(trackerURL string) {
	defer close(t.stoppedC)
	defer t.saveResumeState()
	t.loadResumeState()

	ann := newAnnouncer(trackerURL, t, t.log)
	go ann.run()
	defer ann.stop()

	unchokeTicker := time.NewTicker(unchokeInterval)
	defer unchokeTicker.Stop()
	optimisticTicker := time.NewTicker(optimisticUnchokeInterval)
	defer optimisticTicker.Stop()
	speedTicker := time.NewTicker(speedSampleInterval)
	defer speedTicker.Stop()
	resumeTicker := time.NewTicker(resumeSaveInterval)
	defer resumeTicker.Stop()

	for {
		select {
		case <-t.stopC:
			for p := range t.peers {
				p.Close()
			}
			return

		case p := <-t.newPeerC:
			ip := peerIP(p)
			if _, dup := t.connectedPeerIPs[ip]; dup {
				p.log.Debugln("duplicate connection to", ip, "closing")
				go p.Close()
				continue
			}
			t.connectedPeerIPs[ip] = struct{}{}
			t.peers[p] = struct{}{}
			p.sendBitfield(t.bitfield.Bytes())

		case p := <-t.removePeerC:
			t.releasePeerRequests(p)
			delete(t.peers, p)
			delete(t.connectedPeerIPs, peerIP(p))

		case pm := <-t.msgC:
			t.handleMessage(pm)

		case resp := <-t.announceC:
			t.handleAnnounceResult(resp)

		case <-unchokeTicker.C:
			t.tickUnchoke()

		case <-optimisticTicker.C:
			t.tickOptimisticUnchoke()

		case <-speedTicker.C:
			t.tickSpeed()

		case <-resumeTicker.C:
			t.saveResumeState()

		case replyC := <-t.statsC:
			replyC <- Stats{
				Uploaded:     t.uploaded,
				Downloaded:   t.downloaded,
				Left:         t.remaining(),
				DownloadRate: t.downloadSpeed.Rate(),
				UploadRate:   t.uploadSpeed.Rate(),
				Peers:        len(t.peers),
			}
		}
	}
}

// peerIP returns the dotted-or-colon host part of a peer's remote
// address, used as the de-duplication key: only one connection per IP
// is kept per torrent, inbound or outbound.
func peerIP(p *Peer) string {
	host, _, err := net.SplitHostPort(p.String())
	if err != nil {
		return p.String()
	}
	return host
}

// loadResumeState restores the bitfield and transfer counters from a
// Resumer-capable storage backend, if any was saved, so already-held
// pieces aren't re-requested and re-verified from scratch. A saved
// piece is trusted without re-hashing: a bit is only ever set in the
// saved bitfield after verifyAndFinishPiece passed for that piece.
func (t *Torrent) loadResumeState() {
	r, ok := t.storage.(storage.Resumer)
	if !ok {
		return
	}
	bf, downloaded, uploaded, err := r.ResumeBitfield()
	if err != nil {
		t.log.Warningln("could not load resume state:", err)
		return
	}
	if bf == nil {
		return
	}
	loaded, err := bitfield.NewBytes(bf, t.mi.Info.NumPieces())
	if err != nil {
		t.log.Warningln("discarding malformed resume bitfield:", err)
		return
	}
	t.bitfield = loaded
	t.downloaded = downloaded
	t.uploaded = uploaded
	for i := 0; i < t.bitfield.Len(); i++ {
		if t.bitfield.Test(i) {
			for b := range t.pieceBlocks[i] {
				t.pieceBlocks[i][b] = blockHave
			}
		}
	}
	t.log.Infoln("resumed", t.bitfield.Count(), "of", t.bitfield.Len(), "pieces")
}

// saveResumeState checkpoints the current bitfield and transfer
// counters to a Resumer-capable storage backend, if any.
func (t *Torrent) saveResumeState() {
	r, ok := t.storage.(storage.Resumer)
	if !ok {
		return
	}
	if err := r.SaveResumeBitfield(t.bitfield.Bytes(), t.downloaded, t.uploaded); err != nil {
		t.log.Warningln("could not save resume state:", err)
	}
}

// tickSpeed feeds the EWMA rate counters with the bytes transferred
// since the previous sample and advances them by one tick.
func (t *Torrent) tickSpeed() {
	t.downloadSpeed.Update(t.downloaded - t.downloadedAtLastSample)
	t.uploadSpeed.Update(t.uploaded - t.uploadedAtLastSample)
	t.downloadedAtLastSample = t.downloaded
	t.uploadedAtLastSample = t.uploaded
	t.downloadSpeed.Tick()
	t.uploadSpeed.Tick()
}

func (t *Torrent) handleAnnounceResult(resp *trackerclient.AnnounceResponse) {
	for _, peerAddr := range resp.Peers {
		go t.dial(peerAddr)
	}
}

func (t *Torrent) dial(peerAddr trackerclient.Peer) {
	addr := fmt.Sprintf("%s:%d", peerAddr.IP, peerAddr.Port)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return
	}
	if err := performOutgoingHandshake(conn, t.mi.InfoHash, t.peerID, peerAddr.ID); err != nil {
		conn.Close()
		return
	}
	t.AddPeer(conn, peerAddr.ID)
}

func (t *Torrent) handleMessage(pm peerMessage) {
	p, msg := pm.peer, pm.msg
	switch msg.ID {
	case peerwire.Choke:
		p.isChoking = true
		t.releasePeerRequests(p)
	case peerwire.Unchoke:
		p.isChoking = false
		t.fillPipeline(p)
	case peerwire.Interested:
		p.isInterested = true
	case peerwire.NotInterested:
		p.isInterested = false

	case peerwire.Have:
		if int(msg.PieceIndex) >= t.mi.Info.NumPieces() {
			p.log.Warningln("have index out of range, closing peer")
			go p.Close()
			return
		}
		p.peerBitfield.Set(int(msg.PieceIndex))
		t.updateInterest(p)
		if !p.isChoking {
			t.fillPipeline(p)
		}

	case peerwire.Bitfield:
		if p.bitfieldSet {
			p.log.Warningln("duplicate bitfield message, closing peer")
			go p.Close()
			return
		}
		bf, err := bitfield.NewBytes(msg.Bitfield, t.mi.Info.NumPieces())
		if err != nil {
			p.log.Warningln("malformed bitfield, closing peer:", err)
			go p.Close()
			return
		}
		p.peerBitfield = bf
		p.bitfieldSet = true
		t.updateInterest(p)
		if !p.isChoking {
			t.fillPipeline(p)
		}

	case peerwire.Request:
		t.handleRequest(p, msg)

	case peerwire.Piece:
		t.handlePiece(p, msg)

	case peerwire.Cancel:
		p.log.Debugln("received cancel, best-effort ignored")
	}
}

func (t *Torrent) handleRequest(p *Peer, msg *peerwire.Message) {
	index := int(msg.Index)
	if err := blockvalidator.ValidateRequest(&t.mi.Info, index, int64(msg.Begin), int64(msg.Length)); err != nil {
		p.log.Warningln("invalid request, closing peer:", err)
		go p.Close()
		return
	}
	if p.amChoking {
		return
	}
	offset := int64(index)*t.mi.Info.PieceLength + int64(msg.Begin)
	block, err := t.storage.Get(offset, int64(msg.Length))
	if err != nil || block == nil {
		t.log.Warningln("storage read failed, dropping request:", err)
		return
	}
	p.sendPiece(msg.Index, msg.Begin, block)
	t.uploaded += int64(len(block))
}

func (t *Torrent) handlePiece(p *Peer, msg *peerwire.Message) {
	index := int(msg.Index)
	if err := blockvalidator.ValidatePiece(&t.mi.Info, index, int64(msg.Begin), len(msg.Block)); err != nil {
		p.log.Warningln("invalid piece, closing peer:", err)
		go p.Close()
		return
	}
	key := blockKey(index, msg.Begin)
	if _, wanted := p.pendingRequests[key]; !wanted {
		p.log.Debugln("unsolicited piece, ignoring:", index, msg.Begin)
		return
	}
	delete(p.pendingRequests, key)

	offset := int64(index)*t.mi.Info.PieceLength + int64(msg.Begin)
	ok, err := t.storage.Set(offset, msg.Block)
	if err != nil || !ok {
		t.log.Warningln("storage write failed, dropping piece:", err)
		t.pieceBlocks[index][blockIndex(msg.Begin)] = blockMissing
		return
	}
	p.bytesDownloadedInChokePeriod += int64(len(msg.Block))
	t.downloaded += int64(len(msg.Block))

	t.pieceBlocks[index][blockIndex(msg.Begin)] = blockHave
	if t.pieceComplete(index) {
		t.verifyAndFinishPiece(index)
	}
	t.fillPipeline(p)
}

// tickUnchoke implements the round-based choking algorithm: interested
// peers are ranked by their throughput during the previous period
// (upload rate while seeding, download rate while leeching) and the
// top unchokedPeers are unchoked.
func (t *Torrent) tickUnchoke() {
	candidates := make([]*Peer, 0, len(t.peers))
	for p := range t.peers {
		if p.isInterested && !p.optimisticUnchoked {
			candidates = append(candidates, p)
		}
	}
	if t.completed {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].bytesUploadedInChokePeriod > candidates[j].bytesUploadedInChokePeriod
		})
	} else {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].bytesDownloadedInChokePeriod > candidates[j].bytesDownloadedInChokePeriod
		})
	}
	for p := range t.peers {
		p.bytesUploadedInChokePeriod = 0
		p.bytesDownloadedInChokePeriod = 0
	}

	unchoked := 0
	for _, p := range candidates {
		if unchoked < unchokedPeers {
			t.unchokePeer(p)
			unchoked++
		} else {
			t.chokePeer(p)
		}
	}
}

// tickOptimisticUnchoke rotates a small set of peers that are unchoked
// regardless of throughput, giving newly-joined peers a chance to
// demonstrate useful upload/download rates.
func (t *Torrent) tickOptimisticUnchoke() {
	candidates := make([]*Peer, 0, len(t.peers))
	for p := range t.peers {
		if p.isInterested && !p.optimisticUnchoked && p.amChoking {
			candidates = append(candidates, p)
		}
	}

	for _, p := range t.optimisticUnchokedPeers {
		if p.optimisticUnchoked {
			t.chokePeer(p)
		}
	}
	t.optimisticUnchokedPeers = t.optimisticUnchokedPeers[:0]

	for i := 0; i < optimisticUnchokedPeers && len(candidates) > 0; i++ {
		idx := i % len(candidates)
		p := candidates[idx]
		p.optimisticUnchoked = true
		t.unchokePeer(p)
		t.optimisticUnchokedPeers = append(t.optimisticUnchokedPeers, p)
	}
}

func (t *Torrent) unchokePeer(p *Peer) {
	if p.amChoking {
		p.amChoking = false
		p.sendUnchoke()
	}
}

func (t *Torrent) chokePeer(p *Peer) {
	if !p.amChoking {
		p.amChoking = true
		p.sendChoke()
	}
}
