package torrent

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/metainfo"
	"github.com/arlogilbert/gorrent/internal/natutil"
	"github.com/arlogilbert/gorrent/internal/peerwire"
	"github.com/arlogilbert/gorrent/internal/storage"
)

// StorageFactory builds the Storage backend for one torrent, given its
// parsed metainfo: the client config names a factory rather than a
// concrete backend, so callers can swap filestorage/boltstorage or a
// test double. It is given the full Metainfo, not just the info
// dictionary, because some backends (boltstorage) key storage by
// info-hash.
type StorageFactory func(mi *metainfo.Metainfo) (storage.Storage, error)

// Client manages a set of torrents sharing one listening port and peer
// id: it accepts inbound connections and dispatches them to the
// right Torrent by info-hash. Outbound connections to the peers an
// announcer returns are dialed by the owning Torrent.
type Client struct {
	peerID  [20]byte
	port    uint16
	storage StorageFactory
	log     logger.Logger
	nat     natutil.Mapper

	mu       sync.Mutex
	torrents map[[20]byte]*Torrent

	listener net.Listener
	stopC    chan struct{}
	stoppedC chan struct{}
}

// NewClient returns a Client listening on port, announcing itself with
// a peer id built from peerIDPrefix (padded/truncated to 8 bytes,
// followed by 12 random bytes). nat may be nil to skip NAT traversal.
func NewClient(port uint16, peerIDPrefix string, sf StorageFactory, nat natutil.Mapper) (*Client, error) {
	id, err := newPeerID(peerIDPrefix)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("torrent: could not listen on port %d: %w", port, err)
	}
	c := &Client{
		peerID:   id,
		port:     port,
		storage:  sf,
		log:      logger.New("client"),
		nat:      nat,
		torrents: make(map[[20]byte]*Torrent),
		listener: l,
		stopC:    make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
	if nat != nil {
		if _, external, err := nat.GetIPAddrsAndMapPort(port); err != nil {
			c.log.Warningln("nat port mapping failed, continuing without it:", err)
		} else {
			c.log.Infoln("mapped external address:", external)
		}
	}
	go c.acceptLoop()
	return c, nil
}

func newPeerID(prefix string) ([20]byte, error) {
	var id [20]byte
	copy(id[:8], prefix)
	if _, err := rand.Read(id[8:]); err != nil {
		return id, fmt.Errorf("torrent: could not generate peer id: %w", err)
	}
	return id, nil
}

// PeerID returns the client's 20-byte peer id.
func (c *Client) PeerID() [20]byte { return c.peerID }

// AddTorrent registers a torrent under mi and starts its event loop and
// announcer against trackerURL (normally mi.Announce).
func (c *Client) AddTorrent(mi *metainfo.Metainfo, trackerURL string) (*Torrent, error) {
	st, err := c.storage(mi)
	if err != nil {
		return nil, fmt.Errorf("torrent: could not open storage: %w", err)
	}
	t := New(mi, st, c.peerID, c.port)
	c.log.Infoln("registered torrent", t.ID(), "info-hash", mi.InfoHash)

	c.mu.Lock()
	c.torrents[mi.InfoHash] = t
	c.mu.Unlock()

	go func() {
		t.Run(trackerURL)
		st.Close()
		c.mu.Lock()
		delete(c.torrents, mi.InfoHash)
		c.mu.Unlock()
	}()
	return t, nil
}

// RemoveTorrent stops and unregisters the torrent for infoHash, if any.
func (c *Client) RemoveTorrent(infoHash [20]byte) {
	c.mu.Lock()
	t, ok := c.torrents[infoHash]
	c.mu.Unlock()
	if !ok {
		return
	}
	t.Stop()
}

// Close stops the accept loop and every registered torrent.
func (c *Client) Close() error {
	close(c.stopC)
	err := c.listener.Close()
	<-c.stoppedC

	c.mu.Lock()
	torrents := make([]*Torrent, 0, len(c.torrents))
	for _, t := range c.torrents {
		torrents = append(torrents, t)
	}
	c.mu.Unlock()
	for _, t := range torrents {
		t.Stop()
	}
	return err
}

func (c *Client) acceptLoop() {
	defer close(c.stoppedC)
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.stopC:
				return
			default:
				c.log.Warningln("accept error:", err)
				return
			}
		}
		go c.handleIncoming(conn)
	}
}

// handleIncoming performs the incoming side of the handshake: read the
// peer's handshake first (we don't know the info-hash to send until we
// see theirs), look up the matching Torrent, then reply with our own
// handshake before handing the connection to the Torrent.
func (c *Client) handleIncoming(conn net.Conn) {
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	hs, err := peerwire.ReadHandshake(conn)
	if err != nil {
		c.log.Debugln("incoming handshake failed:", err)
		conn.Close()
		return
	}

	c.mu.Lock()
	t, ok := c.torrents[hs.InfoHash]
	c.mu.Unlock()
	if !ok {
		c.log.Debugln("incoming connection for unknown info-hash")
		conn.Close()
		return
	}

	reply := peerwire.Handshake{InfoHash: hs.InfoHash, PeerID: c.peerID}
	if err := peerwire.WriteHandshake(conn, &reply); err != nil {
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})

	t.AddPeer(conn, hs.PeerID)
}

// performOutgoingHandshake performs the outgoing side of the handshake
// over conn: send ours, read theirs, and verify both the info-hash and
// (when expectedPeerID is non-zero, i.e. it came from a tracker peer
// list with a peer id) the peer id match.
func performOutgoingHandshake(conn net.Conn, infoHash, peerID, expectedPeerID [20]byte) error {
	conn.SetDeadline(time.Now().Add(30 * time.Second))
	defer conn.SetDeadline(time.Time{})

	out := peerwire.Handshake{InfoHash: infoHash, PeerID: peerID}
	if err := peerwire.WriteHandshake(conn, &out); err != nil {
		return err
	}
	in, err := peerwire.ReadHandshake(conn)
	if err != nil {
		return err
	}
	if in.InfoHash != infoHash {
		return fmt.Errorf("torrent: peer handshake info-hash mismatch")
	}
	var zero [20]byte
	if expectedPeerID != zero && in.PeerID != expectedPeerID {
		return fmt.Errorf("torrent: peer handshake peer-id mismatch")
	}
	return nil
}
