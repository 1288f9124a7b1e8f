package trackerserver

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/arlogilbert/gorrent/internal/logger"
)

const (
	udpProtocolMagic = 0x0000041727101980
	udpConnectAction = 0
	udpAnnounceAction = 1
	udpScrapeAction   = 2
	udpErrorAction    = 3

	serverConnectionIDLifetime = 120 * time.Second
)

// udpListener implements the server side of the UDP connect challenge
// and forwards parsed announce/scrape datagrams onto out.
type udpListener struct {
	conn   *net.UDPConn
	out    chan<- Request
	filter *FilterList
	log    logger.Logger

	mu      sync.Mutex
	connIDs map[uint64]time.Time
}

func newUDPListener(addr string, out chan<- Request, filter *FilterList) (*udpListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &udpListener{
		conn:    conn,
		out:     out,
		filter:  filter,
		log:     logger.NewRequest("trackerserver.udp"),
		connIDs: make(map[uint64]time.Time),
	}, nil
}

func (l *udpListener) close() error { return l.conn.Close() }

// serve reads datagrams until conn is closed. It runs the connection
// id eviction sweep inline, opportunistically, rather than on its own
// ticker, since UDP trackers see continuous traffic in practice.
func (l *udpListener) serve() error {
	buf := make([]byte, 4096)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		l.handleDatagram(append([]byte(nil), buf[:n]...), addr)
	}
}

func (l *udpListener) handleDatagram(pkt []byte, addr *net.UDPAddr) {
	if len(pkt) < 16 {
		return
	}
	action := binary.BigEndian.Uint32(pkt[8:12])
	txID := pkt[12:16]
	l.log.Debugln("datagram from", addr, "action", action)

	if action == udpConnectAction {
		magic := binary.BigEndian.Uint64(pkt[0:8])
		if magic != udpProtocolMagic || len(pkt) < 16 {
			l.sendError(addr, txID, "malformed connect request")
			return
		}
		connID := l.newConnectionID()
		reply := make([]byte, 16)
		binary.BigEndian.PutUint32(reply[0:4], udpConnectAction)
		copy(reply[4:8], txID)
		binary.BigEndian.PutUint64(reply[8:16], connID)
		l.conn.WriteToUDP(reply, addr)
		return
	}

	connID := binary.BigEndian.Uint64(pkt[0:8])
	if !l.validConnectionID(connID) {
		return // unknown connection id: silently dropped
	}

	switch action {
	case udpAnnounceAction:
		l.handleAnnounce(pkt, txID, connID, addr)
	case udpScrapeAction:
		l.handleScrape(pkt, txID, addr)
	default:
		l.sendError(addr, txID, "unknown action")
	}
}

func (l *udpListener) handleAnnounce(pkt []byte, txID []byte, connID uint64, addr *net.UDPAddr) {
	if len(pkt) < 98 {
		l.sendError(addr, txID, "malformed announce request")
		return
	}
	var infoHash, peerID [20]byte
	copy(infoHash[:], pkt[16:36])
	copy(peerID[:], pkt[36:56])
	downloaded := int64(binary.BigEndian.Uint64(pkt[56:64]))
	left := int64(binary.BigEndian.Uint64(pkt[64:72]))
	uploaded := int64(binary.BigEndian.Uint64(pkt[72:80]))
	eventID := binary.BigEndian.Uint32(pkt[80:84])
	key := append([]byte(nil), pkt[88:92]...)
	numWant := int32(binary.BigEndian.Uint32(pkt[92:96]))
	port := binary.BigEndian.Uint16(pkt[96:98])

	if !l.filter.Allows(infoHash) {
		l.sendError(addr, txID, "unregistered torrent")
		return
	}

	nw := 50
	if numWant > 0 {
		nw = int(numWant)
	}

	req := &AnnounceRequest{
		InfoHash:   infoHash,
		PeerID:     peerID,
		IP:         addr.IP,
		Port:       port,
		Uploaded:   uploaded,
		Downloaded: downloaded,
		Left:       left,
		Event:      udpEventName(eventID),
		NumWant:    nw,
		Key:        key,
		Compact:    true,
	}
	req.respond = func(result AnnounceResult) {
		reply := make([]byte, 20+6*len(result.Peers))
		binary.BigEndian.PutUint32(reply[0:4], udpAnnounceAction)
		copy(reply[4:8], txID)
		binary.BigEndian.PutUint32(reply[8:12], uint32(result.Interval.Seconds()))
		binary.BigEndian.PutUint32(reply[12:16], uint32(result.Incomplete))
		binary.BigEndian.PutUint32(reply[16:20], uint32(result.Complete))
		off := 20
		for _, p := range result.Peers {
			ip4 := p.IP.To4()
			if ip4 == nil {
				continue
			}
			copy(reply[off:off+4], ip4)
			binary.BigEndian.PutUint16(reply[off+4:off+6], p.Port)
			off += 6
		}
		l.conn.WriteToUDP(reply[:off], addr)
	}
	req.reject = func(reason string) { l.sendError(addr, txID, reason) }
	l.out <- req
}

func (l *udpListener) handleScrape(pkt []byte, txID []byte, addr *net.UDPAddr) {
	if len(pkt) < 16 || (len(pkt)-16)%20 != 0 {
		l.sendError(addr, txID, "malformed scrape request")
		return
	}
	body := pkt[16:]
	hashes := make([][20]byte, 0, len(body)/20)
	for i := 0; i < len(body); i += 20 {
		var h [20]byte
		copy(h[:], body[i:i+20])
		hashes = append(hashes, h)
	}

	req := &ScrapeRequest{InfoHashes: hashes}
	req.respond = func(results map[[20]byte]ScrapeResult) {
		reply := make([]byte, 8+12*len(hashes))
		binary.BigEndian.PutUint32(reply[0:4], udpScrapeAction)
		copy(reply[4:8], txID)
		for i, h := range hashes {
			r := results[h]
			off := 8 + i*12
			binary.BigEndian.PutUint32(reply[off:off+4], uint32(r.Complete))
			binary.BigEndian.PutUint32(reply[off+4:off+8], uint32(r.Downloaded))
			binary.BigEndian.PutUint32(reply[off+8:off+12], uint32(r.Incomplete))
		}
		l.conn.WriteToUDP(reply, addr)
	}
	req.reject = func(reason string) { l.sendError(addr, txID, reason) }
	l.out <- req
}

func (l *udpListener) sendError(addr *net.UDPAddr, txID []byte, reason string) {
	reply := make([]byte, 8+len(reason))
	binary.BigEndian.PutUint32(reply[0:4], udpErrorAction)
	copy(reply[4:8], txID)
	copy(reply[8:], reason)
	l.conn.WriteToUDP(reply, addr)
}

// newConnectionID issues a fresh random connection id and, in the same
// step, evicts every previously issued id past its lifetime.
func (l *udpListener) newConnectionID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	id := binary.BigEndian.Uint64(b[:])

	now := time.Now()
	l.mu.Lock()
	for old, issuedAt := range l.connIDs {
		if now.Sub(issuedAt) >= serverConnectionIDLifetime {
			delete(l.connIDs, old)
		}
	}
	l.connIDs[id] = now
	l.mu.Unlock()
	return id
}

// validConnectionID reports whether connID was issued and is still
// within its 120-second lifetime, opportunistically evicting expired
// ids it encounters along the way.
func (l *udpListener) validConnectionID(connID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	issuedAt, ok := l.connIDs[connID]
	if !ok {
		return false
	}
	if time.Since(issuedAt) >= serverConnectionIDLifetime {
		delete(l.connIDs, connID)
		return false
	}
	return true
}

func udpEventName(id uint32) Event {
	switch id {
	case 1:
		return EventCompleted
	case 2:
		return EventStarted
	case 3:
		return EventStopped
	default:
		return EventEmpty
	}
}
