// Package memtracker implements an in-process tracker backend:
// a swarm table keyed by info-hash, consuming a trackerserver.Request
// stream and answering announces/scrapes from memory.
package memtracker

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/trackerserver"
)

const (
	defaultInterval = 900 * time.Second
	sweepInterval   = 15 * time.Minute
)

type peerEntry struct {
	ip          net.IP
	port        uint16
	id          [20]byte
	seeder      bool
	lastUpdated time.Time
}

func (p *peerEntry) key() string {
	return net.JoinHostPort(p.ip.String(), strconv.Itoa(int(p.port)))
}

type swarm struct {
	mu         sync.Mutex
	peers      map[string]*peerEntry
	downloaded int
}

func newSwarm() *swarm {
	return &swarm{peers: make(map[string]*peerEntry)}
}

func (s *swarm) counts() (complete, incomplete int) {
	for _, p := range s.peers {
		if p.seeder {
			complete++
		} else {
			incomplete++
		}
	}
	return
}

// Tracker is a concrete consumer of trackerserver requests: a swarm
// table keyed by info-hash, with a background sweep evicting stale
// peers.
type Tracker struct {
	log logger.Logger

	mu     sync.Mutex
	swarms map[[20]byte]*swarm

	stop chan struct{}
	done chan struct{}
}

// New returns a Tracker with no swarms and starts its sweep goroutine.
func New() *Tracker {
	t := &Tracker{
		log:    logger.NewRequest("memtracker"),
		swarms: make(map[[20]byte]*swarm),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Close stops the sweep goroutine.
func (t *Tracker) Close() {
	close(t.stop)
	<-t.done
}

// Serve consumes requests from reqs until it is closed, handling each
// one according to its concrete type.
func (t *Tracker) Serve(reqs <-chan trackerserver.Request) {
	for req := range reqs {
		switch r := req.(type) {
		case *trackerserver.AnnounceRequest:
			t.handleAnnounce(r)
		case *trackerserver.ScrapeRequest:
			t.handleScrape(r)
		}
	}
}

func (t *Tracker) getOrCreateSwarm(infoHash [20]byte) *swarm {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.swarms[infoHash]
	if !ok {
		s = newSwarm()
		t.swarms[infoHash] = s
	}
	return s
}

func (t *Tracker) handleAnnounce(r *trackerserver.AnnounceRequest) {
	if r.IP == nil {
		t.log.Warningln(errors.New("announce request missing a resolvable client ip"))
		r.Reject("could not determine client ip")
		return
	}
	s := t.getOrCreateSwarm(r.InfoHash)
	requester := &peerEntry{ip: r.IP, port: r.Port}
	requesterKey := requester.key()

	s.mu.Lock()
	if r.Event == trackerserver.EventStopped {
		delete(s.peers, requesterKey)
		s.mu.Unlock()
		r.Respond(trackerserver.AnnounceResult{Interval: defaultInterval})
		return
	}

	peer, ok := s.peers[requesterKey]
	if !ok {
		peer = &peerEntry{ip: r.IP, port: r.Port}
		s.peers[requesterKey] = peer
	}
	peer.id = r.PeerID
	peer.lastUpdated = time.Now()
	wasSeeder := peer.seeder
	peer.seeder = r.Event == trackerserver.EventCompleted || r.Left == 0
	if r.Event == trackerserver.EventCompleted && !wasSeeder {
		s.downloaded++
	}

	complete, incomplete := s.counts()
	sample := sampleOtherPeers(s.peers, requesterKey, r.NumWant)
	s.mu.Unlock()

	result := trackerserver.AnnounceResult{
		Interval:   defaultInterval,
		Complete:   complete,
		Incomplete: incomplete,
		Peers:      sample,
	}
	r.Respond(result)
}

func (t *Tracker) handleScrape(r *trackerserver.ScrapeRequest) {
	t.mu.Lock()
	hashes := r.InfoHashes
	if len(hashes) == 0 {
		hashes = make([][20]byte, 0, len(t.swarms))
		for h := range t.swarms {
			hashes = append(hashes, h)
		}
	}
	t.mu.Unlock()

	results := make(map[[20]byte]trackerserver.ScrapeResult, len(hashes))
	for _, h := range hashes {
		t.mu.Lock()
		s, ok := t.swarms[h]
		t.mu.Unlock()
		if !ok {
			results[h] = trackerserver.ScrapeResult{}
			continue
		}
		s.mu.Lock()
		complete, incomplete := s.counts()
		results[h] = trackerserver.ScrapeResult{
			Complete:   complete,
			Incomplete: incomplete,
			Downloaded: s.downloaded,
		}
		s.mu.Unlock()
	}
	r.Respond(results)
}

func sampleOtherPeers(peers map[string]*peerEntry, exclude string, numWant int) []trackerserver.Peer {
	if numWant <= 0 {
		numWant = 50
	}
	candidates := make([]*peerEntry, 0, len(peers))
	for key, p := range peers {
		if key == exclude {
			continue
		}
		candidates = append(candidates, p)
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > numWant {
		candidates = candidates[:numWant]
	}
	out := make([]trackerserver.Peer, len(candidates))
	for i, p := range candidates {
		out[i] = trackerserver.Peer{IP: p.ip, Port: p.port, ID: p.id}
	}
	return out
}

func (t *Tracker) sweepLoop() {
	defer close(t.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep evicts peers whose lastUpdated is older than sweepInterval,
// yielding cooperatively between swarms so a sweep over a large
// tracker table never blocks announces for long.
func (t *Tracker) sweep() {
	t.mu.Lock()
	swarms := make([]*swarm, 0, len(t.swarms))
	for _, s := range t.swarms {
		swarms = append(swarms, s)
	}
	t.mu.Unlock()

	cutoff := time.Now().Add(-sweepInterval)
	for _, s := range swarms {
		s.mu.Lock()
		for key, p := range s.peers {
			if p.lastUpdated.Before(cutoff) {
				delete(s.peers, key)
			}
		}
		s.mu.Unlock()
	}
}
