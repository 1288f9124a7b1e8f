// Package trackerserver implements the server side of the HTTP and UDP
// tracker protocols: a combined request stream from either
// listener, each request carrying respond/reject capabilities so a
// consumer (e.g. internal/memtracker) never touches transport details.
package trackerserver

import (
	"net"
	"time"
)

// Event mirrors the tracker client's announce lifecycle event.
type Event string

// Announce events.
const (
	EventEmpty     Event = ""
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventStopped   Event = "stopped"
)

// Peer is one swarm member included in an announce response.
type Peer struct {
	IP   net.IP
	Port uint16
	ID   [20]byte
}

// AnnounceResult is what a consumer passes to AnnounceRequest.Respond.
type AnnounceResult struct {
	Interval   time.Duration
	Complete   int
	Incomplete int
	Peers      []Peer
}

// ScrapeResult is the per-info-hash scrape payload.
type ScrapeResult struct {
	Complete   int
	Downloaded int
	Incomplete int
}

// AnnounceRequest is a parsed announce, regardless of transport.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	IP         net.IP
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	NumWant    int
	Key        []byte

	// Compact controls whether Respond serializes peers as the
	// 6-byte-per-peer compact form or the {ip,port,peer id} list form;
	// set by the transport based on the request's "compact" parameter
	// (HTTP) or always true (UDP, which has no non-compact form).
	Compact bool

	respond func(AnnounceResult)
	reject  func(reason string)
}

// Respond answers the announce with result.
func (r *AnnounceRequest) Respond(result AnnounceResult) { r.respond(result) }

// Reject answers the announce with a failure reason.
func (r *AnnounceRequest) Reject(reason string) { r.reject(reason) }

// SetCallbacks wires respond/reject onto r. Production listeners set
// these fields directly when they build a request; SetCallbacks exists
// for callers (tests, or a consumer building synthetic requests) that
// construct an AnnounceRequest from outside this package.
func (r *AnnounceRequest) SetCallbacks(respond func(AnnounceResult), reject func(reason string)) {
	r.respond = respond
	r.reject = reject
}

// ScrapeRequest is a parsed scrape, regardless of transport. An empty
// InfoHashes means "scrape every known swarm" (HTTP only).
type ScrapeRequest struct {
	InfoHashes [][20]byte

	respond func(map[[20]byte]ScrapeResult)
	reject  func(reason string)
}

// Respond answers the scrape with per-info-hash results.
func (r *ScrapeRequest) Respond(results map[[20]byte]ScrapeResult) { r.respond(results) }

// Reject answers the scrape with a failure reason.
func (r *ScrapeRequest) Reject(reason string) { r.reject(reason) }

// SetCallbacks wires respond/reject onto r; see AnnounceRequest.SetCallbacks.
func (r *ScrapeRequest) SetCallbacks(respond func(map[[20]byte]ScrapeResult), reject func(reason string)) {
	r.respond = respond
	r.reject = reject
}

// Request is implemented by *AnnounceRequest and *ScrapeRequest; a
// consumer type-switches on the values it reads from Server.Requests.
type Request interface {
	isRequest()
}

func (*AnnounceRequest) isRequest() {}
func (*ScrapeRequest) isRequest()   {}

// FilterList restricts which info-hashes the server will serve. A nil
// FilterList accepts everything.
type FilterList struct {
	allowed map[[20]byte]bool
}

// NewFilterList builds a FilterList that accepts exactly hashes.
func NewFilterList(hashes [][20]byte) *FilterList {
	f := &FilterList{allowed: make(map[[20]byte]bool, len(hashes))}
	for _, h := range hashes {
		f.allowed[h] = true
	}
	return f
}

// Allows reports whether hash passes the filter.
func (f *FilterList) Allows(hash [20]byte) bool {
	if f == nil {
		return true
	}
	return f.allowed[hash]
}
