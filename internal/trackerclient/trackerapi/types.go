// Package trackerapi holds the tracker-client types shared between the
// scheme-dispatching trackerclient package and its httptracker/
// udptracker backends, kept separate so the backends do not import
// their own dispatcher.
package trackerapi

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Event is the announce lifecycle event.
type Event string

// Announce events.
const (
	EventEmpty     Event = ""
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventStopped   Event = "stopped"
)

// AnnounceInfo carries everything a client needs to build an announce
// request, independent of transport.
type AnnounceInfo struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	NumWant    int
	IP         string // optional, empty lets the tracker infer it
	Key        []byte // optional
}

// Peer is a single swarm member as reported by a tracker.
type Peer struct {
	IP   net.IP
	Port uint16
	ID   [20]byte // zero if not supplied (compact response)
}

// AnnounceResponse is the transport-independent result of an announce.
// Warning carries a tracker's non-fatal "warning message",
// distinct from "failure reason" which is surfaced as an error instead.
type AnnounceResponse struct {
	Interval   time.Duration
	Complete   int
	Incomplete int
	Peers      []Peer
	Warning    string
}

// ScrapeResult is the per-info-hash result of a scrape.
type ScrapeResult struct {
	Complete   int
	Downloaded int
	Incomplete int
}

// TrackerRejectedError is returned when a tracker answers with an
// explicit failure reason rather than a normal response.
type TrackerRejectedError struct {
	Reason string
}

func (e *TrackerRejectedError) Error() string {
	return fmt.Sprintf("trackerclient: tracker rejected request: %s", e.Reason)
}

// ErrUnsupportedScheme is returned for an announce/scrape URL whose
// scheme is neither http(s) nor udp.
var ErrUnsupportedScheme = errors.New("trackerclient: unsupported tracker url scheme")

// ErrNoScrapePath is returned when deriving a scrape URL from an
// announce URL whose path has no "announce" component to replace.
var ErrNoScrapePath = errors.New("trackerclient: announce path has no \"announce\" component")

// Client announces to and scrapes a single tracker URL.
type Client interface {
	Announce(info AnnounceInfo) (*AnnounceResponse, error)
	Scrape(infoHashes [][20]byte) (map[[20]byte]ScrapeResult, error)
	Close() error
}
