// Package trackerclient implements the client side of the HTTP and UDP
// tracker protocols: scheme dispatch, announce/scrape requests,
// and their response shapes.
package trackerclient

import "github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"

// Re-exported so callers only need to import trackerclient.
type (
	Event            = trackerapi.Event
	AnnounceInfo     = trackerapi.AnnounceInfo
	Peer             = trackerapi.Peer
	AnnounceResponse = trackerapi.AnnounceResponse
	ScrapeResult     = trackerapi.ScrapeResult
	Client           = trackerapi.Client
)

// Announce events.
const (
	EventEmpty     = trackerapi.EventEmpty
	EventStarted   = trackerapi.EventStarted
	EventCompleted = trackerapi.EventCompleted
	EventStopped   = trackerapi.EventStopped
)

// TrackerRejectedError is returned when a tracker answers with an
// explicit failure reason rather than a normal response.
type TrackerRejectedError = trackerapi.TrackerRejectedError

var (
	ErrUnsupportedScheme = trackerapi.ErrUnsupportedScheme
	ErrNoScrapePath      = trackerapi.ErrNoScrapePath
)
