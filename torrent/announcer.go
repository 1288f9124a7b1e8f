package torrent

import (
	"time"

	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/trackerclient"
)

const defaultNumWant = 50

// announcer runs the per-torrent announce loop: event=started on the
// first announce, event=stopped on the last one (sent on stop), and an
// empty event in between; it never sends event=completed. A tracker error never
// tears down the torrent; it only delays the next attempt.
type announcer struct {
	url string
	t   *Torrent
	log logger.Logger

	client trackerclient.Client

	stopC    chan struct{}
	stoppedC chan struct{}
}

func newAnnouncer(url string, t *Torrent, l logger.Logger) *announcer {
	return &announcer{
		url:      url,
		t:        t,
		log:      l,
		stopC:    make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

func (a *announcer) stop() {
	close(a.stopC)
	<-a.stoppedC
}

// run performs the announce loop until stop is called: announce, wait
// out the returned interval (or an early wake), announce again. The
// first announce always carries event=started; the last, reached only
// via stop, carries event=stopped.
func (a *announcer) run() {
	defer close(a.stoppedC)

	client, err := trackerclient.New(a.url)
	if err != nil {
		a.log.Errorln("could not build tracker client:", err)
		return
	}
	a.client = client
	defer a.client.Close()

	event := trackerclient.EventStarted
	numWant := defaultNumWant

	for {
		interval := a.announce(event, numWant)
		event = trackerclient.EventEmpty
		numWant = 0

		timer := time.NewTimer(interval)
		select {
		case <-a.stopC:
			timer.Stop()
			a.announce(trackerclient.EventStopped, 0)
			return
		case <-a.t.wakeC:
			timer.Stop()
			numWant = defaultNumWant
		case <-timer.C:
		}
	}
}

// announce performs a single announce and forwards a successful result
// to the torrent event loop, returning the interval to wait before the
// next one. A failed announce is logged and retried after a minute.
func (a *announcer) announce(event trackerclient.Event, numWant int) time.Duration {
	info := trackerclient.AnnounceInfo{
		InfoHash: a.t.InfoHash(),
		PeerID:   a.t.peerID,
		Port:     a.t.port,
		Left:     a.t.remaining(),
		Event:    event,
		NumWant:  numWant,
	}

	resp, err := a.client.Announce(info)
	if err != nil {
		a.log.Warningln("announce failed:", err)
		return time.Minute
	}
	if resp.Warning != "" {
		a.log.Warningln("tracker warning:", resp.Warning)
	}

	select {
	case a.t.announceC <- resp:
	case <-a.stopC:
	}
	return resp.Interval
}
