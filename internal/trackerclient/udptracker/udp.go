// Package udptracker implements the UDP tracker client backend:
// a connect-then-act handshake with exponential per-attempt
// timeouts, built on top of an ephemeral UDP socket.
package udptracker

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"
)

const (
	protocolMagic  = 0x0000041727101980
	connectAction  = 0
	announceAction = 1
	scrapeAction   = 2
	errorAction    = 3

	connectionIDLifetime = 60 * time.Second
	maxAttempts          = 8
)

// Tracker is a udptracker.Client for one tracker URL.
type Tracker struct {
	addr *net.UDPAddr

	mu          sync.Mutex
	connID      uint64
	connIDSetAt time.Time
}

// New resolves u's host:port and returns a Tracker.
func New(u *url.URL) (*Tracker, error) {
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("udptracker: %w", err)
	}
	return &Tracker{addr: addr}, nil
}

// Close is a no-op; Tracker opens a fresh ephemeral socket per request
// rather than holding one open between calls.
func (t *Tracker) Close() error { return nil }

// attemptTimeouts returns the sequence of per-attempt read timeouts
// for up to maxAttempts attempts: 15s, 30s, 60s, .... It reuses
// cenkalti/backoff's exponential calculator with jitter disabled so
// the sequence is exactly 15·2^k.
func attemptTimeouts() []time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 15 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 1920 * time.Second
	timeouts := make([]time.Duration, maxAttempts)
	for i := range timeouts {
		timeouts[i] = b.NextBackOff()
	}
	return timeouts
}

// roundTrip performs the connect-then-act sequence against a fresh UDP
// socket: ensure a live connection id (reusing a cached one within its
// lifetime), then send buildRequest's payload prefixed by a fresh
// transaction id, retrying with doubling timeouts until a reply
// carrying expectedAction and a matching transaction id arrives, a
// TrackerRejectedError surfaces, or attempts are exhausted.
func (t *Tracker) roundTrip(expectedAction uint32, minReplyLen int, buildRequest func(connID uint64, txID uint32) []byte) ([]byte, error) {
	conn, err := net.DialUDP("udp", nil, t.addr)
	if err != nil {
		return nil, fmt.Errorf("udptracker: %w", err)
	}
	defer conn.Close()

	timeouts := attemptTimeouts()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		connID, err := t.connectionID(conn, timeouts[attempt])
		if err != nil {
			lastErr = err
			continue
		}

		txID := randomUint32()
		req := buildRequest(connID, txID)
		if _, err := conn.Write(req); err != nil {
			lastErr = fmt.Errorf("udptracker: write: %w", err)
			continue
		}

		reply, err := t.awaitReply(conn, txID, timeouts[attempt], minReplyLen, expectedAction)
		if err != nil {
			if _, rejected := err.(*trackerapi.TrackerRejectedError); rejected {
				return nil, err
			}
			lastErr = err
			continue
		}
		return reply, nil
	}
	return nil, fmt.Errorf("udptracker: giving up after %d attempts: %w", maxAttempts, lastErr)
}

// connectionID returns a cached connection id if still within its
// 60-second lifetime, otherwise performs the CONNECT handshake.
func (t *Tracker) connectionID(conn *net.UDPConn, timeout time.Duration) (uint64, error) {
	t.mu.Lock()
	if !t.connIDSetAt.IsZero() && time.Since(t.connIDSetAt) < connectionIDLifetime {
		id := t.connID
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	txID := randomUint32()
	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], protocolMagic)
	binary.BigEndian.PutUint32(req[8:12], connectAction)
	binary.BigEndian.PutUint32(req[12:16], txID)
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("udptracker: connect write: %w", err)
	}

	reply, err := t.awaitReply(conn, txID, timeout, 16, connectAction)
	if err != nil {
		return 0, err
	}
	connID := binary.BigEndian.Uint64(reply[8:16])

	t.mu.Lock()
	t.connID = connID
	t.connIDSetAt = time.Now()
	t.mu.Unlock()
	return connID, nil
}

// awaitReply reads datagrams until one with a matching transaction id
// arrives, timeout elapses, or the reply fails validation. A
// non-matching transaction id is ignored within the same timeout
// window. An errorAction reply with a matching transaction id always
// surfaces as TrackerRejectedError, even when expectedAction differs.
func (t *Tracker) awaitReply(conn *net.UDPConn, txID uint32, timeout time.Duration, minReplyLen int, expectedAction uint32) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)
	for {
		if time.Until(deadline) <= 0 {
			return nil, fmt.Errorf("udptracker: timed out waiting for reply")
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("udptracker: read: %w", err)
		}
		if n < 8 {
			continue
		}
		action := binary.BigEndian.Uint32(buf[0:4])
		gotTxID := binary.BigEndian.Uint32(buf[4:8])
		if gotTxID != txID {
			continue
		}
		if action == errorAction {
			if n < 9 {
				return nil, fmt.Errorf("udptracker: malformed error reply")
			}
			return nil, &trackerapi.TrackerRejectedError{Reason: string(buf[8:n])}
		}
		if action != expectedAction {
			return nil, fmt.Errorf("udptracker: reply action %d, want %d", action, expectedAction)
		}
		if n < minReplyLen {
			return nil, fmt.Errorf("udptracker: reply too short (%d bytes, want >= %d)", n, minReplyLen)
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
