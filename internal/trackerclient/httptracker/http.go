// Package httptracker implements the HTTP(S) tracker client backend:
// GET-based announce and scrape with a bencoded response body.
package httptracker

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arlogilbert/gorrent/internal/bencode"
	"github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"
	"github.com/arlogilbert/gorrent/internal/wire"
)

const requestTimeout = 10 * time.Second

// Tracker is an httptracker.Client for one announce URL.
type Tracker struct {
	announceURL *url.URL
	httpClient  *http.Client
}

// New returns a Tracker for u. u is retained, not copied, since
// callers construct it fresh per tracker.
func New(u *url.URL) *Tracker {
	return &Tracker{
		announceURL: u,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
}

// Announce implements trackerapi.Client.
func (t *Tracker) Announce(info trackerapi.AnnounceInfo) (*trackerapi.AnnounceResponse, error) {
	q := t.buildQuery(info)
	u := *t.announceURL
	u.RawQuery = q
	body, err := t.get(u.String())
	if err != nil {
		return nil, err
	}
	return parseAnnounceResponse(body)
}

// Scrape implements trackerapi.Client. The scrape URL is derived from
// the announce URL by replacing its last "announce" path component
// with "scrape"; a URL without that component cannot be
// scraped.
func (t *Tracker) Scrape(infoHashes [][20]byte) (map[[20]byte]trackerapi.ScrapeResult, error) {
	scrapeURL, err := deriveScrapeURL(t.announceURL)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for _, h := range infoHashes {
		q.Add("info_hash", wire.EncodeBinaryData(h[:]))
	}
	u := *scrapeURL
	u.RawQuery = encodeRawBinaryQuery(q)
	body, err := t.get(u.String())
	if err != nil {
		return nil, err
	}
	files, err := bencode.DecodeScrape(body)
	if err != nil {
		return nil, err
	}
	out := make(map[[20]byte]trackerapi.ScrapeResult, len(files))
	for key, f := range files {
		var h [20]byte
		copy(h[:], key)
		out[h] = trackerapi.ScrapeResult{
			Complete:   int(f.Complete),
			Downloaded: int(f.Downloaded),
			Incomplete: int(f.Incomplete),
		}
	}
	return out, nil
}

// Close is a no-op; the underlying http.Client keeps no per-tracker
// state that needs releasing.
func (t *Tracker) Close() error { return nil }

func (t *Tracker) get(rawURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httptracker: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httptracker: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httptracker: reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("httptracker: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func (t *Tracker) buildQuery(info trackerapi.AnnounceInfo) string {
	v := url.Values{}
	numWant := info.NumWant
	if numWant == 0 {
		numWant = 50
	}
	v.Set("port", strconv.Itoa(int(info.Port)))
	v.Set("uploaded", strconv.FormatInt(info.Uploaded, 10))
	v.Set("downloaded", strconv.FormatInt(info.Downloaded, 10))
	v.Set("left", strconv.FormatInt(info.Left, 10))
	v.Set("event", string(info.Event))
	v.Set("numwant", strconv.Itoa(numWant))
	v.Set("compact", "1")
	if info.IP != "" {
		v.Set("ip", info.IP)
	}

	encoded := encodeRawBinaryQuery(v)
	encoded += "&info_hash=" + wire.EncodeBinaryData(info.InfoHash[:])
	encoded += "&peer_id=" + wire.EncodeBinaryData(info.PeerID[:])
	if len(info.Key) > 0 {
		encoded += "&key=" + wire.EncodeBinaryData(info.Key)
	}
	return encoded
}

// encodeRawBinaryQuery encodes v the way url.Values.Encode does,
// except it leaves the values exactly as given rather than running
// them through url.QueryEscape — callers that need the BitTorrent
// URL-binary escape apply wire.EncodeBinaryData themselves before
// adding their key here.
func encodeRawBinaryQuery(v url.Values) string {
	var buf strings.Builder
	first := true
	for key, vals := range v {
		for _, val := range vals {
			if !first {
				buf.WriteByte('&')
			}
			first = false
			buf.WriteString(key)
			buf.WriteByte('=')
			buf.WriteString(val)
		}
	}
	return buf.String()
}

func deriveScrapeURL(announce *url.URL) (*url.URL, error) {
	parts := strings.Split(announce.Path, "/")
	idx := -1
	for i, p := range parts {
		if p == "announce" {
			idx = i
		}
	}
	if idx == -1 {
		return nil, trackerapi.ErrNoScrapePath
	}
	parts[idx] = "scrape"
	u := *announce
	u.Path = strings.Join(parts, "/")
	return &u, nil
}

func parseAnnounceResponse(body []byte) (*trackerapi.AnnounceResponse, error) {
	raw, err := bencode.NewDecoder(bytes.NewReader(body)).Decode()
	if err != nil {
		return nil, fmt.Errorf("httptracker: %w", err)
	}
	dict, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("httptracker: response is not a dict")
	}
	if reason, ok := dict["failure reason"]; ok {
		reasonBytes, _ := reason.([]byte)
		return nil, &trackerapi.TrackerRejectedError{Reason: string(reasonBytes)}
	}

	complete, err := reqInt(dict, "complete")
	if err != nil {
		return nil, err
	}
	incomplete, err := reqInt(dict, "incomplete")
	if err != nil {
		return nil, err
	}
	interval, err := reqInt(dict, "interval")
	if err != nil {
		return nil, err
	}

	peers, err := parsePeers(dict["peers"])
	if err != nil {
		return nil, err
	}

	var warning string
	if w, ok := dict["warning message"]; ok {
		if wb, ok := w.([]byte); ok {
			warning = string(wb)
		}
	}

	return &trackerapi.AnnounceResponse{
		Interval:   time.Duration(interval) * time.Second,
		Complete:   int(complete),
		Incomplete: int(incomplete),
		Peers:      peers,
		Warning:    warning,
	}, nil
}

func reqInt(dict map[string]interface{}, key string) (int64, error) {
	v, ok := dict[key]
	if !ok {
		return 0, fmt.Errorf("httptracker: response missing required key %q", key)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("httptracker: key %q is not an integer", key)
	}
	return n, nil
}

func parsePeers(v interface{}) ([]trackerapi.Peer, error) {
	switch p := v.(type) {
	case []byte:
		if len(p)%6 != 0 {
			return nil, fmt.Errorf("httptracker: compact peers length %d is not a multiple of 6", len(p))
		}
		peers := make([]trackerapi.Peer, 0, len(p)/6)
		for i := 0; i < len(p); i += 6 {
			ip := net.IPv4(p[i], p[i+1], p[i+2], p[i+3])
			port := uint16(p[i+4])<<8 | uint16(p[i+5])
			peers = append(peers, trackerapi.Peer{IP: ip, Port: port})
		}
		return peers, nil

	case []interface{}:
		peers := make([]trackerapi.Peer, 0, len(p))
		for _, item := range p {
			entry, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("httptracker: non-dict entry in peers list")
			}
			ipBytes, _ := entry["ip"].([]byte)
			portVal, ok := entry["port"].(int64)
			if !ok {
				return nil, fmt.Errorf("httptracker: peer missing port")
			}
			peer := trackerapi.Peer{IP: net.ParseIP(string(ipBytes)), Port: uint16(portVal)}
			if idBytes, ok := entry["peer id"].([]byte); ok && len(idBytes) == 20 {
				copy(peer.ID[:], idBytes)
			}
			peers = append(peers, peer)
		}
		return peers, nil

	case nil:
		return nil, nil

	default:
		return nil, fmt.Errorf("httptracker: unrecognized peers encoding")
	}
}
