package trackerserver

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/arlogilbert/gorrent/internal/bencode"
	"github.com/arlogilbert/gorrent/internal/logger"
	"github.com/arlogilbert/gorrent/internal/wire"
)

// httpListener serves announce/scrape over HTTP, pushing parsed
// requests onto out and blocking each handler goroutine until the
// consumer calls Respond/Reject.
type httpListener struct {
	srv    *http.Server
	out    chan<- Request
	filter *FilterList
	log    logger.Logger
}

func newHTTPListener(addr string, out chan<- Request, filter *FilterList) *httpListener {
	l := &httpListener{out: out, filter: filter, log: logger.NewRequest("trackerserver.http")}
	router := mux.NewRouter()
	router.HandleFunc("/announce", l.serveAnnounce)
	router.HandleFunc("/scrape", l.serveScrape)
	l.srv = &http.Server{Addr: addr, Handler: router}
	return l
}

func (l *httpListener) serve() error {
	err := l.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (l *httpListener) close() error { return l.srv.Close() }

// rawBinaryParams extracts info_hash (every occurrence, scrape allows
// several), peer_id, and key byte-verbatim from rawQuery, while every
// other parameter is unescaped with url.QueryUnescape into rest. Those
// three parameters carry the BitTorrent URL-binary escape rather than
// standard percent-encoding: an ordinary percent-decode pass such as
// url.ParseQuery would double-decode any raw 0x25 byte inside them.
func rawBinaryParams(rawQuery string) (infoHashes [][]byte, peerID, key []byte, rest url.Values, err error) {
	rest = url.Values{}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		k := kv[0]
		v := ""
		if len(kv) == 2 {
			v = kv[1]
		}
		switch k {
		case "info_hash":
			var h []byte
			h, err = wire.DecodeBinaryData(v)
			if err == nil {
				infoHashes = append(infoHashes, h)
			}
		case "peer_id":
			peerID, err = wire.DecodeBinaryData(v)
		case "key":
			key, err = wire.DecodeBinaryData(v)
		default:
			unescaped, uerr := url.QueryUnescape(v)
			if uerr != nil {
				err = uerr
				continue
			}
			rest.Add(k, unescaped)
		}
		if err != nil {
			return
		}
	}
	return
}

func clientIP(r *http.Request, override string) net.IP {
	if override != "" {
		return net.ParseIP(override)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

func (l *httpListener) serveAnnounce(w http.ResponseWriter, r *http.Request) {
	infoHashes, peerIDBytes, keyBytes, rest, err := rawBinaryParams(r.URL.RawQuery)
	if err != nil {
		l.log.Warningln(errors.Wrap(err, "parsing announce query"))
		writeFailure(w, "malformed request")
		return
	}
	var infoHashBytes []byte
	if len(infoHashes) > 0 {
		infoHashBytes = infoHashes[len(infoHashes)-1]
	}
	if len(infoHashBytes) != 20 || len(peerIDBytes) != 20 {
		l.log.Warningln("malformed announce: info_hash/peer_id not 20 bytes")
		writeFailure(w, "malformed request")
		return
	}

	port, err := strconv.Atoi(rest.Get("port"))
	if err != nil {
		l.log.Warningln(errors.Wrap(err, "parsing announce port"))
		writeFailure(w, "malformed request")
		return
	}
	uploaded, _ := strconv.ParseInt(rest.Get("uploaded"), 10, 64)
	downloaded, _ := strconv.ParseInt(rest.Get("downloaded"), 10, 64)
	left, _ := strconv.ParseInt(rest.Get("left"), 10, 64)
	numWant := 50
	if nw := rest.Get("numwant"); nw != "" {
		if n, err := strconv.Atoi(nw); err == nil {
			numWant = n
		}
	}

	var infoHash, peerID [20]byte
	copy(infoHash[:], infoHashBytes)
	copy(peerID[:], peerIDBytes)

	if !l.filter.Allows(infoHash) {
		writeFailure(w, "unregistered torrent")
		return
	}

	respCh := make(chan interface{}, 1)
	req := &AnnounceRequest{
		InfoHash:   infoHash,
		PeerID:     peerID,
		IP:         clientIP(r, rest.Get("ip")),
		Port:       uint16(port),
		Uploaded:   uploaded,
		Downloaded: downloaded,
		Left:       left,
		Event:      Event(rest.Get("event")),
		NumWant:    numWant,
		Key:        keyBytes,
		Compact:    rest.Get("compact") == "1",
	}
	req.respond = func(result AnnounceResult) { respCh <- result }
	req.reject = func(reason string) { respCh <- reason }

	l.out <- req
	switch v := (<-respCh).(type) {
	case string:
		writeFailure(w, v)
	case AnnounceResult:
		writeAnnounceResult(w, req.Compact, v)
	}
}

func (l *httpListener) serveScrape(w http.ResponseWriter, r *http.Request) {
	infoHashes, _, _, _, err := rawBinaryParams(r.URL.RawQuery)
	var hashes [][20]byte
	if err == nil {
		for _, b := range infoHashes {
			if len(b) != 20 {
				continue
			}
			var h [20]byte
			copy(h[:], b)
			hashes = append(hashes, h)
		}
	}

	respCh := make(chan interface{}, 1)
	req := &ScrapeRequest{InfoHashes: hashes}
	req.respond = func(results map[[20]byte]ScrapeResult) { respCh <- results }
	req.reject = func(reason string) { respCh <- reason }

	l.out <- req
	switch v := (<-respCh).(type) {
	case string:
		writeFailure(w, v)
	case map[[20]byte]ScrapeResult:
		writeScrapeResult(w, v)
	}
}

func writeFailure(w http.ResponseWriter, reason string) {
	body, _ := bencode.Marshal(map[string]interface{}{"failure reason": reason})
	w.Write(body)
}

func writeAnnounceResult(w http.ResponseWriter, compact bool, result AnnounceResult) {
	dict := map[string]interface{}{
		"complete":   int64(result.Complete),
		"incomplete": int64(result.Incomplete),
		"interval":   int64(result.Interval.Seconds()),
	}
	if compact {
		buf := make([]byte, 0, 6*len(result.Peers))
		for _, p := range result.Peers {
			ip4 := p.IP.To4()
			if ip4 == nil {
				continue
			}
			buf = append(buf, ip4...)
			buf = append(buf, byte(p.Port>>8), byte(p.Port))
		}
		dict["peers"] = buf
	} else {
		list := make([]interface{}, 0, len(result.Peers))
		for _, p := range result.Peers {
			list = append(list, map[string]interface{}{
				"ip":      p.IP.String(),
				"port":    int64(p.Port),
				"peer id": p.ID[:],
			})
		}
		dict["peers"] = list
	}
	body, err := bencode.Marshal(dict)
	if err != nil {
		writeFailure(w, fmt.Sprintf("internal error: %v", err))
		return
	}
	w.Write(body)
}

func writeScrapeResult(w http.ResponseWriter, results map[[20]byte]ScrapeResult) {
	files := make(map[string]bencode.ScrapeFile, len(results))
	for hash, r := range results {
		files[string(hash[:])] = bencode.ScrapeFile{
			Complete:   int64(r.Complete),
			Downloaded: int64(r.Downloaded),
			Incomplete: int64(r.Incomplete),
		}
	}
	body, err := bencode.EncodeScrape(files)
	if err != nil {
		writeFailure(w, fmt.Sprintf("internal error: %v", err))
		return
	}
	w.Write(body)
}
