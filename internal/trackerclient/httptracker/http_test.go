package httptracker

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestAnnounceNonCompact(t *testing.T) {
	// Scenario 1: non-compact peer list.
	body := "d8:completei0e10:incompletei1e8:intervali900e5:peersld4:porti6881e2:ip12:192.168.0.422:id20:abcdefghijklmnopqrsteee"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("info_hash") == "" {
			t.Fatal("expected info_hash query param")
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	tr := New(mustParse(t, srv.URL+"/announce"))
	var info trackerapi.AnnounceInfo
	copy(info.InfoHash[:], "abcdefghijklmnopqrst")
	copy(info.PeerID[:], "ABCDEFGHIJKLMNOPQRST")
	info.Uploaded = 1
	info.Downloaded = 2
	info.Left = 3

	resp, err := tr.Announce(info)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Complete != 0 || resp.Incomplete != 1 || resp.Interval.Seconds() != 900 {
		t.Fatalf("got %+v", resp)
	}
	if len(resp.Peers) != 1 || resp.Peers[0].IP.String() != "192.168.0.42" || resp.Peers[0].Port != 6881 {
		t.Fatalf("got peers %+v", resp.Peers)
	}
}

func TestAnnounceCompact(t *testing.T) {
	// Scenario 2: compact peer list [192,168,0,42,31,144] -> port 8080.
	body := "d8:completei0e10:incompletei1e8:intervali900e5:peers6:\xc0\xa8\x00\x2a\x1f\x90e"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	tr := New(mustParse(t, srv.URL+"/announce"))
	resp, err := tr.Announce(trackerapi.AnnounceInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Peers) != 1 || resp.Peers[0].IP.String() != "192.168.0.42" || resp.Peers[0].Port != 8080 {
		t.Fatalf("got peers %+v", resp.Peers)
	}
}

func TestAnnounceFailureReason(t *testing.T) {
	// Scenario 3.
	body := "d14:failure reason18:something happenede"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	tr := New(mustParse(t, srv.URL+"/announce"))
	_, err := tr.Announce(trackerapi.AnnounceInfo{})
	rejected, ok := err.(*trackerapi.TrackerRejectedError)
	if !ok {
		t.Fatalf("got %v, want *TrackerRejectedError", err)
	}
	if rejected.Reason != "something happened" {
		t.Fatalf("got reason %q", rejected.Reason)
	}
}

func TestDeriveScrapeURL(t *testing.T) {
	u := mustParse(t, "http://example.com/path/announce")
	scrape, err := deriveScrapeURL(u)
	if err != nil {
		t.Fatal(err)
	}
	if scrape.Path != "/path/scrape" {
		t.Fatalf("got %q", scrape.Path)
	}

	_, err = deriveScrapeURL(mustParse(t, "http://example.com/path/x"))
	if err != trackerapi.ErrNoScrapePath {
		t.Fatalf("got %v, want ErrNoScrapePath", err)
	}
}
