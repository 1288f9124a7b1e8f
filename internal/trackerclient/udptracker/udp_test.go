package udptracker

import (
	"encoding/binary"
	"net"
	"net/url"
	"testing"

	"github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"
)

// fakeServer answers exactly one CONNECT then one ANNOUNCE, mirroring
// scenario 4, then stops.
func fakeServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		buf := make([]byte, 4096)
		for i := 0; i < 2; i++ {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			action := binary.BigEndian.Uint32(buf[8:12])
			txID := buf[12:16]

			switch action {
			case connectAction:
				if n < 16 {
					continue
				}
				reply := make([]byte, 16)
				binary.BigEndian.PutUint32(reply[0:4], connectAction)
				copy(reply[4:8], txID)
				binary.BigEndian.PutUint64(reply[8:16], 0xdeadbeefcafebabe)
				conn.WriteToUDP(reply, addr)

			case announceAction:
				reply := make([]byte, 26)
				binary.BigEndian.PutUint32(reply[0:4], announceAction)
				copy(reply[4:8], txID)
				binary.BigEndian.PutUint32(reply[8:12], 900)
				binary.BigEndian.PutUint32(reply[12:16], 1)
				binary.BigEndian.PutUint32(reply[16:20], 0)
				copy(reply[20:24], net.IPv4(192, 168, 0, 42).To4())
				binary.BigEndian.PutUint16(reply[24:26], 8080)
				conn.WriteToUDP(reply, addr)
			}
		}
	}()
	return conn
}

func TestAnnounceConnectThenAnnounce(t *testing.T) {
	// Scenario 4.
	srv := fakeServer(t)
	defer srv.Close()

	u := &url.URL{Scheme: "udp", Host: srv.LocalAddr().String()}
	tr, err := New(u)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := tr.Announce(trackerapi.AnnounceInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Complete != 0 || resp.Incomplete != 1 || resp.Interval.Seconds() != 900 {
		t.Fatalf("got %+v", resp)
	}
	if len(resp.Peers) != 1 || resp.Peers[0].IP.String() != "192.168.0.42" || resp.Peers[0].Port != 8080 {
		t.Fatalf("got peers %+v", resp.Peers)
	}
}

func TestAttemptTimeoutsDoubling(t *testing.T) {
	timeouts := attemptTimeouts()
	if len(timeouts) != maxAttempts {
		t.Fatalf("got %d timeouts, want %d", len(timeouts), maxAttempts)
	}
	want := int64(15)
	for _, d := range timeouts {
		if d.Seconds() != float64(want) {
			t.Fatalf("got %v, want %ds", d, want)
		}
		want *= 2
	}
}
