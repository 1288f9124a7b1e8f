package udptracker

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"
)

var eventIDs = map[trackerapi.Event]uint32{
	trackerapi.EventEmpty:     0,
	trackerapi.EventCompleted: 1,
	trackerapi.EventStarted:   2,
	trackerapi.EventStopped:   3,
}

// Announce implements trackerapi.Client.
func (t *Tracker) Announce(info trackerapi.AnnounceInfo) (*trackerapi.AnnounceResponse, error) {
	numWant := int32(info.NumWant)
	if numWant == 0 {
		numWant = -1 // -1 means "default" per BEP 15
	}
	var keyBytes [4]byte
	copy(keyBytes[:], info.Key) // UDP key is fixed at 4 bytes, unlike HTTP's variable-length key

	reply, err := t.roundTrip(announceAction, 20, func(connID uint64, txID uint32) []byte {
		req := make([]byte, 98)
		binary.BigEndian.PutUint64(req[0:8], connID)
		binary.BigEndian.PutUint32(req[8:12], announceAction)
		binary.BigEndian.PutUint32(req[12:16], txID)
		copy(req[16:36], info.InfoHash[:])
		copy(req[36:56], info.PeerID[:])
		binary.BigEndian.PutUint64(req[56:64], uint64(info.Downloaded))
		binary.BigEndian.PutUint64(req[64:72], uint64(info.Left))
		binary.BigEndian.PutUint64(req[72:80], uint64(info.Uploaded))
		binary.BigEndian.PutUint32(req[80:84], eventIDs[info.Event])
		// req[84:88] IP address = 0 (default)
		copy(req[88:92], keyBytes[:])
		binary.BigEndian.PutUint32(req[92:96], uint32(numWant))
		binary.BigEndian.PutUint16(req[96:98], info.Port)
		return req
	})
	if err != nil {
		return nil, err
	}
	return parseAnnounceReply(reply)
}

func parseAnnounceReply(reply []byte) (*trackerapi.AnnounceResponse, error) {
	if len(reply) < 20 {
		return nil, fmt.Errorf("udptracker: announce reply too short (%d bytes)", len(reply))
	}
	interval := binary.BigEndian.Uint32(reply[8:12])
	incomplete := binary.BigEndian.Uint32(reply[12:16])
	complete := binary.BigEndian.Uint32(reply[16:20])

	body := reply[20:]
	if len(body)%6 != 0 {
		return nil, fmt.Errorf("udptracker: compact peers length %d is not a multiple of 6", len(body))
	}
	peers := make([]trackerapi.Peer, 0, len(body)/6)
	for i := 0; i < len(body); i += 6 {
		ip := net.IPv4(body[i], body[i+1], body[i+2], body[i+3])
		port := uint16(body[i+4])<<8 | uint16(body[i+5])
		peers = append(peers, trackerapi.Peer{IP: ip, Port: port})
	}

	return &trackerapi.AnnounceResponse{
		Interval:   secondsToDuration(interval),
		Complete:   int(complete),
		Incomplete: int(incomplete),
		Peers:      peers,
	}, nil
}
