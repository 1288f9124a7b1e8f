package udptracker

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/arlogilbert/gorrent/internal/trackerclient/trackerapi"
)

// Scrape implements trackerapi.Client.
func (t *Tracker) Scrape(infoHashes [][20]byte) (map[[20]byte]trackerapi.ScrapeResult, error) {
	reply, err := t.roundTrip(scrapeAction, 8, func(connID uint64, txID uint32) []byte {
		req := make([]byte, 16+20*len(infoHashes))
		binary.BigEndian.PutUint64(req[0:8], connID)
		binary.BigEndian.PutUint32(req[8:12], scrapeAction)
		binary.BigEndian.PutUint32(req[12:16], txID)
		for i, h := range infoHashes {
			copy(req[16+i*20:16+(i+1)*20], h[:])
		}
		return req
	})
	if err != nil {
		return nil, err
	}

	body := reply[8:]
	if len(body)%12 != 0 {
		return nil, fmt.Errorf("udptracker: scrape reply body length %d is not a multiple of 12", len(body))
	}
	out := make(map[[20]byte]trackerapi.ScrapeResult, len(infoHashes))
	for i := 0; i*12 < len(body) && i < len(infoHashes); i++ {
		entry := body[i*12 : i*12+12]
		out[infoHashes[i]] = trackerapi.ScrapeResult{
			Complete:   int(binary.BigEndian.Uint32(entry[0:4])),
			Downloaded: int(binary.BigEndian.Uint32(entry[4:8])),
			Incomplete: int(binary.BigEndian.Uint32(entry[8:12])),
		}
	}
	return out, nil
}

func secondsToDuration(s uint32) time.Duration {
	return time.Duration(s) * time.Second
}
