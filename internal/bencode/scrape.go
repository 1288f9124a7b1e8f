package bencode

import "fmt"

// ScrapeFile is one torrent's entry in a scrape reply's "files" dict.
type ScrapeFile struct {
	Complete   int64
	Downloaded int64
	Incomplete int64
	Name       string
}

// DecodeScrape recognizes the "d5:files d<hash><info>...e" shape of a
// scrape reply, keeping the 20-byte info-hash dictionary keys as raw
// bytes (string-typed, but not UTF-8 decoded) instead of coercing them
// the way a struct-tag Unmarshal into map[string]string would.
func DecodeScrape(b []byte) (map[string]ScrapeFile, error) {
	raw, err := NewDecoder(newByteReader(b)).Decode()
	if err != nil {
		return nil, err
	}
	top, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("bencode: scrape reply is not a dictionary")
	}
	filesRaw, ok := top["files"]
	if !ok {
		return nil, fmt.Errorf("bencode: scrape reply missing \"files\"")
	}
	files, ok := filesRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("bencode: scrape \"files\" is not a dictionary")
	}
	out := make(map[string]ScrapeFile, len(files))
	for hash, v := range files {
		if len(hash) != 20 {
			return nil, fmt.Errorf("bencode: scrape info-hash key is %d bytes, want 20", len(hash))
		}
		entry, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("bencode: scrape file entry is not a dictionary")
		}
		sf := ScrapeFile{}
		if n, ok := entry["complete"].(int64); ok {
			sf.Complete = n
		}
		if n, ok := entry["downloaded"].(int64); ok {
			sf.Downloaded = n
		}
		if n, ok := entry["incomplete"].(int64); ok {
			sf.Incomplete = n
		}
		if n, ok := entry["name"].([]byte); ok {
			sf.Name = string(n)
		}
		out[hash] = sf
	}
	return out, nil
}

// EncodeScrape is the server-side counterpart used by the tracker
// server and the in-memory tracker to build a scrape reply, keeping
// info-hash dictionary keys byte-verbatim.
func EncodeScrape(files map[string]ScrapeFile) ([]byte, error) {
	inner := make(map[string]interface{}, len(files))
	for hash, sf := range files {
		inner[hash] = map[string]interface{}{
			"complete":   sf.Complete,
			"downloaded": sf.Downloaded,
			"incomplete": sf.Incomplete,
		}
	}
	return Marshal(map[string]interface{}{"files": inner})
}
