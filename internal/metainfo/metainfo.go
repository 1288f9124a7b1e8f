package metainfo

import (
	"bytes"
	"crypto/sha1"
	"fmt"

	"github.com/arlogilbert/gorrent/internal/bencode"
)

// Metainfo is a parsed .torrent file: the tracker announce URL plus the
// embedded info dictionary and its derived SHA-1 info-hash, which is
// the swarm identity.
type Metainfo struct {
	Announce     string
	Comment      string
	CreationDate int64
	CreatedBy    string
	Encoding     string
	Info         InfoDict
	InfoHash     [20]byte
}

// ParseMetainfo bdecodes and validates a .torrent file. It returns
// ErrMalformedTorrent (wrapped) on any shape or geometry violation: a
// malformed torrent never panics and never returns a partially valid
// value.
func ParseMetainfo(data []byte) (*Metainfo, error) {
	raw, err := bencode.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTorrent, err)
	}
	top, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top level is not a dictionary", ErrMalformedTorrent)
	}

	infoRaw, ok := top["info"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"info\"", ErrMalformedTorrent)
	}
	infoDictRaw, ok := infoRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: \"info\" is not a dictionary", ErrMalformedTorrent)
	}

	info, err := parseInfoDict(infoDictRaw)
	if err != nil {
		return nil, err
	}
	if err := info.validate(); err != nil {
		return nil, err
	}

	// The info-hash is the SHA-1 of the literal bencoded bytes of the
	// "info" dictionary as they appear in the .torrent file. Our decoder
	// tolerates non-canonical (non-sorted) dict key order on input, so
	// re-marshaling infoDictRaw would silently normalize such a torrent
	// and produce the wrong hash; scan the raw substring instead.
	rawInfo, err := bencode.ScanTopLevelDictValue(data, "info")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot locate raw info dict: %v", ErrMalformedTorrent, err)
	}
	hash := sha1.Sum(rawInfo)

	mi := &Metainfo{Info: *info, InfoHash: hash}
	if announce, ok := top["announce"].([]byte); ok {
		mi.Announce = string(announce)
	} else {
		return nil, fmt.Errorf("%w: missing \"announce\"", ErrMalformedTorrent)
	}
	if comment, ok := top["comment"].([]byte); ok {
		mi.Comment = string(comment)
	}
	if createdBy, ok := top["created by"].([]byte); ok {
		mi.CreatedBy = string(createdBy)
	}
	if encoding, ok := top["encoding"].([]byte); ok {
		mi.Encoding = string(encoding)
	}
	if cd, ok := top["creation date"].(int64); ok {
		mi.CreationDate = cd
	}
	return mi, nil
}

func parseInfoDict(d map[string]interface{}) (*InfoDict, error) {
	info := &InfoDict{}

	pl, ok := d["piece length"].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: missing or non-numeric \"piece length\"", ErrMalformedTorrent)
	}
	info.PieceLength = pl

	piecesRaw, ok := d["pieces"].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: missing \"pieces\"", ErrMalformedTorrent)
	}
	if len(piecesRaw)%20 != 0 {
		return nil, fmt.Errorf("%w: \"pieces\" length not a multiple of 20", ErrMalformedTorrent)
	}
	info.Pieces = make([][20]byte, len(piecesRaw)/20)
	for i := range info.Pieces {
		copy(info.Pieces[i][:], piecesRaw[i*20:(i+1)*20])
	}

	if name, ok := d["name"].([]byte); ok {
		info.Name = string(name)
	}

	if private, ok := d["private"].(int64); ok {
		info.Private = int(private)
	}

	_, hasLength := d["length"]
	_, hasFiles := d["files"]
	switch {
	case hasLength && hasFiles:
		return nil, fmt.Errorf("%w: both \"length\" and \"files\" present", ErrMalformedTorrent)
	case hasLength:
		length, ok := d["length"].(int64)
		if !ok {
			return nil, fmt.Errorf("%w: non-numeric \"length\"", ErrMalformedTorrent)
		}
		info.Length = length
	case hasFiles:
		filesRaw, ok := d["files"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: \"files\" is not a list", ErrMalformedTorrent)
		}
		if len(filesRaw) == 0 {
			return nil, fmt.Errorf("%w: empty \"files\" list", ErrMalformedTorrent)
		}
		files := make([]FileEntry, 0, len(filesRaw))
		for _, fr := range filesRaw {
			fd, ok := fr.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: file entry is not a dictionary", ErrMalformedTorrent)
			}
			length, ok := fd["length"].(int64)
			if !ok {
				return nil, fmt.Errorf("%w: file entry missing numeric \"length\"", ErrMalformedTorrent)
			}
			pathRaw, ok := fd["path"].([]interface{})
			if !ok || len(pathRaw) == 0 {
				return nil, fmt.Errorf("%w: file entry missing non-empty \"path\"", ErrMalformedTorrent)
			}
			path := make([]string, len(pathRaw))
			for i, p := range pathRaw {
				pb, ok := p.([]byte)
				if !ok {
					return nil, fmt.Errorf("%w: path component is not a string", ErrMalformedTorrent)
				}
				path[i] = string(pb)
			}
			files = append(files, FileEntry{Length: length, Path: path})
		}
		info.Files = files
	default:
		return nil, fmt.Errorf("%w: neither \"length\" nor \"files\" present", ErrMalformedTorrent)
	}

	return info, nil
}
