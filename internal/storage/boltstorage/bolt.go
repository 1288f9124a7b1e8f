// Package boltstorage implements a BoltDB-backed Storage: content
// blocks and per-torrent resume metadata (destination, trackers,
// bitfield, byte counters) are both persisted in the same BoltDB file,
// keyed by info-hash, so a restarted Client does not need to
// re-verify a fully downloaded torrent.
package boltstorage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var (
	contentBucket = []byte("content")
	resumeBucket  = []byte("resume")
)

// Spec is the resume metadata persisted alongside content blocks.
type Spec struct {
	InfoHash        []byte
	Dest            string
	Port            int
	Name            string
	Trackers        []string
	Bitfield        []byte
	BytesDownloaded int64
	BytesUploaded   int64
	CreatedAt       time.Time
}

// Storage is a Storage implementation backed by a single BoltDB file,
// namespaced by info-hash so one database can back multiple torrents.
type Storage struct {
	db       *bolt.DB
	infoHash [20]byte
}

// Open opens (creating if absent) the BoltDB file at path and returns a
// Storage scoped to infoHash.
func Open(path string, infoHash [20]byte) (*Storage, error) {
	db, err := bolt.Open(path, 0640, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(contentBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(resumeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db, infoHash: infoHash}, nil
}

func (s *Storage) key(offset int64) []byte {
	k := make([]byte, 28)
	copy(k, s.infoHash[:])
	binary.BigEndian.PutUint64(k[20:], uint64(offset))
	return k
}

// Get returns the bytes previously Set at offset. It only supports
// reading back exactly the spans that were written with Set (the
// caller, the peer session, always reads/writes block-aligned spans),
// returning nil if no matching entry exists.
func (s *Storage) Get(offset, length int64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(contentBucket).Get(s.key(offset))
		if v == nil {
			return nil
		}
		if int64(len(v)) != length {
			return fmt.Errorf("boltstorage: stored block is %d bytes, want %d", len(v), length)
		}
		out = make([]byte, length)
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores data at offset, keyed by (info-hash, offset).
func (s *Storage) Set(offset int64, data []byte) (bool, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		cp := make([]byte, len(data))
		copy(cp, data)
		return tx.Bucket(contentBucket).Put(s.key(offset), cp)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether any content has been stored for this
// info-hash.
func (s *Storage) Exists() (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(contentBucket).Cursor()
		prefix := s.infoHash[:]
		for k, _ := c.Seek(prefix); k != nil && len(k) >= 20 && string(k[:20]) == string(prefix); k, _ = c.Next() {
			found = true
			return nil
		}
		return nil
	})
	return found, err
}

// WriteResume persists resume metadata for this info-hash.
func (s *Storage) WriteResume(spec *Spec) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resumeBucket)
		enc := encodeSpec(spec)
		return b.Put(s.infoHash[:], enc)
	})
}

// ReadResume loads previously persisted resume metadata, or nil if
// none exists.
func (s *Storage) ReadResume() (*Spec, error) {
	var spec *Spec
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(resumeBucket).Get(s.infoHash[:])
		if v == nil {
			return nil
		}
		var err error
		spec, err = decodeSpec(v)
		return err
	})
	return spec, err
}

// Close closes the underlying BoltDB handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// ResumeBitfield implements storage.Resumer by reading back whatever
// Spec was last written for this info-hash.
func (s *Storage) ResumeBitfield() (bf []byte, downloaded, uploaded int64, err error) {
	spec, err := s.ReadResume()
	if err != nil || spec == nil {
		return nil, 0, 0, err
	}
	return spec.Bitfield, spec.BytesDownloaded, spec.BytesUploaded, nil
}

// SaveResumeBitfield implements storage.Resumer. It preserves whatever
// destination/tracker metadata a previous WriteResume recorded,
// updating only the bitfield and the transfer counters.
func (s *Storage) SaveResumeBitfield(bf []byte, downloaded, uploaded int64) error {
	spec := &Spec{InfoHash: s.infoHash[:], CreatedAt: time.Now()}
	if existing, err := s.ReadResume(); err == nil && existing != nil {
		spec = existing
	}
	spec.Bitfield = bf
	spec.BytesDownloaded = downloaded
	spec.BytesUploaded = uploaded
	return s.WriteResume(spec)
}
