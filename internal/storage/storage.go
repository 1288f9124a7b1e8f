// Package storage declares the Storage collaborator contract consumed
// by the peer session: piece-selection economics, the storage
// backend's own persistence format, and NAT traversal are all external
// collaborators this module only talks to through an interface.
package storage

// Storage is implemented by a pluggable backend that owns the actual
// file bytes of a torrent's content, addressed by a flat byte offset
// (piece index * piece length + in-piece offset) computed by the
// caller. Get/Set failures are recoverable: they are logged by the
// caller and never tear down a peer session or torrent.
type Storage interface {
	// Get returns length bytes starting at offset, or nil if the read
	// could not be satisfied.
	Get(offset, length int64) ([]byte, error)
	// Set writes data at offset, returning false if the write could
	// not be completed.
	Set(offset int64, data []byte) (bool, error)
	// Exists reports whether the backing storage has already been
	// created (used to decide whether a torrent needs verification).
	Exists() (bool, error)
	// Close releases any resources held by the backend.
	Close() error
}

// Resumer is optionally implemented by a Storage backend that can
// persist a torrent's piece bitfield and transfer counters across
// restarts. A backend without durable state of its own (filestorage)
// does not implement it, and callers must check for it with a type
// assertion before using it.
type Resumer interface {
	// ResumeBitfield returns a previously saved bitfield and transfer
	// counters, or a nil bitfield if none was ever saved.
	ResumeBitfield() (bitfield []byte, downloaded, uploaded int64, err error)
	// SaveResumeBitfield persists the current bitfield and transfer
	// counters, overwriting whatever was saved before.
	SaveResumeBitfield(bitfield []byte, downloaded, uploaded int64) error
}
