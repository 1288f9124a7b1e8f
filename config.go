// Package gorrent is the top-level reference client: it wires the
// torrent package's Client to a YAML configuration file and a storage
// backend choice.
package gorrent

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"

	"github.com/arlogilbert/gorrent/internal/metainfo"
	"github.com/arlogilbert/gorrent/internal/storage"
	"github.com/arlogilbert/gorrent/internal/storage/boltstorage"
	"github.com/arlogilbert/gorrent/internal/storage/filestorage"
	"github.com/arlogilbert/gorrent/torrent"
)

// StorageKind selects a Storage backend for downloaded content.
type StorageKind string

// Supported storage backends.
const (
	StorageFile StorageKind = "file"
	StorageBolt StorageKind = "bolt"
)

// Config is the client's on-disk configuration: listening port,
// peer-id prefix, data directory, and storage backend choice.
type Config struct {
	Port uint16 `yaml:"port"`

	// PeerIDPrefix identifies this client implementation; it is
	// truncated or zero-padded to 8 bytes, and the remaining 12 bytes
	// of the peer id are randomized per Client.
	PeerIDPrefix string `yaml:"peer_id_prefix"`

	DataDir string      `yaml:"data_dir"`
	Storage StorageKind `yaml:"storage"`

	DisableUPnP bool `yaml:"disable_upnp"`
}

// DefaultConfig uses the conventional BitTorrent listening port and
// picks the simpler, dependency-free storage backend.
var DefaultConfig = Config{
	Port:         6881,
	PeerIDPrefix: "-GR0001-",
	DataDir:      "~/.gorrent",
	Storage:      StorageFile,
}

// LoadConfig reads filename as YAML, falling back to DefaultConfig for
// the whole file when it does not exist.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return expandDataDir(&c)
	}
	if err != nil {
		return nil, fmt.Errorf("gorrent: could not read config %q: %w", filename, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("gorrent: could not parse config %q: %w", filename, err)
	}
	return expandDataDir(&c)
}

func expandDataDir(c *Config) (*Config, error) {
	dir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("gorrent: could not expand data dir %q: %w", c.DataDir, err)
	}
	c.DataDir = dir
	return c, nil
}

// StorageFactory returns the torrent.StorageFactory matching c's
// configured backend, rooted under c.DataDir.
func (c *Config) StorageFactory() (torrent.StorageFactory, error) {
	if err := os.MkdirAll(c.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("gorrent: could not create data dir: %w", err)
	}
	switch c.Storage {
	case StorageBolt:
		dbPath := filepath.Join(c.DataDir, "gorrent.db")
		return func(mi *metainfo.Metainfo) (storage.Storage, error) {
			return boltstorage.Open(dbPath, mi.InfoHash)
		}, nil
	case StorageFile, "":
		return func(mi *metainfo.Metainfo) (storage.Storage, error) {
			return filestorage.New(c.DataDir, &mi.Info)
		}, nil
	default:
		return nil, fmt.Errorf("gorrent: unknown storage backend %q", c.Storage)
	}
}