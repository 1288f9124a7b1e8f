// Command gorrent is the reference BitTorrent client: it parses a
// .torrent file, opens a Client against the configured storage
// backend, and adds the torrent for download/seeding.
package main

import (
	"flag"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	gorrent "github.com/arlogilbert/gorrent"
	"github.com/arlogilbert/gorrent/internal/metainfo"
	"github.com/arlogilbert/gorrent/internal/natutil"
	"github.com/arlogilbert/gorrent/torrent"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults built in if omitted)")
	noUPnP := flag.Bool("no-upnp", false, "disable UPnP port mapping")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [flags] <torrent-file>", os.Args[0])
	}

	cfg, err := gorrent.LoadConfig(*configPath)
	if err != nil {
		log.Fatalln(err)
	}
	if *noUPnP {
		cfg.DisableUPnP = true
	}

	data, err := ioutil.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalln("could not read torrent file:", err)
	}
	mi, err := metainfo.ParseMetainfo(data)
	if err != nil {
		log.Fatalln("could not parse torrent file:", err)
	}

	sf, err := cfg.StorageFactory()
	if err != nil {
		log.Fatalln(err)
	}

	var nat natutil.Mapper
	if !cfg.DisableUPnP {
		if m, err := natutil.DiscoverUPnP(); err != nil {
			log.Println("upnp discovery failed, continuing without it:", err)
		} else {
			nat = m
		}
	}

	client, err := torrent.NewClient(cfg.Port, cfg.PeerIDPrefix, sf, nat)
	if err != nil {
		log.Fatalln(err)
	}
	defer client.Close()

	t, err := client.AddTorrent(mi, mi.Announce)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("downloading %s into %s (id %s)", filepath.Base(flag.Arg(0)), cfg.DataDir, t.ID())

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

	statusTicker := time.NewTicker(30 * time.Second)
	defer statusTicker.Stop()
	for {
		select {
		case <-sigC:
			client.RemoveTorrent(t.InfoHash())
			return
		case <-statusTicker.C:
			s := t.Stats()
			log.Printf("peers=%d down=%.1fKB/s up=%.1fKB/s left=%d",
				s.Peers, s.DownloadRate/1024, s.UploadRate/1024, s.Left)
		}
	}
}
