// Command gorrent-tracker runs a standalone HTTP+UDP tracker backed by
// the in-memory swarm table.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arlogilbert/gorrent/internal/memtracker"
	"github.com/arlogilbert/gorrent/internal/trackerserver"
)

func main() {
	httpAddr := flag.String("http", ":6969", "HTTP announce/scrape listen address")
	udpAddr := flag.String("udp", ":6969", "UDP announce/scrape listen address")
	flag.Parse()

	srv, err := trackerserver.New(*httpAddr, *udpAddr, nil)
	if err != nil {
		log.Fatalln(err)
	}

	tr := memtracker.New()
	defer tr.Close()

	go tr.Serve(srv.Requests())

	go srv.Serve()
	log.Printf("tracker listening: http=%s udp=%s", *httpAddr, *udpAddr)

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	<-sigC

	if err := srv.Close(); err != nil {
		log.Println("error shutting down:", err)
	}
}
