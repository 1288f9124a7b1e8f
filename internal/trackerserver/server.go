package trackerserver

import (
	"sync"

	"github.com/arlogilbert/gorrent/internal/logger"
)

// Server combines an HTTP listener and a UDP listener into a single
// asynchronous stream of Request values, modeled as a fan-in of
// two task-producing goroutines into one consumer channel rather than
// simulated generator semantics (per the design notes on combining
// heterogeneous event sources).
type Server struct {
	http *httpListener
	udp  *udpListener
	out  chan Request
	log  logger.Logger

	wg sync.WaitGroup
}

// New binds a UDP listener on udpAddr and prepares an HTTP listener on
// httpAddr (which starts accepting only once Serve runs), optionally
// restricted to filter, and returns a Server whose Requests channel
// carries both streams fanned in together.
func New(httpAddr, udpAddr string, filter *FilterList) (*Server, error) {
	out := make(chan Request, 64)
	s := &Server{out: out, log: logger.New("trackerserver")}
	s.http = newHTTPListener(httpAddr, out, filter)

	udp, err := newUDPListener(udpAddr, out, filter)
	if err != nil {
		return nil, err
	}
	s.udp = udp
	return s, nil
}

// Requests returns the combined request stream. Consumers must call
// Respond or Reject on every value they read, since the HTTP side
// blocks its handler goroutine until one of the two is called.
func (s *Server) Requests() <-chan Request { return s.out }

// Serve starts both listeners and blocks until they stop (normally via
// Close). Errors from either listener are logged; Serve itself
// returns once both goroutines have exited.
func (s *Server) Serve() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.http.serve(); err != nil {
			s.log.Errorln("http listener stopped:", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.udp.serve(); err != nil {
			s.log.Errorln("udp listener stopped:", err)
		}
	}()
	s.wg.Wait()
}

// Close stops both listeners.
func (s *Server) Close() error {
	httpErr := s.http.close()
	udpErr := s.udp.close()
	if httpErr != nil {
		return httpErr
	}
	return udpErr
}
