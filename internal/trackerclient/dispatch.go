package trackerclient

import (
	"fmt"
	"net/url"

	"github.com/arlogilbert/gorrent/internal/trackerclient/httptracker"
	"github.com/arlogilbert/gorrent/internal/trackerclient/udptracker"
)

// New returns a Client for rawURL, dispatching on scheme: http
// and https share the HTTP backend, udp gets the connect-then-act
// backend. Any other scheme is rejected with ErrUnsupportedScheme.
func New(rawURL string) (Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("trackerclient: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return httptracker.New(u), nil
	case "udp":
		return udptracker.New(u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
