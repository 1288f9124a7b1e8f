// Package natutil provides the NAT collaborator consumed by Client:
// an opaque helper that maps the listening port through a
// gateway and reports the internal/external IP. Failures surface as an
// error; the Client then proceeds with its listening IP unchanged.
package natutil

// Mapper is implemented by a NAT traversal backend.
type Mapper interface {
	// GetIPAddrsAndMapPort maps port on the gateway (if one is found)
	// and returns the internal and external IP addresses.
	GetIPAddrsAndMapPort(port uint16) (internalIP, externalIP string, err error)
}
