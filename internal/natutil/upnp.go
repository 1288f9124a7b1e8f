package natutil

import (
	"fmt"
	"net"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// UPnPMapper implements Mapper using UPnP Internet Gateway Device
// discovery (see DESIGN.md for why this one backend has no close
// grounding example).
type UPnPMapper struct {
	client *internetgateway2.WANIPConnection1
}

// DiscoverUPnP searches the local network for a single WANIPConnection1
// gateway. It returns an error if none is found.
func DiscoverUPnP() (*UPnPMapper, error) {
	clients, _, err := internetgateway2.NewWANIPConnection1Clients()
	if err != nil {
		return nil, fmt.Errorf("natutil: upnp discovery failed: %w", err)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("natutil: no upnp gateway found")
	}
	return &UPnPMapper{client: clients[0]}, nil
}

// GetIPAddrsAndMapPort adds a TCP port mapping for port and returns the
// local and gateway-reported external IP addresses.
func (m *UPnPMapper) GetIPAddrsAndMapPort(port uint16) (internalIP, externalIP string, err error) {
	internal, err := localIP()
	if err != nil {
		return "", "", err
	}
	external, err := m.client.GetExternalIPAddress()
	if err != nil {
		return "", "", fmt.Errorf("natutil: cannot get external ip: %w", err)
	}
	err = m.client.AddPortMapping("", port, "TCP", port, internal.String(), true, "gorrent", 0)
	if err != nil {
		return "", "", fmt.Errorf("natutil: cannot map port: %w", err)
	}
	return internal.String(), external, nil
}

func localIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
