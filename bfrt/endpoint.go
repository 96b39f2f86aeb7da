package bfrt

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultEndpoint is the default control service endpoint.
const DefaultEndpoint = "tcp://127.0.0.1:50052"

// ParseEndpoint parses a control service endpoint URI into network and address.
//
// Accepted forms are unix:///path/to/socket, tcp://host:port (also tcp4 and tcp6), and bare host:port.
func ParseEndpoint(endpoint string) (network, address string, e error) {
	if !strings.Contains(endpoint, "://") {
		if endpoint == "" {
			return "", "", fmt.Errorf("empty endpoint")
		}
		return "tcp", endpoint, nil
	}

	u, e := url.Parse(endpoint)
	if e != nil {
		return "", "", fmt.Errorf("endpoint parse error %w", e)
	}

	switch u.Scheme {
	case "unix":
		address = u.Path
	case "tcp", "tcp4", "tcp6":
		address = u.Host
	default:
		return "", "", fmt.Errorf("unsupported endpoint scheme %s", u.Scheme)
	}
	if address == "" {
		return "", "", fmt.Errorf("endpoint %s has no address", endpoint)
	}
	return u.Scheme, address, nil
}
