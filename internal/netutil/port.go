package netutil

import (
	"errors"
	"fmt"
	"net"
)

// Listen binds the control API. preferred is tried first; when it is taken
// and autoFallback is set, candidates are tried in order. The returned
// listener is already bound, so the address cannot be lost between the
// check and the serve.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := listen(preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("netutil: preferred bind address unavailable: %w", err)
		}
	}

	seen := map[string]bool{preferred: true}
	for _, addr := range candidates {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		if ln, err := listen(addr); err == nil {
			return ln, nil
		}
	}
	return nil, errors.New("netutil: no available controller bind addresses")
}

func listen(addr string) (net.Listener, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("netutil: invalid bind address %q: %w", addr, err)
	}
	return net.Listen("tcp", addr)
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := listen(addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
